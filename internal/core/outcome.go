package core

import (
	"net/http"
	"time"
)

// OutcomeKind classifies the result of one remote call.
type OutcomeKind string

const (
	OutcomeOK                OutcomeKind = "ok"
	OutcomeQuotaRejected     OutcomeKind = "quota_rejected"
	OutcomeNetworkFailure    OutcomeKind = "network_failure"
	OutcomeMalformedResponse OutcomeKind = "malformed_response"
	OutcomeRemoteError       OutcomeKind = "remote_error"
)

// Outcome carries transport level metadata for a remote call.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	RetryAfter time.Duration
	Headers    http.Header
	Err        error
}

// Message returns a human readable description of a failed outcome.
func (o Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return string(o.Kind)
}

// SearchResponse is the parsed response of a trade search call.
type SearchResponse struct {
	Outcome
	QueryID   string
	Total     int
	ResultIDs []string
}

// FetchResponse is the parsed response of a listing fetch call.
type FetchResponse struct {
	Outcome
	Listings []Listing
	Icon     string
}
