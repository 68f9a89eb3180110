// Package trade talks to the official trade API over HTTP.
package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tradelens/tradelens/internal/core"
)

const (
	// DefaultBaseURL is the trade API root.
	DefaultBaseURL = "https://www.pathofexile.com/api/trade2"
	// DefaultLeague is used when no league is configured.
	DefaultLeague = "Standard"
	// DefaultUserAgent identifies tradelens to the trade API.
	DefaultUserAgent = "tradelens/1.0"
	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 15 * time.Second
	// MaxFetchBatch is the largest ID batch the fetch endpoint accepts.
	MaxFetchBatch = 10

	maxErrorBody = 100
)

// ErrUnexpectedStatus wraps non-2xx responses from data endpoints.
var ErrUnexpectedStatus = errors.New("unexpected trade api status")

// Client performs trade searches and listing fetches. It does no pacing of
// its own; callers gate every call through a rate limiter.
type Client struct {
	BaseURL   string
	League    string
	SessionID string
	UserAgent string
	Client    *http.Client
}

// Search posts a query and returns the result IDs.
func (c *Client) Search(ctx context.Context, query core.TradeQuery) *core.SearchResponse {
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := json.Marshal(query)
	if err != nil {
		return &core.SearchResponse{Outcome: core.Outcome{Kind: core.OutcomeMalformedResponse, Err: fmt.Errorf("encode query: %w", err)}}
	}

	endpoint := c.baseURL() + "/search/poe2/" + url.PathEscape(c.league())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &core.SearchResponse{Outcome: core.Outcome{Kind: core.OutcomeNetworkFailure, Err: err}}
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &core.SearchResponse{Outcome: core.Outcome{Kind: core.OutcomeNetworkFailure, Err: err}}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	outcome := classify(resp)
	if outcome.Kind != core.OutcomeOK {
		return &core.SearchResponse{Outcome: outcome}
	}

	var payload struct {
		ID     string   `json:"id"`
		Total  int      `json:"total"`
		Result []string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		outcome.Kind = core.OutcomeMalformedResponse
		outcome.Err = fmt.Errorf("decode search response: %w", err)
		return &core.SearchResponse{Outcome: outcome}
	}

	return &core.SearchResponse{
		Outcome:   outcome,
		QueryID:   payload.ID,
		Total:     payload.Total,
		ResultIDs: payload.Result,
	}
}

// Fetch retrieves listing details for up to MaxFetchBatch result IDs.
func (c *Client) Fetch(ctx context.Context, queryID string, ids []string) *core.FetchResponse {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(ids) == 0 {
		return &core.FetchResponse{Outcome: core.Outcome{Kind: core.OutcomeOK}}
	}
	if len(ids) > MaxFetchBatch {
		ids = ids[:MaxFetchBatch]
	}

	endpoint := c.baseURL() + "/fetch/" + strings.Join(ids, ",")
	if queryID != "" {
		endpoint += "?query=" + url.QueryEscape(queryID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &core.FetchResponse{Outcome: core.Outcome{Kind: core.OutcomeNetworkFailure, Err: err}}
	}
	c.decorate(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &core.FetchResponse{Outcome: core.Outcome{Kind: core.OutcomeNetworkFailure, Err: err}}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	outcome := classify(resp)
	if outcome.Kind != core.OutcomeOK {
		return &core.FetchResponse{Outcome: outcome}
	}

	var payload fetchPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		outcome.Kind = core.OutcomeMalformedResponse
		outcome.Err = fmt.Errorf("decode fetch response: %w", err)
		return &core.FetchResponse{Outcome: outcome}
	}

	listings, icon := payload.listings()
	return &core.FetchResponse{Outcome: outcome, Listings: listings, Icon: icon}
}

// classify maps an HTTP response onto a transport outcome. The body is only
// read for non-2xx responses.
func classify(resp *http.Response) core.Outcome {
	outcome := core.Outcome{
		Kind:       core.OutcomeOK,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		outcome.Kind = core.OutcomeQuotaRejected
		outcome.RetryAfter = retryAfterHeader(resp)
		outcome.Err = errors.New("rate limited by trade api")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		outcome.Kind = core.OutcomeRemoteError
		outcome.Err = remoteError(resp)
	}
	return outcome
}

func remoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error.Message != "" {
		if strings.Contains(payload.Error.Message, "Unknown item base type") {
			return errors.New("unknown item type: the item may be currency, a quest item, or not tradeable")
		}
		return fmt.Errorf("trade api: %s", payload.Error.Message)
	}

	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("trade api error %d: %s", resp.StatusCode, text)
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent())
	if c != nil && strings.TrimSpace(c.SessionID) != "" {
		req.AddCookie(&http.Cookie{Name: "POESESSID", Value: strings.TrimSpace(c.SessionID)})
	}
}

func (c *Client) httpClient() *http.Client {
	if c != nil && c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (c *Client) baseURL() string {
	if c != nil && strings.TrimSpace(c.BaseURL) != "" {
		return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	}
	return DefaultBaseURL
}

func (c *Client) league() string {
	if c != nil && strings.TrimSpace(c.League) != "" {
		return strings.TrimSpace(c.League)
	}
	return DefaultLeague
}

func (c *Client) userAgent() string {
	if c != nil && strings.TrimSpace(c.UserAgent) != "" {
		return c.UserAgent
	}
	return DefaultUserAgent
}

type fetchPayload struct {
	Result []*struct {
		ID      string `json:"id"`
		Listing struct {
			Indexed string `json:"indexed"`
			Whisper string `json:"whisper"`
			Price   struct {
				Amount   float64 `json:"amount"`
				Currency string  `json:"currency"`
			} `json:"price"`
			Account struct {
				Name              string          `json:"name"`
				LastCharacterName string          `json:"lastCharacterName"`
				Online            json.RawMessage `json:"online"`
			} `json:"account"`
		} `json:"listing"`
		Item struct {
			Icon string `json:"icon"`
		} `json:"item"`
	} `json:"result"`
}

func (p fetchPayload) listings() ([]core.Listing, string) {
	listings := make([]core.Listing, 0, len(p.Result))
	icon := ""
	for _, entry := range p.Result {
		if entry == nil {
			continue
		}
		if icon == "" {
			icon = entry.Item.Icon
		}
		account := entry.Listing.Account.Name
		if account == "" {
			account = "Unknown"
		}
		listings = append(listings, core.Listing{
			ID:        entry.ID,
			Amount:    entry.Listing.Price.Amount,
			Currency:  entry.Listing.Price.Currency,
			Account:   account,
			Character: entry.Listing.Account.LastCharacterName,
			Online:    onlineStatus(entry.Listing.Account.Online),
			Whisper:   entry.Listing.Whisper,
			Indexed:   entry.Listing.Indexed,
		})
	}
	return listings, icon
}

// onlineStatus reads the account online field, which is null when offline,
// an object (optionally carrying a status such as "afk") when online.
func onlineStatus(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("false")) {
		return ""
	}

	var obj struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		if obj.Status != "" {
			return obj.Status
		}
		return "online"
	}

	var status string
	if err := json.Unmarshal(trimmed, &status); err == nil && status != "" {
		return status
	}
	return "online"
}
