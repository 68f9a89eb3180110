package trade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradelens/tradelens/internal/core"
)

func newTestClient(server *httptest.Server) *Client {
	return &Client{
		BaseURL:   server.URL,
		League:    "Fate of the Vaal",
		SessionID: "secret-session",
		Client:    server.Client(),
	}
}

func TestSearchSuccess(t *testing.T) {
	var gotQuery core.TradeQuery
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search/poe2/Fate of the Vaal", r.URL.Path)
		require.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		cookie, err := r.Cookie("POESESSID")
		require.NoError(t, err)
		require.Equal(t, "secret-session", cookie.Value)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))

		w.Header().Set("X-Rate-Limit-Rules", "Ip")
		w.Header().Set("X-Rate-Limit-Ip", "5:10:60")
		w.Header().Set("X-Rate-Limit-Ip-State", "1:10:0")
		_, _ = w.Write([]byte(`{"id":"Q1","total":42,"result":["a","b","c"]}`))
	}))
	defer server.Close()

	query := core.TradeQuery{Query: core.QueryBody{Status: core.StatusOption{Option: "any"}, Type: "Ruby Ring"}}
	resp := newTestClient(server).Search(context.Background(), query)

	require.Equal(t, core.OutcomeOK, resp.Kind)
	require.Equal(t, "Q1", resp.QueryID)
	require.Equal(t, 42, resp.Total)
	require.Equal(t, []string{"a", "b", "c"}, resp.ResultIDs)
	require.Equal(t, "Ip", resp.Headers.Get("X-Rate-Limit-Rules"))
	require.Equal(t, "Ruby Ring", gotQuery.Query.Type)
}

func TestSearchQuotaRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "8")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	resp := newTestClient(server).Search(context.Background(), core.TradeQuery{})
	require.Equal(t, core.OutcomeQuotaRejected, resp.Kind)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, 8*time.Second, resp.RetryAfter)
}

func TestSearchRemoteErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "unknown base", status: http.StatusBadRequest, body: `{"error":{"code":2,"message":"Unknown item base type"}}`, message: "unknown item type"},
		{name: "api message", status: http.StatusBadRequest, body: `{"error":{"code":2,"message":"Invalid query"}}`, message: "trade api: Invalid query"},
		{name: "plain body", status: http.StatusInternalServerError, body: strings.Repeat("x", 300), message: "trade api error 500: " + strings.Repeat("x", 100)},
		{name: "empty body", status: http.StatusServiceUnavailable, message: "Service Unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			resp := newTestClient(server).Search(context.Background(), core.TradeQuery{})
			require.Equal(t, core.OutcomeRemoteError, resp.Kind)
			require.Contains(t, resp.Message(), tc.message)
		})
	}
}

func TestSearchMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":`))
	}))
	defer server.Close()

	resp := newTestClient(server).Search(context.Background(), core.TradeQuery{})
	require.Equal(t, core.OutcomeMalformedResponse, resp.Kind)
	require.Error(t, resp.Err)
}

func TestSearchNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(server)
	server.Close()

	resp := client.Search(context.Background(), core.TradeQuery{})
	require.Equal(t, core.OutcomeNetworkFailure, resp.Kind)
}

func TestSearchTimeoutIsNetworkFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp := newTestClient(server).Search(ctx, core.TradeQuery{})
	require.Equal(t, core.OutcomeNetworkFailure, resp.Kind)
}

func TestFetchParsesListings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fetch/a,b,c", r.URL.Path)
		require.Equal(t, "Q1", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"result":[
			{"id":"a","listing":{"indexed":"2025-01-01T00:00:00Z","whisper":"@seller hi","price":{"amount":3,"currency":"exalted"},
				"account":{"name":"seller","lastCharacterName":"Hero","online":{"league":"Standard"}}},"item":{"icon":"https://icon/a.png"}},
			null,
			{"id":"c","listing":{"price":{"amount":1.5,"currency":"divine"},"account":{"online":{"status":"afk"}}},"item":{"icon":"https://icon/c.png"}}
		]}`))
	}))
	defer server.Close()

	resp := newTestClient(server).Fetch(context.Background(), "Q1", []string{"a", "b", "c"})
	require.Equal(t, core.OutcomeOK, resp.Kind)
	require.Equal(t, "https://icon/a.png", resp.Icon)
	require.Len(t, resp.Listings, 2)

	first := resp.Listings[0]
	require.Equal(t, "a", first.ID)
	require.Equal(t, 3.0, first.Amount)
	require.Equal(t, "exalted", first.Currency)
	require.Equal(t, "seller", first.Account)
	require.Equal(t, "Hero", first.Character)
	require.Equal(t, "online", first.Online)
	require.Equal(t, "@seller hi", first.Whisper)

	second := resp.Listings[1]
	require.Equal(t, "Unknown", second.Account)
	require.Equal(t, "afk", second.Online)
}

func TestFetchTruncatesToBatchSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(strings.TrimPrefix(r.URL.Path, "/fetch/"), ",")
		require.Len(t, ids, MaxFetchBatch)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	ids := make([]string, 15)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	resp := newTestClient(server).Fetch(context.Background(), "Q", ids)
	require.Equal(t, core.OutcomeOK, resp.Kind)
}

func TestFetchQuotaRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	resp := newTestClient(server).Fetch(context.Background(), "Q", []string{"a"})
	require.Equal(t, core.OutcomeQuotaRejected, resp.Kind)
	require.Zero(t, resp.RetryAfter)
}

func TestOnlineStatus(t *testing.T) {
	cases := map[string]string{
		``:                      "",
		`null`:                  "",
		`false`:                 "",
		`true`:                  "online",
		`{}`:                    "online",
		`{"status":"afk"}`:      "afk",
		`"dnd"`:                 "dnd",
		`{"league":"Hardcore"}`: "online",
	}
	for raw, want := range cases {
		require.Equal(t, want, onlineStatus(json.RawMessage(raw)), raw)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	require.Zero(t, retryAfterHeader(resp))

	resp.Header.Set("Retry-After", "12")
	require.Equal(t, 12*time.Second, retryAfterHeader(resp))

	resp.Header.Set("Retry-After", "0")
	require.Zero(t, retryAfterHeader(resp))

	resp.Header.Set("Retry-After", "soon")
	require.Zero(t, retryAfterHeader(resp))

	resp.Header.Set("Retry-After", time.Now().Add(30*time.Second).UTC().Format(http.TimeFormat))
	wait := retryAfterHeader(resp)
	require.Greater(t, wait, 25*time.Second)
	require.LessOrEqual(t, wait, 31*time.Second)

	require.Zero(t, retryAfterHeader(nil))
}
