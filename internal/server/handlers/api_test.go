package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/core/cache"
	"github.com/tradelens/tradelens/internal/core/currency"
	"github.com/tradelens/tradelens/internal/core/store"
	apperrors "github.com/tradelens/tradelens/internal/errors"
	"github.com/tradelens/tradelens/internal/service"
)

type stubBackend struct {
	criteria    core.SearchCriteria
	invalidated [2]string
	scans       []store.ScanRecord
	historyErr  error
}

func (s *stubBackend) Search(ctx context.Context, criteria core.SearchCriteria) *core.SearchResult {
	s.criteria = criteria
	return &core.SearchResult{Item: criteria.DisplayName(), Rarity: criteria.Rarity, Success: true, Reason: core.ReasonOK}
}

func (s *stubBackend) Limits() []service.LimiterReport {
	return []service.LimiterReport{{Endpoint: "search"}, {Endpoint: "fetch"}}
}

func (s *stubBackend) CacheStats() cache.Stats {
	return cache.Stats{Total: 3, Valid: 2, MaxEntries: 100, TTL: 5 * time.Minute}
}

func (s *stubBackend) InvalidateCache(name, baseType string) int {
	s.invalidated = [2]string{name, baseType}
	return 2
}

func (s *stubBackend) History(ctx context.Context, limit int) ([]store.ScanRecord, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	if limit < len(s.scans) {
		return s.scans[:limit], nil
	}
	return s.scans, nil
}

func (s *stubBackend) Scan(ctx context.Context, id string) (*store.ScanRecord, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	for _, scan := range s.scans {
		if scan.ID == id {
			return &scan, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *stubBackend) ClearHistory(ctx context.Context) (int64, error) {
	return int64(len(s.scans)), s.historyErr
}

func (s *stubBackend) CurrencyRates() []currency.Rate {
	return currency.NewTable().Rates()
}

func newTestRouter(backend Backend) http.Handler {
	api := &API{Backend: backend}
	r := chi.NewRouter()
	r.Post("/v1/search", api.Search)
	r.Get("/v1/limits", api.Limits)
	r.Get("/v1/cache", api.CacheStats)
	r.Delete("/v1/cache", api.InvalidateCache)
	r.Get("/v1/history", api.History)
	r.Get("/v1/history/{id}", api.Scan)
	r.Delete("/v1/history", api.ClearHistory)
	r.Get("/v1/rates", api.Rates)
	return r
}

func serve(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSearchDecodesCriteria(t *testing.T) {
	backend := &stubBackend{}
	rec := serve(t, newTestRouter(backend), http.MethodPost, "/v1/search",
		`{"base_type":"Ruby Ring","rarity":"rare","modifiers":[{"id":"explicit.life","text":"+60 to maximum Life","value":60}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, core.RarityRare, backend.criteria.Rarity)
	require.Len(t, backend.criteria.Modifiers, 1)
	require.True(t, backend.criteria.Modifiers[0].Enabled, "enabled defaults to true")

	var result core.SearchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.True(t, result.Success)
	require.Equal(t, "Ruby Ring", result.Item)
}

func TestSearchRejectsBadBody(t *testing.T) {
	router := newTestRouter(&stubBackend{})

	for _, body := range []string{`{"base_type":`, `{"unknown_field":1}`, `[]`} {
		rec := serve(t, router, http.MethodPost, "/v1/search", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)

		var resp apperrors.HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, apperrors.CodeInvalidInput, resp.Error.Code)
	}
}

func TestLimitsAndCacheEndpoints(t *testing.T) {
	backend := &stubBackend{}
	router := newTestRouter(backend)

	rec := serve(t, router, http.MethodGet, "/v1/limits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"endpoint":"fetch"`)

	rec = serve(t, router, http.MethodGet, "/v1/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats CacheStatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	require.Equal(t, CacheStatsResponse{Total: 3, Valid: 2, MaxEntries: 100, TTL: "5m0s"}, stats)

	rec = serve(t, router, http.MethodDelete, "/v1/cache?name=Headhunter&base=Leather+Belt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, [2]string{"Headhunter", "Leather Belt"}, backend.invalidated)
	require.JSONEq(t, `{"removed":2}`, rec.Body.String())
}

func TestHistoryEndpoints(t *testing.T) {
	backend := &stubBackend{scans: []store.ScanRecord{{ID: "a", Item: "Ruby Ring"}, {ID: "b", Item: "Headhunter"}}}
	router := newTestRouter(backend)

	rec := serve(t, router, http.MethodGet, "/v1/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Scans []store.ScanRecord `json:"scans"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Scans, 1)

	rec = serve(t, router, http.MethodGet, "/v1/history?limit=zero", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, router, http.MethodGet, "/v1/history/b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Headhunter")

	rec = serve(t, router, http.MethodGet, "/v1/history/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, router, http.MethodDelete, "/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"removed":2}`, rec.Body.String())
}

func TestHistoryErrors(t *testing.T) {
	router := newTestRouter(&stubBackend{historyErr: service.ErrHistoryDisabled})
	rec := serve(t, router, http.MethodGet, "/v1/history", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	router = newTestRouter(&stubBackend{historyErr: errors.New("disk I/O error")})
	rec = serve(t, router, http.MethodGet, "/v1/history", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), apperrors.CodeDatabase)
}

func TestRatesEndpoint(t *testing.T) {
	rec := serve(t, newTestRouter(&stubBackend{}), http.MethodGet, "/v1/rates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"divine"`)
}
