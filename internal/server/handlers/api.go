package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/core/cache"
	"github.com/tradelens/tradelens/internal/core/currency"
	"github.com/tradelens/tradelens/internal/core/store"
	apperrors "github.com/tradelens/tradelens/internal/errors"
	"github.com/tradelens/tradelens/internal/service"
)

const (
	maxSearchBody       = 64 << 10
	defaultHistoryLimit = 50
)

// Backend is the search service the API exposes.
type Backend interface {
	Search(ctx context.Context, criteria core.SearchCriteria) *core.SearchResult
	Limits() []service.LimiterReport
	CacheStats() cache.Stats
	InvalidateCache(name, baseType string) int
	History(ctx context.Context, limit int) ([]store.ScanRecord, error)
	Scan(ctx context.Context, id string) (*store.ScanRecord, error)
	ClearHistory(ctx context.Context) (int64, error)
	CurrencyRates() []currency.Rate
}

// API serves the /v1 endpoints.
type API struct {
	Backend Backend
}

// CacheStatsResponse is the body of GET /v1/cache.
type CacheStatsResponse struct {
	Total      int    `json:"total_entries"`
	Valid      int    `json:"valid_entries"`
	MaxEntries int    `json:"max_entries"`
	TTL        string `json:"ttl"`
}

// InvalidateResponse is the body of DELETE /v1/cache and /v1/history.
type InvalidateResponse struct {
	Removed int64 `json:"removed"`
}

// Search handles POST /v1/search. Search outcomes, including failed ones,
// are returned with 200; only unreadable requests are errors.
func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	var criteria core.SearchCriteria
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&criteria); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON search criteria object"))
		return
	}
	criteria.Rarity = core.ParseRarity(string(criteria.Rarity))

	writeJSON(w, http.StatusOK, a.Backend.Search(r.Context(), criteria))
}

// Limits handles GET /v1/limits.
func (a *API) Limits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"limiters": a.Backend.Limits()})
}

// CacheStats handles GET /v1/cache.
func (a *API) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := a.Backend.CacheStats()
	writeJSON(w, http.StatusOK, CacheStatsResponse{
		Total:      stats.Total,
		Valid:      stats.Valid,
		MaxEntries: stats.MaxEntries,
		TTL:        stats.TTL.String(),
	})
}

// InvalidateCache handles DELETE /v1/cache?name=&base=.
func (a *API) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	removed := a.Backend.InvalidateCache(query.Get("name"), query.Get("base"))
	writeJSON(w, http.StatusOK, InvalidateResponse{Removed: int64(removed)})
}

// History handles GET /v1/history?limit=.
func (a *API) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, r, apperrors.NewBadRequest("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	scans, err := a.Backend.History(r.Context(), limit)
	if err != nil {
		respondWithError(w, r, historyError(r, err))
		return
	}
	if scans == nil {
		scans = []store.ScanRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

// Scan handles GET /v1/history/{id}.
func (a *API) Scan(w http.ResponseWriter, r *http.Request) {
	scan, err := a.Backend.Scan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, historyError(r, err))
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// ClearHistory handles DELETE /v1/history.
func (a *API) ClearHistory(w http.ResponseWriter, r *http.Request) {
	removed, err := a.Backend.ClearHistory(r.Context())
	if err != nil {
		respondWithError(w, r, historyError(r, err))
		return
	}
	writeJSON(w, http.StatusOK, InvalidateResponse{Removed: removed})
}

// Rates handles GET /v1/rates.
func (a *API) Rates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rates":        a.Backend.CurrencyRates(),
		"generated_at": time.Now().UTC(),
	})
}

func historyError(r *http.Request, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFound("scan not found")
	case errors.Is(err, service.ErrHistoryDisabled):
		return apperrors.NewUnavailable("scan history is not enabled")
	default:
		return apperrors.WrapDatabase(r.Context(), err, "scan history unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
