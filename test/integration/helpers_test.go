package integration

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradelens/tradelens/internal/config"
	"github.com/tradelens/tradelens/internal/observability"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError reports sandboxes that refuse loopback sockets.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics(config.AppName, 0); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

// listenOrSkip binds IPv4 loopback explicitly.
func listenOrSkip(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}
	return listener
}

func startServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ts := &httptest.Server{
		Listener: listenOrSkip(t),
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

// tradeSite fakes the trade API: every search matches `total` listings
// priced in exalted.
type tradeSite struct {
	total    int
	searches atomic.Int32
	fetches  atomic.Int32
}

func (s *tradeSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/data/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[{"label":"Explicit","entries":[
			{"id":"explicit.life","text":"+# to maximum Life"}]}]}`))
	})
	mux.HandleFunc("/search/poe2/", func(w http.ResponseWriter, r *http.Request) {
		s.searches.Add(1)
		w.Header().Set("X-Rate-Limit-Policy", "trade-search-request-limit")
		w.Header().Set("X-Rate-Limit-Rules", "Ip")
		w.Header().Set("X-Rate-Limit-Ip", "8:10:60,15:60:120")
		w.Header().Set("X-Rate-Limit-Ip-State", "1:10:0,1:60:0")

		ids := make([]string, s.total)
		for i := range ids {
			ids[i] = fmt.Sprintf("%q", fmt.Sprintf("listing-%d", i))
		}
		_, _ = fmt.Fprintf(w, `{"id":"Q1","total":%d,"result":[%s]}`, s.total, strings.Join(ids, ","))
	})
	mux.HandleFunc("/fetch/", func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		ids := strings.Split(strings.TrimPrefix(r.URL.Path, "/fetch/"), ",")
		entries := make([]string, 0, len(ids))
		for i, id := range ids {
			entries = append(entries, fmt.Sprintf(
				`{"id":%q,"listing":{"indexed":%q,"price":{"amount":%d,"currency":"exalted"},"account":{"name":"seller-%d"}}}`,
				id, time.Now().UTC().Format(time.RFC3339), i+1, i))
		}
		_, _ = w.Write([]byte(`{"result":[` + strings.Join(entries, ",") + `]}`))
	})
	return mux
}

func testConfig(tradeURL string) *config.Config {
	return &config.Config{
		Trade:  config.TradeConfig{BaseURL: tradeURL, League: "Standard", Timeout: 5 * time.Second},
		Search: config.SearchConfig{MaxRetries: 1, EarlyStopCount: 5, CallTimeout: 5 * time.Second},
		Cache:  config.CacheConfig{TTL: time.Minute, MaxEntries: 10},
		Server: config.ServerConfig{Host: "127.0.0.1"},
	}
}
