package scout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/core/currency"
)

func newTestClient(server *httptest.Server, rates Rates) *Client {
	client := New(server.URL, "Fate of the Vaal", 0, rates)
	client.Limiter = nil
	client.Client = server.Client()
	return client
}

func TestSupports(t *testing.T) {
	client := New("", "Standard", 0, nil)

	require.True(t, client.Supports(core.SearchCriteria{Name: "Headhunter", Rarity: core.RarityUnique}))
	require.True(t, client.Supports(core.SearchCriteria{BaseType: "Divine Orb", Rarity: core.RarityCurrency}))
	require.False(t, client.Supports(core.SearchCriteria{BaseType: "Ruby Ring", Rarity: core.RarityRare}))
	require.False(t, client.Supports(core.SearchCriteria{Rarity: core.RarityUnique}))

	var nilClient *Client
	require.False(t, nilClient.Supports(core.SearchCriteria{Name: "x", Rarity: core.RarityUnique}))
}

func TestLoadRatesUpdatesTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/leagues", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"value":"Standard","divinePrice":80,"chaosDivinePrice":40},
			{"value":"Fate of the Vaal","divinePrice":120,"chaosDivinePrice":60}
		]`))
	}))
	defer server.Close()

	table := currency.NewTable()
	client := newTestClient(server, table)
	require.NoError(t, client.LoadRates(context.Background()))

	require.Equal(t, 60.0, table.ToChaos(1, "divine"))
	require.Equal(t, 0.5, table.ToChaos(1, "exalted"))
}

func TestLoadRatesUnknownLeague(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"value":"Standard","divinePrice":80,"chaosDivinePrice":40}]`))
	}))
	defer server.Close()

	table := currency.NewTable()
	err := newTestClient(server, table).LoadRates(context.Background())
	require.True(t, errors.Is(err, ErrLeagueNotFound))
	require.Equal(t, 150.0, table.ToChaos(1, "divine"), "defaults untouched")
}

func TestPriceUniqueSearchesCategoriesAndCaches(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "Fate of the Vaal", r.URL.Query().Get("league"))
		require.Equal(t, "Headhunter", r.URL.Query().Get("search"))
		switch r.URL.Path {
		case "/api/items/unique/weapon":
			_, _ = w.Write([]byte(`{"items":[{"name":"Headhunter Replica","currentPrice":1}]}`))
		case "/api/items/unique/armour":
			_, _ = w.Write([]byte(`{"items":[{"name":"Headhunter","currentPrice":300,"iconUrl":"https://icon/hh.png",
				"priceLogs":[null,{"price":300,"quantity":14}]}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	table := currency.NewTable()
	table.UpdateFromLeague(60, 120)
	client := newTestClient(server, table)
	client.exaltedPerDivine = 120

	price, err := client.Price(context.Background(), core.SearchCriteria{Name: "Headhunter", BaseType: "Leather Belt", Rarity: core.RarityUnique})
	require.NoError(t, err)
	require.Equal(t, Source, price.Source)
	require.Equal(t, 300.0, price.Exalted)
	require.Equal(t, 150.0, price.Chaos)
	require.Equal(t, 2.5, price.Divine)
	require.Equal(t, "high", price.Confidence)
	require.Equal(t, 14, price.Listings)
	require.Equal(t, "https://icon/hh.png", price.Icon)
	require.EqualValues(t, 2, calls.Load())

	_, err = client.Price(context.Background(), core.SearchCriteria{Name: "headhunter", Rarity: core.RarityUnique})
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load(), "second lookup served from memory")
}

func TestPriceCurrencyLowConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/items/currency/currency" {
			_, _ = w.Write([]byte(`{"items":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"text":"Divine Orb","currentPrice":100,"priceLogs":[{"price":100,"quantity":3}]}]}`))
	}))
	defer server.Close()

	client := newTestClient(server, currency.NewTable())
	price, err := client.Price(context.Background(), core.SearchCriteria{BaseType: "Divine Orb", Rarity: core.RarityCurrency})
	require.NoError(t, err)
	require.Equal(t, 5000.0, price.Chaos)
	require.Equal(t, 1.0, price.Divine)
	require.Equal(t, "low", price.Confidence)
	require.Equal(t, 3, price.Listings)
}

func TestPriceNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/items/unique/flask" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server, nil).Price(context.Background(), core.SearchCriteria{Name: "Nothing", Rarity: core.RarityUnique})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
	require.Contains(t, err.Error(), "500")

	_, err = newTestClient(server, nil).Price(context.Background(), core.SearchCriteria{Name: "x", Rarity: core.RarityRare})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestPriceCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(server.URL, "Standard", 0, nil)
	_, err := client.Price(ctx, core.SearchCriteria{Name: "Headhunter", Rarity: core.RarityUnique})
	require.ErrorIs(t, err, context.Canceled)
}
