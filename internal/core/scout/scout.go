// Package scout prices items from the poe2scout economy index.
package scout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tradelens/tradelens/internal/core"
)

const (
	// Source labels prices produced by this package.
	Source = "poe2scout"
	// DefaultBaseURL is the poe2scout root.
	DefaultBaseURL = "https://poe2scout.com"
	// DefaultInterval paces requests to poe2scout.
	DefaultInterval = time.Second
	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 10 * time.Second

	highConfidenceQuantity = 10
	defaultExaltedPerDiv   = 100.0
)

var (
	// ErrNotFound is returned when no index entry matches the item.
	ErrNotFound = errors.New("item not found on poe2scout")
	// ErrLeagueNotFound is returned when rates are missing for the league.
	ErrLeagueNotFound = errors.New("league not found on poe2scout")
	// ErrUnexpectedStatus wraps non-200 responses.
	ErrUnexpectedStatus = errors.New("unexpected poe2scout status")
)

var (
	uniqueCategories   = []string{"weapon", "armour", "accessory", "flask", "jewel"}
	currencyCategories = []string{"currency", "fragments", "runes", "essences"}
)

// Converter turns an amount of some currency into chaos.
type Converter interface {
	ToChaos(amount float64, currency string) float64
}

// RateSink receives league economy figures.
type RateSink interface {
	UpdateFromLeague(chaosPerDivine, exaltedPerDivine float64)
}

// Rates is the currency table the client reads and updates.
type Rates interface {
	Converter
	RateSink
}

// Client looks up catalogue prices. Lookups are cached for the life of the
// client; rates are refreshed with LoadRates.
type Client struct {
	BaseURL   string
	League    string
	UserAgent string
	Client    *http.Client
	Limiter   *rate.Limiter
	Rates     Rates

	mu               sync.Mutex
	items            map[string]item
	exaltedPerDivine float64
}

// New returns a client paced at one request per interval.
func New(baseURL, league string, interval time.Duration, rates Rates) *Client {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Client{
		BaseURL: baseURL,
		League:  league,
		Limiter: rate.NewLimiter(rate.Every(interval), 1),
		Rates:   rates,
	}
}

type item struct {
	Name         string     `json:"name"`
	Text         string     `json:"text"`
	CurrentPrice float64    `json:"currentPrice"`
	IconURL      string     `json:"iconUrl"`
	PriceLogs    []*logLine `json:"priceLogs"`
}

type logLine struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

func (i item) label() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Text
}

// Supports reports whether the item's identity alone is enough to price it.
func (c *Client) Supports(criteria core.SearchCriteria) bool {
	if c == nil || strings.TrimSpace(criteria.DisplayName()) == "" {
		return false
	}
	return criteria.Rarity == core.RarityUnique || criteria.Rarity == core.RarityCurrency
}

// Price returns the catalogue price of an item.
func (c *Client) Price(ctx context.Context, criteria core.SearchCriteria) (*core.AuxPrice, error) {
	if c == nil {
		return nil, errors.New("scout client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		found item
		err   error
	)
	switch criteria.Rarity {
	case core.RarityUnique:
		name := strings.TrimSpace(criteria.Name)
		if name == "" {
			name = criteria.DisplayName()
		}
		found, err = c.lookup(ctx, "unique", uniqueCategories, name, exactName)
	case core.RarityCurrency:
		found, err = c.lookup(ctx, "currency", currencyCategories, criteria.DisplayName(), looseText)
	default:
		return nil, fmt.Errorf("%w: rarity %s is not indexed", ErrNotFound, criteria.Rarity)
	}
	if err != nil {
		return nil, err
	}
	return c.format(found), nil
}

// LoadRates refreshes divine and exalted rates for the configured league.
func (c *Client) LoadRates(ctx context.Context) error {
	if c == nil {
		return errors.New("scout client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var leagues []struct {
		Value            string  `json:"value"`
		DivinePrice      float64 `json:"divinePrice"`
		ChaosDivinePrice float64 `json:"chaosDivinePrice"`
	}
	if err := c.getJSON(ctx, "/api/leagues", nil, &leagues); err != nil {
		return err
	}

	for _, lg := range leagues {
		if !strings.EqualFold(lg.Value, c.League) {
			continue
		}
		c.mu.Lock()
		c.exaltedPerDivine = lg.DivinePrice
		c.mu.Unlock()
		if c.Rates != nil {
			c.Rates.UpdateFromLeague(lg.ChaosDivinePrice, lg.DivinePrice)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrLeagueNotFound, c.League)
}

type matcher func(candidate, want string) bool

func exactName(candidate, want string) bool {
	return candidate != "" && strings.EqualFold(candidate, want)
}

func looseText(candidate, want string) bool {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	want = strings.ToLower(strings.TrimSpace(want))
	if candidate == "" || want == "" {
		return false
	}
	return strings.Contains(candidate, want) || strings.Contains(want, candidate)
}

func (c *Client) lookup(ctx context.Context, kind string, categories []string, name string, match matcher) (item, error) {
	key := kind + ":" + strings.ToLower(name)
	if cached, ok := c.cached(key); ok {
		return cached, nil
	}

	var lastErr error
	for _, category := range categories {
		var payload struct {
			Items []item `json:"items"`
		}
		params := url.Values{}
		params.Set("league", c.League)
		params.Set("search", name)
		if err := c.getJSON(ctx, "/api/items/"+kind+"/"+category, params, &payload); err != nil {
			if ctx.Err() != nil {
				return item{}, ctx.Err()
			}
			lastErr = err
			continue
		}
		for _, candidate := range payload.Items {
			if match(candidate.label(), name) {
				c.store(key, candidate)
				return candidate, nil
			}
		}
	}

	if lastErr != nil {
		return item{}, fmt.Errorf("%w: %s (last error: %v)", ErrNotFound, name, lastErr)
	}
	return item{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (c *Client) format(found item) *core.AuxPrice {
	exalted := found.CurrentPrice
	chaos := exalted
	if c.Rates != nil {
		chaos = c.Rates.ToChaos(exalted, "exalted")
	}

	c.mu.Lock()
	perDivine := c.exaltedPerDivine
	c.mu.Unlock()
	if perDivine == 0 {
		perDivine = defaultExaltedPerDiv
	}

	quantity := 0
	for _, line := range found.PriceLogs {
		if line != nil && line.Quantity > 0 {
			quantity = line.Quantity
			break
		}
	}
	confidence := "low"
	if quantity >= highConfidenceQuantity {
		confidence = "high"
	}

	return &core.AuxPrice{
		Source:     Source,
		Chaos:      chaos,
		Exalted:    exalted,
		Divine:     exalted / perDivine,
		Confidence: confidence,
		Listings:   quantity,
		Icon:       found.IconURL,
	}
}

func (c *Client) cached(key string) (item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	found, ok := c.items[key]
	return found, ok
}

func (c *Client) store(key string, found item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string]item)
	}
	c.items[key] = found
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	endpoint := c.baseURL() + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) baseURL() string {
	if strings.TrimSpace(c.BaseURL) != "" {
		return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	}
	return DefaultBaseURL
}
