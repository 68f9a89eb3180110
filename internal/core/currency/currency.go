// Package currency converts listing prices into a common chaos unit.
package currency

import (
	"sort"
	"strings"
	"sync"
)

// Chaos is the unit every rate is expressed in.
const Chaos = "chaos"

var defaultRates = map[string]float64{
	"chaos":       1.0,
	"chaos-orb":   1.0,
	"exalted":     50.0,
	"exalted-orb": 50.0,
	"divine":      150.0,
	"divine-orb":  150.0,
	"gold":        0.001,
	"regal":       0.5,
	"regal-orb":   0.5,
	"alch":        0.1,
	"alchemy-orb": 0.1,
}

// aliases share a rate with their canonical currency.
var aliases = map[string][]string{
	"chaos":   {"chaos-orb"},
	"exalted": {"exalted-orb"},
	"divine":  {"divine-orb"},
	"regal":   {"regal-orb"},
	"alch":    {"alchemy-orb"},
}

// Rate is a single currency rate in chaos.
type Rate struct {
	Currency string  `json:"currency"`
	Chaos    float64 `json:"chaos"`
}

// Table holds chaos rates per currency. The zero value is not usable; use
// NewTable.
type Table struct {
	mu    sync.RWMutex
	rates map[string]float64
}

// NewTable returns a table seeded with the default rates.
func NewTable() *Table {
	rates := make(map[string]float64, len(defaultRates))
	for name, rate := range defaultRates {
		rates[name] = rate
	}
	return &Table{rates: rates}
}

// ToChaos converts amount of currency into chaos. Unknown currencies count
// one to one.
func (t *Table) ToChaos(amount float64, currency string) float64 {
	name := normalize(currency)
	if name == "" {
		name = Chaos
	}
	if t == nil {
		if rate, ok := defaultRates[name]; ok {
			return amount * rate
		}
		return amount
	}

	t.mu.RLock()
	rate, ok := t.rates[name]
	t.mu.RUnlock()
	if !ok {
		return amount
	}
	return amount * rate
}

// Set updates the chaos rate of a currency and its aliases. Non-positive
// rates are ignored.
func (t *Table) Set(currency string, chaos float64) bool {
	name := normalize(currency)
	if t == nil || name == "" || chaos <= 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[name] = chaos
	for _, alias := range aliases[name] {
		t.rates[alias] = chaos
	}
	return true
}

// Rate returns the chaos rate of a currency.
func (t *Table) Rate(currency string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	rate, ok := t.rates[normalize(currency)]
	return rate, ok
}

// Rates returns every rate sorted by currency name.
func (t *Table) Rates() []Rate {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	out := make([]Rate, 0, len(t.rates))
	for name, rate := range t.rates {
		out = append(out, Rate{Currency: name, Chaos: rate})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// UpdateFromLeague applies league economy figures: the chaos price of a
// divine and the number of exalted per divine.
func (t *Table) UpdateFromLeague(chaosPerDivine, exaltedPerDivine float64) {
	if chaosPerDivine <= 0 {
		return
	}
	t.Set("divine", chaosPerDivine)
	if exaltedPerDivine > 0 {
		t.Set("exalted", chaosPerDivine/exaltedPerDivine)
	}
}

func normalize(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}
