package core

import (
	"encoding/json"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rarity identifies the rarity class of an item.
type Rarity string

const (
	RarityNormal   Rarity = "Normal"
	RarityMagic    Rarity = "Magic"
	RarityRare     Rarity = "Rare"
	RarityUnique   Rarity = "Unique"
	RarityCurrency Rarity = "Currency"
	RarityGem      Rarity = "Gem"
)

// ParseRarity normalizes a user supplied rarity. Unknown values are kept as-is.
func ParseRarity(value string) Rarity {
	trimmed := strings.TrimSpace(value)
	for _, r := range []Rarity{RarityNormal, RarityMagic, RarityRare, RarityUnique, RarityCurrency, RarityGem} {
		if strings.EqualFold(trimmed, string(r)) {
			return r
		}
	}
	return Rarity(trimmed)
}

// FixedIdentity reports whether items of this rarity carry fixed modifiers
// and are searched by identity alone.
func (r Rarity) FixedIdentity() bool {
	return r == RarityUnique
}

// CleanType reports whether the item's type line is a bare base type.
// Magic items prefix and suffix the base with affix names.
func (r Rarity) CleanType() bool {
	return r != RarityMagic
}

// Modifier is a single discovered item modifier.
type Modifier struct {
	ID      string   `json:"id,omitempty" yaml:"id,omitempty"`
	Text    string   `json:"text" yaml:"text"`
	Value   *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Enabled bool     `json:"enabled" yaml:"enabled"`
}

// UnmarshalJSON defaults Enabled to true when the field is absent.
func (m *Modifier) UnmarshalJSON(data []byte) error {
	type plain Modifier
	decoded := plain{Enabled: true}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*m = Modifier(decoded)
	return nil
}

// UnmarshalYAML defaults Enabled to true when the field is absent.
func (m *Modifier) UnmarshalYAML(node *yaml.Node) error {
	type plain Modifier
	decoded := plain{Enabled: true}
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*m = Modifier(decoded)
	return nil
}

// Usable reports whether the modifier can be sent as a stat filter.
func (m Modifier) Usable() bool {
	return m.Enabled && strings.TrimSpace(m.ID) != ""
}

// SearchCriteria describes the item being priced.
type SearchCriteria struct {
	Name         string     `json:"name,omitempty" yaml:"name,omitempty"`
	BaseType     string     `json:"base_type,omitempty" yaml:"base_type,omitempty"`
	Rarity       Rarity     `json:"rarity" yaml:"rarity"`
	ItemClass    string     `json:"item_class,omitempty" yaml:"item_class,omitempty"`
	Modifiers    []Modifier `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
	ItemLevel    int        `json:"item_level,omitempty" yaml:"item_level,omitempty"`
	Quality      int        `json:"quality,omitempty" yaml:"quality,omitempty"`
	SocketCount  int        `json:"socket_count,omitempty" yaml:"socket_count,omitempty"`
	PhysicalDPS  float64    `json:"pdps,omitempty" yaml:"pdps,omitempty"`
	ElementalDPS float64    `json:"edps,omitempty" yaml:"edps,omitempty"`
	Armour       int        `json:"armour,omitempty" yaml:"armour,omitempty"`
	Evasion      int        `json:"evasion,omitempty" yaml:"evasion,omitempty"`
	EnergyShield int        `json:"energy_shield,omitempty" yaml:"energy_shield,omitempty"`
	Block        int        `json:"block,omitempty" yaml:"block,omitempty"`
	Spirit       int        `json:"spirit,omitempty" yaml:"spirit,omitempty"`
	AttackSpeed  float64    `json:"attack_speed,omitempty" yaml:"attack_speed,omitempty"`
	CritChance   float64    `json:"crit_chance,omitempty" yaml:"crit_chance,omitempty"`
	GemLevel     int        `json:"gem_level,omitempty" yaml:"gem_level,omitempty"`
	Corrupted    *bool      `json:"corrupted,omitempty" yaml:"corrupted,omitempty"`
}

// EnabledModifiers returns usable modifiers in discovery order.
func (c SearchCriteria) EnabledModifiers() []Modifier {
	out := make([]Modifier, 0, len(c.Modifiers))
	for _, mod := range c.Modifiers {
		if mod.Usable() {
			out = append(out, mod)
		}
	}
	return out
}

// DisplayName returns the most specific human readable identity.
func (c SearchCriteria) DisplayName() string {
	name := strings.TrimSpace(c.Name)
	base := strings.TrimSpace(c.BaseType)
	switch {
	case name != "" && base != "" && !strings.EqualFold(name, base):
		return name + " " + base
	case name != "":
		return name
	default:
		return base
	}
}

// TierDescriptor describes one relaxation level of a search.
type TierDescriptor struct {
	Tier              int     `json:"tier"`
	RelaxationFactor  float64 `json:"relaxation_factor"`
	MinimumMatchCount int     `json:"minimum_match_count"`
	Label             string  `json:"label"`
	Description       string  `json:"description"`
}

// Listing is a single priced offer returned by the trade API.
type Listing struct {
	ID         string  `json:"id,omitempty"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	ChaosValue float64 `json:"chaos_value"`
	Account    string  `json:"account"`
	Character  string  `json:"character,omitempty"`
	Online     string  `json:"online,omitempty"`
	Whisper    string  `json:"whisper,omitempty"`
	Indexed    string  `json:"indexed,omitempty"`
}

// TierResult records one attempted tier.
type TierResult struct {
	Tier        int         `json:"tier"`
	Label       string      `json:"name"`
	Description string      `json:"description"`
	Total       int         `json:"total"`
	Fetched     int         `json:"fetched"`
	Attempts    int         `json:"attempts"`
	Outcome     OutcomeKind `json:"outcome"`
	Error       string      `json:"error,omitempty"`
	Listings    []Listing   `json:"listings"`
}

// Succeeded reports whether the tier's remote search returned data.
func (t TierResult) Succeeded() bool {
	return t.Outcome == OutcomeOK
}

// AuxPrice is a catalog price from an auxiliary source.
type AuxPrice struct {
	Source     string  `json:"source"`
	Chaos      float64 `json:"chaos"`
	Exalted    float64 `json:"exalted"`
	Divine     float64 `json:"divine"`
	Confidence string  `json:"confidence"`
	Listings   int     `json:"listings"`
	Icon       string  `json:"icon,omitempty"`
}

// Search result reasons.
const (
	ReasonOK              = "ok"
	ReasonNoResults       = "no_results"
	ReasonCancelled       = "cancelled"
	ReasonInvalidCriteria = "invalid_criteria"
	ReasonInternal        = "internal_error"
)

// SearchResult summarizes one search session.
type SearchResult struct {
	SessionID        string       `json:"session_id"`
	Item             string       `json:"item"`
	Rarity           Rarity       `json:"rarity"`
	Success          bool         `json:"success"`
	Reason           string       `json:"reason"`
	Error            string       `json:"error,omitempty"`
	Tiers            []TierResult `json:"tiers"`
	SkippedTiers     []int        `json:"skipped_tiers,omitempty"`
	AuxPrice         *AuxPrice    `json:"aux_price,omitempty"`
	TradeIcon        string       `json:"trade_icon,omitempty"`
	StoppedAtTier    int          `json:"stopped_at_tier"`
	TotalSearches    int          `json:"total_searches"`
	TotalFetches     int          `json:"total_fetches"`
	TotalRemoteCalls int          `json:"total_remote_calls"`
	FromCache        bool         `json:"from_cache"`
	StartedAt        time.Time    `json:"started_at"`
	CompletedAt      time.Time    `json:"completed_at"`
}

// StoppedTier returns the tier the search stopped at, if any.
func (r *SearchResult) StoppedTier() (TierResult, bool) {
	if r == nil {
		return TierResult{}, false
	}
	for _, tier := range r.Tiers {
		if tier.Tier == r.StoppedAtTier && tier.Succeeded() {
			return tier, true
		}
	}
	return TierResult{}, false
}

// Listings returns every fetched listing across successful tiers.
func (r *SearchResult) Listings() []Listing {
	if r == nil {
		return nil
	}
	var out []Listing
	for _, tier := range r.Tiers {
		out = append(out, tier.Listings...)
	}
	return out
}

// Clone returns a copy that does not share tier or listing slices.
func (r *SearchResult) Clone() *SearchResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Tiers = make([]TierResult, len(r.Tiers))
	for i, tier := range r.Tiers {
		tier.Listings = append([]Listing(nil), tier.Listings...)
		out.Tiers[i] = tier
	}
	out.SkippedTiers = append([]int(nil), r.SkippedTiers...)
	if r.AuxPrice != nil {
		aux := *r.AuxPrice
		out.AuxPrice = &aux
	}
	return &out
}
