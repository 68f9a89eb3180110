// Package planner turns item attributes into progressively relaxed trade
// search queries.
package planner

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tradelens/tradelens/internal/core"
)

// Search tiers, most restrictive first.
const (
	TierExact = iota
	TierSimilar
	TierCore
	TierBase

	TierCount = 4
)

const coreModifierCount = 3

// ErrInvalidTier is returned for a tier outside 0..3.
var ErrInvalidTier = errors.New("invalid tier")

// Plan is a tier descriptor with its ready-to-send query.
type Plan struct {
	Descriptor core.TierDescriptor
	Query      core.TradeQuery
}

// Planner builds tiered queries. The zero value scores modifiers with ScoreModifier.
type Planner struct {
	Score func(text string) int
}

// Tiers returns the tier numbers in the order they are attempted.
func Tiers() []int {
	return []int{TierExact, TierSimilar, TierCore, TierBase}
}

// Applicable reports whether a tier should run for the criteria. When it
// should not, the reason is returned.
func (p *Planner) Applicable(criteria core.SearchCriteria, tier int) (bool, string) {
	if tier < TierExact || tier > TierBase {
		return false, "unknown tier"
	}
	if criteria.Rarity.FixedIdentity() {
		if tier != TierExact {
			return false, "fixed modifiers: search by identity only"
		}
		return true, ""
	}
	if tier < TierBase && len(criteria.EnabledModifiers()) == 0 {
		return false, "no enabled modifiers"
	}
	if tier == TierBase && !criteria.Rarity.CleanType() {
		return false, "type line carries affix text"
	}
	return true, ""
}

// Descriptor describes a tier for the given criteria.
func (p *Planner) Descriptor(criteria core.SearchCriteria, tier int) (core.TierDescriptor, error) {
	mods := criteria.EnabledModifiers()
	if criteria.Rarity.FixedIdentity() {
		mods = nil
	}
	switch tier {
	case TierExact:
		return core.TierDescriptor{
			Tier:              TierExact,
			RelaxationFactor:  1.0,
			MinimumMatchCount: len(mods),
			Label:             "Exact Match",
			Description:       "All mods, 100% values",
		}, nil
	case TierSimilar:
		return core.TierDescriptor{
			Tier:              TierSimilar,
			RelaxationFactor:  0.8,
			MinimumMatchCount: max(1, len(mods)-1),
			Label:             "Similar",
			Description:       "All mods, 80% values",
		}, nil
	case TierCore:
		return core.TierDescriptor{
			Tier:              TierCore,
			RelaxationFactor:  0.5,
			MinimumMatchCount: min(2, min(coreModifierCount, len(mods))),
			Label:             "Core Mods",
			Description:       "Top 3 mods, 50% values",
		}, nil
	case TierBase:
		return core.TierDescriptor{
			Tier:        TierBase,
			Label:       "Base Only",
			Description: baseDescription(criteria),
		}, nil
	default:
		return core.TierDescriptor{}, fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
}

// Build returns the descriptor and query for one tier.
func (p *Planner) Build(criteria core.SearchCriteria, tier int) (Plan, error) {
	descriptor, err := p.Descriptor(criteria, tier)
	if err != nil {
		return Plan{}, err
	}

	query := baseQuery(criteria)
	if !criteria.Rarity.FixedIdentity() {
		if group, ok := p.statGroup(criteria.EnabledModifiers(), tier); ok {
			query.Query.Stats = []core.StatGroup{group}
		}
	}

	return Plan{Descriptor: descriptor, Query: query}, nil
}

// RankModifiers orders modifiers by descending priority. Ties keep
// discovery order.
func (p *Planner) RankModifiers(mods []core.Modifier) []core.Modifier {
	ranked := append([]core.Modifier(nil), mods...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return p.score(ranked[i].Text) > p.score(ranked[j].Text)
	})
	return ranked
}

func (p *Planner) statGroup(mods []core.Modifier, tier int) (core.StatGroup, bool) {
	if len(mods) == 0 || tier == TierBase {
		return core.StatGroup{}, false
	}

	var factor float64
	var required int
	switch tier {
	case TierExact:
		factor = 1.0
		required = len(mods)
	case TierSimilar:
		factor = 0.8
		required = max(1, len(mods)-1)
	case TierCore:
		ranked := p.RankModifiers(mods)
		if len(ranked) > coreModifierCount {
			ranked = ranked[:coreModifierCount]
		}
		mods = ranked
		factor = 0.5
		required = min(2, len(mods))
	default:
		return core.StatGroup{}, false
	}

	filters := make([]core.StatFilter, 0, len(mods))
	for _, mod := range mods {
		filter := core.StatFilter{ID: mod.ID}
		if minimum, ok := relaxedMinimum(mod.Value, factor); ok {
			filter.Value = &core.Range{Min: core.Float(minimum)}
		}
		filters = append(filters, filter)
	}

	return core.StatGroup{
		Type:    "count",
		Filters: filters,
		Value:   &core.Range{Min: core.Float(float64(required))},
	}, true
}

func (p *Planner) score(text string) int {
	if p != nil && p.Score != nil {
		return p.Score(text)
	}
	return ScoreModifier(text)
}

// relaxedMinimum scales an observed value. Exact values are kept as-is;
// relaxed values are truncated to whole numbers and dropped when not positive.
func relaxedMinimum(value *float64, factor float64) (float64, bool) {
	if value == nil {
		return 0, false
	}
	if factor == 1.0 {
		return *value, *value > 0
	}
	relaxed := math.Trunc(*value * factor)
	return relaxed, relaxed > 0
}

func baseQuery(criteria core.SearchCriteria) core.TradeQuery {
	query := core.TradeQuery{
		Query: core.QueryBody{
			Status: core.StatusOption{Option: "any"},
			Filters: map[string]core.FilterGroup{
				"trade_filters": {Filters: map[string]core.FilterValue{
					"sale_type": {Option: "priced"},
				}},
			},
		},
		Sort: map[string]string{"price": "asc"},
	}

	if criteria.Rarity.FixedIdentity() {
		query.Query.Name = strings.TrimSpace(criteria.Name)
	}
	if criteria.Rarity.CleanType() {
		query.Query.Type = strings.TrimSpace(criteria.BaseType)
	}

	set := func(group, name string, value core.FilterValue) {
		g, ok := query.Query.Filters[group]
		if !ok {
			g = core.FilterGroup{Filters: map[string]core.FilterValue{}}
			query.Query.Filters[group] = g
		}
		g.Filters[name] = value
	}
	atLeast := func(v float64) core.FilterValue {
		return core.FilterValue{Min: core.Float(v)}
	}

	if criteria.Rarity.FixedIdentity() {
		set("type_filters", "rarity", core.FilterValue{Option: strings.ToLower(string(criteria.Rarity))})
	}
	if criteria.ItemLevel > 1 {
		set("type_filters", "ilvl", atLeast(float64(max(1, criteria.ItemLevel-10))))
	}
	if criteria.SocketCount >= 2 {
		set("equipment_filters", "rune_sockets", atLeast(float64(max(1, criteria.SocketCount-1))))
	}
	if criteria.PhysicalDPS > 0 {
		set("equipment_filters", "pdps", atLeast(math.Trunc(criteria.PhysicalDPS*0.7)))
	}
	if criteria.ElementalDPS > 0 {
		set("equipment_filters", "edps", atLeast(math.Trunc(criteria.ElementalDPS*0.7)))
	}
	if criteria.GemLevel > 1 {
		set("misc_filters", "gem_level", atLeast(float64(criteria.GemLevel)))
	}
	if criteria.Corrupted != nil {
		set("misc_filters", "corrupted", core.FilterValue{Option: strconv.FormatBool(*criteria.Corrupted)})
	}
	if criteria.Quality > 0 {
		set("type_filters", "quality", atLeast(float64(max(0, criteria.Quality-5))))
	}
	if criteria.Armour > 50 {
		set("equipment_filters", "ar", atLeast(math.Trunc(float64(criteria.Armour)*0.7)))
	}
	if criteria.Evasion > 50 {
		set("equipment_filters", "ev", atLeast(math.Trunc(float64(criteria.Evasion)*0.7)))
	}
	if criteria.EnergyShield > 30 {
		set("equipment_filters", "es", atLeast(math.Trunc(float64(criteria.EnergyShield)*0.7)))
	}
	if criteria.Block > 10 {
		set("equipment_filters", "block", atLeast(math.Trunc(float64(criteria.Block)*0.7)))
	}
	if criteria.Spirit > 10 {
		set("equipment_filters", "spirit", atLeast(math.Trunc(float64(criteria.Spirit)*0.7)))
	}
	if criteria.AttackSpeed > 1.0 {
		set("equipment_filters", "aps", atLeast(roundTo(criteria.AttackSpeed*0.9, 2)))
	}
	if criteria.CritChance > 5.0 {
		set("equipment_filters", "crit", atLeast(roundTo(criteria.CritChance*0.8, 1)))
	}

	return query
}

func baseDescription(criteria core.SearchCriteria) string {
	base := strings.TrimSpace(criteria.BaseType)
	if base == "" {
		base = "Any"
	}
	level := "any"
	if criteria.ItemLevel > 0 {
		level = strconv.Itoa(criteria.ItemLevel)
	}
	return fmt.Sprintf("%s ilvl %s+", base, level)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
