package planner

import (
	"regexp"
	"strings"
)

// DefaultPriority is the score of a modifier that matches no pattern.
const DefaultPriority = 25

type priorityPattern struct {
	pattern string
	score   int
}

// priorityPatterns is ordered; the first substring match wins, so a
// pattern must precede any broader pattern it contains.
var priorityPatterns = []priorityPattern{
	{"all elemental resistances", 100},
	{"to maximum life", 90},
	{"maximum life", 95},
	{"movement speed", 92},

	{"critical strike multiplier", 88},
	{"level of all", 85},
	{"adds # to # physical damage", 82},
	{"to maximum mana", 80},

	{"to fire resistance", 78},
	{"to cold resistance", 78},
	{"to lightning resistance", 78},
	{"to chaos resistance", 75},
	{"attack speed", 72},
	{"cast speed", 70},
	{"critical strike chance", 68},

	{"adds # to # fire damage", 62},
	{"adds # to # cold damage", 62},
	{"adds # to # lightning damage", 62},
	{"to strength", 55},
	{"to dexterity", 55},
	{"to intelligence", 55},
	{"to all attributes", 60},
	{"increased mana", 52},
	{"mana regeneration", 50},

	{"to armour", 45},
	{"to evasion", 45},
	{"to energy shield", 48},
	{"increased armour", 42},
	{"increased evasion", 42},
	{"accuracy", 35},
	{"block", 38},
	{"stun", 32},
}

var (
	numberPattern      = regexp.MustCompile(`[+\-]?\d+(?:\.\d+)?%?`)
	placeholderPattern = regexp.MustCompile(`[+\-]?#%?`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// NormalizeModifierText lowercases text and replaces numbers, signs and
// percent markers with a bare '#', so item text and stat catalogue text agree.
func NormalizeModifierText(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = numberPattern.ReplaceAllString(normalized, "#")
	normalized = placeholderPattern.ReplaceAllString(normalized, "#")
	return whitespacePattern.ReplaceAllString(normalized, " ")
}

// ScoreModifier rates how much a modifier matters for pricing.
func ScoreModifier(text string) int {
	normalized := NormalizeModifierText(text)
	for _, p := range priorityPatterns {
		if strings.Contains(normalized, p.pattern) {
			return p.score
		}
	}
	return DefaultPriority
}
