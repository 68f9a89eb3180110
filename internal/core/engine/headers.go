package engine

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tradelens/tradelens/internal/core"
)

// Rate limit header names sent by the trade API.
const (
	HeaderRateLimitPolicy = "X-Rate-Limit-Policy"
	HeaderRateLimitRules  = "X-Rate-Limit-Rules"
	headerRateLimitPrefix = "X-Rate-Limit-"
	headerStateSuffix     = "-State"
)

// RuleHeader returns the limit header name for a rule, e.g. X-Rate-Limit-Ip.
func RuleHeader(rule string) string {
	return headerRateLimitPrefix + rule
}

// RuleStateHeader returns the state header name for a rule.
func RuleStateHeader(rule string) string {
	return headerRateLimitPrefix + rule + headerStateSuffix
}

// parseRateLimitHeaders extracts the rule set. ok is false when the headers
// carry no usable tier/state pair, in which case the caller keeps its state.
func parseRateLimitHeaders(raw map[string][]string) (string, []core.RateLimitRule, bool) {
	header := http.Header(raw)
	names := header.Get(HeaderRateLimitRules)
	if strings.TrimSpace(names) == "" {
		return "", nil, false
	}

	rules := make([]core.RateLimitRule, 0)
	usable := false
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		rule := core.RateLimitRule{
			Name:   name,
			Tiers:  parseTiers(header.Get(RuleHeader(name))),
			States: parseStates(header.Get(RuleStateHeader(name))),
		}
		if hasAlignedPair(rule) {
			usable = true
		}
		rules = append(rules, rule)
	}
	if !usable {
		return "", nil, false
	}
	return strings.TrimSpace(header.Get(HeaderRateLimitPolicy)), rules, true
}

func parseTiers(value string) []*core.RateLimitTier {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]*core.RateLimitTier, len(parts))
	for i, part := range parts {
		nums, ok := parseTriple(part)
		if !ok {
			continue
		}
		out[i] = &core.RateLimitTier{MaxRequests: nums[0], PeriodSeconds: nums[1], TimeoutSeconds: nums[2]}
	}
	return out
}

func parseStates(value string) []*core.RateLimitState {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]*core.RateLimitState, len(parts))
	for i, part := range parts {
		nums, ok := parseTriple(part)
		if !ok {
			continue
		}
		out[i] = &core.RateLimitState{CurrentRequests: nums[0], PeriodSeconds: nums[1], TimeoutRemaining: nums[2]}
	}
	return out
}

func parseTriple(value string) ([3]int, bool) {
	var nums [3]int
	fields := strings.Split(strings.TrimSpace(value), ":")
	if len(fields) != 3 {
		return nums, false
	}
	for i, field := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n < 0 {
			return nums, false
		}
		nums[i] = n
	}
	return nums, true
}

func hasAlignedPair(rule core.RateLimitRule) bool {
	for i := 0; i < len(rule.Tiers) && i < len(rule.States); i++ {
		if rule.Tiers[i] != nil && rule.States[i] != nil {
			return true
		}
	}
	return false
}
