package core

// TradeQuery is the JSON body of a trade search request.
type TradeQuery struct {
	Query QueryBody         `json:"query"`
	Sort  map[string]string `json:"sort,omitempty"`
}

// QueryBody holds the identity, stat and ancillary filters.
type QueryBody struct {
	Status  StatusOption           `json:"status"`
	Name    string                 `json:"name,omitempty"`
	Type    string                 `json:"type,omitempty"`
	Stats   []StatGroup            `json:"stats,omitempty"`
	Filters map[string]FilterGroup `json:"filters,omitempty"`
}

// StatusOption selects the seller online status.
type StatusOption struct {
	Option string `json:"option"`
}

// StatGroup is a modifier-count-with-threshold filter.
type StatGroup struct {
	Type    string       `json:"type"`
	Filters []StatFilter `json:"filters"`
	Value   *Range       `json:"value,omitempty"`
}

// StatFilter matches a single modifier by stat ID.
type StatFilter struct {
	ID    string `json:"id"`
	Value *Range `json:"value,omitempty"`
}

// Range bounds a numeric filter.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// FilterGroup groups ancillary filters such as type_filters or equipment_filters.
type FilterGroup struct {
	Filters map[string]FilterValue `json:"filters"`
}

// FilterValue is either a numeric range or an option.
type FilterValue struct {
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Option string   `json:"option,omitempty"`
}

// MinimumMatches returns the count requirement of the first stat group.
func (q TradeQuery) MinimumMatches() int {
	if len(q.Query.Stats) == 0 || q.Query.Stats[0].Value == nil || q.Query.Stats[0].Value.Min == nil {
		return 0
	}
	return int(*q.Query.Stats[0].Value.Min)
}

// StatFilters returns the stat filters of the first stat group.
func (q TradeQuery) StatFilters() []StatFilter {
	if len(q.Query.Stats) == 0 {
		return nil
	}
	return q.Query.Stats[0].Filters
}

// Filter returns a named ancillary filter.
func (q TradeQuery) Filter(group, name string) (FilterValue, bool) {
	g, ok := q.Query.Filters[group]
	if !ok {
		return FilterValue{}, false
	}
	v, ok := g.Filters[name]
	return v, ok
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
