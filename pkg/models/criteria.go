package models

// MatchType controls how a smart playlist combines its rules.
type MatchType string

const (
	MatchAll MatchType = "all" // rules folded with logical AND
	MatchAny MatchType = "any" // rules folded with logical OR
)

// SortDirection orders smart playlist results.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Rule is one declarative criterion of a smart playlist. Field names and
// conditions are validated when the rule set is compiled; unknown fields are
// dropped with a warning rather than failing the whole playlist.
type Rule struct {
	Field     string `json:"field"`
	Condition string `json:"condition"`
	Value     string `json:"value"`
}

// Rule conditions understood by the smart playlist compiler.
const (
	ConditionEquals         = "equals"
	ConditionGreaterThan    = "greaterThan"
	ConditionGreaterOrEqual = "greaterThanOrEqual"
	ConditionLessThan       = "lessThan"
	ConditionLessOrEqual    = "lessThanOrEqual"
	ConditionContains       = "contains"
	ConditionStartsWith     = "startsWith"
	ConditionEndsWith       = "endsWith"
)

// SmartPlaylistCriteria defines a smart playlist: a rule set, how the rules
// combine, and optional ordering and cardinality cap.
type SmartPlaylistCriteria struct {
	Rules     []Rule        `json:"rules"`
	MatchType MatchType     `json:"matchType"`
	SortBy    string        `json:"sortBy,omitempty"`
	SortDir   SortDirection `json:"sortDir,omitempty"`
	Limit     int           `json:"limit,omitempty"` // 0 means no limit
}

// QueryConfig carries per-call query behavior that would otherwise live in
// ambient global state. Query results are a pure function of (catalog,
// criteria, config).
type QueryConfig struct {
	HideDuplicates bool `json:"hideDuplicates"`
}
