package builder

import "github.com/shibukawa/filterql"

// WarningKind classifies a dropped-predicate warning.
type WarningKind int

const (
	WarnUnknownField WarningKind = iota + 1
	WarnUnknownAssoc
	WarnInvalidValue
	WarnDegradedContainsAll
	WarnJoinOverflow
)

// String returns the string representation of WarningKind
func (k WarningKind) String() string {
	switch k {
	case WarnUnknownField:
		return "unknown_field"
	case WarnUnknownAssoc:
		return "unknown_assoc"
	case WarnInvalidValue:
		return "invalid_value"
	case WarnDegradedContainsAll:
		return "degraded_contains_all"
	case WarnJoinOverflow:
		return "join_overflow"
	default:
		return "unknown"
	}
}

// Warning records a predicate that was dropped or rewritten under a lenient
// policy.
type Warning struct {
	Kind    WarningKind
	Field   string
	Message string
}

// OrderDir is a sort direction.
type OrderDir int

const (
	Asc OrderDir = iota + 1
	Desc
)

// OrderBy is one recommended ordering term.
type OrderBy struct {
	Expr string
	Dir  OrderDir
}

// SelectColumn is an extra column the serializer must add to the SELECT
// list, such as a full-text rank expression.
type SelectColumn struct {
	Expr  string
	Alias string
}

// Join is one planned LEFT JOIN. Alias is empty when the table is joined
// under its own name (the many-to-many join table).
type Join struct {
	Kind  filterql.AssocKind
	Table string
	Alias string
	On    string
}

// Meta is the planning metadata exported alongside the compiled query.
type Meta struct {
	UsesFullText      bool
	AddedSelectFields []string
	RecommendedOrder  []OrderBy
	Warnings          []Warning
}

// Compiled is the lowered query: a parameterized WHERE condition plus the
// join, grouping, and select-list plan the serializer composes around it.
// An empty Where means no predicates survived.
type Compiled struct {
	Where     string
	Args      []any
	Joins     []Join
	GroupBy   []string
	Having    string
	Distinct  bool
	SelectAdd []SelectColumn
	Meta      Meta
}

// NoPredicates reports whether the compile produced no conditions at all;
// the caller leaves the base query unchanged.
func (c *Compiled) NoPredicates() bool {
	return c.Where == "" && c.Having == ""
}
