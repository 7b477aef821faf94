package filterql

import "strconv"

// Dialect represents supported database dialects
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// SupportsTsQuery reports whether the dialect has PostgreSQL-compatible
// full-text search (to_tsvector / plainto_tsquery).
func (d Dialect) SupportsTsQuery() bool {
	return d == DialectPostgres
}

// Placeholder returns the parameter placeholder for a 1-based index.
func (d Dialect) Placeholder(index int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(index)
	}
	return "?"
}
