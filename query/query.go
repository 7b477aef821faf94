package query

import (
	"strconv"
	"strings"

	"github.com/shibukawa/filterql"
	"github.com/shibukawa/filterql/builder"
)

// Select is the base queryable the compiled filter composes into: the
// target table, the selected columns (empty means *), and any caller
// ordering and paging.
type Select struct {
	Table   string
	Columns []string
	OrderBy []string
	Limit   int
	Offset  int
}

// Statement is a compiled filter bound to a base query, ready to
// serialize or execute.
type Statement struct {
	Select   Select
	Compiled *builder.Compiled
	Dialect  filterql.Dialect
}

// Filter compiles a filter expression and composes it with the base query.
// When no predicates survive, the base query is returned unchanged inside
// the statement.
func Filter(base Select, source string, view filterql.SchemaView, opts filterql.Options) (*Statement, builder.Meta, error) {
	compiled, err := builder.Compile(source, view, opts)
	if err != nil {
		return nil, builder.Meta{}, err
	}

	return &Statement{
		Select:   base,
		Compiled: compiled,
		Dialect:  filterql.ProcessDefaults().Merge(opts).Resolved().Dialect,
	}, compiled.Meta, nil
}

// ToSQL compiles a filter expression and serializes the composed query.
func ToSQL(base Select, source string, view filterql.SchemaView, opts filterql.Options) (string, []any, builder.Meta, error) {
	stmt, meta, err := Filter(base, source, view, opts)
	if err != nil {
		return "", nil, builder.Meta{}, err
	}

	sqlText, args := stmt.SQL()

	return sqlText, args, meta, nil
}

// SQL serializes the statement into SQL text and its parameter slice.
func (s *Statement) SQL() (string, []any) {
	c := s.Compiled

	var b strings.Builder
	b.WriteString("SELECT ")

	if c.Distinct {
		b.WriteString("DISTINCT ")
	}

	columns := s.Select.Columns
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	b.WriteString(strings.Join(columns, ", "))

	for _, add := range c.SelectAdd {
		b.WriteString(", ")
		b.WriteString(add.Expr)
		if add.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(add.Alias)
		}
	}

	b.WriteString(" FROM ")
	b.WriteString(s.Select.Table)

	for _, join := range c.Joins {
		b.WriteString(" LEFT JOIN ")
		b.WriteString(join.Table)
		if join.Alias != "" && join.Alias != join.Table {
			b.WriteString(" AS ")
			b.WriteString(join.Alias)
		}
		b.WriteString(" ON ")
		b.WriteString(join.On)
	}

	if c.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(c.Where)
	}

	if len(c.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(c.GroupBy, ", "))
		if c.Having != "" {
			b.WriteString(" HAVING ")
			b.WriteString(c.Having)
		}
	}

	order := s.Select.OrderBy
	if len(order) == 0 {
		for _, rec := range c.Meta.RecommendedOrder {
			dir := " ASC"
			if rec.Dir == builder.Desc {
				dir = " DESC"
			}
			order = append(order, rec.Expr+dir)
		}
	}
	if len(order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}

	if s.Select.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.Select.Limit))
	}
	if s.Select.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(s.Select.Offset))
	}

	return b.String(), c.Args
}
