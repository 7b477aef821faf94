package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shibukawa/filterql"
	"github.com/shibukawa/filterql/parser"
)

const (
	// sanitizer limits
	maxTermBytes   = 100
	maxRawTokens   = 10
	maxQueryTokens = 5
	minTokenLength = 2
)

// lowerFullText compiles one search term under the configured strategy.
// An empty sanitized term contributes nothing.
func (c *compiler) lowerFullText(n *parser.FullTextNode) (cond, error) {
	term := c.sanitizeTerm(n.Term)
	if term == "" {
		return cond{}, errDropPredicate
	}

	switch c.opts.SearchStrategy.Kind {
	case filterql.StrategyColumn:
		return c.lowerColumnSearch(term)
	case filterql.StrategyTsQuery:
		return c.lowerTsVectorSearch(term)
	default:
		return c.lowerILikeSearch(term)
	}
}

func (c *compiler) sanitizeTerm(term string) string {
	if c.opts.Sanitizer != nil {
		return c.opts.Sanitizer.Sanitize(term)
	}
	if c.opts.TsqueryMode == filterql.TsqueryRaw {
		return strictSanitize(term)
	}
	return basicSanitize(term)
}

// basicSanitize trims, collapses whitespace runs, and truncates to 100
// bytes.
func basicSanitize(term string) string {
	term = strings.Join(strings.Fields(term), " ")
	if len(term) > maxTermBytes {
		term = term[:maxTermBytes]
	}
	return term
}

// strictSanitize builds a prefix-matching tsquery: up to five alphanumeric
// tokens of at least two characters, each suffixed with :* and joined with
// the AND operator.
func strictSanitize(term string) string {
	term = strings.TrimSpace(term)
	if len(term) > maxTermBytes {
		term = term[:maxTermBytes]
	}

	tokens := strings.Fields(term)
	if len(tokens) > maxRawTokens {
		tokens = tokens[:maxRawTokens]
	}

	kept := make([]string, 0, maxQueryTokens)
	for _, token := range tokens {
		stripped := stripToAlnum(token)
		if len(stripped) < minTokenLength {
			continue
		}
		kept = append(kept, stripped+":*")
		if len(kept) == maxQueryTokens {
			break
		}
	}

	return strings.Join(kept, " & ")
}

func stripToAlnum(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// lowerILikeSearch ORs a substring match over every applicable search
// field.
func (c *compiler) lowerILikeSearch(term string) (cond, error) {
	columns, err := c.searchColumns()
	if err != nil {
		return cond{}, err
	}
	if len(columns) == 0 {
		return cond{}, errDropPredicate
	}

	pattern := "%" + escapeLike(term) + "%"
	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = c.ilike(column, pattern).sql
	}

	c.usesFullText = true

	if len(parts) == 1 {
		return cond{sql: parts[0]}, nil
	}
	return cond{sql: strings.Join(parts, " OR "), prec: precOrCond}, nil
}

// lowerTsVectorSearch ORs an on-the-fly tsvector match over every
// applicable search field.
func (c *compiler) lowerTsVectorSearch(term string) (cond, error) {
	columns, err := c.searchColumns()
	if err != nil {
		return cond{}, err
	}
	if len(columns) == 0 {
		return cond{}, errDropPredicate
	}

	config := c.opts.SearchStrategy.Config
	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = fmt.Sprintf("to_tsvector(%s) @@ %s",
			tsArgs(config, "coalesce("+column+", '')"),
			c.tsQueryCall(config, term))
	}

	c.usesFullText = true

	if len(parts) == 1 {
		return cond{sql: parts[0]}, nil
	}
	return cond{sql: strings.Join(parts, " OR "), prec: precOrCond}, nil
}

// lowerColumnSearch matches a precomputed tsvector column and exports a
// rank column plus a recommended ordering.
func (c *compiler) lowerColumnSearch(term string) (cond, error) {
	strategy := c.opts.SearchStrategy
	column := strategy.Column

	sql := fmt.Sprintf("%s @@ %s", column, c.tsQueryCall(strategy.Config, term))

	if len(c.addedSelectFields) == 0 {
		rank := fmt.Sprintf("ts_rank_cd(%s, %s, 4)", column, c.tsQueryCall(strategy.Config, term))
		c.selectAdd = append(c.selectAdd, SelectColumn{Expr: rank, Alias: "search_rank"})
		c.addedSelectFields = append(c.addedSelectFields, "search_rank")
		c.recommendedOrder = append(c.recommendedOrder, OrderBy{Expr: "search_rank", Dir: Desc})
	}

	c.usesFullText = true

	return cond{sql: sql}, nil
}

// tsQueryCall renders the tsquery constructor for the configured mode,
// binding the term as a parameter.
func (c *compiler) tsQueryCall(config, term string) string {
	fn := "plainto_tsquery"
	if c.opts.TsqueryMode == filterql.TsqueryRaw {
		fn = "to_tsquery"
	}
	return fn + "(" + tsArgs(config, c.bind(term)) + ")"
}

// tsArgs prepends the text search configuration when one is set.
func tsArgs(config, arg string) string {
	if config == "" {
		return arg
	}
	return "'" + config + "', " + arg
}

// searchColumns resolves the configured search fields to SQL columns,
// planning the association join when a field is dotted. Unresolvable
// fields are skipped with a warning.
func (c *compiler) searchColumns() ([]string, error) {
	columns := make([]string, 0, len(c.opts.SearchFields))

	for _, field := range c.opts.SearchFields {
		segments := strings.Split(field, ".")
		switch len(segments) {
		case 1:
			if c.view != nil && c.opts.Schema != "" {
				if _, ok := c.view.Type(c.opts.Schema, field); !ok {
					c.warnings = append(c.warnings, Warning{
						Kind:    WarnUnknownField,
						Field:   field,
						Message: fmt.Sprintf("Search field %q is not in the schema", field),
					})
					continue
				}
			}
			columns = append(columns, field)

		case 2:
			if c.view == nil || c.opts.Schema == "" {
				continue
			}
			assoc := c.view.Association(c.opts.Schema, segments[0])
			if assoc == nil {
				c.warnings = append(c.warnings, Warning{
					Kind:    WarnUnknownAssoc,
					Field:   field,
					Message: fmt.Sprintf("Search field %q names an unknown association", field),
				})
				continue
			}
			if _, ok := c.view.Type(assoc.Schema, segments[1]); !ok {
				c.warnings = append(c.warnings, Warning{
					Kind:    WarnUnknownField,
					Field:   field,
					Message: fmt.Sprintf("Search field %q is not in the schema", field),
				})
				continue
			}
			if err := c.requireJoin(assoc); err != nil {
				if errors.Is(err, errDropPredicate) {
					continue
				}
				return nil, err
			}
			columns = append(columns, assoc.Name+"."+segments[1])

		default:
			c.warnings = append(c.warnings, Warning{
				Kind:    WarnUnknownField,
				Field:   field,
				Message: fmt.Sprintf("Search field %q is deeper than one association", field),
			})
		}
	}

	return columns, nil
}
