package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shibukawa/filterql"
	"github.com/shibukawa/filterql/parser"
)

// errDropPredicate signals that a predicate was dropped under a lenient
// policy; it never escapes Compile.
var errDropPredicate = errors.New("predicate dropped")

// condition precedence: whether the fragment's top level is a primary
// comparison, a conjunction, or a disjunction. Used to decide parentheses
// when fragments compose.
const (
	precPrimary = iota
	precAndCond
	precOrCond
)

type cond struct {
	sql  string
	prec int
}

// Compile parses a filter expression and lowers it into a parameterized
// query plan against the schema view. Lex and parse errors are fatal; build
// problems follow the configured policies.
func Compile(source string, view filterql.SchemaView, opts filterql.Options) (*Compiled, error) {
	node, err := parser.ParseString(source)
	if err != nil {
		return nil, err
	}

	return CompileAST(node, view, opts)
}

// CompileAST lowers an already-parsed tree. Compile calls it after parsing
// the source.
func CompileAST(node parser.Node, view filterql.SchemaView, opts filterql.Options) (*Compiled, error) {
	o := filterql.ProcessDefaults().Merge(opts).Resolved()

	if o.SearchStrategy.Kind == filterql.StrategyColumn && o.SearchStrategy.Column == "" {
		return nil, filterql.NewError(filterql.StageBuild, filterql.ErrColumnStrategyNeedsColumn,
			"Search strategy 'column' requires a tsvector column name")
	}
	if o.SearchStrategy.Kind != filterql.StrategyILike && !o.Dialect.SupportsTsQuery() {
		return nil, filterql.NewError(filterql.StageBuild, filterql.ErrStrategyNotSupported,
			fmt.Sprintf("Search strategy requires PostgreSQL full-text support, got dialect %q", o.Dialect))
	}

	c := &compiler{
		opts:  o,
		view:  view,
		allow: NewAllowList(o),
	}

	where, err := c.lower(node)
	switch {
	case errors.Is(err, errDropPredicate):
		where = cond{}
	case err != nil:
		return nil, err
	}

	compiled := &Compiled{
		Where:     where.sql,
		Args:      c.args,
		SelectAdd: c.selectAdd,
		Meta: Meta{
			UsesFullText:      c.usesFullText,
			AddedSelectFields: c.addedSelectFields,
			RecommendedOrder:  c.recommendedOrder,
			Warnings:          c.warnings,
		},
	}

	if c.join != nil {
		rootTable := view.Table(o.Schema)
		pk := view.PrimaryKey(o.Schema)

		compiled.Joins = planJoins(rootTable, pk, c.join, view)

		if len(c.having) > 0 {
			compiled.GroupBy = []string{rootTable + "." + pk}
			compiled.Having = strings.Join(c.having, " AND ")
		} else if c.join.Kind == filterql.HasMany || c.join.Kind == filterql.ManyToMany {
			compiled.Distinct = true
		}
	}

	return compiled, nil
}

type compiler struct {
	opts  filterql.Options
	view  filterql.SchemaView
	allow *AllowList

	args     []any
	warnings []Warning

	join   *filterql.Association
	having []string

	usesFullText      bool
	selectAdd         []SelectColumn
	addedSelectFields []string
	recommendedOrder  []OrderBy
}

// bind appends an argument and returns its placeholder.
func (c *compiler) bind(value any) string {
	c.args = append(c.args, value)
	return c.opts.Dialect.Placeholder(len(c.args))
}

func (c *compiler) lower(node parser.Node) (cond, error) {
	switch n := node.(type) {
	case *parser.AndNode:
		return c.lowerBool(n.Children, " AND ", precAndCond, precOrCond)
	case *parser.OrNode:
		return c.lowerBool(n.Children, " OR ", precOrCond, precAndCond)
	case *parser.NotNode:
		return c.lowerNot(n)
	case *parser.CmpNode:
		return c.lowerCmp(n, false)
	case *parser.FullTextNode:
		return c.lowerFullText(n)
	default:
		return cond{}, fmt.Errorf("%w: unknown node type %T", filterql.ErrInvalidValue, node)
	}
}

// lowerBool lowers the children of a connector node, dropping children the
// policies reject. wrapPrec marks the child precedence that needs
// parentheses inside this connector.
func (c *compiler) lowerBool(children []parser.Node, sep string, prec, wrapPrec int) (cond, error) {
	parts := make([]cond, 0, len(children))

	for _, child := range children {
		part, err := c.lower(child)
		if errors.Is(err, errDropPredicate) {
			continue
		}
		if err != nil {
			return cond{}, err
		}
		parts = append(parts, part)
	}

	switch len(parts) {
	case 0:
		return cond{}, errDropPredicate
	case 1:
		return parts[0], nil
	default:
		sqls := make([]string, len(parts))
		for i, part := range parts {
			if part.prec == wrapPrec {
				part.sql = "(" + part.sql + ")"
			}
			sqls[i] = part.sql
		}
		return cond{sql: strings.Join(sqls, sep), prec: prec}, nil
	}
}

func (c *compiler) lowerNot(n *parser.NotNode) (cond, error) {
	// negating a bare full-text term contributes nothing
	if _, ok := n.Expr.(*parser.FullTextNode); ok {
		return cond{}, errDropPredicate
	}

	// NOT over a plain equality lowers to <> / IS NOT NULL
	if cmp, ok := n.Expr.(*parser.CmpNode); ok && cmp.Op == parser.OpEq {
		return c.lowerCmp(cmp, true)
	}

	inner, err := c.lower(n.Expr)
	if err != nil {
		return cond{}, err
	}

	return cond{sql: "NOT (" + inner.sql + ")", prec: precPrimary}, nil
}

// dropPredicate applies a build policy: PolicyError fails the compile,
// PolicyWarn records a warning, and both lenient outcomes drop the
// predicate.
func (c *compiler) dropPredicate(policy filterql.Policy, kind WarningKind, reason error, field, message string) error {
	if policy == filterql.PolicyError {
		return filterql.NewError(filterql.StageBuild, reason, message)
	}
	if policy == filterql.PolicyWarn {
		c.warnings = append(c.warnings, Warning{Kind: kind, Field: field, Message: message})
	}
	return errDropPredicate
}
