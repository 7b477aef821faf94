package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shibukawa/filterql"
	"github.com/shibukawa/filterql/parser"
)

// target is a resolved field reference: the SQL column expression, the
// declared type, and the association it lives on (nil for root fields).
type target struct {
	column string
	ftype  filterql.FieldType
	assoc  *filterql.Association
}

// resolve maps a parsed field path through the allow-list and the schema
// view to a SQL column. Policy failures return errDropPredicate or a build
// error.
func (c *compiler) resolve(fieldPath []string) (target, error) {
	resolved, ok := c.allow.Resolve(fieldPath)
	if !ok {
		name := strings.Join(fieldPath, ".")
		return target{}, c.dropPredicate(c.opts.UnknownField, WarnUnknownField, filterql.ErrUnknownField,
			name, fmt.Sprintf("Unknown field %q", name))
	}

	if c.opts.Schema == "" || c.view == nil {
		return target{}, filterql.NewError(filterql.StageBuild, filterql.ErrSchemaNotConfigured,
			"No root schema configured for field resolution")
	}

	name := strings.Join(resolved, ".")

	switch len(resolved) {
	case 1:
		ftype, ok := c.view.Type(c.opts.Schema, resolved[0])
		if !ok {
			return target{}, c.dropPredicate(c.opts.UnknownField, WarnUnknownField, filterql.ErrUnknownField,
				name, fmt.Sprintf("Unknown field %q", name))
		}
		return target{column: resolved[0], ftype: ftype}, nil

	case 2:
		assoc := c.view.Association(c.opts.Schema, resolved[0])
		if assoc == nil {
			return target{}, c.dropPredicate(c.opts.UnknownAssoc, WarnUnknownAssoc, filterql.ErrUnknownAssociation,
				name, fmt.Sprintf("Unknown association %q", resolved[0]))
		}

		ftype, ok := c.view.Type(assoc.Schema, resolved[1])
		if !ok {
			return target{}, c.dropPredicate(c.opts.UnknownField, WarnUnknownField, filterql.ErrUnknownField,
				name, fmt.Sprintf("Unknown field %q", name))
		}

		if err := c.requireJoin(assoc); err != nil {
			return target{}, err
		}

		return target{column: assoc.Name + "." + resolved[1], ftype: ftype, assoc: assoc}, nil

	default:
		// only one association hop is supported; deeper paths must be aliased
		return target{}, c.dropPredicate(c.opts.UnknownField, WarnUnknownField, filterql.ErrUnknownField,
			name, fmt.Sprintf("Unknown field %q: paths deeper than one association are not supported", name))
	}
}

func (c *compiler) lowerCmp(n *parser.CmpNode, negated bool) (cond, error) {
	t, err := c.resolve(n.FieldPath)
	if err != nil {
		return cond{}, err
	}

	switch n.Op {
	case parser.OpIn, parser.OpNin:
		return c.lowerSetMembership(n, t)
	case parser.OpContainsAll:
		return c.lowerContainsAll(n, t)
	}

	value, err := coerceScalar(t.ftype, n.Op, n.Value)
	if err != nil {
		if errors.Is(err, filterql.ErrInvalidNullComparison) {
			return cond{}, c.dropPredicate(c.opts.InvalidCast, WarnInvalidValue, filterql.ErrInvalidNullComparison,
				t.column, fmt.Sprintf("NULL cannot be compared with %q on field %q", n.Op, t.column))
		}
		return cond{}, c.dropPredicate(c.opts.InvalidCast, WarnInvalidValue, filterql.ErrInvalidValue,
			t.column, fmt.Sprintf("Cannot cast %q for field %q: %v", n.Value.Raw, t.column, err))
	}

	switch n.Op {
	case parser.OpEq:
		return c.lowerEq(t, value, negated)
	case parser.OpGt, parser.OpGte, parser.OpLt, parser.OpLte:
		return c.lowerOrdered(n.Op, t, value), nil
	case parser.OpStartsWith:
		return c.ilike(t.column, escapeLike(n.Value.Raw)+"%"), nil
	case parser.OpEndsWith:
		return c.ilike(t.column, "%"+escapeLike(n.Value.Raw)), nil
	default:
		return cond{}, fmt.Errorf("%w: operator %q", filterql.ErrInvalidValue, n.Op)
	}
}

func (c *compiler) lowerEq(t target, value castValue, negated bool) (cond, error) {
	switch {
	case value.null:
		if negated {
			return cond{sql: t.column + " IS NOT NULL"}, nil
		}
		return cond{sql: t.column + " IS NULL"}, nil

	case value.dateOnly:
		// equality against a date-only value covers the whole day
		rangeSQL := fmt.Sprintf("%s >= %s AND %s < %s",
			t.column, c.bind(value.dayStart), t.column, c.bind(value.dayNext))
		if negated {
			return cond{sql: "NOT (" + rangeSQL + ")"}, nil
		}
		return cond{sql: rangeSQL, prec: precAndCond}, nil

	default:
		op := " = "
		if negated {
			op = " <> "
		}
		return cond{sql: t.column + op + c.bind(value.value)}, nil
	}
}

func (c *compiler) lowerOrdered(op parser.CmpOp, t target, value castValue) cond {
	if value.dateOnly {
		switch op {
		case parser.OpGte:
			return cond{sql: t.column + " >= " + c.bind(value.dayStart)}
		case parser.OpGt:
			return cond{sql: t.column + " >= " + c.bind(value.dayNext)}
		case parser.OpLte:
			return cond{sql: t.column + " < " + c.bind(value.dayNext)}
		default: // OpLt
			return cond{sql: t.column + " < " + c.bind(value.dayStart)}
		}
	}

	var sqlOp string
	switch op {
	case parser.OpGt:
		sqlOp = " > "
	case parser.OpGte:
		sqlOp = " >= "
	case parser.OpLt:
		sqlOp = " < "
	default:
		sqlOp = " <= "
	}

	return cond{sql: t.column + sqlOp + c.bind(value.value)}
}

// lowerSetMembership lowers IN / NOT IN with NULL-aware handling: a NULL
// element turns into an IS NULL / IS NOT NULL leg.
func (c *compiler) lowerSetMembership(n *parser.CmpNode, t target) (cond, error) {
	if len(n.Values) == 0 {
		return c.lowerEmptyList(n, t)
	}

	values, err := coerceList(t.ftype, n.Values)
	if err != nil {
		return cond{}, c.dropPredicate(c.opts.InvalidCast, WarnInvalidValue, filterql.ErrInvalidValue,
			t.column, fmt.Sprintf("Cannot cast list for field %q: %v", t.column, err))
	}

	var (
		placeholders []string
		hasNull      bool
	)
	for _, v := range values {
		if v.null {
			hasNull = true
			continue
		}
		placeholders = append(placeholders, c.bind(v.value))
	}

	negated := n.Op == parser.OpNin

	var listSQL string
	if len(placeholders) > 0 {
		if negated {
			listSQL = t.column + " NOT IN (" + strings.Join(placeholders, ", ") + ")"
		} else {
			listSQL = t.column + " IN (" + strings.Join(placeholders, ", ") + ")"
		}
	}

	if !hasNull {
		if listSQL == "" {
			return c.lowerEmptyList(n, t)
		}
		return cond{sql: listSQL}, nil
	}

	if negated {
		if listSQL == "" {
			return cond{sql: t.column + " IS NOT NULL"}, nil
		}
		return cond{sql: "(" + listSQL + ") AND " + t.column + " IS NOT NULL", prec: precAndCond}, nil
	}

	if listSQL == "" {
		return cond{sql: t.column + " IS NULL"}, nil
	}

	return cond{sql: "(" + listSQL + ") OR " + t.column + " IS NULL", prec: precOrCond}, nil
}

// lowerEmptyList applies the empty_in policy. The parser rejects empty list
// syntax; this handles trees passed to CompileAST without going through the
// parser.
func (c *compiler) lowerEmptyList(n *parser.CmpNode, t target) (cond, error) {
	switch c.opts.EmptyIn {
	case filterql.EmptyInError:
		return cond{}, filterql.NewError(filterql.StageBuild, filterql.ErrEmptyInList,
			fmt.Sprintf("Empty list for field %q", t.column))
	case filterql.EmptyInTrue:
		if n.Op == parser.OpNin {
			return cond{sql: "1 = 0"}, nil
		}
		return cond{sql: "1 = 1"}, nil
	default:
		if n.Op == parser.OpNin {
			return cond{sql: "1 = 1"}, nil
		}
		return cond{sql: "1 = 0"}, nil
	}
}

// lowerContainsAll lowers ALL: array containment on array columns, a
// GROUP BY / HAVING count plan over an association, or a degraded IN on
// plain scalar columns.
func (c *compiler) lowerContainsAll(n *parser.CmpNode, t target) (cond, error) {
	values, err := coerceList(t.ftype, n.Values)
	if err != nil {
		return cond{}, c.dropPredicate(c.opts.InvalidCast, WarnInvalidValue, filterql.ErrInvalidValue,
			t.column, fmt.Sprintf("Cannot cast list for field %q: %v", t.column, err))
	}

	distinct := dedupeValues(values)

	if t.ftype.IsArray() {
		placeholders := make([]string, len(distinct))
		for i, v := range distinct {
			placeholders[i] = c.bind(v.value)
		}
		elem := filterql.FieldType{Kind: filterql.KindText}
		if t.ftype.Elem != nil {
			elem = *t.ftype.Elem
		}
		sql := fmt.Sprintf("%s @> ARRAY[%s]::%s[]", t.column, strings.Join(placeholders, ", "), elem.SQLTypeName())
		return cond{sql: sql}, nil
	}

	if t.assoc != nil && (t.assoc.Kind == filterql.HasMany || t.assoc.Kind == filterql.ManyToMany) {
		if len(c.having) > 0 && c.join != nil && c.join.Name != t.assoc.Name {
			return cond{}, filterql.NewError(filterql.StageBuild, filterql.ErrUnsupportedContainsAll,
				"ALL over more than one association in a single query is unsupported")
		}

		placeholders := make([]string, len(distinct))
		for i, v := range distinct {
			placeholders[i] = c.bind(v.value)
		}

		c.having = append(c.having,
			fmt.Sprintf("COUNT(DISTINCT %s) = %d", t.column, len(distinct)))

		return cond{sql: t.column + " IN (" + strings.Join(placeholders, ", ") + ")"}, nil
	}

	// a scalar column can only ever hold one of the values; degrade to IN
	c.warnings = append(c.warnings, Warning{
		Kind:    WarnDegradedContainsAll,
		Field:   t.column,
		Message: fmt.Sprintf("ALL on scalar field %q degraded to IN", t.column),
	})

	in := &parser.CmpNode{FieldPath: n.FieldPath, Op: parser.OpIn, Values: n.Values}

	return c.lowerSetMembership(in, t)
}

func dedupeValues(values []castValue) []castValue {
	seen := make(map[any]struct{}, len(values))
	result := make([]castValue, 0, len(values))
	for _, v := range values {
		if v.null {
			continue
		}
		key := fmt.Sprintf("%v", v.value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, v)
	}
	return result
}

// ilike emits a case-insensitive LIKE: native ILIKE on PostgreSQL, a
// lower()ed LIKE elsewhere.
func (c *compiler) ilike(column, pattern string) cond {
	if c.opts.Dialect == filterql.DialectPostgres {
		return cond{sql: column + " ILIKE " + c.bind(pattern)}
	}
	return cond{sql: "lower(" + column + ") LIKE " + c.bind(strings.ToLower(pattern))}
}

// escapeLike escapes LIKE metacharacters in a literal.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
