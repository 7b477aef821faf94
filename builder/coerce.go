package builder

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shibukawa/filterql"
	"github.com/shibukawa/filterql/parser"
)

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// castValue is one coerced operand. A date-only value against a datetime
// column carries the UTC day boundaries instead of a single value; the
// predicate compiler expands it into a range.
type castValue struct {
	value    any
	null     bool
	dateOnly bool
	dayStart time.Time
	dayNext  time.Time
}

// coerceScalar casts a single literal against the declared field type.
func coerceScalar(t filterql.FieldType, op parser.CmpOp, v parser.Value) (castValue, error) {
	if v.Null {
		if op.Ordered() {
			return castValue{}, fmt.Errorf("%w", filterql.ErrInvalidNullComparison)
		}
		return castValue{null: true}, nil
	}

	if t.IsDateTime() && (op.Ordered() || op == parser.OpEq) && dateOnlyRe.MatchString(v.Raw) {
		day, err := time.ParseInLocation("2006-01-02", v.Raw, time.UTC)
		if err != nil {
			return castValue{}, fmt.Errorf("%w: %q is not a date", filterql.ErrInvalidValue, v.Raw)
		}
		return castValue{dateOnly: true, dayStart: day, dayNext: day.AddDate(0, 0, 1)}, nil
	}

	if op == parser.OpStartsWith || op == parser.OpEndsWith {
		return castValue{value: v.Raw}, nil
	}

	value, err := t.Cast(v.Raw)
	if err != nil {
		return castValue{}, err
	}

	return castValue{value: value}, nil
}

// coerceList casts every list element; any failure fails the whole list.
func coerceList(t filterql.FieldType, values []parser.Value) ([]castValue, error) {
	elemType := t
	if t.IsArray() && t.Elem != nil {
		elemType = *t.Elem
	}

	result := make([]castValue, 0, len(values))
	for _, v := range values {
		if v.Null {
			result = append(result, castValue{null: true})
			continue
		}
		value, err := elemType.Cast(v.Raw)
		if err != nil {
			return nil, err
		}
		result = append(result, castValue{value: value})
	}

	return result, nil
}
