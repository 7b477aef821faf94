package filterql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldKind is the scalar kind of a field type.
type FieldKind int

const (
	KindString FieldKind = iota + 1
	KindText
	KindInteger
	KindDecimal
	KindBool
	KindDate
	KindUTCDateTime
	KindUTCDateTimeUsec
	KindNaiveDateTime
	KindNaiveDateTimeUsec
	KindArray
)

// FieldType describes the declared type of a schema field.
// Elem is set only for KindArray.
type FieldType struct {
	Kind FieldKind
	Elem *FieldType
}

// IsDateTime reports whether the type is one of the datetime kinds.
func (t FieldType) IsDateTime() bool {
	switch t.Kind {
	case KindUTCDateTime, KindUTCDateTimeUsec, KindNaiveDateTime, KindNaiveDateTimeUsec:
		return true
	default:
		return false
	}
}

// IsArray reports whether the type is an array type.
func (t FieldType) IsArray() bool {
	return t.Kind == KindArray
}

// String returns the configuration name of the type.
func (t FieldType) String() string {
	switch t.Kind {
	case KindString:
		return "string"
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindUTCDateTime:
		return "utc_datetime"
	case KindUTCDateTimeUsec:
		return "utc_datetime_usec"
	case KindNaiveDateTime:
		return "naive_datetime"
	case KindNaiveDateTimeUsec:
		return "naive_datetime_usec"
	case KindArray:
		if t.Elem != nil {
			return "array<" + t.Elem.String() + ">"
		}
		return "array"
	default:
		return "unknown"
	}
}

// SQLTypeName returns the SQL type name used for array casts (col @> ARRAY[...]::name[]).
func (t FieldType) SQLTypeName() string {
	switch t.Kind {
	case KindString, KindText:
		return "text"
	case KindInteger:
		return "bigint"
	case KindDecimal:
		return "numeric"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindUTCDateTime, KindUTCDateTimeUsec:
		return "timestamptz"
	case KindNaiveDateTime, KindNaiveDateTimeUsec:
		return "timestamp"
	default:
		return "text"
	}
}

// ParseFieldType parses a configuration type name such as "integer" or "array<text>".
func ParseFieldType(name string) (FieldType, error) {
	name = strings.TrimSpace(name)
	if inner, ok := strings.CutPrefix(name, "array<"); ok {
		inner, ok = strings.CutSuffix(inner, ">")
		if !ok {
			return FieldType{}, fmt.Errorf("%w: %q", ErrInvalidValue, name)
		}
		elem, err := ParseFieldType(inner)
		if err != nil {
			return FieldType{}, err
		}
		return FieldType{Kind: KindArray, Elem: &elem}, nil
	}

	switch name {
	case "string":
		return FieldType{Kind: KindString}, nil
	case "text":
		return FieldType{Kind: KindText}, nil
	case "integer", "int":
		return FieldType{Kind: KindInteger}, nil
	case "decimal":
		return FieldType{Kind: KindDecimal}, nil
	case "boolean", "bool":
		return FieldType{Kind: KindBool}, nil
	case "date":
		return FieldType{Kind: KindDate}, nil
	case "utc_datetime":
		return FieldType{Kind: KindUTCDateTime}, nil
	case "utc_datetime_usec":
		return FieldType{Kind: KindUTCDateTimeUsec}, nil
	case "naive_datetime":
		return FieldType{Kind: KindNaiveDateTime}, nil
	case "naive_datetime_usec":
		return FieldType{Kind: KindNaiveDateTimeUsec}, nil
	default:
		return FieldType{}, fmt.Errorf("%w: unknown field type %q", ErrInvalidValue, name)
	}
}

// datetime layouts accepted by Cast, tried in order
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// Cast converts a raw literal into a Go value of the field type.
// It returns the converted value, or an error wrapping ErrInvalidValue.
func (t FieldType) Cast(raw string) (any, error) {
	switch t.Kind {
	case KindString, KindText:
		return raw, nil
	case KindInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, raw)
		}
		return n, nil
	case KindDecimal:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a decimal", ErrInvalidValue, raw)
		}
		return d, nil
	case KindBool:
		switch raw {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		default:
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, raw)
		}
	case KindDate:
		d, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a date", ErrInvalidValue, raw)
		}
		return d, nil
	case KindUTCDateTime, KindUTCDateTimeUsec, KindNaiveDateTime, KindNaiveDateTimeUsec:
		for _, layout := range datetimeLayouts {
			if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
				return ts.UTC(), nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not a datetime", ErrInvalidValue, raw)
	case KindArray:
		if t.Elem == nil {
			return nil, fmt.Errorf("%w: array type without element type", ErrInvalidValue)
		}
		return t.Elem.Cast(raw)
	default:
		return nil, fmt.Errorf("%w: cannot cast %q", ErrInvalidValue, raw)
	}
}
