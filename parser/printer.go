package parser

import "strings"

// Format renders an AST back into filter syntax. Parsing the result yields
// the same tree modulo connector flattening, which makes golden tests and
// debug output stable.
func Format(node Node) string {
	var b strings.Builder
	format(&b, node, false)
	return b.String()
}

func format(b *strings.Builder, node Node, grouped bool) {
	switch n := node.(type) {
	case *AndNode:
		for i, child := range n.Children {
			if i > 0 {
				b.WriteString(" AND ")
			}
			format(b, child, true)
		}
	case *OrNode:
		if grouped {
			b.WriteByte('(')
		}
		for i, child := range n.Children {
			if i > 0 {
				b.WriteString(" OR ")
			}
			format(b, child, true)
		}
		if grouped {
			b.WriteByte(')')
		}
	case *NotNode:
		b.WriteString("NOT ")
		switch n.Expr.(type) {
		case *AndNode, *OrNode:
			b.WriteByte('(')
			format(b, n.Expr, false)
			b.WriteByte(')')
		default:
			format(b, n.Expr, true)
		}
	case *CmpNode:
		formatCmp(b, n)
	case *FullTextNode:
		b.WriteString(quoteValue(n.Term))
	}
}

func formatCmp(b *strings.Builder, n *CmpNode) {
	if n.Op == OpNeq {
		b.WriteString("NOT ")
	}

	field := strings.Join(n.FieldPath, ".")
	b.WriteString(field)

	switch n.Op {
	case OpEq:
		b.WriteByte(':')
		b.WriteString(formatScalar(n.Value))
	case OpStartsWith:
		b.WriteByte(':')
		b.WriteString(n.Value.Raw)
		b.WriteByte('*')
	case OpEndsWith:
		b.WriteByte(':')
		b.WriteByte('*')
		b.WriteString(n.Value.Raw)
	case OpGt:
		b.WriteByte('>')
		b.WriteString(formatScalar(n.Value))
	case OpGte:
		b.WriteString(">=")
		b.WriteString(formatScalar(n.Value))
	case OpLt:
		b.WriteByte('<')
		b.WriteString(formatScalar(n.Value))
	case OpLte:
		b.WriteString("<=")
		b.WriteString(formatScalar(n.Value))
	case OpIn, OpNin, OpContainsAll:
		switch n.Op {
		case OpIn:
			b.WriteString(" IN (")
		case OpNin:
			b.WriteString(" NOT IN (")
		default:
			b.WriteString(" ALL (")
		}
		for i, v := range n.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatScalar(v))
		}
		b.WriteByte(')')
	case OpNeq:
		// no source syntax; render as a negated equality
		b.WriteByte(':')
		b.WriteString(formatScalar(n.Value))
	}
}

func formatScalar(v Value) string {
	if v.Null {
		return "NULL"
	}
	return quoteValue(v.Raw)
}

// quoteValue renders a literal, quoting whenever the bare form would not
// rescan to the same value.
func quoteValue(raw string) string {
	if raw != "" && raw[0] != '-' && raw != "NULL" && raw != "AND" && raw != "OR" && raw != "NOT" && isBareSafe(raw) {
		return raw
	}

	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '\'' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('\'')
	return b.String()
}

func isBareSafe(raw string) bool {
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '*' || c == '.':
			return false
		case c <= 0x20 || c == 0x7f:
			return false
		case c == '(' || c == ')' || c == ':' || c == '<' || c == '>' || c == '=' || c == ',' || c == '\'' || c == '"':
			return false
		}
	}
	return true
}
