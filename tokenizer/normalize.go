package tokenizer

import "strings"

// NormalizeIdent normalizes a field path lexeme segment by segment: each
// dot-separated segment is snake-cased independently and the dots are kept.
func NormalizeIdent(lexeme string) string {
	segments := strings.Split(lexeme, ".")
	for i, segment := range segments {
		segments[i] = snakeSegment(segment)
	}
	return strings.Join(segments, ".")
}

// snakeSegment lower-cases a segment, inserting an underscore only at
// lower-or-digit to upper transitions so acronym runs stay intact. Dashes
// and spaces map to underscores and consecutive underscores collapse.
func snakeSegment(segment string) string {
	var b strings.Builder
	b.Grow(len(segment) + 4)

	prevLowerOrDigit := false
	prevUnderscore := false

	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch {
		case c == '-' || c == ' ' || c == '_':
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
			prevLowerOrDigit = false
		case c >= 'A' && c <= 'Z':
			if prevLowerOrDigit && !prevUnderscore {
				b.WriteByte('_')
			}
			b.WriteByte(c - 'A' + 'a')
			prevUnderscore = false
			prevLowerOrDigit = false
		default:
			b.WriteByte(c)
			prevUnderscore = false
			prevLowerOrDigit = isLower(c) || isDigit(c)
		}
	}

	return b.String()
}

func isLower(c byte) bool {
	return c >= 'a' && c <= 'z'
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return isLower(c) || isUpper(c)
}

// isWhitespace matches space, tab, CR, and LF.
func isWhitespace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n':
		return true
	default:
		return false
	}
}

// isNameStart matches the first byte of a field identifier.
func isNameStart(c byte) bool {
	return isLetter(c) || c == '_'
}

// isNameContinue matches subsequent bytes of a field identifier.
func isNameContinue(c byte) bool {
	return isNameStart(c) || isDigit(c) || c == '-'
}

// isSpecial matches bytes that terminate a bare value.
func isSpecial(c byte) bool {
	if isWhitespace(c) {
		return true
	}
	switch c {
	case '(', ')', ':', '<', '>', '=', ',', '\'', '"':
		return true
	default:
		return false
	}
}

// isVisible matches printable bytes that may appear inside a bare value.
// Bytes above 0x7f are UTF-8 continuation or start bytes and count as
// visible.
func isVisible(c byte) bool {
	return c > 0x20 && c != 0x7f
}
