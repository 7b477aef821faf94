package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/shibukawa/filterql"
)

// Scan converts a filter expression into a token stream. The returned slice
// always ends with exactly one EOF token. Every error is a *filterql.Error;
// all but the invalid-UTF-8 error carry a byte span into the source.
func Scan(source string) ([]Token, error) {
	if !utf8.ValidString(source) {
		return nil, filterql.NewError(filterql.StageLex, filterql.ErrInvalidInput,
			"Invalid input: source must be a valid UTF-8 string")
	}

	s := &scanner{src: source}

	for {
		wsStart := s.pos
		for s.pos < len(s.src) && isWhitespace(s.src[s.pos]) {
			s.pos++
		}
		hasWS := s.pos > wsStart

		if s.pos >= len(s.src) {
			break
		}

		c := s.src[s.pos]

		// whitespace between a field and its operator
		if hasWS && s.lastType() == STRING_VALUE && isOperatorStart(c) {
			return nil, filterql.NewSpanError(filterql.StageLex, filterql.ErrInvalidPredicateSpacing,
				wsStart, s.pos-wsStart,
				"Invalid whitespace in predicate at position %d. Fields and operators must not be separated by spaces.", wsStart)
		}

		if hasWS && s.needsImplicitAnd() {
			s.tokens = append(s.tokens, Token{
				Type:    AND,
				Lexeme:  s.src[wsStart:s.pos],
				Literal: "and",
				Span:    Span{Offset: wsStart, Length: s.pos - wsStart},
			})
		}

		if err := s.next(); err != nil {
			return nil, err
		}
	}

	s.tokens = append(s.tokens, Token{Type: EOF, Span: Span{Offset: len(s.src)}})

	return s.tokens, nil
}

type scanner struct {
	src    string
	pos    int
	tokens []Token
	inList bool
}

func (s *scanner) lastType() TokenType {
	if len(s.tokens) == 0 {
		return TokenType(-1)
	}
	return s.tokens[len(s.tokens)-1].Type
}

// needsImplicitAnd reports whether an AND must be synthesized for the
// whitespace just consumed: the previous token ends a term and the upcoming
// token starts one.
func (s *scanner) needsImplicitAnd() bool {
	last := s.lastType()
	if last != STRING_VALUE && last != RPAREN {
		return false
	}

	c := s.src[s.pos]
	if c == ')' || c == ',' {
		return false
	}
	if s.peekConnector() {
		return false
	}

	return true
}

// peekConnector reports whether the bytes at the cursor spell a whole-word
// uppercase AND or OR.
func (s *scanner) peekConnector() bool {
	rest := s.src[s.pos:]
	for _, kw := range []string{"AND", "OR"} {
		if strings.HasPrefix(rest, kw) {
			if len(rest) == len(kw) || s.atBoundary(rest[len(kw)]) {
				return true
			}
		}
	}
	return false
}

// atBoundary reports whether a byte terminates a connector word.
func (s *scanner) atBoundary(c byte) bool {
	return isWhitespace(c) || c == '(' || c == ')' || c == ','
}

func isOperatorStart(c byte) bool {
	switch c {
	case ':', '<', '>', '=':
		return true
	default:
		return false
	}
}

func (s *scanner) next() error {
	c := s.src[s.pos]

	switch {
	case c == '(':
		s.emit(LPAREN, s.pos, 1, "")
		s.pos++
		s.inList = false
	case c == ')':
		s.emit(RPAREN, s.pos, 1, "")
		s.pos++
		s.inList = false
	case c == ',':
		s.emit(COMMA, s.pos, 1, "")
		s.pos++
	case c == '\'' || c == '"':
		return s.scanQuoted()
	case c == '-' && s.dashStartsNot():
		s.emit(NOT_MODIFIER, s.pos, 1, "")
		s.pos++
	case c == '=':
		return filterql.NewSpanError(filterql.StageLex, filterql.ErrInvalidComparator,
			s.pos, 1, "Invalid operator '=' at position %d", s.pos)
	case c == ':' || c == '<' || c == '>':
		return filterql.NewSpanError(filterql.StageLex, filterql.ErrUnexpectedChar,
			s.pos, 1, "Unexpected character '%c' at position %d", c, s.pos)
	case isNameStart(c):
		return s.scanWord()
	case isVisible(c):
		return s.scanBare(s.pos)
	default:
		return filterql.NewSpanError(filterql.StageLex, filterql.ErrUnexpectedChar,
			s.pos, 1, "Unexpected character '%c' at position %d", c, s.pos)
	}

	return nil
}

// dashStartsNot reports whether a dash at the cursor negates the following
// term. Inside a list or after an operator a dash starts a bare value
// instead.
func (s *scanner) dashStartsNot() bool {
	if s.inList {
		return false
	}
	switch s.lastType() {
	case TokenType(-1), AND, OR, NOT_MODIFIER, LPAREN:
		return true
	default:
		return false
	}
}

func (s *scanner) scanQuoted() error {
	start := s.pos
	quote := s.src[s.pos]
	s.pos++

	var literal strings.Builder

	for s.pos < len(s.src) {
		b := s.src[s.pos]
		if b == '\\' {
			s.pos++
			if s.pos < len(s.src) {
				literal.WriteByte(s.src[s.pos])
				s.pos++
			}
			continue
		}
		if b == quote {
			s.pos++
			s.emit(STRING_VALUE, start, s.pos-start, literal.String())
			return nil
		}
		literal.WriteByte(b)
		s.pos++
	}

	return filterql.NewSpanError(filterql.StageLex, filterql.ErrUnterminatedString,
		start, len(s.src)-start, "Unterminated string at position %d", start)
}

func (s *scanner) scanWord() error {
	start := s.pos

	for s.pos < len(s.src) {
		b := s.src[s.pos]
		if isNameContinue(b) {
			s.pos++
			continue
		}
		if b == '.' {
			if s.pos+1 < len(s.src) && isNameStart(s.src[s.pos+1]) {
				s.pos++
				continue
			}
			return filterql.NewSpanError(filterql.StageLex, filterql.ErrInvalidField,
				start, s.pos+1-start,
				"Invalid field path at position %d. A '.' must be followed by a letter or underscore.", s.pos)
		}
		break
	}

	// a visible non-special byte (such as '*') extends the word into a bare value
	if s.pos < len(s.src) && !isSpecial(s.src[s.pos]) && isVisible(s.src[s.pos]) {
		return s.scanBare(start)
	}

	lexeme := s.src[start:s.pos]

	var next byte
	if s.pos < len(s.src) {
		next = s.src[s.pos]
	}

	switch next {
	case ':':
		s.emit(FIELD_IDENTIFIER, start, len(lexeme), NormalizeIdent(lexeme))
		s.emit(EQ, s.pos, 1, "")
		s.pos++
		return s.checkAfterOperator()
	case '<', '>':
		s.emit(FIELD_IDENTIFIER, start, len(lexeme), NormalizeIdent(lexeme))
		return s.scanComparator()
	case '=':
		return filterql.NewSpanError(filterql.StageLex, filterql.ErrInvalidComparator,
			s.pos, 1, "Invalid operator '=' at position %d", s.pos)
	}

	if isWhitespace(next) {
		if op, ok := s.peekSetOperator(); ok {
			s.emit(FIELD_IDENTIFIER, start, len(lexeme), NormalizeIdent(lexeme))
			s.tokens = append(s.tokens, Token{
				Type:   op.typ,
				Lexeme: s.src[op.kwStart:op.kwEnd],
				Span:   Span{Offset: op.kwStart, Length: op.kwEnd - op.kwStart},
			})
			s.emit(LPAREN, op.lparen, 1, "")
			s.pos = op.lparen + 1
			s.inList = true
			return nil
		}
	}

	if (lexeme == "AND" || lexeme == "OR") && s.leftBoundary(start) && (next == 0 || s.atBoundary(next)) {
		if lexeme == "AND" {
			s.emit(AND, start, 3, "and")
		} else {
			s.emit(OR, start, 2, "or")
		}
		return nil
	}

	if lexeme == "NOT" && s.leftBoundary(start) && isWhitespace(next) && !s.inList {
		s.emit(NOT_MODIFIER, start, 3, "")
		return nil
	}

	s.emit(STRING_VALUE, start, len(lexeme), lexeme)

	return nil
}

// leftBoundary reports whether the byte before offset allows a keyword:
// start of input, whitespace, an opening paren, or a comma.
func (s *scanner) leftBoundary(offset int) bool {
	if offset == 0 {
		return true
	}
	prev := s.src[offset-1]
	return isWhitespace(prev) || prev == '(' || prev == ','
}

func (s *scanner) scanComparator() error {
	start := s.pos
	op := s.src[s.pos]
	s.pos++

	if s.pos < len(s.src) && s.src[s.pos] == '=' {
		s.pos++
		if op == '<' {
			s.emit(LTE, start, 2, "")
		} else {
			s.emit(GTE, start, 2, "")
		}
		return s.checkAfterOperator()
	}

	// '< =' style split operator
	j := s.pos
	for j < len(s.src) && isWhitespace(s.src[j]) {
		j++
	}
	if j > s.pos && j < len(s.src) && s.src[j] == '=' {
		return filterql.NewSpanError(filterql.StageLex, filterql.ErrBrokenOperator,
			start, j+1-start, "Broken operator '%s' at position %d", s.src[start:j+1], start)
	}

	if op == '<' {
		s.emit(LT, start, 1, "")
	} else {
		s.emit(GT, start, 1, "")
	}

	return s.checkAfterOperator()
}

// checkAfterOperator rejects whitespace between a comparator and its value.
func (s *scanner) checkAfterOperator() error {
	if s.pos < len(s.src) && isWhitespace(s.src[s.pos]) {
		return filterql.NewSpanError(filterql.StageLex, filterql.ErrInvalidPredicateSpacing,
			s.pos, 1,
			"Invalid whitespace in predicate at position %d. Operators must not be separated from their value.", s.pos)
	}
	return nil
}

func (s *scanner) scanBare(start int) error {
	for s.pos < len(s.src) {
		b := s.src[s.pos]
		if isSpecial(b) || !isVisible(b) {
			break
		}
		s.pos++
	}

	if s.pos == start {
		return filterql.NewSpanError(filterql.StageLex, filterql.ErrUnexpectedChar,
			start, 1, "Unexpected character '%c' at position %d", s.src[start], start)
	}

	lexeme := s.src[start:s.pos]
	s.emit(STRING_VALUE, start, len(lexeme), lexeme)

	return nil
}

type setOperator struct {
	typ     TokenType
	kwStart int
	kwEnd   int
	lparen  int
}

// peekSetOperator matches "IN", "NOT IN", or "ALL" after the current
// whitespace, each requiring whitespace before the opening paren. Keywords
// are case-sensitive; a keyword touching further name characters falls
// through to a bare term.
func (s *scanner) peekSetOperator() (setOperator, bool) {
	i := s.skipWhitespaceFrom(s.pos)

	if kwEnd, ok := s.matchKeyword(i, "NOT"); ok {
		j := s.skipWhitespaceFrom(kwEnd)
		if j > kwEnd {
			if inEnd, ok := s.matchKeyword(j, "IN"); ok {
				if lparen, ok := s.findListOpen(inEnd); ok {
					return setOperator{typ: SET_NOT_IN, kwStart: i, kwEnd: inEnd, lparen: lparen}, true
				}
			}
		}
		return setOperator{}, false
	}

	if kwEnd, ok := s.matchKeyword(i, "IN"); ok {
		if lparen, ok := s.findListOpen(kwEnd); ok {
			return setOperator{typ: SET_IN, kwStart: i, kwEnd: kwEnd, lparen: lparen}, true
		}
		return setOperator{}, false
	}

	if kwEnd, ok := s.matchKeyword(i, "ALL"); ok {
		if lparen, ok := s.findListOpen(kwEnd); ok {
			return setOperator{typ: SET_ALL, kwStart: i, kwEnd: kwEnd, lparen: lparen}, true
		}
	}

	return setOperator{}, false
}

func (s *scanner) skipWhitespaceFrom(i int) int {
	for i < len(s.src) && isWhitespace(s.src[i]) {
		i++
	}
	return i
}

func (s *scanner) matchKeyword(i int, kw string) (int, bool) {
	if !strings.HasPrefix(s.src[i:], kw) {
		return 0, false
	}
	end := i + len(kw)
	if end < len(s.src) && isNameContinue(s.src[end]) {
		return 0, false
	}
	return end, true
}

// findListOpen requires at least one whitespace byte and then '('.
func (s *scanner) findListOpen(i int) (int, bool) {
	j := s.skipWhitespaceFrom(i)
	if j > i && j < len(s.src) && s.src[j] == '(' {
		return j, true
	}
	return 0, false
}

func (s *scanner) emit(typ TokenType, offset, length int, literal string) {
	s.tokens = append(s.tokens, Token{
		Type:    typ,
		Lexeme:  s.src[offset : offset+length],
		Literal: literal,
		Span:    Span{Offset: offset, Length: length},
	})
}
