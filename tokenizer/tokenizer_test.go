package tokenizer

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func tokenTypes(tokens []Token) []TokenType {
	types := make([]TokenType, len(tokens))
	for i, token := range tokens {
		types[i] = token.Type
	}
	return types
}

func TestScanSimplePredicate(t *testing.T) {
	tokens, err := Scan("status:live")
	assert.NoError(t, err)

	assert.Equal(t, []TokenType{FIELD_IDENTIFIER, EQ, STRING_VALUE, EOF}, tokenTypes(tokens))
	assert.Equal(t, "status", tokens[0].Literal)
	assert.Equal(t, Span{Offset: 0, Length: 6}, tokens[0].Span)
	assert.Equal(t, Span{Offset: 6, Length: 1}, tokens[1].Span)
	assert.Equal(t, "live", tokens[2].Literal)
	assert.Equal(t, Span{Offset: 7, Length: 4}, tokens[2].Span)
	assert.Equal(t, Span{Offset: 11, Length: 0}, tokens[3].Span)
}

func TestScanComparators(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected TokenType
	}{
		{"less than", "priority<5", LT},
		{"less equal", "priority<=5", LTE},
		{"greater than", "priority>5", GT},
		{"greater equal", "priority>=5", GTE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Scan(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, []TokenType{FIELD_IDENTIFIER, tt.expected, STRING_VALUE, EOF}, tokenTypes(tokens))
			assert.Equal(t, "5", tokens[2].Literal)
		})
	}
}

func TestScanImplicitAnd(t *testing.T) {
	tokens, err := Scan("status:live priority:10")
	assert.NoError(t, err)

	assert.Equal(t, []TokenType{
		FIELD_IDENTIFIER, EQ, STRING_VALUE,
		AND,
		FIELD_IDENTIFIER, EQ, STRING_VALUE,
		EOF,
	}, tokenTypes(tokens))

	and := tokens[3]
	assert.Equal(t, "and", and.Literal)
	assert.Equal(t, " ", and.Lexeme)
	assert.Equal(t, Span{Offset: 11, Length: 1}, and.Span)
}

func TestScanImplicitAndBetweenTermsAndGroups(t *testing.T) {
	tokens, err := Scan("elixir (status:live)")
	assert.NoError(t, err)

	assert.Equal(t, []TokenType{
		STRING_VALUE, AND, LPAREN, FIELD_IDENTIFIER, EQ, STRING_VALUE, RPAREN, EOF,
	}, tokenTypes(tokens))
}

func TestScanNoImplicitAndBeforeConnector(t *testing.T) {
	tokens, err := Scan("status:live OR status:draft")
	assert.NoError(t, err)

	assert.Equal(t, []TokenType{
		FIELD_IDENTIFIER, EQ, STRING_VALUE,
		OR,
		FIELD_IDENTIFIER, EQ, STRING_VALUE,
		EOF,
	}, tokenTypes(tokens))
	assert.Equal(t, "or", tokens[3].Literal)
}

func TestScanLowercaseConnectorsAreBareValues(t *testing.T) {
	tokens, err := Scan("foo and bar")
	assert.NoError(t, err)

	// lowercase "and" is not a connector, so implicit ANDs surround it
	assert.Equal(t, []TokenType{
		STRING_VALUE, AND, STRING_VALUE, AND, STRING_VALUE, EOF,
	}, tokenTypes(tokens))
	assert.Equal(t, "and", tokens[2].Lexeme)
}

func TestScanConnectorRequiresWordBoundary(t *testing.T) {
	tokens, err := Scan("ANDREW")
	assert.NoError(t, err)
	assert.Equal(t, []TokenType{STRING_VALUE, EOF}, tokenTypes(tokens))
	assert.Equal(t, "ANDREW", tokens[0].Lexeme)
}

func TestScanSetOperators(t *testing.T) {
	tokens, err := Scan("status IN (live, draft)")
	assert.NoError(t, err)

	assert.Equal(t, []TokenType{
		FIELD_IDENTIFIER, SET_IN, LPAREN,
		STRING_VALUE, COMMA, STRING_VALUE,
		RPAREN, EOF,
	}, tokenTypes(tokens))
	assert.Equal(t, "IN", tokens[1].Lexeme)
	assert.Equal(t, Span{Offset: 7, Length: 2}, tokens[1].Span)
}

func TestScanNotIn(t *testing.T) {
	tokens, err := Scan("status NOT IN (live)")
	assert.NoError(t, err)

	assert.Equal(t, []TokenType{
		FIELD_IDENTIFIER, SET_NOT_IN, LPAREN, STRING_VALUE, RPAREN, EOF,
	}, tokenTypes(tokens))
	assert.Equal(t, "NOT IN", tokens[1].Lexeme)
}

func TestScanAll(t *testing.T) {
	tokens, err := Scan("tags.name ALL (urgent, billing)")
	assert.NoError(t, err)

	assert.Equal(t, []TokenType{
		FIELD_IDENTIFIER, SET_ALL, LPAREN,
		STRING_VALUE, COMMA, STRING_VALUE,
		RPAREN, EOF,
	}, tokenTypes(tokens))
	assert.Equal(t, "tags.name", tokens[0].Literal)
}

func TestScanSetKeywordCaseSensitive(t *testing.T) {
	// lowercase "in" is not a set operator; the words become bare terms
	tokens, err := Scan("status in (live)")
	assert.NoError(t, err)
	assert.Equal(t, STRING_VALUE, tokens[0].Type)
	assert.Equal(t, STRING_VALUE, tokens[2].Type)
	assert.Equal(t, "in", tokens[2].Lexeme)
}

func TestScanSetKeywordTouchingWordFallsThrough(t *testing.T) {
	tokens, err := Scan("status INDEX (live)")
	assert.NoError(t, err)

	// INDEX is not the IN keyword
	assert.Equal(t, STRING_VALUE, tokens[0].Type)
	assert.Equal(t, STRING_VALUE, tokens[2].Type)
	assert.Equal(t, "INDEX", tokens[2].Lexeme)
}

func TestScanQuotedStrings(t *testing.T) {
	tokens, err := Scan(`status:'in progress'`)
	assert.NoError(t, err)

	assert.Equal(t, []TokenType{FIELD_IDENTIFIER, EQ, STRING_VALUE, EOF}, tokenTypes(tokens))
	assert.Equal(t, "in progress", tokens[2].Literal)
	assert.Equal(t, `'in progress'`, tokens[2].Lexeme)
	assert.True(t, tokens[2].Quoted())
}

func TestScanQuotedEscapes(t *testing.T) {
	tokens, err := Scan(`name:'O\'Brien'`)
	assert.NoError(t, err)
	assert.Equal(t, "O'Brien", tokens[2].Literal)

	tokens, err = Scan(`name:"say \"hi\""`)
	assert.NoError(t, err)
	assert.Equal(t, `say "hi"`, tokens[2].Literal)
}

func TestScanNotModifier(t *testing.T) {
	tokens, err := Scan("NOT status:live")
	assert.NoError(t, err)
	assert.Equal(t, []TokenType{NOT_MODIFIER, FIELD_IDENTIFIER, EQ, STRING_VALUE, EOF}, tokenTypes(tokens))

	tokens, err = Scan("-status:live")
	assert.NoError(t, err)
	assert.Equal(t, []TokenType{NOT_MODIFIER, FIELD_IDENTIFIER, EQ, STRING_VALUE, EOF}, tokenTypes(tokens))
	assert.Equal(t, "-", tokens[0].Lexeme)
}

func TestScanDashInsideValueIsNotNegation(t *testing.T) {
	tokens, err := Scan("time_start:2025-08-07")
	assert.NoError(t, err)
	assert.Equal(t, []TokenType{FIELD_IDENTIFIER, EQ, STRING_VALUE, EOF}, tokenTypes(tokens))
	assert.Equal(t, "2025-08-07", tokens[2].Literal)
}

func TestScanWildcardValues(t *testing.T) {
	tokens, err := Scan("name:Bea*")
	assert.NoError(t, err)
	assert.Equal(t, []TokenType{FIELD_IDENTIFIER, EQ, STRING_VALUE, EOF}, tokenTypes(tokens))
	assert.Equal(t, "Bea*", tokens[2].Lexeme)
	assert.False(t, tokens[2].Quoted())
}

func TestScanBareTermWithStar(t *testing.T) {
	tokens, err := Scan("*foo")
	assert.NoError(t, err)
	assert.Equal(t, []TokenType{STRING_VALUE, EOF}, tokenTypes(tokens))
	assert.Equal(t, "*foo", tokens[0].Lexeme)
}

func TestScanSpansAreMonotoneAndInBounds(t *testing.T) {
	source := `status:live AND (org.name:Bea* OR tags.name IN ('a', NULL)) -draft`
	tokens, err := Scan(source)
	assert.NoError(t, err)

	prevEnd := 0
	for _, token := range tokens {
		assert.True(t, token.Span.Offset >= prevEnd)
		assert.True(t, token.Span.End() <= len(source))
		prevEnd = token.Span.Offset
	}
	assert.Equal(t, EOF, tokens[len(tokens)-1].Type)
}

func TestScanErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"unterminated string", "status:'unterminated", "Unterminated string at position 7"},
		{"invalid equals operator", "status=live", "Invalid operator '=' at position 6"},
		{"broken operator", "priority< =5", "Broken operator '< =' at position 8"},
		{"space before operator", "status :live", "Invalid whitespace in predicate at position 6. Fields and operators must not be separated by spaces."},
		{"space after operator", "status: live", "Invalid whitespace in predicate at position 7. Operators must not be separated from their value."},
		{"trailing dot", "org.:x", "Invalid field path at position 3. A '.' must be followed by a letter or underscore."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.input)
			assert.Error(t, err)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestScanInvalidUTF8(t *testing.T) {
	_, err := Scan("status:\xff\xfe")
	assert.Error(t, err)
}

func TestScanEmptySource(t *testing.T) {
	tokens, err := Scan("")
	assert.NoError(t, err)
	assert.Equal(t, []TokenType{EOF}, tokenTypes(tokens))

	tokens, err = Scan("   \t\n")
	assert.NoError(t, err)
	assert.Equal(t, []TokenType{EOF}, tokenTypes(tokens))
}
