package parser

import (
	"strings"

	"github.com/shibukawa/filterql"
	"github.com/shibukawa/filterql/tokenizer"
)

// Operator precedence: AND binds tighter than OR, both left-associative.
const (
	precOr  = 10
	precAnd = 20
)

// Parse converts a token stream into an AST. An empty stream parses to an
// empty conjunction. Every error is a *filterql.Error with a byte span.
func Parse(tokens []tokenizer.Token) (Node, error) {
	p := &parser{tokens: tokens}

	if p.peek().Type == tokenizer.EOF {
		return &AndNode{}, nil
	}

	node, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}

	if trailing := p.peek(); trailing.Type != tokenizer.EOF {
		if trailing.Type == tokenizer.COMMA {
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrStrayComma,
				trailing.Span.Offset, trailing.Span.Length,
				"Stray comma at position %d. Commas separate list items only.", trailing.Span.Offset)
		}
		return nil, unexpectedToken(trailing)
	}

	return node, nil
}

// ParseString scans and parses a source expression in one step.
func ParseString(source string) (Node, error) {
	tokens, err := tokenizer.Scan(source)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

type parser struct {
	tokens []tokenizer.Token
	pos    int
}

func (p *parser) peek() tokenizer.Token {
	if p.pos >= len(p.tokens) {
		return tokenizer.Token{Type: tokenizer.EOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() tokenizer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *parser) parseExpression(minPrec int) (Node, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()

		var prec int
		switch tok.Type {
		case tokenizer.AND:
			prec = precAnd
		case tokenizer.OR:
			prec = precOr
		default:
			return left, nil
		}

		if prec < minPrec {
			return left, nil
		}

		p.advance()
		word := connectorWord(tok)

		next := p.peek()
		if next.Type == tokenizer.EOF {
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrUnexpectedEOFAfterOperator,
				tok.Span.Offset, tok.Span.Length,
				"Expected expression after '%s' at position %d. Operators must be followed by a value or field.",
				word, tok.Span.Offset)
		}
		if next.Type == tokenizer.RPAREN {
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrOperatorBeforeRightParen,
				next.Span.Offset, next.Span.Length,
				"Unexpected ')' after '%s' at position %d. Operators must be followed by a value or field.",
				word, next.Span.Offset)
		}

		right, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}

		if tok.Type == tokenizer.AND {
			left = combineAnd(left, right)
		} else {
			left = combineOr(left, right)
		}
	}
}

func (p *parser) parsePrefix() (Node, error) {
	tok := p.peek()

	switch tok.Type {
	case tokenizer.LPAREN:
		p.advance()
		if p.peek().Type == tokenizer.RPAREN {
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrEmptyGroup,
				tok.Span.Offset, p.peek().Span.End()-tok.Span.Offset,
				"Empty group at position %d. Parentheses must contain an expression.", tok.Span.Offset)
		}

		expr, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}

		closing := p.peek()
		if closing.Type != tokenizer.RPAREN {
			if closing.Type == tokenizer.EOF {
				return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrMissingRightParen,
					tok.Span.Offset, tok.Span.Length,
					"Missing closing parenthesis ')' for opening parenthesis at position %d", tok.Span.Offset)
			}
			return nil, unexpectedToken(closing)
		}
		p.advance()

		return expr, nil

	case tokenizer.NOT_MODIFIER:
		p.advance()
		if p.peek().Type == tokenizer.EOF {
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrNotWithoutTerm,
				tok.Span.Offset, tok.Span.Length,
				"Expected expression after '%s' at position %d.", tok.Lexeme, tok.Span.Offset)
		}

		expr, err := p.parsePrefix()
		if err != nil {
			return nil, err
		}

		return &NotNode{Expr: expr}, nil

	case tokenizer.FIELD_IDENTIFIER:
		return p.parsePredicate()

	case tokenizer.STRING_VALUE:
		p.advance()
		return &FullTextNode{Term: tok.Literal, Span: tok.Span}, nil

	case tokenizer.COMMA:
		return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrStrayComma,
			tok.Span.Offset, tok.Span.Length,
			"Stray comma at position %d. Commas separate list items only.", tok.Span.Offset)

	case tokenizer.EOF:
		return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrUnexpectedToken,
			tok.Span.Offset, 0, "Unexpected end of input at position %d", tok.Span.Offset)

	default:
		return nil, unexpectedToken(tok)
	}
}

func (p *parser) parsePredicate() (Node, error) {
	field := p.advance()
	fieldPath := strings.Split(field.Literal, ".")

	opTok := p.advance()

	switch opTok.Type {
	case tokenizer.EQ:
		val := p.peek()
		switch val.Type {
		case tokenizer.STRING_VALUE:
			p.advance()
			return classifyEq(fieldPath, field.Span, val)
		case tokenizer.LPAREN:
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrListNotAllowedForColonOp,
				val.Span.Offset, val.Span.Length,
				"List not allowed after ':' at position %d. Use 'IN' for list matching.", val.Span.Offset)
		case tokenizer.EOF:
			return nil, missingRHS(opTok, ":")
		default:
			return nil, unexpectedToken(val)
		}

	case tokenizer.LT, tokenizer.LTE, tokenizer.GT, tokenizer.GTE:
		val := p.peek()
		switch val.Type {
		case tokenizer.STRING_VALUE:
		case tokenizer.EOF:
			return nil, missingRHS(opTok, opTok.Lexeme)
		default:
			return nil, unexpectedToken(val)
		}
		p.advance()

		if !val.Quoted() && strings.Contains(val.Lexeme, "*") {
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrWildcardNotAllowedForRelop,
				val.Span.Offset, val.Span.Length,
				"Wildcard not allowed for relational operator at position %d. Quote the value to match a literal '*'.",
				val.Span.Offset)
		}

		var op CmpOp
		switch opTok.Type {
		case tokenizer.LT:
			op = OpLt
		case tokenizer.LTE:
			op = OpLte
		case tokenizer.GT:
			op = OpGt
		default:
			op = OpGte
		}

		return &CmpNode{FieldPath: fieldPath, FieldSpan: field.Span, Op: op, Value: valueOf(val)}, nil

	case tokenizer.SET_IN, tokenizer.SET_NOT_IN, tokenizer.SET_ALL:
		lparen := p.peek()
		if lparen.Type != tokenizer.LPAREN {
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrExpectedListAfterSetOperator,
				opTok.Span.Offset, opTok.Span.Length,
				"Expected list after '%s' at position %d.", opTok.Lexeme, opTok.Span.Offset)
		}
		p.advance()

		values, err := p.parseList(lparen)
		if err != nil {
			return nil, err
		}

		var op CmpOp
		switch opTok.Type {
		case tokenizer.SET_IN:
			op = OpIn
		case tokenizer.SET_NOT_IN:
			op = OpNin
		default:
			op = OpContainsAll
		}

		return &CmpNode{FieldPath: fieldPath, FieldSpan: field.Span, Op: op, Values: values}, nil

	default:
		return nil, unexpectedToken(opTok)
	}
}

func (p *parser) parseList(lparen tokenizer.Token) ([]Value, error) {
	if p.peek().Type == tokenizer.RPAREN {
		return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrEmptyList,
			lparen.Span.Offset, p.peek().Span.End()-lparen.Span.Offset,
			"Empty list at position %d. Lists must contain at least one value.", lparen.Span.Offset)
	}

	var values []Value

	for {
		tok := p.peek()
		if tok.Type != tokenizer.STRING_VALUE {
			switch tok.Type {
			case tokenizer.COMMA:
				return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrStrayComma,
					tok.Span.Offset, tok.Span.Length,
					"Stray comma at position %d. Commas separate list items only.", tok.Span.Offset)
			case tokenizer.EOF:
				return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrMissingRightParen,
					lparen.Span.Offset, lparen.Span.Length,
					"Missing closing parenthesis ')' for opening parenthesis at position %d", lparen.Span.Offset)
			default:
				return nil, unexpectedToken(tok)
			}
		}
		p.advance()

		if !tok.Quoted() && strings.Contains(tok.Lexeme, "*") {
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrWildcardNotAllowedInList,
				tok.Span.Offset, tok.Span.Length,
				"Wildcard not allowed in list at position %d. Quote the value to match a literal '*'.", tok.Span.Offset)
		}

		values = append(values, valueOf(tok))

		sep := p.peek()
		switch sep.Type {
		case tokenizer.COMMA:
			p.advance()
			if p.peek().Type == tokenizer.RPAREN {
				return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrTrailingCommaInList,
					sep.Span.Offset, sep.Span.Length,
					"Trailing comma at position %d. Remove the comma after the last list item.", sep.Span.Offset)
			}
		case tokenizer.RPAREN:
			p.advance()
			return values, nil
		case tokenizer.EOF:
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrMissingRightParen,
				lparen.Span.Offset, lparen.Span.Length,
				"Missing closing parenthesis ')' for opening parenthesis at position %d", lparen.Span.Offset)
		case tokenizer.STRING_VALUE:
			return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrMissingCommaInList,
				sep.Span.Offset, sep.Span.Length,
				"Missing comma in list at position %d. List items must be separated by commas.", sep.Span.Offset)
		case tokenizer.AND:
			// the scanner inserts an implicit AND between two adjacent items
			if strings.TrimSpace(sep.Lexeme) == "" {
				return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrMissingCommaInList,
					sep.Span.Offset, sep.Span.Length,
					"Missing comma in list at position %d. List items must be separated by commas.", sep.Span.Offset)
			}
			return nil, unexpectedToken(sep)
		default:
			return nil, unexpectedToken(sep)
		}
	}
}

// classifyEq applies wildcard classification to the right-hand side of ':'.
func classifyEq(fieldPath []string, span tokenizer.Span, val tokenizer.Token) (Node, error) {
	if val.Quoted() {
		return &CmpNode{FieldPath: fieldPath, FieldSpan: span, Op: OpEq, Value: Value{Raw: val.Literal}}, nil
	}

	if val.Lexeme == "NULL" {
		return &CmpNode{FieldPath: fieldPath, FieldSpan: span, Op: OpEq, Value: Value{Null: true}}, nil
	}

	stars := strings.Count(val.Lexeme, "*")
	switch {
	case stars == 0:
		return &CmpNode{FieldPath: fieldPath, FieldSpan: span, Op: OpEq, Value: Value{Raw: val.Literal}}, nil
	case stars == 1 && strings.HasPrefix(val.Lexeme, "*"):
		return &CmpNode{FieldPath: fieldPath, FieldSpan: span, Op: OpEndsWith, Value: Value{Raw: val.Lexeme[1:]}}, nil
	case stars == 1 && strings.HasSuffix(val.Lexeme, "*"):
		return &CmpNode{FieldPath: fieldPath, FieldSpan: span, Op: OpStartsWith, Value: Value{Raw: val.Lexeme[:len(val.Lexeme)-1]}}, nil
	default:
		return nil, filterql.NewSpanError(filterql.StageParse, filterql.ErrInvalidWildcardPosition,
			val.Span.Offset, val.Span.Length,
			"Invalid wildcard position at position %d. '*' may appear only at the start or end of a value.",
			val.Span.Offset)
	}
}

func valueOf(tok tokenizer.Token) Value {
	if !tok.Quoted() && tok.Lexeme == "NULL" {
		return Value{Null: true}
	}
	return Value{Raw: tok.Literal}
}

func connectorWord(tok tokenizer.Token) string {
	if tok.Type == tokenizer.OR {
		return "OR"
	}
	return "AND"
}

func missingRHS(opTok tokenizer.Token, word string) error {
	return filterql.NewSpanError(filterql.StageParse, filterql.ErrMissingRHS,
		opTok.Span.Offset, opTok.Span.Length,
		"Expected value after '%s' at position %d.", word, opTok.Span.Offset)
}

func unexpectedToken(tok tokenizer.Token) error {
	return filterql.NewSpanError(filterql.StageParse, filterql.ErrUnexpectedToken,
		tok.Span.Offset, tok.Span.Length,
		"Unexpected token '%s' at position %d", tok.Lexeme, tok.Span.Offset)
}

func combineAnd(left, right Node) Node {
	children := make([]Node, 0, 2)
	if and, ok := left.(*AndNode); ok {
		children = append(children, and.Children...)
	} else {
		children = append(children, left)
	}
	if and, ok := right.(*AndNode); ok {
		children = append(children, and.Children...)
	} else {
		children = append(children, right)
	}
	return &AndNode{Children: children}
}

func combineOr(left, right Node) Node {
	children := make([]Node, 0, 2)
	if or, ok := left.(*OrNode); ok {
		children = append(children, or.Children...)
	} else {
		children = append(children, left)
	}
	if or, ok := right.(*OrNode); ok {
		children = append(children, or.Children...)
	} else {
		children = append(children, right)
	}
	return &OrNode{Children: children}
}
