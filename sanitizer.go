package filterql

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// CELSanitizer is a Sanitizer backed by a CEL expression over the variable
// `term` (string). The expression must evaluate to a string; evaluation
// failures sanitize to the empty string, which suppresses the predicate.
type CELSanitizer struct {
	source  string
	program cel.Program
}

// NewCELSanitizer compiles a CEL expression into a sanitizer.
func NewCELSanitizer(expr string) (*CELSanitizer, error) {
	env, err := cel.NewEnv(
		cel.Variable("term", cel.StringType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSanitizerExpression, err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrSanitizerExpression, issues.Err())
	}
	if ast.OutputType() != cel.StringType {
		return nil, fmt.Errorf("%w: expression must return a string, got %s", ErrSanitizerExpression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSanitizerExpression, err)
	}

	return &CELSanitizer{source: expr, program: program}, nil
}

// Source returns the original expression text.
func (s *CELSanitizer) Source() string {
	return s.source
}

// Sanitize evaluates the expression with the given term.
func (s *CELSanitizer) Sanitize(term string) string {
	out, _, err := s.program.Eval(map[string]any{"term": term})
	if err != nil {
		return ""
	}

	str, ok := out.Value().(string)
	if !ok {
		return ""
	}

	return str
}
