package checker

import (
	"fmt"

	"github.com/opal-lang/rash/core/ast"
)

// TaintError reports a program that cannot be soundly annotated with types
// and taint, or a value that cannot be emitted safely. Validated programs
// only trigger it for emission-safety violations found during lowering.
type TaintError struct {
	Span    ast.Span
	Message string
}

func (e *TaintError) Error() string {
	return fmt.Sprintf("%s: %s", e.Span.Start, e.Message)
}

// Errorf builds a TaintError at span.
func Errorf(span ast.Span, format string, args ...any) *TaintError {
	return &TaintError{Span: span, Message: fmt.Sprintf(format, args...)}
}
