package validation

import (
	"fmt"

	"github.com/opal-lang/rash/core/ast"
)

// Kind classifies a validation failure.
type Kind int

const (
	KindEntryPoint   Kind = iota // Missing or malformed main
	KindDuplicate                // Name defined twice, or a function named like a builtin
	KindUndefined                // Unknown function, macro, or identifier
	KindArity                    // Wrong number of arguments
	KindType                     // Operand, argument, condition, or pattern type mismatch
	KindUnitValue                // A unit value used as data
	KindLiteral                  // Builtin argument that must be a literal, or is out of range
	KindReturn                   // Return type mismatch or missing return
	KindUnusedValue              // Expression result that is silently dropped
	KindRecursion                // Direct or mutual recursion
	KindUnreachable              // Code or pattern that can never run
	KindDivisionByZero           // Division or remainder by a literal zero
	KindUnusedBinding            // Binding or parameter never read
	KindShadowing                // Binding hides an outer binding
)

var kindNames = map[Kind]string{
	KindEntryPoint:     "entry point",
	KindDuplicate:      "duplicate definition",
	KindUndefined:      "undefined name",
	KindArity:          "arity mismatch",
	KindType:           "type mismatch",
	KindUnitValue:      "unit value",
	KindLiteral:        "literal argument",
	KindReturn:         "return",
	KindUnusedValue:    "unused value",
	KindRecursion:      "recursion",
	KindUnreachable:    "unreachable",
	KindDivisionByZero: "division by zero",
	KindUnusedBinding:  "unused binding",
	KindShadowing:      "shadowing",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ValidationError is one semantic violation with the span it applies to.
type ValidationError struct {
	Kind       Kind
	Span       ast.Span
	Message    string
	Suggestion string   // Closest known name for an undefined one
	Cycle      []string // Call path for KindRecursion, first name repeated at the end
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Span.Start, e.Message)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean `%s`?)", e.Suggestion)
	}
	return msg
}
