// Package invariant provides contract assertions for the rash pipeline.
//
// Assertions mark programming errors inside a stage, never user errors: a
// malformed source program must surface as a ParseError or ValidationError,
// not as a violation. Use Precondition/Postcondition to express function
// contracts, and Invariant for internal consistency checks.
//
// All functions panic with a *Violation. The top-level entry point recovers
// violations and reports them as internal errors.
package invariant

import (
	"fmt"
	"reflect"
	"runtime"
)

// Violation is the panic value raised by every assertion in this package.
type Violation struct {
	Kind     string // PRECONDITION, POSTCONDITION, INVARIANT, UNREACHABLE
	Message  string
	Location string // file:line of the failing assertion, if known
}

func (v *Violation) Error() string {
	msg := v.Kind + " VIOLATION: " + v.Message
	if v.Location != "" {
		msg += "\n  at " + v.Location
	}
	return msg
}

// Precondition checks an input contract at function entry.
//
// Example:
//
//	func Lower(prog *checker.Program) *ir.Program {
//	    invariant.Precondition(prog.Main != nil, "checked program must have an entry point")
//	    // ... work ...
//	}
func Precondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("PRECONDITION", format, args...)
	}
}

// Postcondition checks an output contract before function return.
func Postcondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("POSTCONDITION", format, args...)
	}
}

// Invariant checks an internal invariant during function execution.
//
// Example:
//
//	prevPos := p.pos
//	for !p.at(lexer.RBRACE) {
//	    p.statement()
//	    invariant.Invariant(p.pos > prevPos, "parser must advance")
//	    prevPos = p.pos
//	}
func Invariant(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("INVARIANT", format, args...)
	}
}

// Unreachable marks a branch that well-formed input can never reach, such as
// the default arm of a switch over a closed enumeration.
func Unreachable(format string, args ...interface{}) {
	fail("UNREACHABLE", format, args...)
}

// NotNil panics if value is nil, including typed nils such as (*T)(nil).
func NotNil(value interface{}, name string) {
	if value == nil || isNilValue(value) {
		fail("PRECONDITION", "%s must not be nil", name)
	}
}

func isNilValue(value interface{}) bool {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}

// InRange panics if value is outside [min, max].
func InRange(value, minVal, maxVal int, name string) {
	if value < minVal || value > maxVal {
		fail("PRECONDITION", "%s must be in range [%d, %d], got %d",
			name, minVal, maxVal, value)
	}
}

// ExpectNoError panics if err is not nil.
// This is a postcondition check for operations that should never fail, such
// as decoding an asset embedded at build time.
func ExpectNoError(err error, msg string) {
	if err != nil {
		fail("POSTCONDITION", "%s must not fail: %v", msg, err)
	}
}

// fail panics with a *Violation carrying the caller's location.
func fail(kind, format string, args ...interface{}) {
	v := &Violation{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}

	// Skip runtime.Callers, fail, and the exported wrapper.
	pc := make([]uintptr, 1)
	if n := runtime.Callers(3, pc); n > 0 {
		frame, _ := runtime.CallersFrames(pc[:n]).Next()
		v.Location = fmt.Sprintf("%s:%d", frame.File, frame.Line)
	}

	panic(v)
}
