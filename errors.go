package rash

import (
	"fmt"
	"runtime/debug"

	"github.com/opal-lang/rash/core/invariant"
)

// Stage names a pipeline step.
type Stage string

const (
	StageConfig   Stage = "config"
	StageParse    Stage = "parse"
	StageValidate Stage = "validate"
	StageCheck    Stage = "check"
	StageLower    Stage = "lower"
	StageEmit     Stage = "emit"
	StageVerify   Stage = "verify"
)

// Error wraps the failure of one pipeline stage. The wrapped error is one of
// *parser.ParseError, *validation.ValidationError, *checker.TaintError,
// *ConfigError or *InternalError.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigError reports an unusable Config field.
type ConfigError struct {
	Field   string
	Message string
	Err     error // Underlying cause, if any
}

func (e *ConfigError) Error() string {
	msg := "invalid " + e.Field
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// InternalError reports a bug in the pipeline: an assertion failure or an
// unexpected panic inside a stage. Well-formed or not, no input should
// produce one.
type InternalError struct {
	Stage Stage
	Value any    // The recovered panic value
	Stack []byte // Goroutine stack at recovery
}

func (e *InternalError) Error() string {
	if v, ok := e.Value.(*invariant.Violation); ok {
		return fmt.Sprintf("internal error during %s: %s", e.Stage, v.Error())
	}
	return fmt.Sprintf("internal error during %s: %v", e.Stage, e.Value)
}

// Unwrap exposes a recovered error value, such as an *invariant.Violation.
func (e *InternalError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func recovered(stage Stage, value any) *Error {
	return &Error{Stage: stage, Err: &InternalError{Stage: stage, Value: value, Stack: debug.Stack()}}
}
