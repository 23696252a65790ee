// Package rash transpiles a restricted subset of Rust into portable,
// injection-safe POSIX shell.
//
// The pipeline runs parse, validate, check, lower and emit in order and stops
// at the first failing stage:
//
//	script, err := rash.Transpile(`fn main() { echo("hello"); }`, rash.Config{})
//
// Every error is a *Error naming the stage; errors.As reaches the stage's own
// error type (*parser.ParseError, *validation.ValidationError,
// *checker.TaintError, *ConfigError, *InternalError).
package rash

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/opal-lang/rash/core/ast"
	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/checker"
	"github.com/opal-lang/rash/runtime/emitter"
	"github.com/opal-lang/rash/runtime/ir"
	"github.com/opal-lang/rash/runtime/parser"
	"github.com/opal-lang/rash/runtime/planner"
	"github.com/opal-lang/rash/runtime/rtlib"
	"github.com/opal-lang/rash/runtime/validation"
)

// Result is a successful transpilation.
type Result struct {
	Script  string          // The complete shell script
	IR      *ir.Program     // The lowered program
	Effects types.EffectSet // Every effect the script may perform
	Digest  string          // "blake2b:<hex>" of Script
	IRHash  string          // "blake2b:<hex>" of the canonical IR encoding
}

// Transpile converts source into a shell script.
func Transpile(source string, cfg Config) (string, error) {
	res, err := Compile(source, cfg)
	if err != nil {
		return "", err
	}
	return res.Script, nil
}

// Compile converts source into a shell script and reports the IR, its
// effects and digests. Equal inputs give byte-identical results.
func Compile(source string, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Stage: StageConfig, Err: err}
	}
	c := &compilation{cfg: cfg, logger: cfg.logger()}
	return c.run(source)
}

type compilation struct {
	cfg    Config
	logger *slog.Logger
}

// stage runs f, logs its duration and turns a panic into an *InternalError.
func (c *compilation) stage(s Stage, f func() ([]any, error)) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("stage panicked", "stage", s, "panic", r)
			err = recovered(s, r)
		}
	}()

	attrs, err := f()
	if err != nil {
		c.logger.Debug("stage failed", "stage", s, "duration", time.Since(start), "error", err)
		return &Error{Stage: s, Err: err}
	}
	c.logger.Debug("stage complete", append([]any{"stage", s, "duration", time.Since(start)}, attrs...)...)
	return nil
}

func (c *compilation) run(source string) (*Result, error) {
	catalog := c.cfg.catalog()
	runtimeLib := c.cfg.runtimeLibrary()

	err := c.stage(StageConfig, func() ([]any, error) {
		version, err := rtlib.ParseVersion(runtimeLib)
		if err != nil {
			return nil, &ConfigError{Field: "runtime_library", Err: err}
		}
		if err := catalog.CheckRuntime(version); err != nil {
			return nil, &ConfigError{Field: "catalog", Err: err}
		}
		return []any{"runtime", version, "builtins", catalog.Len(), "dialect", c.cfg.Dialect, "verify", c.cfg.Verify}, nil
	})
	if err != nil {
		return nil, err
	}

	var tree *ast.Program
	err = c.stage(StageParse, func() ([]any, error) {
		var err error
		tree, err = parser.Parse([]byte(source), parser.WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		return []any{"bytes", len(source), "functions", len(tree.Functions)}, nil
	})
	if err != nil {
		return nil, err
	}

	err = c.stage(StageValidate, func() ([]any, error) {
		return []any{"verify", c.cfg.Verify}, validation.Validate(tree, validation.Options{Level: c.cfg.Verify, Catalog: catalog})
	})
	if err != nil {
		return nil, err
	}

	var checked *checker.Program
	err = c.stage(StageCheck, func() ([]any, error) {
		var err error
		checked, err = checker.Check(tree, catalog)
		if err != nil {
			return nil, err
		}
		return []any{"expressions", len(checked.Exprs)}, nil
	})
	if err != nil {
		return nil, err
	}

	var prog *ir.Program
	err = c.stage(StageLower, func() ([]any, error) {
		lowered, err := planner.LowerWithObservability(checked, planner.Config{
			MaxInlinedCalls: c.cfg.MaxInlinedCalls,
			Telemetry:       planner.TelemetryBasic,
		})
		if err != nil {
			return nil, err
		}
		prog = lowered.Program
		if err := ir.Check(prog); err != nil {
			// Lowering must only produce well-formed IR.
			panic(err)
		}
		t := lowered.Telemetry
		return []any{"commands", t.CommandCount, "inlined_calls", t.InlinedCalls, "shell_names", t.ShellNames, "effects", prog.Effects}, nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{IR: prog, Effects: prog.Effects}
	err = c.stage(StageEmit, func() ([]any, error) {
		res.Script = emitter.Emit(prog, c.cfg.emitterOpts()...)
		sum := blake2b.Sum256([]byte(res.Script))
		res.Digest = fmt.Sprintf("blake2b:%x", sum)
		irHash, err := ir.Digest(prog)
		if err != nil {
			panic(err)
		}
		res.IRHash = irHash
		return []any{"bytes", len(res.Script)}, nil
	})
	if err != nil {
		return nil, err
	}

	if c.cfg.Verify == validation.LevelStrict {
		err = c.stage(StageVerify, func() ([]any, error) {
			if err := emitter.Verify(res.Script, c.cfg.Dialect); err != nil {
				// The emitter must only produce scripts the shell accepts.
				panic(err)
			}
			return []any{"dialect", c.cfg.Dialect}, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
