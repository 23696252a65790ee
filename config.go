package rash

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xyproto/env/v2"

	"github.com/opal-lang/rash/runtime/builtins"
	"github.com/opal-lang/rash/runtime/emitter"
	"github.com/opal-lang/rash/runtime/rtlib"
	"github.com/opal-lang/rash/runtime/validation"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvDialect       = "RASH_DIALECT"
	EnvVerify        = "RASH_VERIFY"
	EnvBareLiterals  = "RASH_BARE_LITERALS"
	EnvDebug         = "RASH_DEBUG"
	EnvMaxInlineCall = "RASH_MAX_INLINED_CALLS"
)

// Config controls a transpilation. The zero value targets POSIX sh at the
// basic verification level with the embedded runtime library and catalog.
type Config struct {
	Dialect emitter.Dialect  `json:"dialect" validate:"gte=0,lte=2"`
	Verify  validation.Level `json:"verify" validate:"gte=0,lte=2"`

	// RuntimeLibrary replaces the embedded runtime library. Its first line
	// must be a "# rash-runtime: vX.Y.Z" header.
	RuntimeLibrary string `json:"runtime_library" validate:"omitempty,rtlib"`

	// Catalog replaces the embedded builtin catalog.
	Catalog *builtins.Catalog `json:"-" validate:"-"`

	// BareSafeLiterals writes literals made only of safe characters without
	// quotes. Output stays injection-safe either way.
	BareSafeLiterals bool `json:"bare_safe_literals"`

	Logger *slog.Logger `json:"-" validate:"-"` // nil discards

	MaxInlinedCalls int `json:"max_inlined_calls" validate:"gte=0"` // 0 uses planner.DefaultMaxInlinedCalls
}

// Validate the configuration for basic semantic errors. The error is a
// *ConfigError naming the first bad field.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	if err := validate.RegisterValidation("rtlib", func(fl validator.FieldLevel) bool {
		_, err := rtlib.ParseVersion(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ConfigError{Field: fe.Field(), Message: describeTag(fe)}
	}
	return &ConfigError{Field: "config", Err: err}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "rtlib":
		_, err := rtlib.ParseVersion(fe.Value().(string))
		return err.Error()
	case "gte", "lte":
		return "value out of range"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// ConfigFromEnv builds a Config from RASH_DIALECT, RASH_VERIFY,
// RASH_BARE_LITERALS, RASH_MAX_INLINED_CALLS and RASH_DEBUG. Unset
// variables keep the zero-value defaults. RASH_DEBUG logs stage timings to
// stderr.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := cfg.Dialect.UnmarshalText([]byte(env.Str(EnvDialect))); err != nil {
		return Config{}, &ConfigError{Field: EnvDialect, Err: err}
	}
	if err := cfg.Verify.UnmarshalText([]byte(env.Str(EnvVerify))); err != nil {
		return Config{}, &ConfigError{Field: EnvVerify, Err: err}
	}
	cfg.BareSafeLiterals = env.Bool(EnvBareLiterals)
	cfg.MaxInlinedCalls = env.Int(EnvMaxInlineCall, 0)
	if env.Bool(EnvDebug) {
		cfg.Logger = DebugLogger(os.Stderr)
	}
	return cfg, cfg.Validate()
}

// DebugLogger returns a debug-level text logger without time and level
// attributes, so stage logs stay diffable.
func DebugLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey) {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Config) catalog() *builtins.Catalog {
	if c.Catalog == nil {
		return builtins.Default()
	}
	return c.Catalog
}

func (c *Config) runtimeLibrary() string {
	if c.RuntimeLibrary == "" {
		return rtlib.Source()
	}
	return c.RuntimeLibrary
}

func (c *Config) emitterOpts() []emitter.EmitterOpt {
	opts := []emitter.EmitterOpt{
		emitter.WithDialect(c.Dialect),
		emitter.WithRuntimeLibrary(c.runtimeLibrary()),
	}
	if c.BareSafeLiterals {
		opts = append(opts, emitter.WithBareSafeLiterals())
	}
	return opts
}
