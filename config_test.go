package rash

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/rash/runtime/emitter"
	"github.com/opal-lang/rash/runtime/validation"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"zero", Config{}, ""},
		{"bash_strict", Config{Dialect: emitter.DialectBash, Verify: validation.LevelStrict}, ""},
		{"runtime", Config{RuntimeLibrary: "# rash-runtime: v1.4.2\n"}, ""},
		{"dialect", Config{Dialect: emitter.Dialect(3)}, "dialect"},
		{"negative_dialect", Config{Dialect: emitter.Dialect(-1)}, "dialect"},
		{"verify", Config{Verify: validation.Level(5)}, "verify"},
		{"runtime_header", Config{RuntimeLibrary: "#!/bin/sh\n"}, "runtime_library"},
		{"runtime_version", Config{RuntimeLibrary: "# rash-runtime: 1.0\n"}, "runtime_library"},
		{"max_inlined_calls", Config{MaxInlinedCalls: -1}, "max_inlined_calls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.field, cerr.Field)
			assert.Contains(t, cerr.Error(), "invalid "+tt.field)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvDialect, "bash")
	t.Setenv(EnvVerify, "strict")
	t.Setenv(EnvBareLiterals, "true")
	t.Setenv(EnvMaxInlineCall, "50")
	t.Setenv(EnvDebug, "")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, emitter.DialectBash, cfg.Dialect)
	assert.Equal(t, validation.LevelStrict, cfg.Verify)
	assert.True(t, cfg.BareSafeLiterals)
	assert.Equal(t, 50, cfg.MaxInlinedCalls)
	assert.Nil(t, cfg.Logger)

	script, err := Transpile(`fn main() { echo("plain"); }`, cfg)
	require.NoError(t, err)
	assert.Contains(t, script, "#!/usr/bin/env bash\n")
	assert.Contains(t, script, "rash_println plain\n")
}

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, name := range []string{EnvDialect, EnvVerify, EnvBareLiterals, EnvMaxInlineCall, EnvDebug} {
		t.Setenv(name, "")
	}
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestConfigFromEnvRejects(t *testing.T) {
	t.Setenv(EnvDialect, "zsh")
	_, err := ConfigFromEnv()
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, EnvDialect, cerr.Field)
	assert.Contains(t, err.Error(), `"zsh"`)

	t.Setenv(EnvDialect, "")
	t.Setenv(EnvVerify, "paranoid")
	_, err = ConfigFromEnv()
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, EnvVerify, cerr.Field)
}

func TestDebugLoggerOmitsTimeAndLevel(t *testing.T) {
	var buf bytes.Buffer
	DebugLogger(&buf).Debug("stage complete", "stage", StageParse)
	assert.Equal(t, "msg=\"stage complete\" stage=parse\n", buf.String())
}
