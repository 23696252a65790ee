package parser

import (
	"log/slog"
	"time"
)

const (
	// DefaultMaxDepth bounds block and expression nesting.
	DefaultMaxDepth = 200

	// DefaultMaxChain bounds the operators in one flat chain such as
	// a + b + c or s.trim().len(). A chain does not nest while parsing.
	DefaultMaxChain = 10000
)

// ParserOpt represents a parser configuration option
type ParserOpt func(*ParserConfig)

// TelemetryMode controls telemetry collection (production-safe)
type TelemetryMode int

const (
	TelemetryOff    TelemetryMode = iota // Zero overhead (default)
	TelemetryBasic                       // Token and function counts only
	TelemetryTiming                      // Counts + timing per phase
)

// ParserConfig holds parser configuration
type ParserConfig struct {
	maxDepth  int
	maxChain  int
	telemetry TelemetryMode
	sink      *ParseTelemetry
	logger    *slog.Logger
}

// WithMaxDepth sets the nesting limit. Values below 1 keep the default.
func WithMaxDepth(depth int) ParserOpt {
	return func(c *ParserConfig) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// WithMaxChain sets the limit on operators in one flat chain. Values
// below 1 keep the default.
func WithMaxChain(n int) ParserOpt {
	return func(c *ParserConfig) {
		if n > 0 {
			c.maxChain = n
		}
	}
}

// WithTelemetryBasic records counts into out.
func WithTelemetryBasic(out *ParseTelemetry) ParserOpt {
	return func(c *ParserConfig) {
		c.telemetry = TelemetryBasic
		c.sink = out
	}
}

// WithTelemetryTiming records counts and phase timings into out.
func WithTelemetryTiming(out *ParseTelemetry) ParserOpt {
	return func(c *ParserConfig) {
		c.telemetry = TelemetryTiming
		c.sink = out
	}
}

// WithLogger enables debug logging for the lexer and parser.
func WithLogger(logger *slog.Logger) ParserOpt {
	return func(c *ParserConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ParseTelemetry holds parser performance metrics (production-safe)
type ParseTelemetry struct {
	LexTime       time.Duration // Time spent lexing
	ParseTime     time.Duration // Time spent parsing
	TotalTime     time.Duration // Total parse time
	TokenCount    int           // Number of tokens, EOF included
	FunctionCount int           // Number of functions parsed
	MaxDepth      int           // Deepest nesting reached
	ErrorCount    int           // 0 or 1; parsing stops at the first error
}
