package emitter

import "fmt"

// Dialect selects the shell the script targets.
type Dialect int

const (
	// DialectPOSIX targets any POSIX sh. It is the zero value.
	DialectPOSIX Dialect = iota
	DialectBash
	DialectDash
)

func (d Dialect) String() string {
	switch d {
	case DialectPOSIX:
		return "posix"
	case DialectBash:
		return "bash"
	case DialectDash:
		return "dash"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// ParseDialect maps "posix", "bash", or "dash" to a Dialect. The empty
// string is POSIX.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "", "posix", "sh":
		return DialectPOSIX, nil
	case "bash":
		return DialectBash, nil
	case "dash":
		return DialectDash, nil
	default:
		return DialectPOSIX, fmt.Errorf("unknown shell dialect %q (want posix, bash, or dash)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Dialect) UnmarshalText(text []byte) error {
	parsed, err := ParseDialect(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Shebang returns the interpreter line for d.
func (d Dialect) Shebang() string {
	switch d {
	case DialectBash:
		return "#!/usr/bin/env bash"
	case DialectDash:
		return "#!/bin/dash"
	default:
		return "#!/bin/sh"
	}
}

// SetOptions returns the shell options every script starts with.
func (d Dialect) SetOptions() string {
	if d == DialectBash {
		return "set -euf -o pipefail"
	}
	return "set -euf"
}
