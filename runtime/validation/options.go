package validation

import (
	"fmt"

	"github.com/opal-lang/rash/runtime/builtins"
)

// Level selects which checks run beyond the soundness checks every
// program must pass.
type Level int

const (
	// LevelBasic adds unreachable code and division by a literal zero.
	// It is the zero value.
	LevelBasic Level = iota
	// LevelNone runs only the soundness checks.
	LevelNone
	// LevelStrict adds unused bindings and shadowing.
	LevelStrict
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelBasic:
		return "basic"
	case LevelStrict:
		return "strict"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel maps "none", "basic", or "strict" to a Level. The empty string
// is basic.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "none":
		return LevelNone, nil
	case "", "basic":
		return LevelBasic, nil
	case "strict":
		return LevelStrict, nil
	default:
		return LevelBasic, fmt.Errorf("unknown verification level %q (want none, basic, or strict)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Level) atLeast(min Level) bool {
	return l.rank() >= min.rank()
}

func (l Level) rank() int {
	switch l {
	case LevelNone:
		return 0
	case LevelStrict:
		return 2
	default:
		return 1
	}
}

// Options configures validation.
type Options struct {
	Level   Level
	Catalog *builtins.Catalog // nil uses builtins.Default()
}
