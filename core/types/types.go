// Package types defines the closed value model shared by every pipeline stage:
// the four source types, the taint lattice, and effect sets.
package types

import "fmt"

// Type is the closed set of types the restricted language accepts.
// There are no composite or user-defined types.
type Type int

const (
	Invalid Type = iota // Zero value; never survives checking
	Str
	I32
	Bool
	Unit
)

// String returns the source-facing name of the type.
func (t Type) String() string {
	switch t {
	case Str:
		return "Str"
	case I32:
		return "I32"
	case Bool:
		return "Bool"
	case Unit:
		return "Unit"
	default:
		return "invalid"
	}
}

// CatalogName returns the lowercase spelling used in builtin catalogs.
func (t Type) CatalogName() string {
	switch t {
	case Str:
		return "str"
	case I32:
		return "i32"
	case Bool:
		return "bool"
	case Unit:
		return "unit"
	default:
		return "invalid"
	}
}

// IsValue reports whether values of this type can be bound or passed.
func (t Type) IsValue() bool {
	return t == Str || t == I32 || t == Bool
}

// ParseCatalogName maps a catalog spelling ("str", "i32", "bool", "unit") to a Type.
func ParseCatalogName(name string) (Type, error) {
	switch name {
	case "str":
		return Str, nil
	case "i32":
		return I32, nil
	case "bool":
		return Bool, nil
	case "unit":
		return Unit, nil
	default:
		return Invalid, fmt.Errorf("unknown type %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.CatalogName()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseCatalogName(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
