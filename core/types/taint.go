package types

// Taint records the provenance of a value.
//
// The lattice is ordered Literal < External. Literal values are fully known
// at compile time and came only from source constants; External values may
// vary at runtime (parameters, environment reads, anything combined with
// them).
type Taint uint8

const (
	Literal Taint = iota
	External
)

func (t Taint) String() string {
	switch t {
	case Literal:
		return "Literal"
	case External:
		return "External"
	default:
		return "unknown"
	}
}

// Join returns the least upper bound of the given taints.
// Joining nothing yields Literal.
func Join(taints ...Taint) Taint {
	out := Literal
	for _, t := range taints {
		if t > out {
			out = t
		}
	}
	return out
}

// IsLiteral reports whether the value is known at compile time.
func (t Taint) IsLiteral() bool {
	return t == Literal
}
