package ast

import "fmt"

// Position represents source location information
type Position struct {
	Line   int // 1-based
	Column int // 1-based, counted in runes
	Offset int // Byte offset in source
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// IsValid reports whether the position was set by the parser.
func (p Position) IsValid() bool {
	return p.Line > 0
}

// Span is a half-open byte range [Start, End) in the source.
type Span struct {
	Start Position
	End   Position
}

func (s Span) String() string {
	return s.Start.String()
}

// To returns the span covering s through other.
func (s Span) To(other Span) Span {
	return Span{Start: s.Start, End: other.End}
}
