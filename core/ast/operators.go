package ast

import "github.com/opal-lang/rash/core/types"

// BinaryOp is a binary operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var binaryOpText = [...]string{
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpRem: "%",
	OpEq:  "==",
	OpNe:  "!=",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
	OpAnd: "&&",
	OpOr:  "||",
}

func (op BinaryOp) String() string {
	if op < 0 || int(op) >= len(binaryOpText) {
		return "?"
	}
	return binaryOpText[op]
}

// IsArithmetic reports whether op is + - * / or %.
func (op BinaryOp) IsArithmetic() bool {
	return op >= OpAdd && op <= OpRem
}

// IsComparison reports whether op is one of the six comparisons.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsLogical reports whether op is && or ||.
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// ResultType returns the type of `l op r`, or false when the operand
// types are not accepted by op.
//
//	+            I32 I32 -> I32, Str Str -> Str (concatenation)
//	- * / %      I32 I32 -> I32
//	== !=        same scalar type -> Bool
//	< <= > >=    I32 I32 -> Bool
//	&& ||        Bool Bool -> Bool
func (op BinaryOp) ResultType(l, r types.Type) (types.Type, bool) {
	switch {
	case op == OpAdd:
		if l == r && (l == types.I32 || l == types.Str) {
			return l, true
		}
	case op.IsArithmetic():
		if l == types.I32 && r == types.I32 {
			return types.I32, true
		}
	case op == OpEq || op == OpNe:
		if l == r && l.IsValue() {
			return types.Bool, true
		}
	case op.IsComparison():
		if l == types.I32 && r == types.I32 {
			return types.Bool, true
		}
	case op.IsLogical():
		if l == types.Bool && r == types.Bool {
			return types.Bool, true
		}
	}
	return types.Invalid, false
}

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
)

func (op UnaryOp) String() string {
	switch op {
	case OpNeg:
		return "-"
	case OpNot:
		return "!"
	default:
		return "?"
	}
}

// ResultType returns the type of `op x`.
func (op UnaryOp) ResultType(x types.Type) (types.Type, bool) {
	switch {
	case op == OpNeg && x == types.I32:
		return types.I32, true
	case op == OpNot && x == types.Bool:
		return types.Bool, true
	}
	return types.Invalid, false
}

// Methods lists the zero-argument methods the language accepts.
var Methods = []string{"to_string", "to_owned", "clone", "len", "is_empty"}

// IsMethod reports whether name is an accepted method.
func IsMethod(name string) bool {
	for _, m := range Methods {
		if m == name {
			return true
		}
	}
	return false
}

// MethodResultType returns the type of `recv.method()`.
//
// to_string accepts any scalar and yields its display text. to_owned and
// clone are identity on Str. len and is_empty inspect a Str.
func MethodResultType(method string, recv types.Type) (types.Type, bool) {
	switch method {
	case "to_string":
		if recv.IsValue() {
			return types.Str, true
		}
	case "to_owned", "clone":
		if recv == types.Str {
			return types.Str, true
		}
	case "len":
		if recv == types.Str {
			return types.I32, true
		}
	case "is_empty":
		if recv == types.Str {
			return types.Bool, true
		}
	}
	return types.Invalid, false
}
