// Package ir defines the Shell IR: a small tree of shell commands, word
// values and conditions produced by lowering and consumed by the emitter.
//
// Every Value carries its taint. The emitter relies on it and never
// re-derives taint from the source program.
package ir

import (
	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/builtins"
)

// Program is a lowered script body.
type Program struct {
	Body    []Command
	Effects types.EffectSet // Union of every builtin's effects
}

// ================================================================================================
// COMMANDS
// ================================================================================================

// Command is one shell statement.
type Command interface {
	commandNode()
}

// Assign sets a shell variable.
type Assign struct {
	Name  string
	Value Value
}

// If is an if/elif/else chain. Else is nil when there is no final else.
type If struct {
	Arms []IfArm
	Else []Command
}

// IfArm is one condition and its body.
type IfArm struct {
	Cond Cond
	Body []Command
}

// Case matches a subject against literal patterns.
type Case struct {
	Subject Value
	Arms    []CaseArm
	Default []Command // Only used when HasDefault
	// HasDefault distinguishes an empty default arm from no default arm.
	HasDefault bool
}

// CaseArm is one set of alternative literal patterns and its body.
type CaseArm struct {
	Patterns []string
	Body     []Command
}

// Builtin invokes a command builtin.
type Builtin struct {
	Name     string
	Template builtins.Template
	Args     []Value
	Effects  types.EffectSet
}

// Block groups commands. A breakable block can be left early with Break;
// it renders as a loop that runs once.
type Block struct {
	Body      []Command
	Breakable bool
}

// Break leaves the innermost breakable block.
type Break struct{}

// Exit terminates the script.
type Exit struct {
	Code int
}

// Trace is a display-only note recording where an inlined call came from.
type Trace struct {
	Function string
	Line     int
}

func (*Assign) commandNode()  {}
func (*If) commandNode()      {}
func (*Case) commandNode()    {}
func (*Builtin) commandNode() {}
func (*Block) commandNode()   {}
func (*Break) commandNode()   {}
func (*Exit) commandNode()    {}
func (*Trace) commandNode()   {}

// ================================================================================================
// VALUES
// ================================================================================================

// Value is a shell word or word fragment.
type Value interface {
	valueNode()
	taint() types.Taint
}

// TaintOf returns the taint carried by v.
func TaintOf(v Value) types.Taint {
	return v.taint()
}

// Literal is exact text known at compile time.
type Literal struct {
	Text  string
	Taint types.Taint
}

// VarRef expands a shell variable.
type VarRef struct {
	Name  string
	Taint types.Taint
}

// Concat joins values into one word.
type Concat struct {
	Parts []Value
	Taint types.Taint
}

// Arith is an integer expression evaluated by the shell.
type Arith struct {
	Expr  ArithExpr
	Taint types.Taint
}

// Length is the character length of a shell variable.
type Length struct {
	Name  string
	Taint types.Taint
}

// Template is a value builtin such as an environment lookup or a command
// substitution.
type Template struct {
	Name     string
	Template builtins.Template
	Args     []Value
	Effects  types.EffectSet
	Taint    types.Taint
}

func (*Literal) valueNode()  {}
func (*VarRef) valueNode()   {}
func (*Concat) valueNode()   {}
func (*Arith) valueNode()    {}
func (*Length) valueNode()   {}
func (*Template) valueNode() {}

func (v *Literal) taint() types.Taint  { return v.Taint }
func (v *VarRef) taint() types.Taint   { return v.Taint }
func (v *Concat) taint() types.Taint   { return v.Taint }
func (v *Arith) taint() types.Taint    { return v.Taint }
func (v *Length) taint() types.Taint   { return v.Taint }
func (v *Template) taint() types.Taint { return v.Taint }

// NewConcat builds a Concat whose taint is the join of its parts.
func NewConcat(parts ...Value) *Concat {
	taint := types.Literal
	for _, p := range parts {
		taint = types.Join(taint, TaintOf(p))
	}
	return &Concat{Parts: parts, Taint: taint}
}

// ArithExpr is a node of an integer expression tree.
type ArithExpr interface {
	arithNode()
}

// ArithOp is an arithmetic operator.
type ArithOp string

const (
	ArithAdd ArithOp = "+"
	ArithSub ArithOp = "-"
	ArithMul ArithOp = "*"
	ArithDiv ArithOp = "/"
	ArithRem ArithOp = "%"
)

// ArithNum is an integer constant.
type ArithNum struct {
	Value int64
}

// ArithVar reads an integer shell variable.
type ArithVar struct {
	Name string
}

// ArithLen is the length of a string shell variable.
type ArithLen struct {
	Name string
}

// ArithBinary applies an operator.
type ArithBinary struct {
	Op          ArithOp
	Left, Right ArithExpr
}

// ArithNeg negates its operand.
type ArithNeg struct {
	X ArithExpr
}

func (*ArithNum) arithNode()    {}
func (*ArithVar) arithNode()    {}
func (*ArithLen) arithNode()    {}
func (*ArithBinary) arithNode() {}
func (*ArithNeg) arithNode()    {}

// ================================================================================================
// CONDITIONS
// ================================================================================================

// Cond is a shell condition: a command list whose exit status decides a
// branch.
type Cond interface {
	condNode()
}

// Const is always true or always false.
type Const struct {
	Value bool
}

// Truthy runs a Bool value, which holds the command name "true" or "false".
type Truthy struct {
	Value Value
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	CompareEq CompareOp = "=="
	CompareNe CompareOp = "!="
	CompareLt CompareOp = "<"
	CompareLe CompareOp = "<="
	CompareGt CompareOp = ">"
	CompareGe CompareOp = ">="
)

// Compare compares two values, as integers when Numeric is set and as
// strings otherwise.
type Compare struct {
	Op          CompareOp
	Numeric     bool
	Left, Right Value
}

// Test runs a test builtin; its exit status is the result.
type Test struct {
	Name     string
	Template builtins.Template
	Args     []Value
	Effects  types.EffectSet
}

// And is short-circuit conjunction.
type And struct {
	Left, Right Cond
}

// Or is short-circuit disjunction.
type Or struct {
	Left, Right Cond
}

// Not negates a condition.
type Not struct {
	X Cond
}

func (*Const) condNode()   {}
func (*Truthy) condNode()  {}
func (*Compare) condNode() {}
func (*Test) condNode()    {}
func (*And) condNode()     {}
func (*Or) condNode()      {}
func (*Not) condNode()     {}

// Walk calls f for every command in cmds and their nested bodies in order.
// Returning false from f skips the command's children.
func Walk(cmds []Command, f func(Command) bool) {
	for _, c := range cmds {
		if !f(c) {
			continue
		}
		switch n := c.(type) {
		case *If:
			for _, arm := range n.Arms {
				Walk(arm.Body, f)
			}
			Walk(n.Else, f)
		case *Case:
			for _, arm := range n.Arms {
				Walk(arm.Body, f)
			}
			Walk(n.Default, f)
		case *Block:
			Walk(n.Body, f)
		}
	}
}

// CountCommands returns the number of commands in the program, nested
// commands included.
func (p *Program) CountCommands() int {
	n := 0
	Walk(p.Body, func(Command) bool {
		n++
		return true
	})
	return n
}
