// Package ast defines the restricted syntax tree.
//
// The tree is an allow-list: every construct the language accepts has a
// variant here, and anything without a variant is rejected by the parser.
// Nodes are immutable after parsing; later stages annotate them through
// side tables keyed by node pointer.
package ast

import "github.com/opal-lang/rash/core/types"

// Node represents any node in the AST
type Node interface {
	Span() Span
}

// Program is the root of a parsed source file.
type Program struct {
	Functions []*Function
	Loc       Span
}

func (p *Program) Span() Span { return p.Loc }

// Function looks up a function by name.
func (p *Program) Function(name string) *Function {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Function is a top-level `fn` item.
type Function struct {
	Name    string
	NameLoc Span
	Params  []*Param
	Return  types.Type // Unit when omitted
	Body    *Block
	Loc     Span
}

func (f *Function) Span() Span { return f.Loc }

// Param is a single typed function parameter.
type Param struct {
	Name string
	Type types.Type
	Loc  Span
}

func (p *Param) Span() Span { return p.Loc }

// Block is a braced sequence of statements with its own lexical scope.
type Block struct {
	Stmts []Stmt
	Loc   Span
}

func (b *Block) Span() Span { return b.Loc }

// ============================================================================
// Statements
// ============================================================================

// Stmt is implemented by every statement variant.
type Stmt interface {
	Node
	stmtNode()
}

// LetStmt binds an immutable name.
type LetStmt struct {
	Name       string
	NameLoc    Span
	Annotation types.Type // Invalid when the binding is not annotated
	Value      Expr
	Loc        Span
}

// IfArm is one `if`/`else if` condition and its body.
type IfArm struct {
	Cond Expr
	Body *Block
}

// IfStmt is a full `if`/`else if`/`else` chain in source order.
type IfStmt struct {
	Arms []IfArm
	Else *Block // nil when there is no final else
	Loc  Span
}

// BlockStmt is a nested block used as a statement.
type BlockStmt struct {
	Body *Block
}

// ReturnStmt returns from the enclosing function.
// Implicit is set for a trailing expression without a semicolon.
type ReturnStmt struct {
	Value    Expr // nil for a bare return
	Implicit bool
	Loc      Span
}

// ExprStmt evaluates an expression for its effects. Tail marks an
// expression written without a trailing semicolon at the end of a block.
type ExprStmt struct {
	X    Expr
	Tail bool
	Loc  Span
}

// MatchArm is one arm of a match statement. Patterns are literals;
// a wildcard arm has no patterns.
type MatchArm struct {
	Patterns []Expr
	Wildcard bool
	Body     *Block
	Loc      Span
}

// MatchStmt matches a scalar subject against literal patterns.
type MatchStmt struct {
	Subject Expr
	Arms    []*MatchArm
	Loc     Span
}

func (s *LetStmt) Span() Span    { return s.Loc }
func (s *IfStmt) Span() Span     { return s.Loc }
func (s *BlockStmt) Span() Span  { return s.Body.Loc }
func (s *ReturnStmt) Span() Span { return s.Loc }
func (s *ExprStmt) Span() Span   { return s.Loc }
func (s *MatchStmt) Span() Span  { return s.Loc }

func (*LetStmt) stmtNode()    {}
func (*IfStmt) stmtNode()     {}
func (*BlockStmt) stmtNode()  {}
func (*ReturnStmt) stmtNode() {}
func (*ExprStmt) stmtNode()   {}
func (*MatchStmt) stmtNode()  {}

// ============================================================================
// Expressions
// ============================================================================

// Expr is implemented by every expression variant. Expressions are pure;
// effects only happen through calls in statement position.
type Expr interface {
	Node
	exprNode()
}

// StringLit holds decoded string bytes.
type StringLit struct {
	Value string
	Loc   Span
}

// IntLit is an i32 literal. The parser folds a leading minus into Value.
type IntLit struct {
	Value int64
	Loc   Span
}

// BoolLit is `true` or `false`.
type BoolLit struct {
	Value bool
	Loc   Span
}

// Ident references a binding or parameter.
type Ident struct {
	Name string
	Loc  Span
}

// BinaryExpr applies a binary operator.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
	OpLoc Span
	Loc   Span
}

// UnaryExpr applies a prefix operator.
type UnaryExpr struct {
	Op  UnaryOp
	X   Expr
	Loc Span
}

// CallExpr calls a user function or builtin. Macro calls keep their
// trailing "!" in Name and carry a single *FormatExpr argument.
type CallExpr struct {
	Name    string
	NameLoc Span
	Args    []Expr
	Macro   bool
	Loc     Span
}

// FormatSegment is either literal text or an interpolated argument.
type FormatSegment struct {
	Text string
	Arg  Expr // nil for a text segment
}

// FormatExpr is `format!` style interpolation into a literal template.
type FormatExpr struct {
	Segments []FormatSegment
	Loc      Span
}

// MethodCallExpr is one of the restricted zero-argument methods.
type MethodCallExpr struct {
	Receiver  Expr
	Method    string
	MethodLoc Span
	Loc       Span
}

func (e *StringLit) Span() Span      { return e.Loc }
func (e *IntLit) Span() Span         { return e.Loc }
func (e *BoolLit) Span() Span        { return e.Loc }
func (e *Ident) Span() Span          { return e.Loc }
func (e *BinaryExpr) Span() Span     { return e.Loc }
func (e *UnaryExpr) Span() Span      { return e.Loc }
func (e *CallExpr) Span() Span       { return e.Loc }
func (e *FormatExpr) Span() Span     { return e.Loc }
func (e *MethodCallExpr) Span() Span { return e.Loc }

func (*StringLit) exprNode()      {}
func (*IntLit) exprNode()         {}
func (*BoolLit) exprNode()        {}
func (*Ident) exprNode()          {}
func (*BinaryExpr) exprNode()     {}
func (*UnaryExpr) exprNode()      {}
func (*CallExpr) exprNode()       {}
func (*FormatExpr) exprNode()     {}
func (*MethodCallExpr) exprNode() {}

// IsLiteral reports whether e is a string, integer, or boolean literal.
func IsLiteral(e Expr) bool {
	switch e.(type) {
	case *StringLit, *IntLit, *BoolLit:
		return true
	}
	return false
}
