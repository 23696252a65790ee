// Package checker annotates a validated program with the type and taint of
// every expression and resolves every call to its callee.
//
// Taint rules:
//
//	literal                      Literal
//	variable                     taint of its binding (parameters are External)
//	operator, method, format     join of the operands
//	user function call           External
//	builtin call                 Literal if the builtin is pure and every argument is Literal, else External
package checker

import (
	"github.com/opal-lang/rash/core/ast"
	"github.com/opal-lang/rash/core/invariant"
	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/builtins"
)

// Info is the annotation attached to one expression.
type Info struct {
	Type  types.Type
	Taint types.Taint
}

// Callee is the resolution of a call: exactly one field is set.
type Callee struct {
	Func    *ast.Function
	Builtin *builtins.Builtin
}

// Program is an annotated program. The AST is shared, not copied, and must
// not be modified while the annotation is in use.
type Program struct {
	AST     *ast.Program
	Catalog *builtins.Catalog
	Exprs   map[ast.Expr]Info
	Calls   map[*ast.CallExpr]Callee
}

// Info returns the annotation of e. Every expression reachable from a
// function body is annotated.
func (p *Program) Info(e ast.Expr) Info {
	info, ok := p.Exprs[e]
	invariant.Invariant(ok, "expression at %s has no annotation", e.Span())
	return info
}

// TypeOf returns the type of e.
func (p *Program) TypeOf(e ast.Expr) types.Type {
	return p.Info(e).Type
}

// TaintOf returns the taint of e.
func (p *Program) TaintOf(e ast.Expr) types.Taint {
	return p.Info(e).Taint
}

// Callee returns the resolution of call.
func (p *Program) Callee(call *ast.CallExpr) Callee {
	c, ok := p.Calls[call]
	invariant.Invariant(ok, "call to %s at %s is unresolved", call.Name, call.Span())
	return c
}

// Main returns the entry point.
func (p *Program) Main() *ast.Function {
	main := p.AST.Function("main")
	invariant.NotNil(main, "main")
	return main
}

// Check annotates prog. A nil catalog uses builtins.Default().
func Check(prog *ast.Program, catalog *builtins.Catalog) (*Program, error) {
	invariant.NotNil(prog, "prog")
	if catalog == nil {
		catalog = builtins.Default()
	}

	c := &checker{
		out: &Program{
			AST:     prog,
			Catalog: catalog,
			Exprs:   make(map[ast.Expr]Info),
			Calls:   make(map[*ast.CallExpr]Callee),
		},
		funcs: make(map[string]*ast.Function, len(prog.Functions)),
	}
	for _, fn := range prog.Functions {
		if _, dup := c.funcs[fn.Name]; dup {
			return nil, Errorf(fn.NameLoc, "function `%s` is defined more than once", fn.Name)
		}
		c.funcs[fn.Name] = fn
	}
	if c.funcs["main"] == nil {
		return nil, Errorf(prog.Loc, "no `main` function")
	}

	for _, fn := range prog.Functions {
		if err := c.checkFunction(fn); err != nil {
			return nil, err
		}
	}
	return c.out, nil
}

type checker struct {
	out   *Program
	funcs map[string]*ast.Function
	env   *env
}

// env maps binding names to their annotation, one frame per block.
type env struct {
	parent *env
	vars   map[string]Info
}

func (e *env) lookup(name string) (Info, bool) {
	for s := e; s != nil; s = s.parent {
		if info, ok := s.vars[name]; ok {
			return info, true
		}
	}
	return Info{}, false
}

func (c *checker) push() { c.env = &env{parent: c.env, vars: make(map[string]Info)} }
func (c *checker) pop()  { c.env = c.env.parent }

func (c *checker) checkFunction(fn *ast.Function) error {
	c.env = nil
	c.push()
	for _, p := range fn.Params {
		c.env.vars[p.Name] = Info{Type: p.Type, Taint: types.External}
	}
	err := c.checkBlock(fn.Body)
	c.pop()
	return err
}

func (c *checker) checkBlock(b *ast.Block) error {
	c.push()
	defer c.pop()
	for _, stmt := range b.Stmts {
		if err := c.checkStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		info, err := c.expr(s.Value)
		if err != nil {
			return err
		}
		if !info.Type.IsValue() {
			return Errorf(s.Value.Span(), "binding `%s` has no value", s.Name)
		}
		if s.Annotation != types.Invalid && s.Annotation != info.Type {
			return Errorf(s.Value.Span(), "binding `%s` is annotated %s but the value is %s", s.Name, s.Annotation, info.Type)
		}
		c.env.vars[s.Name] = info
		return nil

	case *ast.IfStmt:
		for _, arm := range s.Arms {
			info, err := c.expr(arm.Cond)
			if err != nil {
				return err
			}
			if info.Type != types.Bool {
				return Errorf(arm.Cond.Span(), "condition is %s, not Bool", info.Type)
			}
			if err := c.checkBlock(arm.Body); err != nil {
				return err
			}
		}
		if s.Else != nil {
			return c.checkBlock(s.Else)
		}
		return nil

	case *ast.BlockStmt:
		return c.checkBlock(s.Body)

	case *ast.MatchStmt:
		subject, err := c.expr(s.Subject)
		if err != nil {
			return err
		}
		for _, arm := range s.Arms {
			for _, pat := range arm.Patterns {
				info, err := c.expr(pat)
				if err != nil {
					return err
				}
				if info.Type != subject.Type {
					return Errorf(pat.Span(), "pattern is %s but the subject is %s", info.Type, subject.Type)
				}
			}
			if err := c.checkBlock(arm.Body); err != nil {
				return err
			}
		}
		return nil

	case *ast.ReturnStmt:
		if s.Value == nil {
			return nil
		}
		_, err := c.expr(s.Value)
		return err

	case *ast.ExprStmt:
		_, err := c.expr(s.X)
		return err
	}
	invariant.Unreachable("unknown statement %T", stmt)
	return nil
}

func (c *checker) expr(e ast.Expr) (Info, error) {
	info, err := c.annotate(e)
	if err != nil {
		return Info{}, err
	}
	c.out.Exprs[e] = info
	return info, nil
}

func (c *checker) annotate(e ast.Expr) (Info, error) {
	switch x := e.(type) {
	case *ast.StringLit:
		return Info{Type: types.Str, Taint: types.Literal}, nil
	case *ast.IntLit:
		return Info{Type: types.I32, Taint: types.Literal}, nil
	case *ast.BoolLit:
		return Info{Type: types.Bool, Taint: types.Literal}, nil

	case *ast.Ident:
		info, ok := c.env.lookup(x.Name)
		if !ok {
			return Info{}, Errorf(x.Loc, "unresolved identifier `%s`", x.Name)
		}
		return info, nil

	case *ast.BinaryExpr:
		l, err := c.expr(x.Left)
		if err != nil {
			return Info{}, err
		}
		r, err := c.expr(x.Right)
		if err != nil {
			return Info{}, err
		}
		typ, ok := x.Op.ResultType(l.Type, r.Type)
		if !ok {
			return Info{}, Errorf(x.OpLoc, "operator `%s` on %s and %s", x.Op, l.Type, r.Type)
		}
		return Info{Type: typ, Taint: types.Join(l.Taint, r.Taint)}, nil

	case *ast.UnaryExpr:
		operand, err := c.expr(x.X)
		if err != nil {
			return Info{}, err
		}
		typ, ok := x.Op.ResultType(operand.Type)
		if !ok {
			return Info{}, Errorf(x.Loc, "operator `%s` on %s", x.Op, operand.Type)
		}
		return Info{Type: typ, Taint: operand.Taint}, nil

	case *ast.MethodCallExpr:
		recv, err := c.expr(x.Receiver)
		if err != nil {
			return Info{}, err
		}
		typ, ok := ast.MethodResultType(x.Method, recv.Type)
		if !ok {
			return Info{}, Errorf(x.MethodLoc, "method `%s` on %s", x.Method, recv.Type)
		}
		return Info{Type: typ, Taint: recv.Taint}, nil

	case *ast.FormatExpr:
		taint := types.Literal
		for _, seg := range x.Segments {
			if seg.Arg == nil {
				continue
			}
			info, err := c.expr(seg.Arg)
			if err != nil {
				return Info{}, err
			}
			if !info.Type.IsValue() {
				return Info{}, Errorf(seg.Arg.Span(), "format argument has no value")
			}
			taint = types.Join(taint, info.Taint)
		}
		return Info{Type: types.Str, Taint: taint}, nil

	case *ast.CallExpr:
		return c.call(x)
	}
	invariant.Unreachable("unknown expression %T", e)
	return Info{}, nil
}

func (c *checker) call(call *ast.CallExpr) (Info, error) {
	args := make([]Info, len(call.Args))
	for i, a := range call.Args {
		info, err := c.expr(a)
		if err != nil {
			return Info{}, err
		}
		args[i] = info
	}

	if fn, ok := c.funcs[call.Name]; ok && !call.Macro {
		if len(args) != len(fn.Params) {
			return Info{}, Errorf(call.Loc, "call to `%s` has %d argument(s), want %d", fn.Name, len(args), len(fn.Params))
		}
		for i, p := range fn.Params {
			if args[i].Type != p.Type {
				return Info{}, Errorf(call.Args[i].Span(), "argument %d of `%s` is %s, want %s", i+1, fn.Name, args[i].Type, p.Type)
			}
		}
		c.out.Calls[call] = Callee{Func: fn}
		return Info{Type: fn.Return, Taint: types.External}, nil
	}

	b, ok := c.out.Catalog.Lookup(call.Name)
	if !ok {
		return Info{}, Errorf(call.NameLoc, "unresolved call to `%s`", call.Name)
	}
	if len(args) != len(b.Params) {
		return Info{}, Errorf(call.Loc, "call to `%s` has %d argument(s), want %d", b.Name, len(args), len(b.Params))
	}
	taint := types.External
	if b.Pure {
		taint = types.Literal
	}
	for i, p := range b.Params {
		if args[i].Type != p.Type {
			return Info{}, Errorf(call.Args[i].Span(), "argument `%s` of `%s` is %s, want %s", p.Name, b.Name, args[i].Type, p.Type)
		}
		if p.Literal && !ast.IsLiteral(call.Args[i]) {
			return Info{}, Errorf(call.Args[i].Span(), "argument `%s` of `%s` must be a literal", p.Name, b.Name)
		}
		taint = types.Join(taint, args[i].Taint)
	}
	c.out.Calls[call] = Callee{Builtin: b}
	return Info{Type: b.Returns(), Taint: taint}, nil
}
