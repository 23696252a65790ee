// Package validation is the semantic gate between parsing and lowering.
//
// It walks a parsed program once per function with lexical scopes and
// reports every violation that would make the program unsound to lower:
// entry point shape, name resolution, arity, operand and argument types,
// literal-only builtin arguments, returns, and recursion. Additional checks
// depend on the Level. The program is never modified.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opal-lang/rash/core/ast"
	"github.com/opal-lang/rash/core/invariant"
	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/builtins"
)

// Validate returns the first violation in source order, or nil.
func Validate(prog *ast.Program, opts Options) error {
	if errs := ValidateAll(prog, opts); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateAll returns every violation in source order.
func ValidateAll(prog *ast.Program, opts Options) []*ValidationError {
	invariant.NotNil(prog, "prog")
	if opts.Catalog == nil {
		opts.Catalog = builtins.Default()
	}

	v := &validator{
		opts:  opts,
		prog:  prog,
		funcs: make(map[string]*ast.Function, len(prog.Functions)),
	}
	v.checkSignatures()
	for _, fn := range prog.Functions {
		if v.funcs[fn.Name] == fn {
			v.checkFunction(fn)
		}
	}
	v.errs = append(v.errs, detectRecursion(prog, v.funcs)...)

	sort.SliceStable(v.errs, func(i, j int) bool {
		return v.errs[i].Span.Start.Offset < v.errs[j].Span.Start.Offset
	})
	return v.errs
}

type validator struct {
	opts  Options
	prog  *ast.Program
	funcs map[string]*ast.Function // First definition of each name
	errs  []*ValidationError

	fn    *ast.Function
	scope *scope
}

func (v *validator) report(kind Kind, span ast.Span, format string, args ...any) *ValidationError {
	err := &ValidationError{Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)}
	v.errs = append(v.errs, err)
	return err
}

// ============================================================================
// Items
// ============================================================================

func (v *validator) checkSignatures() {
	for _, fn := range v.prog.Functions {
		if _, dup := v.funcs[fn.Name]; dup {
			v.report(KindDuplicate, fn.NameLoc, "function `%s` is defined more than once", fn.Name)
			continue
		}
		v.funcs[fn.Name] = fn
		if _, ok := v.opts.Catalog.Lookup(fn.Name); ok {
			v.report(KindDuplicate, fn.NameLoc, "function `%s` shadows a builtin of the same name", fn.Name)
		}
	}

	main, ok := v.funcs["main"]
	if !ok {
		v.report(KindEntryPoint, v.prog.Loc, "no `main` function")
		return
	}
	if len(main.Params) > 0 {
		v.report(KindEntryPoint, main.Params[0].Loc, "`main` must not take parameters")
	}
	if main.Return != types.Unit {
		v.report(KindEntryPoint, main.NameLoc, "`main` must not return a value, found %s", main.Return)
	}
}

func (v *validator) checkFunction(fn *ast.Function) {
	v.fn = fn
	v.scope = newScope(nil)

	for _, p := range fn.Params {
		if !p.Type.IsValue() {
			v.report(KindUnitValue, p.Loc, "parameter `%s` cannot have type %s", p.Name, p.Type)
		}
		if v.scope.local(p.Name) != nil {
			v.report(KindDuplicate, p.Loc, "identifier `%s` is bound more than once in this parameter list", p.Name)
			continue
		}
		v.scope.declare(&binding{name: p.Name, typ: p.Type, span: p.Loc, param: true})
	}

	v.checkBlock(fn.Body)

	if fn.Return != types.Unit && !blockTerminates(fn.Body) {
		v.report(KindReturn, fn.NameLoc, "function `%s` does not return a %s value on every path", fn.Name, fn.Return)
	}
	v.closeScope()
}

// ============================================================================
// Statements
// ============================================================================

func (v *validator) checkBlock(b *ast.Block) {
	v.scope = newScope(v.scope)
	reported := false
	for i, stmt := range b.Stmts {
		if !reported && i > 0 && terminates(b.Stmts[i-1]) && v.opts.Level.atLeast(LevelBasic) {
			v.report(KindUnreachable, stmt.Span(), "unreachable statement")
			reported = true
		}
		v.checkStmt(stmt)
	}
	v.closeScope()
}

// closeScope pops the innermost scope, reporting unused bindings under
// LevelStrict.
func (v *validator) closeScope() {
	if v.opts.Level.atLeast(LevelStrict) {
		for _, b := range v.scope.order {
			if b.used || strings.HasPrefix(b.name, "_") {
				continue
			}
			what := "binding"
			if b.param {
				what = "parameter"
			}
			v.report(KindUnusedBinding, b.span, "unused %s `%s`", what, b.name)
		}
	}
	v.scope = v.scope.parent
}

func (v *validator) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		v.checkLet(s)
	case *ast.IfStmt:
		for _, arm := range s.Arms {
			v.condition(arm.Cond)
			v.checkBlock(arm.Body)
		}
		if s.Else != nil {
			v.checkBlock(s.Else)
		}
	case *ast.BlockStmt:
		v.checkBlock(s.Body)
	case *ast.MatchStmt:
		v.checkMatch(s)
	case *ast.ReturnStmt:
		v.checkReturn(s)
	case *ast.ExprStmt:
		v.checkExprStmt(s)
	default:
		invariant.Unreachable("unknown statement %T", stmt)
	}
}

func (v *validator) checkLet(s *ast.LetStmt) {
	typ := v.value(s.Value)
	if s.Annotation != types.Invalid {
		if !s.Annotation.IsValue() {
			v.report(KindUnitValue, s.NameLoc, "binding `%s` cannot have type %s", s.Name, s.Annotation)
		} else if typ != types.Invalid && typ != s.Annotation {
			v.report(KindType, s.Value.Span(), "mismatched types: `%s` is annotated %s but the value is %s", s.Name, s.Annotation, typ)
		}
		typ = s.Annotation
	}

	if v.scope.local(s.Name) != nil {
		v.report(KindDuplicate, s.NameLoc, "`%s` is already defined in this scope", s.Name)
		return
	}
	if outer := v.scope.lookup(s.Name); outer != nil && v.opts.Level.atLeast(LevelStrict) {
		v.report(KindShadowing, s.NameLoc, "`%s` shadows the binding at %s", s.Name, outer.span.Start)
	}
	v.scope.declare(&binding{name: s.Name, typ: typ, span: s.NameLoc})
}

func (v *validator) checkMatch(s *ast.MatchStmt) {
	subject := v.value(s.Subject)
	wildcard := false
	seen := make(map[string]bool)

	for _, arm := range s.Arms {
		if wildcard && v.opts.Level.atLeast(LevelBasic) {
			v.report(KindUnreachable, arm.Loc, "unreachable match arm after `_`")
		}
		if arm.Wildcard {
			wildcard = true
		}
		for _, pat := range arm.Patterns {
			typ := v.expr(pat)
			if subject != types.Invalid && typ != subject {
				v.report(KindType, pat.Span(), "mismatched types: pattern is %s but the subject is %s", typ, subject)
				continue
			}
			key := patternKey(pat)
			if seen[key] && v.opts.Level.atLeast(LevelBasic) {
				v.report(KindUnreachable, pat.Span(), "unreachable pattern: %s is already matched", key)
			}
			seen[key] = true
		}
		v.checkBlock(arm.Body)
	}

	if subject != types.Invalid && !exhaustive(s) {
		v.report(KindType, s.Loc, "non-exhaustive match: add a `_` arm")
	}
}

func (v *validator) checkReturn(s *ast.ReturnStmt) {
	want := v.fn.Return
	if s.Value == nil {
		if want != types.Unit {
			v.report(KindReturn, s.Loc, "function `%s` must return a %s value", v.fn.Name, want)
		}
		return
	}

	got := v.expr(s.Value)
	if got == types.Invalid {
		return
	}
	if want == types.Unit {
		if got != types.Unit {
			v.report(KindReturn, s.Value.Span(), "function `%s` returns nothing but a %s value is returned", v.fn.Name, got)
		}
		return
	}
	if got != want {
		v.report(KindReturn, s.Value.Span(), "mismatched return type: `%s` returns %s, found %s", v.fn.Name, want, got)
	}
}

func (v *validator) checkExprStmt(s *ast.ExprStmt) {
	call, ok := s.X.(*ast.CallExpr)
	if !ok {
		v.expr(s.X)
		v.report(KindUnusedValue, s.X.Span(), "expression result is unused")
		return
	}

	typ := v.call(call)
	if b, builtin := v.builtin(call); builtin && b.Kind != builtins.KindCommand {
		v.report(KindUnusedValue, call.Span(), "result of `%s` is unused", call.Name)
		return
	}
	if s.Tail && typ.IsValue() {
		v.report(KindType, call.Span(), "mismatched types: expected (), found %s; add `;` to discard the value", typ)
	}
}

// ============================================================================
// Expressions
// ============================================================================

// condition checks an expression used as an if condition.
func (v *validator) condition(e ast.Expr) {
	if typ := v.value(e); typ != types.Invalid && typ != types.Bool {
		v.report(KindType, e.Span(), "condition must be Bool, found %s", typ)
	}
}

// value types an expression whose result is used as data. Unit results are
// reported and become Invalid.
func (v *validator) value(e ast.Expr) types.Type {
	typ := v.expr(e)
	if typ == types.Unit {
		v.report(KindUnitValue, e.Span(), "%s produces no value", describe(e))
		return types.Invalid
	}
	return typ
}

// expr returns the type of e, or Invalid once an error has been reported
// for it or one of its operands.
func (v *validator) expr(e ast.Expr) types.Type {
	switch x := e.(type) {
	case *ast.StringLit:
		return types.Str
	case *ast.IntLit:
		return types.I32
	case *ast.BoolLit:
		return types.Bool

	case *ast.Ident:
		b := v.scope.lookup(x.Name)
		if b == nil {
			err := v.report(KindUndefined, x.Loc, "cannot find value `%s` in this scope", x.Name)
			err.Suggestion = findClosestMatch(x.Name, v.scope.visible())
			return types.Invalid
		}
		b.used = true
		return b.typ

	case *ast.BinaryExpr:
		l, r := v.value(x.Left), v.value(x.Right)
		if (x.Op == ast.OpDiv || x.Op == ast.OpRem) && v.opts.Level.atLeast(LevelBasic) {
			if lit, ok := x.Right.(*ast.IntLit); ok && lit.Value == 0 {
				verb := "divide"
				if x.Op == ast.OpRem {
					verb = "calculate the remainder"
				}
				v.report(KindDivisionByZero, x.Loc, "attempt to %s by zero", verb)
			}
		}
		if l == types.Invalid || r == types.Invalid {
			return types.Invalid
		}
		typ, ok := x.Op.ResultType(l, r)
		if !ok {
			v.report(KindType, x.OpLoc, "operator `%s` cannot be applied to %s and %s", x.Op, l, r)
			return types.Invalid
		}
		return typ

	case *ast.UnaryExpr:
		operand := v.value(x.X)
		if operand == types.Invalid {
			return types.Invalid
		}
		typ, ok := x.Op.ResultType(operand)
		if !ok {
			v.report(KindType, x.Loc, "operator `%s` cannot be applied to %s", x.Op, operand)
			return types.Invalid
		}
		return typ

	case *ast.MethodCallExpr:
		recv := v.value(x.Receiver)
		if recv == types.Invalid {
			return types.Invalid
		}
		typ, ok := ast.MethodResultType(x.Method, recv)
		if !ok {
			v.report(KindType, x.MethodLoc, "no method `%s` on %s", x.Method, recv)
			return types.Invalid
		}
		return typ

	case *ast.FormatExpr:
		for _, seg := range x.Segments {
			if seg.Arg != nil {
				v.value(seg.Arg)
			}
		}
		return types.Str

	case *ast.CallExpr:
		return v.call(x)
	}
	invariant.Unreachable("unknown expression %T", e)
	return types.Invalid
}

// builtin resolves a call to a catalog entry. User functions take priority.
func (v *validator) builtin(call *ast.CallExpr) (*builtins.Builtin, bool) {
	if _, user := v.funcs[call.Name]; user {
		return nil, false
	}
	return v.opts.Catalog.Lookup(call.Name)
}

func (v *validator) call(call *ast.CallExpr) types.Type {
	if fn, ok := v.funcs[call.Name]; ok && !call.Macro {
		if len(call.Args) != len(fn.Params) {
			v.report(KindArity, call.Loc, "function `%s` takes %d argument(s) but %d were supplied", fn.Name, len(fn.Params), len(call.Args))
			v.args(call.Args)
			return fn.Return
		}
		for i, arg := range call.Args {
			typ := v.value(arg)
			if want := fn.Params[i].Type; typ != types.Invalid && want.IsValue() && typ != want {
				v.report(KindType, arg.Span(), "mismatched types: argument %d of `%s` expects %s, found %s", i+1, fn.Name, want, typ)
			}
		}
		return fn.Return
	}

	b, ok := v.builtin(call)
	if !ok {
		what := "function"
		if call.Macro {
			what = "macro"
		}
		err := v.report(KindUndefined, call.NameLoc, "cannot find %s `%s`", what, call.Name)
		err.Suggestion = findClosestMatch(call.Name, v.callables(call.Macro))
		v.args(call.Args)
		return types.Invalid
	}

	if len(call.Args) != len(b.Params) {
		v.report(KindArity, call.Loc, "builtin `%s` takes %d argument(s) but %d were supplied", b.Name, len(b.Params), len(call.Args))
		v.args(call.Args)
		return b.Returns()
	}
	for i, arg := range call.Args {
		p := b.Params[i]
		typ := v.value(arg)
		if typ != types.Invalid && typ != p.Type {
			v.report(KindType, arg.Span(), "mismatched types: argument `%s` of `%s` expects %s, found %s", p.Name, b.Name, p.Type, typ)
			continue
		}
		if p.Literal {
			v.checkLiteralArg(b, p, arg)
		}
	}
	return b.Returns()
}

func (v *validator) checkLiteralArg(b *builtins.Builtin, p builtins.Param, arg ast.Expr) {
	var err error
	switch lit := arg.(type) {
	case *ast.StringLit:
		err = p.CheckString(lit.Value)
	case *ast.IntLit:
		err = p.CheckInt(lit.Value)
	case *ast.BoolLit:
	default:
		v.report(KindLiteral, arg.Span(), "argument `%s` of `%s` must be a literal", p.Name, b.Name)
		return
	}
	if err != nil {
		v.report(KindLiteral, arg.Span(), "invalid argument `%s` of `%s`: %v", p.Name, b.Name, err)
	}
}

// args types arguments of a call that could not be resolved, so that errors
// inside them are still reported.
func (v *validator) args(args []ast.Expr) {
	for _, a := range args {
		v.expr(a)
	}
}

// callables lists the names a call could have meant.
func (v *validator) callables(macro bool) []string {
	var names []string
	if !macro {
		for _, fn := range v.prog.Functions {
			names = append(names, fn.Name)
		}
	}
	for _, name := range v.opts.Catalog.Names() {
		if strings.HasSuffix(name, "!") == macro {
			names = append(names, name)
		}
	}
	return names
}

// ============================================================================
// Control flow
// ============================================================================

// terminates reports whether control never continues past stmt.
func terminates(stmt ast.Stmt) bool {
	switch s := stmt.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.BlockStmt:
		return blockTerminates(s.Body)
	case *ast.IfStmt:
		if s.Else == nil || !blockTerminates(s.Else) {
			return false
		}
		for _, arm := range s.Arms {
			if !blockTerminates(arm.Body) {
				return false
			}
		}
		return true
	case *ast.MatchStmt:
		if !exhaustive(s) {
			return false
		}
		for _, arm := range s.Arms {
			if !blockTerminates(arm.Body) {
				return false
			}
		}
		return true
	}
	return false
}

func blockTerminates(b *ast.Block) bool {
	for _, s := range b.Stmts {
		if terminates(s) {
			return true
		}
	}
	return false
}

// exhaustive reports whether some arm of s always matches.
func exhaustive(s *ast.MatchStmt) bool {
	sawTrue, sawFalse := false, false
	for _, arm := range s.Arms {
		if arm.Wildcard {
			return true
		}
		for _, p := range arm.Patterns {
			if b, ok := p.(*ast.BoolLit); ok {
				sawTrue = sawTrue || b.Value
				sawFalse = sawFalse || !b.Value
			}
		}
	}
	return sawTrue && sawFalse
}

func patternKey(e ast.Expr) string {
	switch p := e.(type) {
	case *ast.StringLit:
		return fmt.Sprintf("%q", p.Value)
	case *ast.IntLit:
		return fmt.Sprintf("%d", p.Value)
	case *ast.BoolLit:
		return fmt.Sprintf("%t", p.Value)
	}
	return fmt.Sprintf("%T@%s", e, e.Span())
}

func describe(e ast.Expr) string {
	if call, ok := e.(*ast.CallExpr); ok {
		return fmt.Sprintf("`%s(..)`", call.Name)
	}
	return "expression"
}
