// Package planner lowers an annotated program into Shell IR.
//
// The IR has no call stack. Lowering starts from main and substitutes each
// user function's body at its call site, so the emitted script contains
// only straight-line text and structured control flow:
//
//	fn greet(name: &str) { echo(name); }     greet_name='world'
//	fn main() { greet("world"); }        =>  rash_println "${greet_name}"
//
// Every inlining allocates fresh shell variables for the callee's
// parameters, locals and result, so call sites never clobber each other.
// A return that is not in tail position leaves a loop that runs once:
//
//	while :; do ...; f_ret=1; break; ...; done
package planner

import (
	"strconv"
	"strings"
	"time"

	"github.com/opal-lang/rash/core/ast"
	"github.com/opal-lang/rash/core/invariant"
	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/builtins"
	"github.com/opal-lang/rash/runtime/checker"
	"github.com/opal-lang/rash/runtime/ir"
)

// DefaultMaxInlinedCalls bounds how many call sites may be inlined. Inlining
// is exponential in the worst case (each function calling the previous one
// twice), so the bound keeps lowering finite on adversarial input.
const DefaultMaxInlinedCalls = 10000

// Config configures lowering.
type Config struct {
	MaxInlinedCalls int            // 0 means DefaultMaxInlinedCalls
	Telemetry       TelemetryLevel // Telemetry level (production-safe)
	Debug           DebugLevel     // Debug level (development only)
}

// TelemetryLevel controls telemetry collection (production-safe)
type TelemetryLevel int

const (
	TelemetryOff    TelemetryLevel = iota // Zero overhead (default)
	TelemetryBasic                        // Counts only
	TelemetryTiming                       // Counts + lowering time
)

// DebugLevel controls debug tracing (development only)
type DebugLevel int

const (
	DebugOff      DebugLevel = iota // No debug info (default)
	DebugPaths                      // Function entry and exit
	DebugDetailed                   // Every inlined call
)

// LowerResult holds the IR and observability data.
type LowerResult struct {
	Program     *ir.Program
	LowerTime   time.Duration   // Zero unless TelemetryTiming
	Telemetry   *LowerTelemetry // nil if TelemetryOff
	DebugEvents []DebugEvent    // nil if DebugOff
}

// LowerTelemetry holds lowering metrics.
type LowerTelemetry struct {
	InlinedCalls int // User function call sites substituted
	CommandCount int // IR commands produced, nested ones included
	ShellNames   int // Distinct shell variables allocated
}

// DebugEvent holds debug tracing information (development only)
type DebugEvent struct {
	Timestamp time.Time
	Event     string // "enter_function", "exit_function", "inline"
	Function  string
	Context   string
}

// Lower converts prog into Shell IR with the default configuration.
func Lower(prog *checker.Program) (*ir.Program, error) {
	result, err := LowerWithObservability(prog, Config{})
	if err != nil {
		return nil, err
	}
	return result.Program, nil
}

// LowerWithObservability returns the IR with telemetry and debug events.
func LowerWithObservability(prog *checker.Program, config Config) (*LowerResult, error) {
	invariant.NotNil(prog, "prog")
	if config.MaxInlinedCalls <= 0 {
		config.MaxInlinedCalls = DefaultMaxInlinedCalls
	}

	var start time.Time
	if config.Telemetry >= TelemetryTiming {
		start = time.Now()
	}

	l := &lowerer{
		prog:   prog,
		config: config,
		names:  newNameTable(),
		scopes: NewScopeGraph(),
	}
	if config.Debug >= DebugPaths {
		l.debugEvents = make([]DebugEvent, 0, 16)
	}

	body, err := l.lowerMain(prog.Main())
	if err != nil {
		return nil, err
	}
	out := &ir.Program{Body: body, Effects: l.effects}

	result := &LowerResult{Program: out, DebugEvents: l.debugEvents}
	if config.Telemetry >= TelemetryBasic {
		result.Telemetry = &LowerTelemetry{
			InlinedCalls: l.inlined,
			CommandCount: out.CountCommands(),
			ShellNames:   len(l.names.used),
		}
	}
	if config.Telemetry >= TelemetryTiming {
		result.LowerTime = time.Since(start)
	}
	return result, nil
}

// frame is one function being lowered: main, or an inlined callee.
type frame struct {
	fn     *ast.Function
	prefix string // Prepended to local names; empty in main
	ret    string // Result variable; empty for unit functions
	tails  map[*ast.ReturnStmt]bool
	breaks bool // A Break was emitted; the body needs a breakable block
	parent *frame
}

func (f *frame) isMain() bool {
	return f.parent == nil
}

type lowerer struct {
	prog    *checker.Program
	config  Config
	names   *nameTable
	scopes  *ScopeGraph
	frame   *frame
	body    []ir.Command // Commands of the block being lowered
	effects types.EffectSet
	inlined int

	debugEvents []DebugEvent
}

func (l *lowerer) recordDebugEvent(event, fn, context string) {
	if l.debugEvents == nil {
		return
	}
	l.debugEvents = append(l.debugEvents, DebugEvent{
		Timestamp: time.Now(),
		Event:     event,
		Function:  fn,
		Context:   context,
	})
}

func (l *lowerer) emit(cmds ...ir.Command) {
	l.body = append(l.body, cmds...)
}

// capture runs f with an empty command buffer and returns what it emitted.
func (l *lowerer) capture(f func() error) ([]ir.Command, error) {
	saved := l.body
	l.body = nil
	err := f()
	out := l.body
	l.body = saved
	return out, err
}

func (l *lowerer) lowerMain(main *ast.Function) ([]ir.Command, error) {
	l.recordDebugEvent("enter_function", main.Name, "")
	l.frame = &frame{fn: main, tails: tailReturns(main.Body)}
	body, err := l.block(main.Body)
	l.recordDebugEvent("exit_function", main.Name, "")
	return body, err
}

// ================================================================================================
// STATEMENTS
// ================================================================================================

// block lowers b in its own scope.
func (l *lowerer) block(b *ast.Block) ([]ir.Command, error) {
	return l.capture(func() error {
		l.scopes.EnterScope(false)
		defer func() {
			invariant.ExpectNoError(l.scopes.ExitScope(), "exit block scope")
		}()
		for _, stmt := range b.Stmts {
			if err := l.stmt(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *lowerer) stmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		return l.let(s)
	case *ast.IfStmt:
		cmds, err := l.ifChain(s.Arms, s.Else)
		if err != nil {
			return err
		}
		l.emit(cmds...)
		return nil
	case *ast.MatchStmt:
		return l.match(s)
	case *ast.BlockStmt:
		body, err := l.block(s.Body)
		if err != nil {
			return err
		}
		l.emit(&ir.Block{Body: body})
		return nil
	case *ast.ReturnStmt:
		return l.ret(s)
	case *ast.ExprStmt:
		return l.exprStmt(s.X)
	}
	invariant.Unreachable("unknown statement %T", stmt)
	return nil
}

func (l *lowerer) let(s *ast.LetStmt) error {
	info := l.prog.Info(s.Value)
	if info.Type == types.Bool {
		return l.bindBool(s.Name, s.Value)
	}
	v, err := l.value(s.Value)
	if err != nil {
		return err
	}
	name := l.declare(s.Name, info)
	l.emit(&ir.Assign{Name: name, Value: v})
	return nil
}

// declare allocates the shell variable for a new source binding.
func (l *lowerer) declare(name string, info checker.Info) string {
	shell := l.names.fresh(l.frame.prefix + name)
	l.scopes.Store(name, VarEntry{ShellName: shell, Type: info.Type, Taint: info.Taint})
	return shell
}

// bindBool declares name as a Bool binding. Literals and variables are
// copied; anything else is evaluated as a condition that assigns one of
// the two sentinels.
func (l *lowerer) bindBool(name string, e ast.Expr) error {
	info := l.prog.Info(e)
	switch e.(type) {
	case *ast.BoolLit, *ast.Ident:
		v, err := l.value(e)
		if err != nil {
			return err
		}
		l.emit(&ir.Assign{Name: l.declare(name, info), Value: v})
		return nil
	}
	cond, err := l.cond(e)
	if err != nil {
		return err
	}
	l.emit(assignCond(l.declare(name, info), cond))
	return nil
}

// assignCond sets name to "true" or "false" according to cond.
func assignCond(name string, cond ir.Cond) ir.Command {
	switch c := cond.(type) {
	case *ir.Const:
		return &ir.Assign{Name: name, Value: boolLiteral(c.Value)}
	case *ir.Truthy:
		return &ir.Assign{Name: name, Value: c.Value}
	}
	return &ir.If{
		Arms: []ir.IfArm{{Cond: cond, Body: []ir.Command{&ir.Assign{Name: name, Value: boolLiteral(true)}}}},
		Else: []ir.Command{&ir.Assign{Name: name, Value: boolLiteral(false)}},
	}
}

func boolLiteral(b bool) *ir.Literal {
	return &ir.Literal{Text: strconv.FormatBool(b)}
}

// ifChain lowers an if/else-if/else chain into one If. A later arm whose
// condition needs setup commands (an inlined call) cannot be an elif: the
// setup must only run when the earlier arms fail, so the chain continues
// in a nested If under else.
func (l *lowerer) ifChain(arms []ast.IfArm, els *ast.Block) ([]ir.Command, error) {
	var cond ir.Cond
	setup, err := l.capture(func() (err error) {
		cond, err = l.cond(arms[0].Cond)
		return err
	})
	if err != nil {
		return nil, err
	}
	body, err := l.block(arms[0].Body)
	if err != nil {
		return nil, err
	}

	root := &ir.If{Arms: []ir.IfArm{{Cond: cond, Body: body}}}
	current := root
	for _, arm := range arms[1:] {
		var cond ir.Cond
		pre, err := l.capture(func() (err error) {
			cond, err = l.cond(arm.Cond)
			return err
		})
		if err != nil {
			return nil, err
		}
		body, err := l.block(arm.Body)
		if err != nil {
			return nil, err
		}
		if len(pre) > 0 {
			nested := &ir.If{Arms: []ir.IfArm{{Cond: cond, Body: body}}}
			current.Else = append(pre, nested)
			current = nested
			continue
		}
		current.Arms = append(current.Arms, ir.IfArm{Cond: cond, Body: body})
	}

	if els != nil {
		body, err := l.block(els)
		if err != nil {
			return nil, err
		}
		current.Else = body
	}
	return append(setup, root), nil
}

func (l *lowerer) match(s *ast.MatchStmt) error {
	subject, err := l.value(s.Subject)
	if err != nil {
		return err
	}
	out := &ir.Case{Subject: subject}
	for _, arm := range s.Arms {
		body, err := l.block(arm.Body)
		if err != nil {
			return err
		}
		if arm.Wildcard {
			out.Default = body
			out.HasDefault = true
			break // Later arms are unreachable
		}
		var patterns []string
		for _, p := range arm.Patterns {
			text, err := literalText(p)
			if err != nil {
				return err
			}
			patterns = append(patterns, text)
		}
		out.Arms = append(out.Arms, ir.CaseArm{Patterns: patterns, Body: body})
	}
	l.emit(out)
	return nil
}

func (l *lowerer) ret(s *ast.ReturnStmt) error {
	f := l.frame
	tail := f.tails[s]

	if s.Value != nil {
		switch {
		case f.ret == "":
			// A unit function returning the result of a unit call.
			if err := l.exprStmt(s.Value); err != nil {
				return err
			}
		case f.fn.Return == types.Bool:
			cond, err := l.cond(s.Value)
			if err != nil {
				return err
			}
			l.emit(assignCond(f.ret, cond))
		default:
			v, err := l.value(s.Value)
			if err != nil {
				return err
			}
			l.emit(&ir.Assign{Name: f.ret, Value: v})
		}
	}

	if tail {
		return nil
	}
	if f.isMain() {
		l.emit(&ir.Exit{Code: 0})
		return nil
	}
	f.breaks = true
	l.emit(&ir.Break{})
	return nil
}

// exprStmt lowers a call evaluated for its effects.
func (l *lowerer) exprStmt(e ast.Expr) error {
	call, ok := e.(*ast.CallExpr)
	invariant.Invariant(ok, "expression statement at %s is not a call", e.Span())

	callee := l.prog.Callee(call)
	if callee.Func != nil {
		_, err := l.inline(call, callee.Func)
		return err
	}
	b := callee.Builtin
	invariant.Invariant(b.Kind == builtins.KindCommand, "builtin `%s` in statement position is a %s", b.Name, b.Kind)
	args, err := l.builtinArgs(call, b)
	if err != nil {
		return err
	}
	l.effects = l.effects.Union(b.Effects)
	l.emit(&ir.Builtin{Name: b.Name, Template: b.Template, Args: args, Effects: b.Effects})
	return nil
}

// ================================================================================================
// CALLS
// ================================================================================================

// inline substitutes fn's body at call and returns the variable holding its
// result, or "" for a unit function.
func (l *lowerer) inline(call *ast.CallExpr, fn *ast.Function) (string, error) {
	for f := l.frame; f != nil; f = f.parent {
		if f.fn == fn {
			return "", checker.Errorf(call.Loc, "recursive call to `%s` cannot be inlined", fn.Name)
		}
	}
	if l.inlined >= l.config.MaxInlinedCalls {
		return "", checker.Errorf(call.Loc, "inlining `%s` exceeds the limit of %d inlined calls", fn.Name, l.config.MaxInlinedCalls)
	}
	l.inlined++

	// Arguments are evaluated in the caller's scope, before the callee's
	// parameters exist.
	args := make([]ir.Value, len(call.Args))
	for i, a := range call.Args {
		v, err := l.value(a)
		if err != nil {
			return "", err
		}
		args[i] = v
	}

	if l.config.Debug >= DebugDetailed {
		l.recordDebugEvent("inline", fn.Name, call.Loc.String())
	}
	l.recordDebugEvent("enter_function", fn.Name, "")
	l.emit(&ir.Trace{Function: fn.Name, Line: call.Loc.Start.Line})

	f := &frame{
		fn:     fn,
		prefix: fn.Name + "_",
		tails:  tailReturns(fn.Body),
		parent: l.frame,
	}
	l.frame = f
	l.scopes.EnterScope(true)
	defer func() {
		invariant.ExpectNoError(l.scopes.ExitScope(), "exit function scope")
		l.frame = f.parent
		l.recordDebugEvent("exit_function", fn.Name, "")
	}()

	for i, p := range fn.Params {
		name := l.declare(p.Name, checker.Info{Type: p.Type, Taint: types.External})
		l.emit(&ir.Assign{Name: name, Value: args[i]})
	}
	if fn.Return != types.Unit {
		f.ret = l.names.fresh(fn.Name + "_ret")
	}

	body, err := l.block(fn.Body)
	if err != nil {
		return "", err
	}
	if f.breaks {
		l.emit(&ir.Block{Body: body, Breakable: true})
	} else {
		l.emit(body...)
	}
	return f.ret, nil
}

// builtinArgs lowers the arguments of a builtin call. Arguments spliced raw
// into the template must be literals the shell reads as a single word.
func (l *lowerer) builtinArgs(call *ast.CallExpr, b *builtins.Builtin) ([]ir.Value, error) {
	args := make([]ir.Value, len(call.Args))
	for i, a := range call.Args {
		p := b.Params[i]
		if !p.Literal {
			v, err := l.value(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
			continue
		}

		text, err := literalText(a)
		if err != nil {
			return nil, err
		}
		if err := checkLiteralParam(p, a); err != nil {
			return nil, checker.Errorf(a.Span(), "argument `%s` of `%s` %v", p.Name, b.Name, err)
		}
		if rawParam(b.Template, i) && !ir.IsRawSafe(text) {
			return nil, checker.Errorf(a.Span(), "argument `%s` of `%s` is spliced into the script unquoted and must be an identifier or a non-negative integer, not %q", p.Name, b.Name, text)
		}
		args[i] = &ir.Literal{Text: text}
	}
	return args, nil
}

func checkLiteralParam(p builtins.Param, e ast.Expr) error {
	switch lit := e.(type) {
	case *ast.StringLit:
		return p.CheckString(lit.Value)
	case *ast.IntLit:
		return p.CheckInt(lit.Value)
	}
	return nil
}

func rawParam(t builtins.Template, idx int) bool {
	for _, seg := range t.Segments {
		if seg.Arg == idx && seg.Raw {
			return true
		}
	}
	return false
}

// literalText returns the canonical shell text of a literal expression.
func literalText(e ast.Expr) (string, error) {
	switch lit := e.(type) {
	case *ast.StringLit:
		if err := checkRepresentable(lit.Value, lit.Loc); err != nil {
			return "", err
		}
		return lit.Value, nil
	case *ast.IntLit:
		return strconv.FormatInt(lit.Value, 10), nil
	case *ast.BoolLit:
		return strconv.FormatBool(lit.Value), nil
	}
	invariant.Unreachable("literal expected at %s, got %T", e.Span(), e)
	return "", nil
}

// checkRepresentable rejects text a shell variable cannot hold.
func checkRepresentable(s string, span ast.Span) error {
	if strings.IndexByte(s, 0) >= 0 {
		return checker.Errorf(span, "string contains a NUL byte, which a shell cannot represent")
	}
	return nil
}

// tailReturns collects the returns after which control reaches the end of
// the function anyway. They need no Break or Exit.
func tailReturns(body *ast.Block) map[*ast.ReturnStmt]bool {
	tails := make(map[*ast.ReturnStmt]bool)
	var visit func(b *ast.Block)
	visit = func(b *ast.Block) {
		if len(b.Stmts) == 0 {
			return
		}
		switch s := b.Stmts[len(b.Stmts)-1].(type) {
		case *ast.ReturnStmt:
			tails[s] = true
		case *ast.IfStmt:
			for _, arm := range s.Arms {
				visit(arm.Body)
			}
			if s.Else != nil {
				visit(s.Else)
			}
		case *ast.MatchStmt:
			for _, arm := range s.Arms {
				visit(arm.Body)
			}
		case *ast.BlockStmt:
			visit(s.Body)
		}
	}
	visit(body)
	return tails
}
