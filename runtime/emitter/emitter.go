// Package emitter renders Shell IR as shell script text.
//
// Emission is total: every program that passes ir.Check renders, and the
// output depends only on the program and the options. Values are always
// quoted so that the shell reads each one back as exactly one word:
//
//	Literal   'text'                (bare only with WithBareSafeLiterals)
//	VarRef    "${name}"
//	Length    "$(( $(printf '%s' "${name}" | wc -c) ))"
//	Arith     "$(( expr ))"
//	Template  "<expansion>"         e.g. "${HOME-}" or "$(cmd 'arg')"
//	Concat    adjacent fragments    'dir: '"${home}"
package emitter

import (
	"strconv"
	"strings"

	"github.com/opal-lang/rash/core/invariant"
	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/builtins"
	"github.com/opal-lang/rash/runtime/ir"
	"github.com/opal-lang/rash/runtime/rtlib"
)

const indentUnit = "  "

// EmitterOpt represents an emitter configuration option
type EmitterOpt func(*EmitterConfig)

// EmitterConfig holds emitter configuration
type EmitterConfig struct {
	dialect     Dialect
	bare        bool
	runtime     string
	haveRuntime bool
}

// WithDialect selects the target shell. The default is POSIX.
func WithDialect(d Dialect) EmitterOpt {
	return func(c *EmitterConfig) {
		c.dialect = d
	}
}

// WithBareSafeLiterals writes Literal-taint values made only of
// [A-Za-z0-9_./:@%+,=-] without quotes.
func WithBareSafeLiterals() EmitterOpt {
	return func(c *EmitterConfig) {
		c.bare = true
	}
}

// WithRuntimeLibrary replaces the embedded runtime library. An empty text
// omits the library.
func WithRuntimeLibrary(text string) EmitterOpt {
	return func(c *EmitterConfig) {
		c.runtime = text
		c.haveRuntime = true
	}
}

// Emit renders prog as a complete script: shebang, shell options, runtime
// library, a blank line, then the body.
func Emit(prog *ir.Program, opts ...EmitterOpt) string {
	invariant.NotNil(prog, "prog")
	cfg := EmitterConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.haveRuntime {
		cfg.runtime = rtlib.Source()
	}

	e := &emitter{cfg: cfg}
	e.line(cfg.dialect.Shebang())
	e.line(cfg.dialect.SetOptions())
	if cfg.runtime != "" {
		e.b.WriteString(cfg.runtime)
		if !strings.HasSuffix(cfg.runtime, "\n") {
			e.b.WriteByte('\n')
		}
	}
	e.b.WriteByte('\n')
	e.body(prog.Body)
	return e.b.String()
}

// EmitBody renders only the commands of prog, without header or runtime
// library.
func EmitBody(prog *ir.Program, opts ...EmitterOpt) string {
	invariant.NotNil(prog, "prog")
	cfg := EmitterConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &emitter{cfg: cfg}
	e.body(prog.Body)
	return e.b.String()
}

type emitter struct {
	cfg    EmitterConfig
	b      strings.Builder
	indent int
}

func (e *emitter) line(s string) {
	for i := 0; i < e.indent; i++ {
		e.b.WriteString(indentUnit)
	}
	e.b.WriteString(s)
	e.b.WriteByte('\n')
}

// ================================================================================================
// COMMANDS
// ================================================================================================

// commands renders a body. A body with no executable command gets `:` since
// the shell grammar rejects empty compound lists.
func (e *emitter) commands(cmds []ir.Command) {
	e.indent++
	e.body(cmds)
	e.indent--
}

func (e *emitter) body(cmds []ir.Command) {
	runnable := false
	for _, cmd := range cmds {
		if _, trace := cmd.(*ir.Trace); !trace {
			runnable = true
		}
		e.command(cmd)
	}
	if !runnable {
		e.line(":")
	}
}

func (e *emitter) command(cmd ir.Command) {
	switch n := cmd.(type) {
	case *ir.Assign:
		e.line(n.Name + "=" + e.word(n.Value))

	case *ir.Builtin:
		e.line(e.expand(n.Template.Segments, n.Args))

	case *ir.If:
		for i, arm := range n.Arms {
			keyword := "elif "
			if i == 0 {
				keyword = "if "
			}
			e.line(keyword + e.cond(arm.Cond) + "; then")
			e.commands(arm.Body)
		}
		if n.Else != nil {
			e.line("else")
			e.commands(n.Else)
		}
		e.line("fi")

	case *ir.Case:
		e.line("case " + e.word(n.Subject) + " in")
		e.indent++
		for _, arm := range n.Arms {
			patterns := make([]string, len(arm.Patterns))
			for i, p := range arm.Patterns {
				patterns[i] = e.literal(p, types.Literal)
			}
			e.caseArm(strings.Join(patterns, " | "), arm.Body)
		}
		if n.HasDefault {
			e.caseArm("*", n.Default)
		}
		e.indent--
		e.line("esac")

	case *ir.Block:
		if n.Breakable {
			e.line("while :; do")
			e.indent++
			e.body(n.Body)
			e.line("break")
			e.indent--
			e.line("done")
			return
		}
		e.line("{")
		e.commands(n.Body)
		e.line("}")

	case *ir.Break:
		e.line("break")

	case *ir.Exit:
		e.line("exit " + strconv.Itoa(n.Code))

	case *ir.Trace:
		e.line("# " + n.Function + " (line " + strconv.Itoa(n.Line) + ")")

	default:
		invariant.Unreachable("unknown command %T", cmd)
	}
}

func (e *emitter) caseArm(pattern string, body []ir.Command) {
	e.line(pattern + ")")
	e.commands(body)
	e.indent++
	e.line(";;")
	e.indent--
}

// expand fills a template: quoted slots get a word, raw slots the literal
// text itself.
func (e *emitter) expand(segments []builtins.Segment, args []ir.Value) string {
	var b strings.Builder
	for _, seg := range segments {
		switch {
		case seg.IsText():
			b.WriteString(seg.Text)
		case seg.Raw:
			lit, ok := args[seg.Arg].(*ir.Literal)
			invariant.Invariant(ok && ir.IsRawSafe(lit.Text), "raw template argument %d is not a safe literal", seg.Arg)
			b.WriteString(lit.Text)
		default:
			b.WriteString(e.word(args[seg.Arg]))
		}
	}
	return b.String()
}

// ================================================================================================
// WORDS
// ================================================================================================

// word renders v as one complete shell word.
func (e *emitter) word(v ir.Value) string {
	switch n := v.(type) {
	case *ir.Literal:
		return e.literal(n.Text, n.Taint)
	case *ir.VarRef:
		return `"${` + n.Name + `}"`
	case *ir.Length:
		return `"$(( ` + byteLength(n.Name) + ` ))"`
	case *ir.Arith:
		return `"$(( ` + arith(n.Expr, false) + ` ))"`
	case *ir.Template:
		return `"` + e.expand(n.Template.Segments, n.Args) + `"`
	case *ir.Concat:
		var b strings.Builder
		for _, p := range n.Parts {
			b.WriteString(e.fragment(p))
		}
		if b.Len() == 0 {
			return "''"
		}
		return b.String()
	}
	invariant.Unreachable("unknown value %T", v)
	return ""
}

// fragment renders part of a concatenation. Literals are always quoted
// there: a bare fragment could merge with its neighbours.
func (e *emitter) fragment(v ir.Value) string {
	if lit, ok := v.(*ir.Literal); ok {
		if lit.Text == "" {
			return ""
		}
		return Quote(lit.Text)
	}
	return e.word(v)
}

func (e *emitter) literal(text string, taint types.Taint) string {
	if e.cfg.bare && taint.IsLiteral() && IsBareSafe(text) {
		return text
	}
	return Quote(text)
}

// arith renders an integer expression for $(( ... )). Nested operations are
// parenthesized, so the shell's precedence never matters.
func arith(x ir.ArithExpr, nested bool) string {
	switch n := x.(type) {
	case *ir.ArithNum:
		if n.Value < 0 {
			return "(" + strconv.FormatInt(n.Value, 10) + ")"
		}
		return strconv.FormatInt(n.Value, 10)
	case *ir.ArithVar:
		return n.Name
	case *ir.ArithLen:
		return byteLength(n.Name)
	case *ir.ArithNeg:
		// Never "--x": bash reads that as a decrement.
		return "-(" + arith(n.X, false) + ")"
	case *ir.ArithBinary:
		s := arith(n.Left, true) + " " + string(n.Op) + " " + arith(n.Right, true)
		if nested {
			return "(" + s + ")"
		}
		return s
	}
	invariant.Unreachable("unknown arithmetic node %T", x)
	return ""
}

// byteLength counts the bytes of a variable's value. ${#name} counts
// characters in some shells and locales and bytes in others; wc -c always
// counts bytes. The arithmetic around it drops the padding some wc print.
func byteLength(name string) string {
	return `$(printf '%s' "${` + name + `}" | wc -c)`
}

// ================================================================================================
// CONDITIONS
// ================================================================================================

var numericOps = map[ir.CompareOp]string{
	ir.CompareEq: "-eq",
	ir.CompareNe: "-ne",
	ir.CompareLt: "-lt",
	ir.CompareLe: "-le",
	ir.CompareGt: "-gt",
	ir.CompareGe: "-ge",
}

// cond renders c as a command list whose exit status is the condition.
func (e *emitter) cond(c ir.Cond) string {
	switch n := c.(type) {
	case *ir.Const:
		return strconv.FormatBool(n.Value)
	case *ir.Truthy:
		return e.word(n.Value)
	case *ir.Compare:
		return e.compare(n)
	case *ir.Test:
		return e.expand(n.Template.Segments, n.Args)
	case *ir.And:
		return e.logical(n.Left, c) + " && " + e.logical(n.Right, c)
	case *ir.Or:
		return e.logical(n.Left, c) + " || " + e.logical(n.Right, c)
	case *ir.Not:
		switch n.X.(type) {
		case *ir.And, *ir.Or, *ir.Not:
			return "! { " + e.cond(n.X) + "; }"
		}
		return "! " + e.cond(n.X)
	}
	invariant.Unreachable("unknown condition %T", c)
	return ""
}

// logical renders an operand of && or ||. The shell gives both operators
// equal precedence, so a child of the other kind is grouped.
func (e *emitter) logical(child, parent ir.Cond) string {
	_, childAnd := child.(*ir.And)
	_, childOr := child.(*ir.Or)
	_, parentAnd := parent.(*ir.And)
	if (childAnd && !parentAnd) || (childOr && parentAnd) {
		return "{ " + e.cond(child) + "; }"
	}
	return e.cond(child)
}

func (e *emitter) compare(c *ir.Compare) string {
	left, right := e.word(c.Left), e.word(c.Right)
	var op string
	switch {
	case c.Numeric:
		op = numericOps[c.Op]
	case c.Op == ir.CompareEq && e.cfg.dialect == DialectBash:
		op = "=="
	case c.Op == ir.CompareEq:
		op = "="
	case c.Op == ir.CompareNe:
		op = "!="
	default:
		// Ordering is only defined on integers.
		invariant.Unreachable("string comparison %s", c.Op)
	}
	if e.cfg.dialect == DialectBash {
		return "[[ " + left + " " + op + " " + right + " ]]"
	}
	return "[ " + left + " " + op + " " + right + " ]"
}
