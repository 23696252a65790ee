package ir

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/builtins"
)

var (
	identPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	numberPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)
)

// IsName reports whether s is a valid shell variable name.
func IsName(s string) bool {
	return identPattern.MatchString(s)
}

// IsRawSafe reports whether s may be spliced into a script unquoted: an
// identifier or a non-negative decimal integer.
func IsRawSafe(s string) bool {
	return identPattern.MatchString(s) || numberPattern.MatchString(s)
}

// Check verifies the structural invariants the emitter relies on. Lowering
// always produces programs that pass; a failure is a bug in lowering.
func Check(p *Program) error {
	c := &irChecker{}
	c.commands(p.Body)
	if c.err != nil {
		return c.err
	}
	if p.Effects != c.effects {
		return fmt.Errorf("program declares effects %s but its commands have %s", p.Effects, c.effects)
	}
	return nil
}

type irChecker struct {
	breakable int
	effects   types.EffectSet
	err       error
}

func (c *irChecker) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
}

func (c *irChecker) commands(cmds []Command) {
	for _, cmd := range cmds {
		c.command(cmd)
	}
}

func (c *irChecker) command(cmd Command) {
	switch n := cmd.(type) {
	case *Assign:
		c.name(n.Name)
		c.value(n.Value)
	case *If:
		if len(n.Arms) == 0 {
			c.fail("if without arms")
		}
		for _, arm := range n.Arms {
			c.cond(arm.Cond)
			c.commands(arm.Body)
		}
		c.commands(n.Else)
	case *Case:
		c.value(n.Subject)
		for _, arm := range n.Arms {
			if len(arm.Patterns) == 0 {
				c.fail("case arm without patterns")
			}
			c.commands(arm.Body)
		}
		if !n.HasDefault && len(n.Default) > 0 {
			c.fail("case default body without HasDefault")
		}
		c.commands(n.Default)
	case *Builtin:
		c.template(n.Name, n.Template, n.Args)
		c.effects = c.effects.Union(n.Effects)
	case *Block:
		if n.Breakable {
			c.breakable++
		}
		c.commands(n.Body)
		if n.Breakable {
			c.breakable--
		}
	case *Break:
		if c.breakable == 0 {
			c.fail("break outside a breakable block")
		}
	case *Exit:
		if n.Code < 0 || n.Code > 255 {
			c.fail("exit code %d out of range", n.Code)
		}
	case *Trace:
		if !IsName(n.Function) {
			c.fail("trace of invalid function name %q", n.Function)
		}
	case nil:
		c.fail("nil command")
	default:
		c.fail("unknown command %T", cmd)
	}
}

func (c *irChecker) value(v Value) {
	switch n := v.(type) {
	case *Literal:
		if strings.IndexByte(n.Text, 0) >= 0 {
			c.fail("literal contains a NUL byte")
		}
	case *VarRef:
		c.name(n.Name)
	case *Length:
		c.name(n.Name)
	case *Concat:
		taint := types.Literal
		for _, p := range n.Parts {
			c.value(p)
			taint = types.Join(taint, TaintOf(p))
		}
		if taint > n.Taint {
			c.fail("concat taint %s is below its parts' %s", n.Taint, taint)
		}
	case *Arith:
		c.arith(n.Expr)
	case *Template:
		c.template(n.Name, n.Template, n.Args)
		c.effects = c.effects.Union(n.Effects)
	case nil:
		c.fail("nil value")
	default:
		c.fail("unknown value %T", v)
	}
}

func (c *irChecker) arith(e ArithExpr) {
	switch n := e.(type) {
	case *ArithNum:
	case *ArithVar:
		c.name(n.Name)
	case *ArithLen:
		c.name(n.Name)
	case *ArithBinary:
		c.arith(n.Left)
		c.arith(n.Right)
	case *ArithNeg:
		c.arith(n.X)
	default:
		c.fail("unknown arithmetic node %T", e)
	}
}

func (c *irChecker) cond(cond Cond) {
	switch n := cond.(type) {
	case *Const:
	case *Truthy:
		c.value(n.Value)
	case *Compare:
		c.value(n.Left)
		c.value(n.Right)
	case *Test:
		c.template(n.Name, n.Template, n.Args)
		c.effects = c.effects.Union(n.Effects)
	case *And:
		c.cond(n.Left)
		c.cond(n.Right)
	case *Or:
		c.cond(n.Left)
		c.cond(n.Right)
	case *Not:
		c.cond(n.X)
	default:
		c.fail("unknown condition %T", cond)
	}
}

func (c *irChecker) template(name string, t builtins.Template, args []Value) {
	for _, seg := range t.Segments {
		if seg.IsText() {
			continue
		}
		if seg.Arg >= len(args) {
			c.fail("%s: template refers to argument %d of %d", name, seg.Arg, len(args))
			return
		}
		if !seg.Raw {
			continue
		}
		lit, ok := args[seg.Arg].(*Literal)
		if !ok || !IsRawSafe(lit.Text) {
			c.fail("%s: raw argument %d is not a safe literal", name, seg.Arg)
		}
	}
	for _, a := range args {
		c.value(a)
	}
}

func (c *irChecker) name(name string) {
	if !IsName(name) {
		c.fail("invalid shell name %q", name)
	}
}
