package planner

import (
	"github.com/opal-lang/rash/core/ast"
	"github.com/opal-lang/rash/core/invariant"
	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/builtins"
	"github.com/opal-lang/rash/runtime/checker"
	"github.com/opal-lang/rash/runtime/ir"
)

var arithOps = map[ast.BinaryOp]ir.ArithOp{
	ast.OpAdd: ir.ArithAdd,
	ast.OpSub: ir.ArithSub,
	ast.OpMul: ir.ArithMul,
	ast.OpDiv: ir.ArithDiv,
	ast.OpRem: ir.ArithRem,
}

var compareOps = map[ast.BinaryOp]ir.CompareOp{
	ast.OpEq: ir.CompareEq,
	ast.OpNe: ir.CompareNe,
	ast.OpLt: ir.CompareLt,
	ast.OpLe: ir.CompareLe,
	ast.OpGt: ir.CompareGt,
	ast.OpGe: ir.CompareGe,
}

// value lowers e to a shell word. Setup commands (inlined calls, Bool
// materialization) are emitted into the current block first.
func (l *lowerer) value(e ast.Expr) (ir.Value, error) {
	info := l.prog.Info(e)
	invariant.Invariant(info.Type.IsValue(), "expression at %s has no value", e.Span())

	switch x := e.(type) {
	case *ast.StringLit, *ast.IntLit, *ast.BoolLit:
		text, err := literalText(x)
		if err != nil {
			return nil, err
		}
		return &ir.Literal{Text: text}, nil

	case *ast.Ident:
		entry, err := l.scopes.Resolve(x.Name)
		invariant.ExpectNoError(err, "resolve "+x.Name)
		return &ir.VarRef{Name: entry.ShellName, Taint: info.Taint}, nil

	case *ast.FormatExpr:
		return l.format(x)

	case *ast.MethodCallExpr:
		return l.method(x, info)

	case *ast.CallExpr:
		callee := l.prog.Callee(x)
		if callee.Func != nil {
			ret, err := l.inline(x, callee.Func)
			if err != nil {
				return nil, err
			}
			return &ir.VarRef{Name: ret, Taint: info.Taint}, nil
		}
		if callee.Builtin.Kind == builtins.KindValue {
			return l.template(x, callee.Builtin, info)
		}
	}

	switch info.Type {
	case types.Bool:
		return l.materialize(e)
	case types.I32:
		a, err := l.arith(e)
		if err != nil {
			return nil, err
		}
		return &ir.Arith{Expr: a, Taint: info.Taint}, nil
	}

	// Only string concatenation is left.
	bin, ok := e.(*ast.BinaryExpr)
	invariant.Invariant(ok && bin.Op == ast.OpAdd, "unexpected %s expression %T at %s", info.Type, e, e.Span())
	left, err := l.value(bin.Left)
	if err != nil {
		return nil, err
	}
	right, err := l.value(bin.Right)
	if err != nil {
		return nil, err
	}
	return ir.NewConcat(left, right), nil
}

// materialize evaluates a Bool expression into a fresh variable holding
// "true" or "false".
func (l *lowerer) materialize(e ast.Expr) (ir.Value, error) {
	cond, err := l.cond(e)
	if err != nil {
		return nil, err
	}
	if c, ok := cond.(*ir.Const); ok {
		return boolLiteral(c.Value), nil
	}
	if t, ok := cond.(*ir.Truthy); ok {
		return t.Value, nil
	}
	taint := l.prog.TaintOf(e)
	tmp := l.names.fresh(l.frame.prefix + "tmp")
	l.emit(assignCond(tmp, cond))
	return &ir.VarRef{Name: tmp, Taint: taint}, nil
}

func (l *lowerer) format(f *ast.FormatExpr) (ir.Value, error) {
	var parts []ir.Value
	for _, seg := range f.Segments {
		if seg.Arg == nil {
			if seg.Text == "" {
				continue
			}
			if err := checkRepresentable(seg.Text, f.Loc); err != nil {
				return nil, err
			}
			parts = append(parts, &ir.Literal{Text: seg.Text})
			continue
		}
		v, err := l.value(seg.Arg)
		if err != nil {
			return nil, err
		}
		parts = append(parts, v)
	}
	switch len(parts) {
	case 0:
		return &ir.Literal{}, nil
	case 1:
		return parts[0], nil
	}
	return ir.NewConcat(parts...), nil
}

func (l *lowerer) method(m *ast.MethodCallExpr, info checker.Info) (ir.Value, error) {
	switch m.Method {
	case "to_string", "to_owned", "clone":
		// Every scalar is already its display text in the shell.
		return l.value(m.Receiver)
	case "len":
		name, err := l.named(m.Receiver)
		if err != nil {
			return nil, err
		}
		return &ir.Length{Name: name, Taint: info.Taint}, nil
	case "is_empty":
		return l.materialize(m)
	}
	invariant.Unreachable("unknown method %s", m.Method)
	return nil, nil
}

// named returns a shell variable holding the string e, binding a temporary
// when e is not already a variable.
func (l *lowerer) named(e ast.Expr) (string, error) {
	v, err := l.value(e)
	if err != nil {
		return "", err
	}
	if ref, ok := v.(*ir.VarRef); ok {
		return ref.Name, nil
	}
	tmp := l.names.fresh(l.frame.prefix + "tmp")
	l.emit(&ir.Assign{Name: tmp, Value: v})
	return tmp, nil
}

func (l *lowerer) template(call *ast.CallExpr, b *builtins.Builtin, info checker.Info) (ir.Value, error) {
	args, err := l.builtinArgs(call, b)
	if err != nil {
		return nil, err
	}
	l.effects = l.effects.Union(b.Effects)
	return &ir.Template{
		Name:     b.Name,
		Template: b.Template,
		Args:     args,
		Effects:  b.Effects,
		Taint:    info.Taint,
	}, nil
}

// ================================================================================================
// ARITHMETIC
// ================================================================================================

func (l *lowerer) arith(e ast.Expr) (ir.ArithExpr, error) {
	switch x := e.(type) {
	case *ast.IntLit:
		return &ir.ArithNum{Value: x.Value}, nil

	case *ast.BinaryExpr:
		op, ok := arithOps[x.Op]
		invariant.Invariant(ok, "operator %s is not arithmetic", x.Op)
		left, err := l.arith(x.Left)
		if err != nil {
			return nil, err
		}
		right, err := l.arith(x.Right)
		if err != nil {
			return nil, err
		}
		return &ir.ArithBinary{Op: op, Left: left, Right: right}, nil

	case *ast.UnaryExpr:
		operand, err := l.arith(x.X)
		if err != nil {
			return nil, err
		}
		return &ir.ArithNeg{X: operand}, nil

	case *ast.MethodCallExpr:
		invariant.Invariant(x.Method == "len", "method %s is not an integer", x.Method)
		name, err := l.named(x.Receiver)
		if err != nil {
			return nil, err
		}
		return &ir.ArithLen{Name: name}, nil
	}

	// Variables and call results are read by name.
	v, err := l.value(e)
	if err != nil {
		return nil, err
	}
	ref, ok := v.(*ir.VarRef)
	invariant.Invariant(ok, "integer expression %T at %s is not a variable", e, e.Span())
	return &ir.ArithVar{Name: ref.Name}, nil
}

// ================================================================================================
// CONDITIONS
// ================================================================================================

// cond lowers a Bool expression to a shell condition.
func (l *lowerer) cond(e ast.Expr) (ir.Cond, error) {
	switch x := e.(type) {
	case *ast.BoolLit:
		return &ir.Const{Value: x.Value}, nil

	case *ast.Ident:
		v, err := l.value(x)
		if err != nil {
			return nil, err
		}
		return &ir.Truthy{Value: v}, nil

	case *ast.UnaryExpr:
		invariant.Invariant(x.Op == ast.OpNot, "operator %s is not logical", x.Op)
		operand, err := l.cond(x.X)
		if err != nil {
			return nil, err
		}
		if c, ok := operand.(*ir.Const); ok {
			return &ir.Const{Value: !c.Value}, nil
		}
		return &ir.Not{X: operand}, nil

	case *ast.BinaryExpr:
		if x.Op.IsLogical() {
			return l.logical(x)
		}
		return l.compare(x)

	case *ast.MethodCallExpr:
		invariant.Invariant(x.Method == "is_empty", "method %s is not Bool", x.Method)
		v, err := l.value(x.Receiver)
		if err != nil {
			return nil, err
		}
		return &ir.Compare{Op: ir.CompareEq, Left: v, Right: &ir.Literal{}}, nil

	case *ast.CallExpr:
		callee := l.prog.Callee(x)
		if callee.Func != nil {
			ret, err := l.inline(x, callee.Func)
			if err != nil {
				return nil, err
			}
			return &ir.Truthy{Value: &ir.VarRef{Name: ret, Taint: types.External}}, nil
		}
		b := callee.Builtin
		invariant.Invariant(b.Kind == builtins.KindTest, "builtin `%s` is not a test", b.Name)
		args, err := l.builtinArgs(x, b)
		if err != nil {
			return nil, err
		}
		l.effects = l.effects.Union(b.Effects)
		return &ir.Test{Name: b.Name, Template: b.Template, Args: args, Effects: b.Effects}, nil
	}
	invariant.Unreachable("unexpected Bool expression %T at %s", e, e.Span())
	return nil, nil
}

func (l *lowerer) compare(x *ast.BinaryExpr) (ir.Cond, error) {
	op, ok := compareOps[x.Op]
	invariant.Invariant(ok, "operator %s is not a comparison", x.Op)
	left, err := l.value(x.Left)
	if err != nil {
		return nil, err
	}
	right, err := l.value(x.Right)
	if err != nil {
		return nil, err
	}
	return &ir.Compare{
		Op:      op,
		Numeric: l.prog.TypeOf(x.Left) == types.I32,
		Left:    left,
		Right:   right,
	}, nil
}

// logical lowers && and ||. When the right operand needs setup commands,
// those must only run if the left operand does not decide the result, so
// the expression is evaluated into a variable with nested ifs instead.
func (l *lowerer) logical(x *ast.BinaryExpr) (ir.Cond, error) {
	left, err := l.cond(x.Left)
	if err != nil {
		return nil, err
	}
	var right ir.Cond
	setup, err := l.capture(func() (err error) {
		right, err = l.cond(x.Right)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(setup) == 0 {
		if x.Op == ast.OpAnd {
			return &ir.And{Left: left, Right: right}, nil
		}
		return &ir.Or{Left: left, Right: right}, nil
	}

	taint := l.prog.TaintOf(x)
	tmp := l.names.fresh(l.frame.prefix + "tmp")
	evalRight := append(setup, assignCond(tmp, right))
	decided := &ir.Assign{Name: tmp, Value: boolLiteral(x.Op == ast.OpOr)}

	if x.Op == ast.OpAnd {
		l.emit(&ir.If{
			Arms: []ir.IfArm{{Cond: left, Body: evalRight}},
			Else: []ir.Command{decided},
		})
	} else {
		l.emit(&ir.If{
			Arms: []ir.IfArm{{Cond: left, Body: []ir.Command{decided}}},
			Else: evalRight,
		})
	}
	return &ir.Truthy{Value: &ir.VarRef{Name: tmp, Taint: taint}}, nil
}
