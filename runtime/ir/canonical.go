package ir

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// CanonicalVersion is bumped whenever the canonical encoding changes.
const CanonicalVersion = 1

// CanonicalProgram is the tagged-union form of a Program used for
// deterministic encoding. Interface-typed nodes become structs with a Type
// discriminator so that CBOR can encode them.
type CanonicalProgram struct {
	Version uint8
	Effects []string
	Body    []CanonicalCommand
}

// CanonicalCommand is a command in canonical form.
type CanonicalCommand struct {
	Type string // "assign", "if", "case", "builtin", "block", "break", "exit", "trace"

	// Assign, builtin, and trace fields
	Name  string
	Value *CanonicalValue

	// If and case fields
	Subject    *CanonicalValue
	Arms       []CanonicalArm
	Else       []CanonicalCommand
	HasElse    bool
	HasDefault bool

	// Builtin fields
	Template string
	Args     []CanonicalValue
	Effects  []string

	// Block fields
	Body      []CanonicalCommand
	Breakable bool

	// Exit and trace fields
	Code int
}

// CanonicalArm is an if arm (Cond set) or a case arm (Patterns set).
type CanonicalArm struct {
	Cond     *CanonicalCond
	Patterns []string
	Body     []CanonicalCommand
}

// CanonicalValue is a value in canonical form.
type CanonicalValue struct {
	Type     string // "literal", "var", "concat", "arith", "length", "template"
	Text     string
	Name     string
	Taint    uint8
	Parts    []CanonicalValue
	Arith    *CanonicalArith
	Template string
	Args     []CanonicalValue
	Effects  []string
}

// CanonicalArith is an arithmetic node in canonical form.
type CanonicalArith struct {
	Type  string // "num", "var", "len", "binary", "neg"
	Op    string
	Num   int64
	Name  string
	Left  *CanonicalArith
	Right *CanonicalArith
}

// CanonicalCond is a condition in canonical form.
type CanonicalCond struct {
	Type     string // "const", "truthy", "compare", "test", "and", "or", "not"
	Bool     bool
	Op       string
	Numeric  bool
	Value    *CanonicalValue
	Left     *CanonicalValue
	Right    *CanonicalValue
	Name     string
	Template string
	Args     []CanonicalValue
	Effects  []string
	X        *CanonicalCond
	Y        *CanonicalCond
}

// Canonicalize converts p into canonical form.
func (p *Program) Canonicalize() (*CanonicalProgram, error) {
	body, err := canonicalCommands(p.Body)
	if err != nil {
		return nil, err
	}
	return &CanonicalProgram{
		Version: CanonicalVersion,
		Effects: p.Effects.Names(),
		Body:    body,
	}, nil
}

func canonicalCommands(cmds []Command) ([]CanonicalCommand, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	out := make([]CanonicalCommand, len(cmds))
	for i, c := range cmds {
		cc, err := canonicalCommand(c)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		out[i] = cc
	}
	return out, nil
}

func canonicalCommand(cmd Command) (CanonicalCommand, error) {
	switch n := cmd.(type) {
	case *Assign:
		v, err := canonicalValue(n.Value)
		if err != nil {
			return CanonicalCommand{}, err
		}
		return CanonicalCommand{Type: "assign", Name: n.Name, Value: &v}, nil

	case *If:
		cc := CanonicalCommand{Type: "if", HasElse: n.Else != nil}
		for _, arm := range n.Arms {
			cond, err := canonicalCond(arm.Cond)
			if err != nil {
				return CanonicalCommand{}, err
			}
			body, err := canonicalCommands(arm.Body)
			if err != nil {
				return CanonicalCommand{}, err
			}
			cc.Arms = append(cc.Arms, CanonicalArm{Cond: &cond, Body: body})
		}
		var err error
		if cc.Else, err = canonicalCommands(n.Else); err != nil {
			return CanonicalCommand{}, err
		}
		return cc, nil

	case *Case:
		subject, err := canonicalValue(n.Subject)
		if err != nil {
			return CanonicalCommand{}, err
		}
		cc := CanonicalCommand{Type: "case", Subject: &subject, HasDefault: n.HasDefault}
		for _, arm := range n.Arms {
			body, err := canonicalCommands(arm.Body)
			if err != nil {
				return CanonicalCommand{}, err
			}
			cc.Arms = append(cc.Arms, CanonicalArm{Patterns: arm.Patterns, Body: body})
		}
		if cc.Else, err = canonicalCommands(n.Default); err != nil {
			return CanonicalCommand{}, err
		}
		return cc, nil

	case *Builtin:
		args, err := canonicalValues(n.Args)
		if err != nil {
			return CanonicalCommand{}, err
		}
		return CanonicalCommand{
			Type:     "builtin",
			Name:     n.Name,
			Template: n.Template.Source,
			Args:     args,
			Effects:  n.Effects.Names(),
		}, nil

	case *Block:
		body, err := canonicalCommands(n.Body)
		if err != nil {
			return CanonicalCommand{}, err
		}
		return CanonicalCommand{Type: "block", Body: body, Breakable: n.Breakable}, nil

	case *Break:
		return CanonicalCommand{Type: "break"}, nil
	case *Exit:
		return CanonicalCommand{Type: "exit", Code: n.Code}, nil
	case *Trace:
		return CanonicalCommand{Type: "trace", Name: n.Function, Code: n.Line}, nil
	}
	return CanonicalCommand{}, fmt.Errorf("unknown command type: %T", cmd)
}

func canonicalValues(vals []Value) ([]CanonicalValue, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	out := make([]CanonicalValue, len(vals))
	for i, v := range vals {
		cv, err := canonicalValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

func canonicalValue(v Value) (CanonicalValue, error) {
	switch n := v.(type) {
	case *Literal:
		return CanonicalValue{Type: "literal", Text: n.Text, Taint: uint8(n.Taint)}, nil
	case *VarRef:
		return CanonicalValue{Type: "var", Name: n.Name, Taint: uint8(n.Taint)}, nil
	case *Length:
		return CanonicalValue{Type: "length", Name: n.Name, Taint: uint8(n.Taint)}, nil
	case *Concat:
		parts, err := canonicalValues(n.Parts)
		if err != nil {
			return CanonicalValue{}, err
		}
		return CanonicalValue{Type: "concat", Parts: parts, Taint: uint8(n.Taint)}, nil
	case *Arith:
		a, err := canonicalArith(n.Expr)
		if err != nil {
			return CanonicalValue{}, err
		}
		return CanonicalValue{Type: "arith", Arith: a, Taint: uint8(n.Taint)}, nil
	case *Template:
		args, err := canonicalValues(n.Args)
		if err != nil {
			return CanonicalValue{}, err
		}
		return CanonicalValue{
			Type:     "template",
			Name:     n.Name,
			Template: n.Template.Source,
			Args:     args,
			Effects:  n.Effects.Names(),
			Taint:    uint8(n.Taint),
		}, nil
	}
	return CanonicalValue{}, fmt.Errorf("unknown value type: %T", v)
}

func canonicalArith(e ArithExpr) (*CanonicalArith, error) {
	switch n := e.(type) {
	case *ArithNum:
		return &CanonicalArith{Type: "num", Num: n.Value}, nil
	case *ArithVar:
		return &CanonicalArith{Type: "var", Name: n.Name}, nil
	case *ArithLen:
		return &CanonicalArith{Type: "len", Name: n.Name}, nil
	case *ArithBinary:
		l, err := canonicalArith(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := canonicalArith(n.Right)
		if err != nil {
			return nil, err
		}
		return &CanonicalArith{Type: "binary", Op: string(n.Op), Left: l, Right: r}, nil
	case *ArithNeg:
		x, err := canonicalArith(n.X)
		if err != nil {
			return nil, err
		}
		return &CanonicalArith{Type: "neg", Left: x}, nil
	}
	return nil, fmt.Errorf("unknown arithmetic type: %T", e)
}

func canonicalCond(c Cond) (CanonicalCond, error) {
	switch n := c.(type) {
	case *Const:
		return CanonicalCond{Type: "const", Bool: n.Value}, nil
	case *Truthy:
		v, err := canonicalValue(n.Value)
		if err != nil {
			return CanonicalCond{}, err
		}
		return CanonicalCond{Type: "truthy", Value: &v}, nil
	case *Compare:
		l, err := canonicalValue(n.Left)
		if err != nil {
			return CanonicalCond{}, err
		}
		r, err := canonicalValue(n.Right)
		if err != nil {
			return CanonicalCond{}, err
		}
		return CanonicalCond{Type: "compare", Op: string(n.Op), Numeric: n.Numeric, Left: &l, Right: &r}, nil
	case *Test:
		args, err := canonicalValues(n.Args)
		if err != nil {
			return CanonicalCond{}, err
		}
		return CanonicalCond{Type: "test", Name: n.Name, Template: n.Template.Source, Args: args, Effects: n.Effects.Names()}, nil
	case *And, *Or:
		var left, right Cond
		typ := "and"
		if and, ok := n.(*And); ok {
			left, right = and.Left, and.Right
		} else {
			or := n.(*Or)
			left, right, typ = or.Left, or.Right, "or"
		}
		x, err := canonicalCond(left)
		if err != nil {
			return CanonicalCond{}, err
		}
		y, err := canonicalCond(right)
		if err != nil {
			return CanonicalCond{}, err
		}
		return CanonicalCond{Type: typ, X: &x, Y: &y}, nil
	case *Not:
		x, err := canonicalCond(n.X)
		if err != nil {
			return CanonicalCond{}, err
		}
		return CanonicalCond{Type: "not", X: &x}, nil
	}
	return CanonicalCond{}, fmt.Errorf("unknown condition type: %T", c)
}

// MarshalBinary produces deterministic CBOR encoding of the canonical
// program.
func (cp *CanonicalProgram) MarshalBinary() ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	// Alias to avoid recursing into MarshalBinary
	type canonicalProgramAlias CanonicalProgram
	data, err := encMode.Marshal((*canonicalProgramAlias)(cp))
	if err != nil {
		return nil, fmt.Errorf("CBOR encoding failed: %w", err)
	}
	return data, nil
}

// Marshal returns the canonical CBOR encoding of p.
func Marshal(p *Program) ([]byte, error) {
	cp, err := p.Canonicalize()
	if err != nil {
		return nil, err
	}
	return cp.MarshalBinary()
}

// Hash returns the BLAKE2b-256 digest of the canonical encoding of p.
func Hash(p *Program) ([32]byte, error) {
	data, err := Marshal(p)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(data), nil
}

// Digest returns Hash formatted as "blake2b:<hex>".
func Digest(p *Program) (string, error) {
	h, err := Hash(p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("blake2b:%x", h), nil
}

// Unmarshal decodes a canonical encoding produced by Marshal. It returns the
// canonical form; the IR itself is not reconstructed.
func Unmarshal(data []byte) (*CanonicalProgram, error) {
	var cp CanonicalProgram
	if err := cbor.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("CBOR decoding failed: %w", err)
	}
	if cp.Version != CanonicalVersion {
		return nil, fmt.Errorf("unsupported canonical version %d", cp.Version)
	}
	return &cp, nil
}
