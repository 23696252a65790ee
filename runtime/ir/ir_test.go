package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/builtins"
)

func mustBuiltin(t *testing.T, name string) *builtins.Builtin {
	t.Helper()
	b, ok := builtins.Default().Lookup(name)
	require.True(t, ok, "no builtin %q", name)
	return b
}

func echo(t *testing.T, v Value) *Builtin {
	b := mustBuiltin(t, "echo")
	return &Builtin{Name: b.Name, Template: b.Template, Args: []Value{v}, Effects: b.Effects}
}

// sample builds a program that touches every command kind.
func sample(t *testing.T) *Program {
	t.Helper()
	env := mustBuiltin(t, "env")
	exists := mustBuiltin(t, "exists")

	home := &Template{
		Name:     env.Name,
		Template: env.Template,
		Args:     []Value{&Literal{Text: "HOME"}},
		Effects:  env.Effects,
		Taint:    types.External,
	}
	body := []Command{
		&Assign{Name: "home", Value: home},
		&Assign{Name: "n", Value: &Arith{Expr: &ArithBinary{
			Op:    ArithAdd,
			Left:  &ArithLen{Name: "home"},
			Right: &ArithNeg{X: &ArithNum{Value: 2}},
		}, Taint: types.External}},
		&Trace{Function: "greet", Line: 3},
		&Block{Breakable: true, Body: []Command{
			&If{
				Arms: []IfArm{{
					Cond: &And{
						Left: &Test{Name: exists.Name, Template: exists.Template, Args: []Value{&VarRef{Name: "home", Taint: types.External}}, Effects: exists.Effects},
						Right: &Not{X: &Compare{Op: CompareGt, Numeric: true, Left: &VarRef{Name: "n", Taint: types.External}, Right: &Literal{Text: "3"}}},
					},
					Body: []Command{&Break{}},
				}},
				Else: []Command{echo(t, NewConcat(&Literal{Text: "dir: "}, &VarRef{Name: "home", Taint: types.External}))},
			},
		}},
		&Case{
			Subject:    &VarRef{Name: "n", Taint: types.External},
			Arms:       []CaseArm{{Patterns: []string{"1", "2"}, Body: []Command{echo(t, &Literal{Text: "low"})}}},
			HasDefault: true,
			Default:    []Command{&Assign{Name: "ok", Value: &Literal{Text: "true"}}},
		},
		&If{Arms: []IfArm{{Cond: &Or{Left: &Const{Value: false}, Right: &Truthy{Value: &VarRef{Name: "ok"}}}}}},
		&Exit{Code: 0},
	}
	return &Program{
		Body:    body,
		Effects: types.NewEffectSet(types.EffectOutput, types.EffectFSRead, types.EffectEnvRead),
	}
}

func TestCheckAcceptsSample(t *testing.T) {
	require.NoError(t, Check(sample(t)))
}

func TestCheckRejects(t *testing.T) {
	setEnv := mustBuiltin(t, "set_env")
	exportWith := func(name Value) *Builtin {
		return &Builtin{
			Name:     setEnv.Name,
			Template: setEnv.Template,
			Args:     []Value{name, &Literal{Text: "v"}},
			Effects:  setEnv.Effects,
		}
	}
	envWrite := types.NewEffectSet(types.EffectEnvWrite)

	tests := []struct {
		name    string
		prog    *Program
		wantErr string
	}{
		{
			name:    "break_outside_block",
			prog:    &Program{Body: []Command{&Block{Body: []Command{&Break{}}}}},
			wantErr: "break outside",
		},
		{
			name:    "bad_name",
			prog:    &Program{Body: []Command{&Assign{Name: "a-b", Value: &Literal{}}}},
			wantErr: "invalid shell name",
		},
		{
			name:    "nul_byte",
			prog:    &Program{Body: []Command{&Assign{Name: "a", Value: &Literal{Text: "x\x00y"}}}},
			wantErr: "NUL",
		},
		{
			name: "concat_taint_lowered",
			prog: &Program{Body: []Command{&Assign{Name: "a", Value: &Concat{
				Parts: []Value{&VarRef{Name: "b", Taint: types.External}},
				Taint: types.Literal,
			}}}},
			wantErr: "concat taint",
		},
		{
			name:    "raw_not_literal",
			prog:    &Program{Body: []Command{exportWith(&VarRef{Name: "x"})}, Effects: envWrite},
			wantErr: "not a safe literal",
		},
		{
			name:    "raw_unsafe_text",
			prog:    &Program{Body: []Command{exportWith(&Literal{Text: "A;rm"})}, Effects: envWrite},
			wantErr: "not a safe literal",
		},
		{
			name: "missing_argument",
			prog: &Program{Body: []Command{&Builtin{
				Name: setEnv.Name, Template: setEnv.Template, Args: []Value{&Literal{Text: "A"}}, Effects: setEnv.Effects,
			}}, Effects: envWrite},
			wantErr: "refers to argument 1 of 1",
		},
		{
			name:    "empty_case_arm",
			prog:    &Program{Body: []Command{&Case{Subject: &Literal{}, Arms: []CaseArm{{}}}}},
			wantErr: "without patterns",
		},
		{
			name:    "empty_if",
			prog:    &Program{Body: []Command{&If{}}},
			wantErr: "if without arms",
		},
		{
			name:    "exit_range",
			prog:    &Program{Body: []Command{&Exit{Code: 256}}},
			wantErr: "out of range",
		},
		{
			name:    "effects_mismatch",
			prog:    &Program{Body: []Command{echo(t, &Literal{Text: "x"})}},
			wantErr: "declares effects none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.prog)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsRawSafe(t *testing.T) {
	for _, s := range []string{"HOME", "_x1", "0", "1", "255"} {
		assert.True(t, IsRawSafe(s), s)
	}
	for _, s := range []string{"", "-1", "01", "a b", "$x", "a;b", "1a"} {
		assert.False(t, IsRawSafe(s), s)
	}
}

func TestNewConcatJoinsTaint(t *testing.T) {
	assert.Equal(t, types.Literal, NewConcat().Taint)
	assert.Equal(t, types.Literal, NewConcat(&Literal{Text: "a"}, &Literal{Text: "b"}).Taint)
	assert.Equal(t, types.External, NewConcat(&Literal{Text: "a"}, &VarRef{Name: "x", Taint: types.External}).Taint)
}

func TestWalk(t *testing.T) {
	p := sample(t)
	assert.Equal(t, 12, p.CountCommands())

	var top int
	Walk(p.Body, func(Command) bool {
		top++
		return false
	})
	assert.Equal(t, len(p.Body), top)
}

func TestCanonicalEncodingIsStable(t *testing.T) {
	var first []byte
	for i := 0; i < 50; i++ {
		data, err := Marshal(sample(t))
		require.NoError(t, err)
		if i == 0 {
			first = data
			continue
		}
		require.Equal(t, first, data, "run %d: canonical form not stable", i)
	}

	cp, err := Unmarshal(first)
	require.NoError(t, err)
	assert.Equal(t, []string{"output", "fs_read", "env_read"}, cp.Effects)
	assert.Len(t, cp.Body, 7)
	assert.Equal(t, "block", cp.Body[3].Type)
	assert.True(t, cp.Body[3].Breakable)
}

func TestDigest(t *testing.T) {
	a, err := Digest(sample(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a, "blake2b:"))
	assert.Len(t, a, len("blake2b:")+64)

	changed := sample(t)
	changed.Body[len(changed.Body)-1] = &Exit{Code: 1}
	b, err := Digest(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// Taint participates in the hash.
	relabeled := sample(t)
	relabeled.Body[0].(*Assign).Value.(*Template).Taint = types.Literal
	c, err := Digest(relabeled)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestUnmarshalRejectsVersion(t *testing.T) {
	cp, err := sample(t).Canonicalize()
	require.NoError(t, err)
	cp.Version = 9
	data, err := cp.MarshalBinary()
	require.NoError(t, err)
	_, err = Unmarshal(data)
	assert.ErrorContains(t, err, "unsupported canonical version")
}
