package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/rash/core/ast"
	"github.com/opal-lang/rash/core/types"
)

var ignoreSpans = cmpopts.IgnoreTypes(ast.Span{})

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse([]byte(src))
	require.NoError(t, err)
	return prog
}

func parseError(t *testing.T, src string) *ParseError {
	t.Helper()
	_, err := Parse([]byte(src))
	require.Error(t, err, "expected parse error for %q", src)
	var pe *ParseError
	require.True(t, errors.As(err, &pe), "expected *ParseError, got %T", err)
	return pe
}

func TestParseFunctions(t *testing.T) {
	prog := mustParse(t, `
fn greet(name: &str, times: i32, loud: bool) -> String {
    return name.to_string();
}

fn main() {
    let who: &'static str = "world";
    println!("hi {}", greet(who, 2, false));
}
`)

	want := &ast.Program{Functions: []*ast.Function{
		{
			Name: "greet",
			Params: []*ast.Param{
				{Name: "name", Type: types.Str},
				{Name: "times", Type: types.I32},
				{Name: "loud", Type: types.Bool},
			},
			Return: types.Str,
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.ReturnStmt{Value: &ast.MethodCallExpr{Receiver: &ast.Ident{Name: "name"}, Method: "to_string"}},
			}},
		},
		{
			Name:   "main",
			Return: types.Unit,
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.LetStmt{Name: "who", Annotation: types.Str, Value: &ast.StringLit{Value: "world"}},
				&ast.ExprStmt{X: &ast.CallExpr{
					Name:  "println!",
					Macro: true,
					Args: []ast.Expr{&ast.FormatExpr{Segments: []ast.FormatSegment{
						{Text: "hi "},
						{Arg: &ast.CallExpr{Name: "greet", Args: []ast.Expr{
							&ast.Ident{Name: "who"},
							&ast.IntLit{Value: 2},
							&ast.BoolLit{Value: false},
						}}},
					}}},
				}},
			}},
		},
	}}

	if diff := cmp.Diff(want, prog, ignoreSpans); diff != "" {
		t.Errorf("AST mismatch (-want +got):\n%s", diff)
	}
}

func TestParseIfChain(t *testing.T) {
	prog := mustParse(t, `fn main() {
    let x = 42;
    if x < 0 { echo("A"); } else if x == 0 { echo("B"); } else if x < 100 { echo("C"); } else { echo("D"); }
}`)

	stmt, ok := prog.Functions[0].Body.Stmts[1].(*ast.IfStmt)
	require.True(t, ok)
	require.Len(t, stmt.Arms, 3)
	require.NotNil(t, stmt.Else)

	ops := []ast.BinaryOp{ast.OpLt, ast.OpEq, ast.OpLt}
	for i, arm := range stmt.Arms {
		bin, ok := arm.Cond.(*ast.BinaryExpr)
		require.True(t, ok)
		assert.Equal(t, ops[i], bin.Op)
	}
}

func TestPrecedence(t *testing.T) {
	prog := mustParse(t, `fn main() { let v = 1 + 2 * 3 - 4 % 5 == 0 || !false && true; }`)
	let := prog.Functions[0].Body.Stmts[0].(*ast.LetStmt)

	// ((1 + (2*3)) - (4%5)) == 0  ||  ((!false) && true)
	want := &ast.BinaryExpr{
		Op: ast.OpOr,
		Left: &ast.BinaryExpr{
			Op: ast.OpEq,
			Left: &ast.BinaryExpr{
				Op: ast.OpSub,
				Left: &ast.BinaryExpr{
					Op:    ast.OpAdd,
					Left:  &ast.IntLit{Value: 1},
					Right: &ast.BinaryExpr{Op: ast.OpMul, Left: &ast.IntLit{Value: 2}, Right: &ast.IntLit{Value: 3}},
				},
				Right: &ast.BinaryExpr{Op: ast.OpRem, Left: &ast.IntLit{Value: 4}, Right: &ast.IntLit{Value: 5}},
			},
			Right: &ast.IntLit{Value: 0},
		},
		Right: &ast.BinaryExpr{
			Op:    ast.OpAnd,
			Left:  &ast.UnaryExpr{Op: ast.OpNot, X: &ast.BoolLit{Value: false}},
			Right: &ast.BoolLit{Value: true},
		},
	}

	if diff := cmp.Diff(want, let.Value, ignoreSpans); diff != "" {
		t.Errorf("precedence mismatch (-want +got):\n%s", diff)
	}
}

func TestNegativeLiterals(t *testing.T) {
	prog := mustParse(t, `fn main() { let a = -2147483648; let b = -(3); let c = 5 - -1; }`)
	stmts := prog.Functions[0].Body.Stmts

	assert.Equal(t, int64(-2147483648), stmts[0].(*ast.LetStmt).Value.(*ast.IntLit).Value)

	neg, ok := stmts[1].(*ast.LetStmt).Value.(*ast.UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpNeg, neg.Op)

	sub := stmts[2].(*ast.LetStmt).Value.(*ast.BinaryExpr)
	assert.Equal(t, int64(-1), sub.Right.(*ast.IntLit).Value)
}

// TestTailExpressions verifies trailing expressions in tail position become implicit returns
func TestTailExpressions(t *testing.T) {
	prog := mustParse(t, `
fn pick(flag: bool) -> i32 {
    if flag { 1 } else { 2 }
}
fn main() {
    { echo("inner") }
    echo("done")
}`)

	ifStmt := prog.Function("pick").Body.Stmts[0].(*ast.IfStmt)
	ret, ok := ifStmt.Arms[0].Body.Stmts[0].(*ast.ReturnStmt)
	require.True(t, ok, "if arm tail should be an implicit return")
	assert.True(t, ret.Implicit)
	_, ok = ifStmt.Else.Stmts[0].(*ast.ReturnStmt)
	assert.True(t, ok)

	main := prog.Function("main").Body.Stmts
	inner := main[0].(*ast.BlockStmt).Body.Stmts[0]
	exprStmt, ok := inner.(*ast.ExprStmt)
	require.True(t, ok, "non-tail block keeps an expression statement")
	assert.True(t, exprStmt.Tail)

	last, ok := main[1].(*ast.ReturnStmt)
	require.True(t, ok)
	assert.True(t, last.Implicit)
}

func TestParseMatch(t *testing.T) {
	prog := mustParse(t, `fn main() {
    let code = 3;
    match code {
        0 => echo("zero"),
        1 | 2 | -3 => { echo("small"); }
        _ => echo("other"),
    }
}`)

	m := prog.Functions[0].Body.Stmts[1].(*ast.MatchStmt)
	require.Len(t, m.Arms, 3)
	assert.Len(t, m.Arms[0].Patterns, 1)
	assert.Len(t, m.Arms[1].Patterns, 3)
	assert.Equal(t, int64(-3), m.Arms[1].Patterns[2].(*ast.IntLit).Value)
	assert.True(t, m.Arms[2].Wildcard)
	assert.Empty(t, m.Arms[2].Patterns)
}

func TestFormatStrings(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		format []ast.FormatSegment
	}{
		{
			name:   "positional",
			src:    `format!("a{}b{}", x, y)`,
			format: []ast.FormatSegment{{Text: "a"}, {Arg: &ast.Ident{Name: "x"}}, {Text: "b"}, {Arg: &ast.Ident{Name: "y"}}},
		},
		{
			name:   "inline_capture",
			src:    `format!("hello {name}!")`,
			format: []ast.FormatSegment{{Text: "hello "}, {Arg: &ast.Ident{Name: "name"}}, {Text: "!"}},
		},
		{
			name:   "escaped_braces",
			src:    `format!("{{literal}} {}", x)`,
			format: []ast.FormatSegment{{Text: "{literal} "}, {Arg: &ast.Ident{Name: "x"}}},
		},
		{
			name:   "no_placeholders",
			src:    `format!("plain")`,
			format: []ast.FormatSegment{{Text: "plain"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := mustParse(t, "fn main() { let s = "+tt.src+"; }")
			got := prog.Functions[0].Body.Stmts[0].(*ast.LetStmt).Value.(*ast.FormatExpr)
			if diff := cmp.Diff(tt.format, got.Segments, ignoreSpans); diff != "" {
				t.Errorf("segments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmptyPrintln(t *testing.T) {
	prog := mustParse(t, `fn main() { println!(); }`)
	call := prog.Functions[0].Body.Stmts[0].(*ast.ExprStmt).X.(*ast.CallExpr)
	assert.Equal(t, "println!", call.Name)
	assert.Empty(t, call.Args[0].(*ast.FormatExpr).Segments)
}

// TestRejectedConstructs verifies every construct outside the subset fails with a named message
func TestRejectedConstructs(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind ErrorKind
		msg  string
	}{
		{"for_loop", `for i in 0..3 { }`, ErrorUnsupported, "`for` loops are not supported"},
		{"while_loop", `while true { }`, ErrorUnsupported, "`while` loops"},
		{"loop", `loop { }`, ErrorUnsupported, "`loop` loops"},
		{"break", `break;`, ErrorUnsupported, "`break` is not supported"},
		{"let_mut", `let mut x = 1;`, ErrorUnsupported, "`let mut`"},
		{"assignment", `x = 1;`, ErrorUnsupported, "assignment is not supported"},
		{"compound_assignment", `x += 1;`, ErrorUnsupported, "compound assignment"},
		{"unsafe", `unsafe { }`, ErrorUnsupported, "unsafe code"},
		{"closure", `let f = |x| x;`, ErrorUnsupported, "closures"},
		{"reference", `let r = &x;`, ErrorUnsupported, "references are not supported"},
		{"index", `let c = s[0];`, ErrorUnsupported, "index access"},
		{"field", `let l = s.length;`, ErrorUnsupported, "field access"},
		{"tuple_field", `let l = s.0;`, ErrorUnsupported, "field access"},
		{"unknown_method", `let t = s.trim();`, ErrorUnsupported, "method `trim` is not supported"},
		{"method_args", `let t = s.clone(1);`, ErrorUnsupported, "takes no arguments"},
		{"char_literal", `let c = 'x';`, ErrorUnsupported, "character literals"},
		{"float_literal", `let f = 1.5;`, ErrorUnsupported, "floating point literals"},
		{"overflow", `let n = 2147483648;`, ErrorUnsupported, "out of range for i32"},
		{"huge", `let n = 99999999999999999999999;`, ErrorUnsupported, "out of range for i32"},
		{"suffix", `let n = 5u8;`, ErrorUnsupported, "integer suffix `u8`"},
		{"vec", `let v = vec![1, 2];`, ErrorUnsupported, "`vec!`"},
		{"unknown_macro", `panic!("boom");`, ErrorUnsupported, "macro `panic!` is not supported"},
		{"format_spec", `println!("{:?}", x);`, ErrorUnsupported, "format specifiers"},
		{"format_width", `println!("{:>8}", x);`, ErrorUnsupported, "format specifiers"},
		{"too_few_args", `println!("{} {}", x);`, ErrorSyntax, "2 placeholder(s) but 1 argument(s)"},
		{"too_many_args", `println!("{}", x, y);`, ErrorSyntax, "1 placeholder(s) but 2 argument(s)"},
		{"unmatched_brace", `println!("{", x);`, ErrorSyntax, "unmatched `{`"},
		{"non_literal_format", `println!(x);`, ErrorUnsupported, "format string must be a string literal"},
		{"positional_index", `println!("{0}", x);`, ErrorUnsupported, "positional format arguments"},
		{"chained_compare", `let b = 1 < 2 < 3;`, ErrorUnsupported, "cannot be chained"},
		{"bitwise", `let b = 1 | 2;`, ErrorUnsupported, "bitwise operators"},
		{"cast", `let b = 1 as i32;`, ErrorUnsupported, "`as` casts"},
		{"question", `foo()?;`, ErrorUnsupported, "`?` operator"},
		{"path", `std::process::exit(1);`, ErrorUnsupported, "paths are not supported"},
		{"if_expr", `let v = if true { 1 } else { 2 };`, ErrorUnsupported, "if expressions"},
		{"if_let", `if let x = 1 { }`, ErrorUnsupported, "`if let`"},
		{"match_guard", `match x { 1 if true => echo("a"), _ => echo("b") }`, ErrorUnsupported, "match guards"},
		{"binding_pattern", `match x { y => echo("a") }`, ErrorUnsupported, "binding patterns"},
		{"range_pattern", `match x { 1..5 => echo("a") }`, ErrorUnsupported, "range patterns"},
		{"nested_fn", `fn inner() {}`, ErrorUnsupported, "nested functions"},
		{"attribute", `#[allow(dead_code)] let x = 1;`, ErrorUnsupported, "attributes"},
		{"tuple", `let t = (1, 2);`, ErrorUnsupported, "tuples"},
		{"array", `let a = [1, 2];`, ErrorUnsupported, "arrays"},
		{"uninitialized", `let x;`, ErrorUnsupported, "must be initialized"},
		{"label", `'outer: loop {}`, ErrorUnsupported, "loop labels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := parseError(t, "fn main() {\n    "+tt.body+"\n}")
			assert.Equal(t, tt.kind, pe.Kind, "message: %s", pe.Message)
			assert.Contains(t, pe.Message, tt.msg)
			assert.Equal(t, 2, pe.Span.Start.Line, "error should point into the body")
		})
	}
}

func TestRejectedItems(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"generic_fn", `fn id<T>(x: T) -> T { x }`, "generics"},
		{"struct", `struct Point { x: i32 }`, "struct definitions"},
		{"enum", `enum Color { Red }`, "enum definitions"},
		{"impl", `impl Foo {}`, "impl blocks"},
		{"trait", `trait Foo {}`, "traits"},
		{"use", `use std::fs;`, "`use` declarations"},
		{"const", `const X: i32 = 1;`, "`const` items"},
		{"static", `static X: i32 = 1;`, "`static` items"},
		{"mod", `mod inner {}`, "modules"},
		{"pub", `pub fn main() {}`, "visibility modifiers"},
		{"mut_param", `fn f(mut x: i32) {}`, "mutable parameters"},
		{"self_param", `fn f(&self) {}`, "methods"},
		{"vec_type", `fn f(v: Vec<i32>) {}`, "generic type `Vec<...>`"},
		{"u64", `fn f(v: u64) {}`, "integer type `u64`"},
		{"f64", `fn f(v: f64) {}`, "floating point types"},
		{"char_type", `fn f(v: char) {}`, "`char` is not supported"},
		{"mut_ref", `fn f(v: &mut str) {}`, "mutable references"},
		{"ref_int", `fn f(v: &i32) {}`, "only `&str` references"},
		{"tuple_type", `fn f(v: (i32, i32)) {}`, "tuple types"},
		{"slice_type", `fn f(v: &[i32]) {}`, "only `&str` references"},
		{"array_type", `fn f(v: [i32; 3]) {}`, "array and slice types"},
		{"custom_type", `fn f(v: Config) {}`, "type `Config` is not supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := parseError(t, tt.src)
			assert.Equal(t, ErrorUnsupported, pe.Kind, "message: %s", pe.Message)
			assert.Contains(t, pe.Message, tt.msg)
		})
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"missing_semicolon", "fn main() { let x = 1 }", "expected `;`"},
		{"unclosed_block", "fn main() {", "unclosed block opened at 1:11"},
		{"missing_paren", "fn main( {}", "expected a parameter name"},
		{"stray_token", "let x = 1;", "expected a function definition"},
		{"unterminated_string", `fn main() { echo("abc); }`, "unterminated string literal"},
		{"bad_escape", `fn main() { echo("\q"); }`, "unknown character escape"},
		{"empty_format", `fn main() { let s = format!(); }`, "requires a format string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := parseError(t, tt.src)
			assert.Contains(t, pe.Message, tt.msg)
		})
	}
}

func TestInvalidUTF8(t *testing.T) {
	pe := parseError(t, "fn main() {\n  echo(\"a\xffb\");\n}")
	assert.Equal(t, ErrorEncoding, pe.Kind)
	assert.Equal(t, 2, pe.Span.Start.Line)
	assert.Equal(t, 10, pe.Span.Start.Column)
	assert.Equal(t, 21, pe.Span.Start.Offset)
	assert.Contains(t, pe.Error(), "2:10: invalid encoding: invalid UTF-8 byte 0xff")
}

func TestDepthLimit(t *testing.T) {
	deep := "fn main() { " + strings.Repeat("{ ", 300) + strings.Repeat("} ", 300) + "}"
	pe := parseError(t, deep)
	assert.Equal(t, ErrorLimit, pe.Kind)

	_, err := Parse([]byte(deep), WithMaxDepth(400))
	assert.NoError(t, err)

	parens := "fn main() { let x = " + strings.Repeat("(", 50) + "1" + strings.Repeat(")", 50) + "; }"
	_, err = Parse([]byte(parens), WithMaxDepth(20))
	var limit *ParseError
	require.True(t, errors.As(err, &limit))
	assert.Equal(t, ErrorLimit, limit.Kind)
}

func TestFlatChainLimit(t *testing.T) {
	terms := make([]string, 1000)
	for i := range terms {
		terms[i] = "x"
	}
	flat := "fn main() { let x = 1; let y = " + strings.Join(terms, " + ") + "; }"
	prog, err := Parse([]byte(flat))
	require.NoError(t, err, "a long flat chain is not deep nesting")

	let, ok := prog.Functions[0].Body.Stmts[1].(*ast.LetStmt)
	require.True(t, ok)
	sum, ok := let.Value.(*ast.BinaryExpr)
	require.True(t, ok)
	_, ok = sum.Right.(*ast.Ident)
	assert.True(t, ok, "+ associates to the left")

	_, err = Parse([]byte(flat), WithMaxChain(500))
	var limit *ParseError
	require.True(t, errors.As(err, &limit))
	assert.Equal(t, ErrorLimit, limit.Kind)
	assert.Contains(t, limit.Message, "maximum length of 500 operators")

	_, err = Parse([]byte(flat), WithMaxDepth(20))
	assert.NoError(t, err, "the nesting limit does not apply to chains")
}

func TestTelemetry(t *testing.T) {
	var telemetry ParseTelemetry
	_, err := Parse([]byte(`fn a() {} fn main() { a(); }`), WithTelemetryTiming(&telemetry))
	require.NoError(t, err)

	assert.Equal(t, 2, telemetry.FunctionCount)
	assert.Equal(t, 17, telemetry.TokenCount)
	assert.Equal(t, 0, telemetry.ErrorCount)
	assert.GreaterOrEqual(t, telemetry.MaxDepth, 1)
}

func TestEmptyProgram(t *testing.T) {
	prog := mustParse(t, "// nothing here\n")
	assert.Empty(t, prog.Functions)
}
