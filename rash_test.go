package rash

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/opal-lang/rash/core/invariant"
	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/builtins"
	"github.com/opal-lang/rash/runtime/checker"
	"github.com/opal-lang/rash/runtime/emitter"
	"github.com/opal-lang/rash/runtime/ir"
	"github.com/opal-lang/rash/runtime/parser"
	"github.com/opal-lang/rash/runtime/validation"
)

// execution is what a script did when run in-process.
type execution struct {
	Stdout string
	Execs  [][]string // External commands, which are recorded but never run
}

// passthrough are the external commands execute really runs.
var passthrough = map[string]bool{"wc": true}

func execute(t *testing.T, script string, args ...string) execution {
	t.Helper()
	file, err := syntax.NewParser().Parse(strings.NewReader(script), "")
	require.NoError(t, err, "script:\n%s", script)

	var out execution
	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.StdIO(nil, &stdout, &stderr),
		interp.Env(expand.ListEnviron("HOME=/home/rash", "PATH="+os.Getenv("PATH"))),
		interp.Params(append([]string{"--"}, args...)...),
		interp.ExecHandlers(func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
			return func(ctx context.Context, argv []string) error {
				if passthrough[argv[0]] {
					return next(ctx, argv)
				}
				out.Execs = append(out.Execs, argv)
				return nil
			}
		}),
	)
	require.NoError(t, err)
	require.NoError(t, runner.Run(context.Background(), file), "stderr: %s", stderr.String())
	out.Stdout = stdout.String()
	return out
}

func TestProgramFilesScenario(t *testing.T) {
	src := `fn main() {
    let path = "/Program Files/MyApp";
    mkdir(path);
}
`
	res, err := Compile(src, Config{})
	require.NoError(t, err)

	assert.Contains(t, res.Script, `path='/Program Files/MyApp'`)
	assert.Contains(t, res.Script, `mkdir -p -- "${path}"`)
	assert.True(t, res.Effects.Has(types.EffectFSWrite))

	got := execute(t, res.Script)
	want := [][]string{{"mkdir", "-p", "--", "/Program Files/MyApp"}}
	if diff := cmp.Diff(want, got.Execs); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestIfChainScenario(t *testing.T) {
	src := `fn main() {
    let x = 42;
    if x < 0 {
        echo("A");
    } else if x == 0 {
        echo("B");
    } else if x < 100 {
        echo("C");
    } else {
        echo("D");
    }
}
`
	for _, d := range []emitter.Dialect{emitter.DialectPOSIX, emitter.DialectBash, emitter.DialectDash} {
		t.Run(d.String(), func(t *testing.T) {
			script, err := Transpile(src, Config{Dialect: d, Verify: validation.LevelStrict})
			require.NoError(t, err)
			assert.Equal(t, 1, strings.Count(script, "\nif "), "one conditional chain")
			assert.Equal(t, 2, strings.Count(script, "\nelif "))
			assert.Equal(t, "C\n", execute(t, script).Stdout)
		})
	}
}

func TestUnicodeFidelity(t *testing.T) {
	texts := []string{
		"héllo wörld",
		"日本語テキスト",
		"emoji 🦀🐚",
		"quotes ' and \" and `",
		"tab\tnewline\nend",
		"$HOME ${x} $(id) %s %%",
	}
	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			lit := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\t", `\t`, "\n", `\n`).Replace(text)
			script, err := Transpile(`fn main() { echo("`+lit+`"); }`, Config{})
			require.NoError(t, err)
			assert.Equal(t, text+"\n", execute(t, script).Stdout)
		})
	}
}

func TestInjectionSafety(t *testing.T) {
	src := `fn main() {
    let a = arg(1);
    echo(a);
    mkdir(format!("/tmp/{}", a));
    if a == "x" {
        echo("matched");
    }
}
`
	hostile := []string{
		"$(touch /tmp/pwned)",
		"`touch /tmp/pwned`",
		"; touch /tmp/pwned",
		"' ; touch /tmp/pwned ; '",
		"\" && touch /tmp/pwned && \"",
		"*",
		"-n",
		"a b\tc",
		"${IFS}x",
	}
	for _, dialect := range []emitter.Dialect{emitter.DialectPOSIX, emitter.DialectBash} {
		script, err := Transpile(src, Config{Dialect: dialect})
		require.NoError(t, err)
		for _, arg := range hostile {
			t.Run(dialect.String()+"/"+arg, func(t *testing.T) {
				got := execute(t, script, arg)
				assert.Equal(t, arg+"\n", got.Stdout)
				want := [][]string{{"mkdir", "-p", "--", "/tmp/" + arg}}
				if diff := cmp.Diff(want, got.Execs); diff != "" {
					t.Errorf("commands mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestBooleanCanonicalization(t *testing.T) {
	src := `fn is_big(n: i32) -> bool {
    n > 10
}

fn main() {
    let yes = 3 > 2;
    let no = !yes;
    let lit = true;
    let big = is_big(arg(1).len());
    println!("{} {} {} {}", yes, no, lit, big);
}
`
	script, err := Transpile(src, Config{})
	require.NoError(t, err)
	assert.Contains(t, script, `lit='true'`)

	assert.Equal(t, "true false true false\n", execute(t, script, "short").Stdout)
	assert.Equal(t, "true false true true\n", execute(t, script, "much longer argument").Stdout)
}

func TestLenCountsBytes(t *testing.T) {
	src := `fn main() {
    let s = "héllo";
    let w = "日本語";
    let a = s.len();
    let b = w.len() * 2;
    println!("{} {}", a, b);
}
`
	for _, d := range []emitter.Dialect{emitter.DialectPOSIX, emitter.DialectBash, emitter.DialectDash} {
		t.Run(d.String(), func(t *testing.T) {
			script, err := Transpile(src, Config{Dialect: d, Verify: validation.LevelStrict})
			require.NoError(t, err)
			assert.NotContains(t, script, "${#")
			got := execute(t, script)
			assert.Equal(t, "6 18\n", got.Stdout)
			assert.Empty(t, got.Execs)
		})
	}
}

func TestNegationKeepsBindings(t *testing.T) {
	script, err := Transpile(`fn main() {
    let x = 5;
    let y = - -x;
    let z = x - -y;
    println!("y={} x={} z={}", y, x, z);
}
`, Config{Dialect: emitter.DialectBash, Verify: validation.LevelStrict})
	require.NoError(t, err)
	assert.Equal(t, "y=5 x=5 z=10\n", execute(t, script).Stdout)
}

func TestDeterminism(t *testing.T) {
	src := `fn greet(name: &str) {
    println!("hello {}", name);
}

fn main() {
    let home = env("HOME");
    greet(home);
    greet("world");
    match arg(1).len() {
        0 => echo("none"),
        _ => echo("some"),
    }
}
`
	first, err := Compile(src, Config{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Digest, "blake2b:"))
	irHash, err := ir.Digest(first.IR)
	require.NoError(t, err)
	assert.Equal(t, irHash, first.IRHash)

	var wg sync.WaitGroup
	results := make([]*Result, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = Compile(src, Config{})
		}()
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, first.Script, res.Script)
		assert.Equal(t, first.Digest, res.Digest)
		assert.Equal(t, first.IRHash, res.IRHash)
	}

	bash, err := Compile(src, Config{Dialect: emitter.DialectBash})
	require.NoError(t, err)
	assert.NotEqual(t, first.Digest, bash.Digest, "the shebang differs")
	assert.Equal(t, first.IRHash, bash.IRHash, "the IR does not depend on the dialect")
}

func TestEffects(t *testing.T) {
	res, err := Compile(`fn main() {
    if exists("/etc/passwd") {
        echo(env("USER"));
    }
}`, Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"output", "fs_read", "env_read"}, res.Effects.Names())

	res, err = Compile(`fn main() { let x = 1; }`, Config{Verify: validation.LevelNone})
	require.NoError(t, err)
	assert.True(t, res.Effects.IsPure())
}

func TestStageErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		cfg   Config
		stage Stage
		as    func(error) bool
	}{
		{
			name:  "syntax",
			src:   `fn main( {`,
			stage: StageParse,
			as:    func(err error) bool { var e *parser.ParseError; return errors.As(err, &e) },
		},
		{
			name:  "encoding",
			src:   "fn main() { echo(\"\xff\"); }",
			stage: StageParse,
			as:    func(err error) bool { var e *parser.ParseError; return errors.As(err, &e) },
		},
		{
			name:  "recursion",
			src:   `fn f() { f(); } fn main() { f(); }`,
			stage: StageValidate,
			as:    func(err error) bool { var e *validation.ValidationError; return errors.As(err, &e) },
		},
		{
			name:  "division_by_zero",
			src:   `fn main() { let x = 1 / 0; echo(x.to_string()); }`,
			stage: StageValidate,
			as:    func(err error) bool { var e *validation.ValidationError; return errors.As(err, &e) },
		},
		{
			name:  "unused_strict",
			src:   `fn main() { let x = 1; }`,
			cfg:   Config{Verify: validation.LevelStrict},
			stage: StageValidate,
			as:    func(err error) bool { var e *validation.ValidationError; return errors.As(err, &e) },
		},
		{
			name:  "nul_byte",
			src:   `fn main() { echo("a\0b"); }`,
			stage: StageLower,
			as:    func(err error) bool { var e *checker.TaintError; return errors.As(err, &e) },
		},
		{
			name:  "inline_limit",
			src:   `fn f() { echo("x"); } fn main() { f(); f(); }`,
			cfg:   Config{MaxInlinedCalls: 1},
			stage: StageLower,
			as:    func(err error) bool { var e *checker.TaintError; return errors.As(err, &e) },
		},
		{
			name:  "bad_dialect",
			src:   `fn main() {}`,
			cfg:   Config{Dialect: emitter.Dialect(9)},
			stage: StageConfig,
			as:    func(err error) bool { var e *ConfigError; return errors.As(err, &e) && e.Field == "dialect" },
		},
		{
			name:  "bad_runtime_header",
			src:   `fn main() {}`,
			cfg:   Config{RuntimeLibrary: "rash_println() { :; }\n"},
			stage: StageConfig,
			as: func(err error) bool {
				var e *ConfigError
				return errors.As(err, &e) && e.Field == "runtime_library"
			},
		},
		{
			name:  "incompatible_runtime",
			src:   `fn main() {}`,
			cfg:   Config{RuntimeLibrary: "# rash-runtime: v2.0.0\n"},
			stage: StageConfig,
			as:    func(err error) bool { return errors.Is(err, builtins.ErrIncompatibleRuntime) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := Transpile(tt.src, tt.cfg)
			require.Error(t, err)
			assert.Empty(t, script)

			var stageErr *Error
			require.True(t, errors.As(err, &stageErr), "error %T is not a *rash.Error", err)
			assert.Equal(t, tt.stage, stageErr.Stage)
			assert.True(t, strings.HasPrefix(err.Error(), string(tt.stage)+": "), err.Error())
			assert.True(t, tt.as(err), "unexpected cause %T: %v", stageErr.Err, err)

			var internal *InternalError
			assert.False(t, errors.As(err, &internal), "no input may cause an internal error")
		})
	}
}

func TestStageRecoversPanics(t *testing.T) {
	c := &compilation{logger: (&Config{}).logger()}

	err := c.stage(StageLower, func() ([]any, error) {
		invariant.Invariant(false, "shell name %q allocated twice", "x")
		return nil, nil
	})
	var internal *InternalError
	require.True(t, errors.As(err, &internal))
	assert.Equal(t, StageLower, internal.Stage)
	assert.NotEmpty(t, internal.Stack)

	var violation *invariant.Violation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "INVARIANT", violation.Kind)
	assert.Contains(t, err.Error(), `shell name "x" allocated twice`)

	err = c.stage(StageEmit, func() ([]any, error) {
		panic("plain value")
	})
	require.True(t, errors.As(err, &internal))
	assert.Nil(t, internal.Unwrap())
	assert.Equal(t, "emit: internal error during emit: plain value", err.Error())
}

func TestStageLogging(t *testing.T) {
	var buf bytes.Buffer
	_, err := Compile(`fn main() { echo("hi"); }`, Config{Logger: DebugLogger(&buf)})
	require.NoError(t, err)

	logs := buf.String()
	for _, stage := range []Stage{StageConfig, StageParse, StageValidate, StageCheck, StageLower, StageEmit} {
		assert.Contains(t, logs, "stage="+string(stage))
	}
	assert.NotContains(t, logs, "stage="+string(StageVerify), "verify only runs at strict")
	assert.Contains(t, logs, "inlined_calls=0")
	assert.NotContains(t, logs, "time=")
	assert.NotContains(t, logs, "level=")
}

func TestCustomCatalog(t *testing.T) {
	cat, err := builtins.LoadYAML([]byte(`
requires_runtime: v1.0.0
builtins:
  - name: shout
    kind: command
    params: [{name: text, type: str}]
    effects: [output]
    template: "rash_println %0"
`))
	require.NoError(t, err)

	script, err := Transpile(`fn main() { shout("hey"); }`, Config{Catalog: cat})
	require.NoError(t, err)
	assert.Equal(t, "hey\n", execute(t, script).Stdout)

	_, err = Transpile(`fn main() { echo("hey"); }`, Config{Catalog: cat})
	var verr *validation.ValidationError
	require.True(t, errors.As(err, &verr), "echo is not in the custom catalog")
}

func TestCustomRuntimeLibrary(t *testing.T) {
	lib := "# rash-runtime: v1.2.0\nrash_println() { printf '[%s]\\n' \"$1\"; }"
	script, err := Transpile(`fn main() { echo("x"); }`, Config{RuntimeLibrary: lib})
	require.NoError(t, err)
	assert.Contains(t, script, lib+"\n\n")
	assert.Equal(t, "[x]\n", execute(t, script).Stdout)
}

func FuzzTranspileNoPanic(f *testing.F) {
	seeds := []string{
		`fn main() {}`,
		`fn main() { echo("hi"); }`,
		`fn main() { let x = 42; if x < 0 { echo("A"); } else { echo("B"); } }`,
		`fn f(s: &str) -> String { format!("<{}>", s) } fn main() { echo(f(env("HOME"))); }`,
		`fn main() { match arg(1).len() { 0 => echo("z"), _ => {} } }`,
		`fn main() { let b = exists("/") || !true; println!("{}", b); }`,
		`fn main( {`,
		`fn f() { f(); } fn main() { f(); }`,
		`fn main() { echo("a\0b"); }`,
		"fn main() { echo(\"\xff\"); }",
		`fn main() { let s = "x"; let n = -(s.len() * 2) % 3; echo(n.to_string()); }`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, src string) {
		res, err := Compile(src, Config{Verify: validation.LevelStrict})
		if err != nil {
			var stageErr *Error
			require.True(t, errors.As(err, &stageErr), "error %T is not a *rash.Error", err)
			var internal *InternalError
			require.False(t, errors.As(err, &internal), "internal error: %v\n%s", err, internalStack(err))
			return
		}
		require.NotEmpty(t, res.Script)
	})
}

func internalStack(err error) string {
	var internal *InternalError
	if errors.As(err, &internal) {
		return string(internal.Stack)
	}
	return ""
}
