package rex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"rezgo/internal/cache"
	"rezgo/internal/model"
)

func TestParseBasicForms(t *testing.T) {
	p := NewParser(nil)
	ops, err := p.Parse("setenv PATH /usr/bin\nprependenv PATH $PYTHON_ROOT/bin:\n# a comment\nunsetenv TEMP\nalias py=python3\nsource /etc/profile.d/site\necho hello world")
	require.NoError(t, err)
	require.Len(t, ops, 7)

	require.Equal(t, model.OpSet, ops[0].Kind)
	require.Equal(t, "PATH", ops[0].Name)
	require.Equal(t, "/usr/bin", ops[0].Value)

	require.Equal(t, model.OpPrepend, ops[1].Kind)
	require.Equal(t, "$PYTHON_ROOT/bin", ops[1].Value)
	require.Equal(t, ":", ops[1].Sep)

	require.Equal(t, model.OpComment, ops[2].Kind)
	require.Equal(t, model.OpUnset, ops[3].Kind)
	require.Equal(t, model.OpAlias, ops[4].Kind)
	require.Equal(t, "py", ops[4].Name)
	require.Equal(t, "python3", ops[4].Value)
	require.Equal(t, model.OpSource, ops[5].Kind)
	require.Equal(t, model.OpCommand, ops[6].Kind)
	require.Equal(t, []string{"echo", "hello", "world"}, ops[6].Argv)
}

func TestParseIfElse(t *testing.T) {
	p := NewParser(nil)
	script := "if $OS == \"linux\" {\nsetenv LIBDIR /usr/lib\n} else {\nsetenv LIBDIR /opt/lib\n}"
	ops, err := p.Parse(script)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	op := ops[0]
	require.Equal(t, model.OpIf, op.Kind)
	require.Equal(t, "OS", op.Cond.Var)
	require.Equal(t, "linux", op.Cond.Literal)
	require.Len(t, op.Then, 1)
	require.Len(t, op.Else, 1)
}

func TestParseFunctionBlock(t *testing.T) {
	p := NewParser(nil)
	ops, err := p.Parse("function activate {\necho activating\n}")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, model.OpFunction, ops[0].Kind)
	require.Equal(t, "activate", ops[0].Name)
	require.Equal(t, "echo activating", ops[0].Value)
}

func TestParseRejectsAmbiguousSelfReference(t *testing.T) {
	p := NewParser(nil)
	_, err := p.Parse("setenv PATH $PATH:/x:$PATH")
	require.Error(t, err)
}

func TestParseRoundTripStructurallyEqual(t *testing.T) {
	p := NewParser(nil)
	script := "setenv FOO bar\nprependenv PATH /opt/bin:\nunsetenv BAZ"
	ops, err := p.Parse(script)
	require.NoError(t, err)

	rendered, err := NewRenderer(model.ShellBash).Render(model.EnvironmentSpecification{Ops: ops})
	require.NoError(t, err)
	require.Contains(t, rendered, "export FOO=\"bar\"")

	// Re-parsing the renderer's export lines is not the round-trip the
	// parser guarantees; the structural law is parse(parse-input) twice.
	again, err := p.Parse(script)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(ops, again))
}

func TestRenderBashScenario(t *testing.T) {
	p := NewParser(nil)
	ops, err := p.Parse("setenv PATH /usr/bin\nprependenv PATH $PYTHON_ROOT/bin:")
	require.NoError(t, err)
	out, err := NewRenderer(model.ShellBash).Render(model.EnvironmentSpecification{Ops: ops})
	require.NoError(t, err)
	require.Equal(t, "export PATH=\"/usr/bin\"\nexport PATH=\"$PYTHON_ROOT/bin:$PATH\"\n", out)
}

func TestRenderPerShellSetForms(t *testing.T) {
	op := model.EnvOp{Kind: model.OpSet, Name: "FOO", Value: "bar"}
	spec := model.EnvironmentSpecification{Ops: []model.EnvOp{op}}

	cases := map[model.ShellType]string{
		model.ShellBash:       "export FOO=\"bar\"\n",
		model.ShellZsh:        "export FOO=\"bar\"\n",
		model.ShellFish:       "set -x FOO \"bar\"\n",
		model.ShellCmd:        "set FOO=bar\n",
		model.ShellPowerShell: "$env:FOO = \"bar\"\n",
	}
	for shell, want := range cases {
		out, err := NewRenderer(shell).Render(spec)
		require.NoError(t, err)
		require.Equal(t, want, out, "shell %s", shell)
	}
}

func TestRenderEscapesQuotes(t *testing.T) {
	spec := model.EnvironmentSpecification{Ops: []model.EnvOp{
		{Kind: model.OpSet, Name: "MSG", Value: `say "hi" ` + "`now`"},
	}}
	out, err := NewRenderer(model.ShellBash).Render(spec)
	require.NoError(t, err)
	require.Equal(t, "export MSG=\"say \\\"hi\\\" \\`now\\`\"\n", out)
}

func TestInterpreterSetPrependAppend(t *testing.T) {
	p := NewParser(nil)
	ops, err := p.Parse("setenv PATH /usr/bin\nprependenv PATH /opt/bin\nappendenv PATH /usr/local/bin")
	require.NoError(t, err)

	in := NewInterpreter(p, nil, nil)
	result := in.Execute(context.Background(), ops)
	require.True(t, result.Success)
	value, ok := in.Env("PATH")
	require.True(t, ok)
	require.Equal(t, "/opt/bin:/usr/bin:/usr/local/bin", value)
}

func TestInterpreterExpandsReferences(t *testing.T) {
	p := NewParser(nil)
	ops, err := p.Parse("setenv ROOT /opt/python\nsetenv BIN $ROOT/bin")
	require.NoError(t, err)

	in := NewInterpreter(p, nil, nil)
	result := in.Execute(context.Background(), ops)
	require.True(t, result.Success)
	value, _ := in.Env("BIN")
	require.Equal(t, "/opt/python/bin", value)
}

func TestInterpreterConditional(t *testing.T) {
	p := NewParser(nil)
	ops, err := p.Parse("if $OS == \"linux\" {\nsetenv LIBDIR /usr/lib\n} else {\nsetenv LIBDIR /opt/lib\n}")
	require.NoError(t, err)

	in := NewInterpreter(p, map[string]string{"OS": "linux"}, nil)
	in.Execute(context.Background(), ops)
	value, _ := in.Env("LIBDIR")
	require.Equal(t, "/usr/lib", value)

	other := NewInterpreter(p, map[string]string{"OS": "darwin"}, nil)
	other.Execute(context.Background(), ops)
	value, _ = other.Env("LIBDIR")
	require.Equal(t, "/opt/lib", value)
}

func TestInterpreterUnsetRecordsNilChange(t *testing.T) {
	p := NewParser(nil)
	ops, err := p.Parse("unsetenv DEBUG")
	require.NoError(t, err)

	in := NewInterpreter(p, map[string]string{"DEBUG": "1"}, nil)
	result := in.Execute(context.Background(), ops)
	require.True(t, result.Success)
	change, ok := result.EnvChanges["DEBUG"]
	require.True(t, ok)
	require.Nil(t, change)
}

func TestInterpreterSourceRecurses(t *testing.T) {
	dir := t.TempDir()
	sourced := filepath.Join(dir, "extra.rex")
	require.NoError(t, os.WriteFile(sourced, []byte("setenv EXTRA loaded\n"), 0o644))

	p := NewParser(nil)
	ops, err := p.Parse("source " + sourced)
	require.NoError(t, err)

	in := NewInterpreter(p, nil, nil)
	result := in.Execute(context.Background(), ops)
	require.True(t, result.Success)
	value, _ := in.Env("EXTRA")
	require.Equal(t, "loaded", value)
}

func TestInterpreterExecCache(t *testing.T) {
	p := NewParser(nil)
	ops, err := p.Parse("setenv FOO bar")
	require.NoError(t, err)

	execCache := cache.New[string, ExecutionResult]()
	first := NewInterpreter(p, nil, execCache)
	r1 := first.Execute(context.Background(), ops)
	require.True(t, r1.Success)

	second := NewInterpreter(p, nil, execCache)
	r2 := second.Execute(context.Background(), ops)
	require.True(t, r2.Success)
	value, _ := second.Env("FOO")
	require.Equal(t, "bar", value)
}

func TestGenerateBindings(t *testing.T) {
	p := NewParser(nil)
	v, err := model.ParseVersion("2.1.0")
	require.NoError(t, err)
	rp := model.ResolvedPackage{
		Package: model.Package{
			Name:       "my-tool",
			Version:    v,
			HasVersion: true,
			Tools:      []string{"mytool"},
			Commands:   "prependenv PATH $MY_TOOL_ROOT/bin:",
		},
		VariantIndex: -1,
		Root:         "/packages/my-tool/2.1.0",
	}
	ops, err := GenerateBindings(p, rp)
	require.NoError(t, err)

	require.Equal(t, model.OpSet, ops[0].Kind)
	require.Equal(t, "MY_TOOL_ROOT", ops[0].Name)
	require.Equal(t, "MY_TOOL_VERSION", ops[1].Name)
	require.Equal(t, "2.1.0", ops[1].Value)
	require.Equal(t, "MY_TOOL_TOOLS", ops[2].Name)
	require.Equal(t, model.OpAlias, ops[3].Kind)
	require.Equal(t, "mytool", ops[3].Name)
	require.Equal(t, model.OpPrepend, ops[4].Kind)
}
