package rex

import (
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"rezgo/internal/model"
	"rezgo/internal/ports"
)

// Renderer emits an environment specification as executable text for
// one target shell.
type Renderer struct {
	shell model.ShellType
}

// NewRenderer builds a Renderer for the given shell.
func NewRenderer(shell model.ShellType) Renderer {
	return Renderer{shell: shell}
}

func (r Renderer) Shell() model.ShellType {
	return r.shell
}

// Render emits the specification's operations, then the additional-vars
// overlay, then the unset post-filter, in that order.
func (r Renderer) Render(spec model.EnvironmentSpecification) (string, error) {
	var b strings.Builder
	for _, op := range spec.Ops {
		if err := r.renderOp(&b, op); err != nil {
			return "", err
		}
	}
	extraNames := make([]string, 0, len(spec.AdditionalVars))
	for name := range spec.AdditionalVars {
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)
	for _, name := range extraNames {
		if err := r.renderOp(&b, model.EnvOp{Kind: model.OpSet, Name: name, Value: spec.AdditionalVars[name]}); err != nil {
			return "", err
		}
	}
	for _, name := range spec.UnsetVars {
		if err := r.renderOp(&b, model.EnvOp{Kind: model.OpUnset, Name: name}); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func (r Renderer) renderOp(b *strings.Builder, op model.EnvOp) error {
	sep := op.Sep
	if sep == "" {
		sep = r.shell.PathSep()
	}
	switch op.Kind {
	case model.OpSet:
		b.WriteString(r.setLine(op.Name, op.Value))
	case model.OpPrepend:
		b.WriteString(r.setLine(op.Name, op.Value+sep+r.selfRef(op.Name)))
	case model.OpAppend:
		b.WriteString(r.setLine(op.Name, r.selfRef(op.Name)+sep+op.Value))
	case model.OpUnset:
		b.WriteString(r.unsetLine(op.Name))
	case model.OpAlias:
		b.WriteString(r.aliasLine(op.Name, op.Value))
	case model.OpFunction:
		b.WriteString(r.functionLines(op.Name, op.Value))
	case model.OpSource:
		b.WriteString(r.sourceLine(op.Value))
	case model.OpCommand:
		b.WriteString(strings.Join(op.Argv, " ") + "\n")
	case model.OpIf:
		return r.renderIf(b, op)
	case model.OpComment:
		b.WriteString(r.commentLine(op.Value))
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("rex render: unknown operation kind " + string(op.Kind))
	}
	return nil
}

func (r Renderer) setLine(name string, value string) string {
	switch r.shell {
	case model.ShellFish:
		return "set -x " + name + " \"" + escapeDouble(value) + "\"\n"
	case model.ShellCmd:
		return "set " + name + "=" + value + "\n"
	case model.ShellPowerShell:
		return "$env:" + name + " = \"" + escapeDouble(value) + "\"\n"
	default: // bash/zsh
		return "export " + name + "=\"" + escapeDouble(value) + "\"\n"
	}
}

// selfRef is the shell's way of referencing the variable's prior value
// inside a prepend/append.
func (r Renderer) selfRef(name string) string {
	switch r.shell {
	case model.ShellCmd:
		return "%" + name + "%"
	case model.ShellPowerShell:
		return "$env:" + name
	default: // bash/zsh/fish
		return "$" + name
	}
}

func (r Renderer) unsetLine(name string) string {
	switch r.shell {
	case model.ShellFish:
		return "set -e " + name + "\n"
	case model.ShellCmd:
		return "set " + name + "=\n"
	case model.ShellPowerShell:
		return "Remove-Item Env:" + name + " -ErrorAction SilentlyContinue\n"
	default:
		return "unset " + name + "\n"
	}
}

func (r Renderer) aliasLine(name string, command string) string {
	switch r.shell {
	case model.ShellFish:
		return "alias " + name + " '" + escapeSingle(command) + "'\n"
	case model.ShellCmd:
		return "doskey " + name + "=" + command + "\n"
	case model.ShellPowerShell:
		return "Set-Alias " + name + " \"" + escapeDouble(command) + "\"\n"
	default:
		return "alias " + name + "='" + escapeSingle(command) + "'\n"
	}
}

func (r Renderer) functionLines(name string, body string) string {
	switch r.shell {
	case model.ShellFish:
		return "function " + name + "\n" + body + "\nend\n"
	case model.ShellPowerShell:
		return "function " + name + " {\n" + body + "\n}\n"
	case model.ShellCmd:
		// cmd has no function form; the nearest equivalent is a doskey macro.
		return "doskey " + name + "=" + strings.ReplaceAll(body, "\n", " & ") + "\n"
	default:
		return name + "() {\n" + body + "\n}\n"
	}
}

func (r Renderer) sourceLine(path string) string {
	switch r.shell {
	case model.ShellCmd:
		return "call \"" + path + "\"\n"
	case model.ShellPowerShell:
		return ". \"" + escapeDouble(path) + "\"\n"
	default:
		return "source \"" + escapeDouble(path) + "\"\n"
	}
}

func (r Renderer) commentLine(text string) string {
	switch r.shell {
	case model.ShellCmd:
		return "rem " + text + "\n"
	default:
		return "# " + text + "\n"
	}
}

func (r Renderer) renderIf(b *strings.Builder, op model.EnvOp) error {
	if op.Cond == nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("rex render: if without condition")
	}
	eq := "="
	if op.Cond.Negate {
		eq = "!="
	}
	switch r.shell {
	case model.ShellPowerShell:
		psEq := "-eq"
		if op.Cond.Negate {
			psEq = "-ne"
		}
		b.WriteString("if ($env:" + op.Cond.Var + " " + psEq + " \"" + escapeDouble(op.Cond.Literal) + "\") {\n")
		for _, nested := range op.Then {
			if err := r.renderOp(b, nested); err != nil {
				return err
			}
		}
		if len(op.Else) > 0 {
			b.WriteString("} else {\n")
			for _, nested := range op.Else {
				if err := r.renderOp(b, nested); err != nil {
					return err
				}
			}
		}
		b.WriteString("}\n")
	case model.ShellCmd:
		neg := ""
		if op.Cond.Negate {
			neg = "not "
		}
		b.WriteString("if " + neg + "\"%" + op.Cond.Var + "%\"==\"" + op.Cond.Literal + "\" (\n")
		for _, nested := range op.Then {
			if err := r.renderOp(b, nested); err != nil {
				return err
			}
		}
		if len(op.Else) > 0 {
			b.WriteString(") else (\n")
			for _, nested := range op.Else {
				if err := r.renderOp(b, nested); err != nil {
					return err
				}
			}
		}
		b.WriteString(")\n")
	default: // bash/zsh/fish share the test(1) form
		b.WriteString("if [ \"$" + op.Cond.Var + "\" " + eq + " \"" + escapeDouble(op.Cond.Literal) + "\" ]; then\n")
		for _, nested := range op.Then {
			if err := r.renderOp(b, nested); err != nil {
				return err
			}
		}
		if len(op.Else) > 0 {
			b.WriteString("else\n")
			for _, nested := range op.Else {
				if err := r.renderOp(b, nested); err != nil {
					return err
				}
			}
		}
		b.WriteString("fi\n")
	}
	return nil
}

// escapeDouble escapes characters that break out of a double-quoted
// string. Variable references ($NAME) pass through so prepend/append
// self-references keep working.
func escapeDouble(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "`", "\\`")
	return value
}

func escapeSingle(value string) string {
	return strings.ReplaceAll(value, "'", "'\\''")
}

var _ ports.ShellRenderer = Renderer{}
