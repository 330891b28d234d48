// Package rex implements the embedded mini-language that expresses
// per-package environment modifications: a line-oriented parser, an
// interpreter over a mutable environment record, per-shell renderers,
// and a binding generator for resolved packages.
package rex

import (
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"rezgo/internal/cache"
	"rezgo/internal/model"
)

// keywords lists the Rex form keywords. Dispatch on the first
// whitespace-bounded word is a switch in parseLineUncached and
// parseBlock; this map is not consulted there.
var keywords = map[string]bool{
	"setenv":     true,
	"appendenv":  true,
	"prependenv": true,
	"unsetenv":   true,
	"alias":      true,
	"function":   true,
	"source":     true,
	"if":         true,
}

// Parser turns Rex script text into environment operations. A shared
// line cache amortizes re-parsing identical lines across packages.
type Parser struct {
	lineCache *cache.Manager[string, model.EnvOp]
}

// NewParser builds a Parser. lineCache may be nil to disable caching.
func NewParser(lineCache *cache.Manager[string, model.EnvOp]) *Parser {
	return &Parser{lineCache: lineCache}
}

// Parse parses a whole script. Block forms (if/function) may span
// multiple lines; all other forms are single-line.
func (p *Parser) Parse(script string) ([]model.EnvOp, error) {
	lines := strings.Split(script, "\n")
	ops, rest, err := p.parseBlock(lines, false)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, rexParseError("unexpected closing brace", rest[0])
	}
	return ops, nil
}

func rexParseError(msg string, line string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("rex parse: " + msg + ": " + strings.TrimSpace(line))
}

// parseBlock consumes lines until EOF or, when inBlock is set, a line
// whose first token is "}". It returns the remaining lines starting at
// the terminator.
func (p *Parser) parseBlock(lines []string, inBlock bool) ([]model.EnvOp, []string, error) {
	var ops []model.EnvOp
	for len(lines) > 0 {
		line := lines[0]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			lines = lines[1:]
			continue
		}
		if strings.HasPrefix(trimmed, "}") {
			return ops, lines, nil
		}

		word := firstWord(trimmed)
		switch {
		case word == "if":
			op, rest, err := p.parseIf(lines)
			if err != nil {
				return nil, nil, err
			}
			ops = append(ops, op)
			lines = rest
		case word == "function" && !strings.Contains(trimmed, "}"):
			op, rest, err := p.parseMultilineFunction(lines)
			if err != nil {
				return nil, nil, err
			}
			ops = append(ops, op)
			lines = rest
		default:
			op, err := p.parseLine(trimmed)
			if err != nil {
				return nil, nil, err
			}
			ops = append(ops, op)
			lines = lines[1:]
		}
	}
	if inBlock {
		return nil, nil, rexParseError("unterminated block", "")
	}
	return ops, nil, nil
}

// parseLine parses one single-line form, serving repeated lines from
// the line cache.
func (p *Parser) parseLine(trimmed string) (model.EnvOp, error) {
	if p.lineCache != nil {
		if op, ok := p.lineCache.Get(trimmed); ok {
			return op, nil
		}
	}
	op, err := parseLineUncached(trimmed)
	if err != nil {
		return model.EnvOp{}, err
	}
	if p.lineCache != nil {
		p.lineCache.Put(trimmed, op, int64(len(trimmed)))
	}
	return op, nil
}

func parseLineUncached(trimmed string) (model.EnvOp, error) {
	if strings.HasPrefix(trimmed, "#") {
		return model.EnvOp{Kind: model.OpComment, Value: strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))}, nil
	}
	word := firstWord(trimmed)
	rest := strings.TrimSpace(trimmed[len(word):])
	switch word {
	case "setenv":
		name, value, err := splitNameValue(rest)
		if err != nil {
			return model.EnvOp{}, rexParseError("setenv needs NAME VALUE", trimmed)
		}
		if err := checkSelfReference(name, value); err != nil {
			return model.EnvOp{}, err
		}
		return model.EnvOp{Kind: model.OpSet, Name: name, Value: value}, nil
	case "appendenv", "prependenv":
		name, remainder, err := splitNameValue(rest)
		if err != nil {
			return model.EnvOp{}, rexParseError(word+" needs NAME VALUE [SEP]", trimmed)
		}
		value, sep := splitValueSep(remainder)
		if err := checkSelfReference(name, value); err != nil {
			return model.EnvOp{}, err
		}
		kind := model.OpAppend
		if word == "prependenv" {
			kind = model.OpPrepend
		}
		return model.EnvOp{Kind: kind, Name: name, Value: value, Sep: sep}, nil
	case "unsetenv":
		if rest == "" || len(strings.Fields(rest)) != 1 {
			return model.EnvOp{}, rexParseError("unsetenv needs exactly NAME", trimmed)
		}
		return model.EnvOp{Kind: model.OpUnset, Name: rest}, nil
	case "alias":
		name, command, ok := strings.Cut(rest, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return model.EnvOp{}, rexParseError("alias needs NAME=CMD", trimmed)
		}
		return model.EnvOp{Kind: model.OpAlias, Name: strings.TrimSpace(name), Value: unquote(strings.TrimSpace(command))}, nil
	case "function":
		return parseInlineFunction(trimmed, rest)
	case "source":
		if rest == "" {
			return model.EnvOp{}, rexParseError("source needs PATH", trimmed)
		}
		return model.EnvOp{Kind: model.OpSource, Value: unquote(rest)}, nil
	default:
		argv, err := splitArgs(trimmed)
		if err != nil {
			return model.EnvOp{}, err
		}
		return model.EnvOp{Kind: model.OpCommand, Argv: argv}, nil
	}
}

// parseInlineFunction handles `function NAME { BODY }` on one line.
func parseInlineFunction(line string, rest string) (model.EnvOp, error) {
	name, remainder, ok := strings.Cut(rest, "{")
	if !ok {
		return model.EnvOp{}, rexParseError("function needs NAME { BODY }", line)
	}
	name = strings.TrimSpace(name)
	body, ok := strings.CutSuffix(strings.TrimSpace(remainder), "}")
	if name == "" || !ok {
		return model.EnvOp{}, rexParseError("function needs NAME { BODY }", line)
	}
	return model.EnvOp{Kind: model.OpFunction, Name: name, Value: strings.TrimSpace(body)}, nil
}

// parseMultilineFunction captures everything until the closing brace
// line as the body, verbatim.
func (p *Parser) parseMultilineFunction(lines []string) (model.EnvOp, []string, error) {
	header := strings.TrimSpace(lines[0])
	rest := strings.TrimSpace(strings.TrimPrefix(header, "function"))
	name, after, ok := strings.Cut(rest, "{")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return model.EnvOp{}, nil, rexParseError("function needs NAME { BODY }", header)
	}
	var body []string
	if trimmed := strings.TrimSpace(after); trimmed != "" {
		body = append(body, trimmed)
	}
	lines = lines[1:]
	for len(lines) > 0 {
		trimmed := strings.TrimSpace(lines[0])
		if trimmed == "}" {
			return model.EnvOp{Kind: model.OpFunction, Name: name, Value: strings.Join(body, "\n")}, lines[1:], nil
		}
		body = append(body, trimmed)
		lines = lines[1:]
	}
	return model.EnvOp{}, nil, rexParseError("unterminated function body", header)
}

// parseIf parses `if COND { ... } [else { ... }]` where COND is
// `$VAR == "literal"` or `$VAR != "literal"`.
func (p *Parser) parseIf(lines []string) (model.EnvOp, []string, error) {
	header := strings.TrimSpace(lines[0])
	condText, _, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(header, "if")), "{")
	if !ok {
		return model.EnvOp{}, nil, rexParseError("if needs COND { ... }", header)
	}
	cond, err := parseCond(strings.TrimSpace(condText))
	if err != nil {
		return model.EnvOp{}, nil, err
	}

	thenOps, rest, err := p.parseBlock(lines[1:], true)
	if err != nil {
		return model.EnvOp{}, nil, err
	}
	if len(rest) == 0 {
		return model.EnvOp{}, nil, rexParseError("unterminated if block", header)
	}
	closer := strings.TrimSpace(rest[0])
	rest = rest[1:]

	op := model.EnvOp{Kind: model.OpIf, Cond: cond, Then: thenOps}
	if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(closer, "}")), "else") {
		elseOps, after, err := p.parseBlock(rest, true)
		if err != nil {
			return model.EnvOp{}, nil, err
		}
		if len(after) == 0 {
			return model.EnvOp{}, nil, rexParseError("unterminated else block", header)
		}
		op.Else = elseOps
		rest = after[1:]
	}
	return op, rest, nil
}

func parseCond(text string) (*model.EnvCond, error) {
	negate := false
	left, right, ok := strings.Cut(text, "==")
	if !ok {
		left, right, ok = strings.Cut(text, "!=")
		negate = true
	}
	if !ok {
		return nil, rexParseError("condition must compare a variable and a literal", text)
	}
	varName := strings.TrimSpace(left)
	varName = strings.TrimPrefix(varName, "$")
	varName = strings.TrimPrefix(varName, "{")
	varName = strings.TrimSuffix(varName, "}")
	if varName == "" {
		return nil, rexParseError("condition needs a variable reference", text)
	}
	return &model.EnvCond{Var: varName, Literal: unquote(strings.TrimSpace(right)), Negate: negate}, nil
}

// checkSelfReference rejects ambiguous values that reference the target
// variable more than once (e.g. PATH=$PATH:/x:$PATH).
func checkSelfReference(name string, value string) error {
	count := strings.Count(value, "$"+name) + strings.Count(value, "${"+name+"}")
	if count > 1 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("rex parse: ambiguous multiple self-references to " + name)
	}
	return nil
}

func firstWord(trimmed string) string {
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

// splitNameValue splits "NAME rest" returning the rest verbatim.
func splitNameValue(rest string) (string, string, error) {
	idx := strings.IndexAny(rest, " \t")
	if idx < 0 {
		return "", "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("rex parse: missing value")
	}
	name := rest[:idx]
	value := strings.TrimSpace(rest[idx:])
	return name, unquote(value), nil
}

// splitValueSep splits a value from an optional trailing separator
// token. A trailing lone punctuation field is treated as the separator
// ("prependenv PATH $ROOT/bin :").
func splitValueSep(value string) (string, string) {
	fields := strings.Fields(value)
	if len(fields) >= 2 {
		last := fields[len(fields)-1]
		if len(last) == 1 && !isAlnum(rune(last[0])) && last != "$" {
			return unquote(strings.Join(fields[:len(fields)-1], " ")), last
		}
	}
	// A separator may also be glued on: "VALUE:" with a trailing colon.
	if len(value) > 1 && strings.HasSuffix(value, ":") && !strings.HasSuffix(value, "::") {
		return unquote(strings.TrimSuffix(value, ":")), ":"
	}
	return unquote(value), ""
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// splitArgs tokenizes a bare command line honoring single and double
// quotes with backslash escapes.
func splitArgs(line string) ([]string, error) {
	var argv []string
	var buf strings.Builder
	var quote rune
	escaped := false
	flush := func() {
		if buf.Len() > 0 {
			argv = append(argv, buf.String())
			buf.Reset()
		}
	}
	for _, r := range line {
		switch {
		case escaped:
			buf.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				buf.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t':
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, rexParseError("unterminated quote", line)
	}
	flush()
	return argv, nil
}

// unquote strips one matching layer of single or double quotes.
func unquote(value string) string {
	if len(value) >= 2 {
		if value[0] == '"' && value[len(value)-1] == '"' || value[0] == '\'' && value[len(value)-1] == '\'' {
			return value[1 : len(value)-1]
		}
	}
	return value
}
