// Package pyspec parses the assignment-only Python package dialect: a
// top-level sequence of NAME = LITERAL statements plus one optional
// "def commands():" block, captured as opaque text and handed to the Rex
// layer rather than executed. No general Python execution occurs here.
package pyspec

import (
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Result mirrors the canonical package record's on-disk field set; Extras
// holds any top-level assignment this parser does not recognize by name.
type Result struct {
	Name                 string
	Version              string
	Description          string
	Authors              []string
	Requires             []string
	BuildRequires        []string
	PrivateBuildRequires []string
	Variants             [][]string
	Tools                []string
	Commands             string
	Tests                map[string]string
	UUID                 string
	Timestamp            int64
	Revision             string
	VCS                  string
	Changelog            string
	// Preprocess captures the source of an optional preprocess() hook as
	// opaque text; semantics are not executed (see design notes).
	Preprocess string
	Extras     map[string]interface{}
}

// Parse walks the source line by line, recognizing top-level assignments
// and a "def commands():"/"def preprocess():" block. Any non-conforming
// top-level statement (an expression, an import, a call) is rejected with
// InvalidPackage rather than guessed at.
func Parse(source string) (Result, error) {
	lines := strings.Split(source, "\n")
	res := Result{Tests: map[string]string{}, Extras: map[string]interface{}{}}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			// continuation of a function body already consumed below; a
			// stray indented top-level line means malformed input.
			return Result{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("unexpected indented statement outside a def block")
		}

		if strings.HasPrefix(trimmed, "def commands") {
			body, next, err := captureDefBody(lines, i)
			if err != nil {
				return Result{}, err
			}
			res.Commands = body
			i = next
			continue
		}
		if strings.HasPrefix(trimmed, "def preprocess") {
			body, next, err := captureDefBody(lines, i)
			if err != nil {
				return Result{}, err
			}
			res.Preprocess = body
			i = next
			continue
		}

		name, expr, ok := splitAssignment(trimmed)
		if !ok {
			return Result{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("non-assignment top-level statement: " + trimmed)
		}

		value, err := parseLiteral(expr)
		if err != nil {
			return Result{}, err
		}
		if err := assignField(&res, name, value); err != nil {
			return Result{}, err
		}
	}

	return res, nil
}

// captureDefBody returns the indented body text (dedented, newline-joined)
// of a "def NAME():" statement starting at lines[start], and the index of
// its last consumed line.
func captureDefBody(lines []string, start int) (string, int, error) {
	var body []string
	i := start + 1
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			body = append(body, "")
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			break
		}
		body = append(body, dedentOnce(line))
	}
	for len(body) > 0 && body[len(body)-1] == "" {
		body = body[:len(body)-1]
	}
	if len(body) == 0 {
		return "", start, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("empty function body at line " + strconv.Itoa(start+1))
	}
	return strings.Join(body, "\n"), i - 1, nil
}

func dedentOnce(line string) string {
	if strings.HasPrefix(line, "\t") {
		return line[1:]
	}
	if strings.HasPrefix(line, "    ") {
		return line[4:]
	}
	return strings.TrimLeft(line, " \t")
}

func splitAssignment(trimmed string) (name string, expr string, ok bool) {
	idx := strings.Index(trimmed, "=")
	if idx < 0 {
		return "", "", false
	}
	// Reject "==", which cannot appear in a bare assignment LHS.
	if idx+1 < len(trimmed) && trimmed[idx+1] == '=' {
		return "", "", false
	}
	name = strings.TrimSpace(trimmed[:idx])
	expr = strings.TrimSpace(trimmed[idx+1:])
	if !isIdentifier(name) {
		return "", "", false
	}
	return name, expr, true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

func assignField(res *Result, name string, value interface{}) error {
	switch name {
	case "name":
		res.Name = asString(value)
	case "version":
		res.Version = asString(value)
	case "description":
		res.Description = asString(value)
	case "authors":
		res.Authors = asStringList(value)
	case "requires":
		res.Requires = asStringList(value)
	case "build_requires":
		res.BuildRequires = asStringList(value)
	case "private_build_requires":
		res.PrivateBuildRequires = asStringList(value)
	case "variants":
		lol, err := asListOfStringLists(value)
		if err != nil {
			return err
		}
		res.Variants = lol
	case "tools":
		res.Tools = asStringList(value)
	case "tests":
		m, err := asStringMap(value)
		if err != nil {
			return err
		}
		res.Tests = m
	case "uuid":
		res.UUID = asString(value)
	case "timestamp":
		res.Timestamp = asInt(value)
	case "revision":
		res.Revision = asString(value)
	case "vcs":
		res.VCS = asString(value)
	case "changelog":
		res.Changelog = asString(value)
	default:
		res.Extras[name] = value
	}
	return nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func asStringList(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, asString(item))
	}
	return out
}

func asListOfStringLists(v interface{}) ([][]string, error) {
	outer, ok := v.([]interface{})
	if !ok {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("variants must be a list of lists")
	}
	out := make([][]string, 0, len(outer))
	for _, item := range outer {
		out = append(out, asStringList(item))
	}
	return out, nil
}

func asStringMap(v interface{}) (map[string]string, error) {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("tests must be a dict literal")
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = asString(val)
	}
	return out, nil
}
