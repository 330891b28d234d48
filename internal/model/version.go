// Package model implements the version, requirement, and package data
// model shared by the scanner, resolver, context builder, and build
// orchestrator.
package model

import (
	"strconv"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	semver "github.com/blang/semver/v4"
)

// Ordering is the result of comparing two versions.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// tokenKind classifies a single version token.
type tokenKind int

const (
	tokenInteger tokenKind = iota
	tokenAlpha
)

type token struct {
	kind tokenKind
	num  int64
	str  string
}

// Version is an ordered sequence of tokens produced by splitting on '.'
// and '-'. Tokens before the first '-' are the release segment; tokens
// from the first '-' onward are the pre-release segment and sort below
// an otherwise-identical release.
type Version struct {
	raw           string
	tokens        []token
	preAt         int // index of first pre-release token, or len(tokens) if none
	semverFast    semver.Version
	hasSemverFast bool
	dialect       *dialectData // non-nil when a fallback ecosystem dialect parsed raw
}

// internTable memoizes alpha token strings to avoid repeated allocation
// for common identifiers ("alpha", "rc", "beta", ...). Guarded because
// the scanner parses package versions from concurrent workers.
var (
	internMu    sync.Mutex
	internTable = map[string]string{}
)

func intern(s string) string {
	internMu.Lock()
	defer internMu.Unlock()
	if v, ok := internTable[s]; ok {
		return v
	}
	internTable[s] = s
	return s
}

// ParseVersion parses a version string into its ordered token form.
// Strings the generic token alphabet rejects are retried against the
// PEP 440 and Debian dialects before failing with InvalidVersion; a
// string with an empty dot-separated component is not retried.
func ParseVersion(raw string) (Version, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Version{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("empty version string")
	}
	v, err := parseGenericVersion(trimmed)
	if err != nil {
		for _, part := range strings.Split(trimmed, ".") {
			if part == "" {
				return Version{}, err
			}
		}
		if dv, ok := parseDialectVersion(trimmed); ok {
			return dv, nil
		}
		return Version{}, err
	}
	return v, nil
}

func parseGenericVersion(trimmed string) (Version, error) {
	release := trimmed
	meta := ""
	if idx := strings.Index(trimmed, "+"); idx >= 0 {
		release = trimmed[:idx]
		meta = trimmed[idx+1:]
	}
	_ = meta // metadata is preserved in raw but does not participate in ordering

	releasePart := release
	prePart := ""
	if idx := strings.Index(release, "-"); idx >= 0 {
		releasePart = release[:idx]
		prePart = release[idx+1:]
	}

	var tokens []token
	releaseTokens, err := splitTokens(releasePart, ".")
	if err != nil {
		return Version{}, err
	}
	tokens = append(tokens, releaseTokens...)
	preAt := len(tokens)

	if prePart != "" {
		// Dashes inside the pre-release segment separate tokens the same
		// way dots do ("1.0-rc-1" == "1.0-rc.1" for ordering).
		preTokens, err := splitTokens(strings.ReplaceAll(prePart, "-", "."), ".")
		if err != nil {
			return Version{}, err
		}
		tokens = append(tokens, preTokens...)
	}

	if len(tokens) == 0 {
		return Version{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("version has no tokens")
	}

	v := Version{raw: trimmed, tokens: tokens, preAt: preAt}
	if sv, err := semver.Parse(trimmed); err == nil {
		v.semverFast = sv
		v.hasSemverFast = true
	}
	return v, nil
}

// splitTokens splits value on sep and classifies each run as an integer
// or alpha token. A run that mixes digits and letters (e.g. "1a2") is
// split further at the digit/letter boundary, matching the tokenizer's
// "classify runs" contract.
func splitTokens(value string, sep string) ([]token, error) {
	if value == "" {
		return nil, nil
	}
	var out []token
	for _, part := range strings.Split(value, sep) {
		if part == "" {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("empty version component")
		}
		for _, r := range part {
			if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_') {
				return nil, errbuilder.New().
					WithCode(errbuilder.CodeInvalidArgument).
					WithMsg("invalid character in version component: " + part)
			}
		}
		out = append(out, splitRun(part)...)
	}
	return out, nil
}

// splitRun further splits a dot-separated component on digit/letter
// boundaries so "rc1" becomes ["rc", 1] for stable comparison.
func splitRun(part string) []token {
	var tokens []token
	var buf strings.Builder
	var bufIsDigit bool
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		s := buf.String()
		if bufIsDigit {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				tokens = append(tokens, token{kind: tokenAlpha, str: intern(s)})
			} else {
				tokens = append(tokens, token{kind: tokenInteger, num: n})
			}
		} else {
			tokens = append(tokens, token{kind: tokenAlpha, str: intern(s)})
		}
		buf.Reset()
	}
	for _, r := range part {
		isDigit := r >= '0' && r <= '9'
		if buf.Len() > 0 && isDigit != bufIsDigit {
			flush()
		}
		bufIsDigit = isDigit
		buf.WriteRune(r)
	}
	flush()
	return tokens
}

// Compare orders a against b: integers before strings within a token
// position, empty suffix less than any non-empty continuation, and a
// pre-release segment sorts below the equivalent release.
func Compare(a Version, b Version) Ordering {
	if a.dialect != nil || b.dialect != nil {
		return compareDialect(a, b)
	}
	if a.hasSemverFast && b.hasSemverFast {
		switch a.semverFast.Compare(b.semverFast) {
		case -1:
			return Less
		case 1:
			return Greater
		default:
			return Equal
		}
	}

	if ord := compareTokenRange(a.tokens[:a.preAt], b.tokens[:b.preAt]); ord != Equal {
		return ord
	}

	aHasPre := a.preAt < len(a.tokens)
	bHasPre := b.preAt < len(b.tokens)
	switch {
	case aHasPre && !bHasPre:
		// 1.0-alpha < 1.0: a trailing pre-release sorts below the
		// otherwise-identical release.
		return Less
	case !aHasPre && bHasPre:
		return Greater
	case !aHasPre && !bHasPre:
		return Equal
	default:
		return compareTokenRange(a.tokens[a.preAt:], b.tokens[b.preAt:])
	}
}

// compareTokenRange compares two token slices position by position; the
// empty suffix sorts below any non-empty continuation.
func compareTokenRange(a []token, b []token) Ordering {
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	for i := 0; i < max; i++ {
		if i >= len(a) {
			return Less
		}
		if i >= len(b) {
			return Greater
		}
		if ord := compareToken(a[i], b[i]); ord != Equal {
			return ord
		}
	}
	return Equal
}

func compareToken(a token, b token) Ordering {
	if a.kind == tokenInteger && b.kind == tokenInteger {
		switch {
		case a.num < b.num:
			return Less
		case a.num > b.num:
			return Greater
		default:
			return Equal
		}
	}
	if a.kind == tokenInteger && b.kind == tokenAlpha {
		return Less
	}
	if a.kind == tokenAlpha && b.kind == tokenInteger {
		return Greater
	}
	switch {
	case a.str < b.str:
		return Less
	case a.str > b.str:
		return Greater
	default:
		return Equal
	}
}

// Render reconstructs a stable textual form: parse(render(v)) == v.
func (v Version) Render() string {
	return v.raw
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return v.raw
}

// BumpLevel identifies which release segment Bump increments.
type BumpLevel int

const (
	BumpMajor BumpLevel = iota
	BumpMinor
	BumpPatch
)

// Bump increments the token at the given release level, zeroing any
// tokens after it, and drops any pre-release segment.
func (v Version) Bump(level BumpLevel) (Version, error) {
	if v.dialect != nil {
		return Version{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("cannot bump an ecosystem-dialect version: " + v.raw)
	}
	release := append([]token{}, v.tokens[:v.preAt]...)
	idx := int(level)
	for len(release) <= idx {
		release = append(release, token{kind: tokenInteger, num: 0})
	}
	if release[idx].kind != tokenInteger {
		return Version{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("cannot bump a non-integer version token")
	}
	release[idx].num++
	for i := idx + 1; i < len(release); i++ {
		release[i] = token{kind: tokenInteger, num: 0}
	}
	rendered := renderTokens(release)
	return ParseVersion(rendered)
}

func renderTokens(tokens []token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		if t.kind == tokenInteger {
			parts[i] = strconv.FormatInt(t.num, 10)
		} else {
			parts[i] = t.str
		}
	}
	return strings.Join(parts, ".")
}
