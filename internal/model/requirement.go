package model

import (
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// PackageRequirement names a package and an optional version constraint.
// A weak requirement is a non-binding preference: it participates in
// successor scoring but never blocks a resolution on its own.
type PackageRequirement struct {
	Name     string
	Range    VersionRange
	HasRange bool
	Weak     bool
}

// ParseRequirement accepts "name", "name-range", "name==v", "name<v",
// "name>=v" and similar forms; a leading "~" marks the requirement weak.
func ParseRequirement(raw string) (PackageRequirement, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PackageRequirement{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("empty requirement string")
	}

	weak := false
	if strings.HasPrefix(trimmed, "~") {
		weak = true
		trimmed = strings.TrimSpace(trimmed[1:])
	}

	name, rangeStr, hasRange := splitRequirement(trimmed)
	if !isValidIdentifier(name) {
		return PackageRequirement{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid requirement package name: " + name)
	}

	req := PackageRequirement{Name: name, Weak: weak}
	if hasRange {
		r, err := ParseVersionRange(rangeStr)
		if err != nil {
			return PackageRequirement{}, err
		}
		req.Range = r
		req.HasRange = true
	}
	return req, nil
}

// splitRequirement splits "name<operator-or-dash><rest>" into its name
// and range portion. Operators always separate; a "-" separates only
// when the remainder parses as a version range, since package names may
// themselves contain hyphens ("my-tool").
func splitRequirement(trimmed string) (name string, rangeStr string, hasRange bool) {
	for i, r := range trimmed {
		if isIdentChar(r) {
			continue
		}
		if r == '-' {
			rest := trimmed[i+1:]
			startsWithLetter := rest != "" && (rest[0] >= 'a' && rest[0] <= 'z' || rest[0] >= 'A' && rest[0] <= 'Z')
			if _, err := ParseVersionRange(rest); err == nil && !startsWithLetter {
				return trimmed[:i], rest, true
			}
			continue
		}
		return trimmed[:i], trimmed[i:], trimmed[i:] != ""
	}
	return trimmed, "", false
}

func isIdentChar(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_'
}

func isValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !isIdentChar(r) && r != '-' {
			return false
		}
	}
	return true
}

// SatisfiedBy reports whether v satisfies this requirement: names are
// compared case-sensitively and, when a range is present, it must
// contain v; an absent range is satisfied by any version.
func (r PackageRequirement) SatisfiedBy(name string, v Version) bool {
	if r.Name != name {
		return false
	}
	if !r.HasRange {
		return true
	}
	return r.Range.Contains(v)
}

// Matches reports whether this requirement is satisfied by p's resolved
// version. A nil or zero-value package version never matches a requirement
// that specifies a range.
func (r PackageRequirement) Matches(p Package) bool {
	if r.Name != p.Name {
		return false
	}
	if !r.HasRange {
		return true
	}
	if !p.HasVersion {
		return false
	}
	return r.Range.Contains(p.Version)
}

func (r PackageRequirement) String() string {
	var b strings.Builder
	if r.Weak {
		b.WriteString("~")
	}
	b.WriteString(r.Name)
	if r.HasRange {
		b.WriteString("-")
		b.WriteString(r.Range.String())
	}
	return b.String()
}
