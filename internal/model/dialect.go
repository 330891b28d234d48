package model

import (
	pep440 "github.com/aquasecurity/go-pep440-version"
	debversion "github.com/knqyf263/go-deb-version"
)

// dialectKind identifies the fallback parser that produced a Version
// when the generic token alphabet rejects a string. Ecosystem version
// strings carry characters the token algebra has no ordering for:
// Debian epochs ("1:2.0") and tildes ("1.0~rc1"), PEP 440 epochs
// ("1!2.0") and post-releases ("1.0.post1").
type dialectKind int

const (
	dialectPEP440 dialectKind = iota + 1
	dialectDebian
)

// dialectData holds the parsed ecosystem form alongside the raw string
// kept on the Version itself.
type dialectData struct {
	kind dialectKind
	pep  pep440.Version
	deb  debversion.Version
}

// parseDialectVersion is the fallback chain behind ParseVersion: PEP 440
// first, then Debian. Returns false when neither dialect accepts raw.
func parseDialectVersion(raw string) (Version, bool) {
	if pv, err := pep440.Parse(raw); err == nil {
		return Version{raw: raw, dialect: &dialectData{kind: dialectPEP440, pep: pv}}, true
	}
	if dv, err := debversion.NewVersion(raw); err == nil {
		return Version{raw: raw, dialect: &dialectData{kind: dialectDebian, deb: dv}}, true
	}
	return Version{}, false
}

func (v Version) dialectRank() dialectKind {
	if v.dialect == nil {
		return 0
	}
	return v.dialect.kind
}

// compareDialect orders versions when at least one side came from a
// fallback dialect. Same-dialect pairs use the dialect's own comparison;
// mixed pairs order by dialect rank (generic < PEP 440 < Debian), which
// keeps the total order strict and transitive across the whole value
// space.
func compareDialect(a Version, b Version) Ordering {
	ra, rb := a.dialectRank(), b.dialectRank()
	if ra != rb {
		if ra < rb {
			return Less
		}
		return Greater
	}
	switch ra {
	case dialectPEP440:
		return orderingFromInt(a.dialect.pep.Compare(b.dialect.pep))
	case dialectDebian:
		return orderingFromInt(a.dialect.deb.Compare(b.dialect.deb))
	default:
		return Equal
	}
}

func orderingFromInt(c int) Ordering {
	switch {
	case c < 0:
		return Less
	case c > 0:
		return Greater
	default:
		return Equal
	}
}
