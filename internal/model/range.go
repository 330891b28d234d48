package model

import (
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// interval is a half-open version interval [lo, hi) with inclusion flags
// for the endpoints. A nil bound means unbounded on that side.
type interval struct {
	lo        *Version
	loInclude bool
	hi        *Version
	hiInclude bool
}

func (iv interval) contains(v Version) bool {
	if iv.lo != nil {
		ord := Compare(v, *iv.lo)
		if ord == Less {
			return false
		}
		if ord == Equal && !iv.loInclude {
			return false
		}
	}
	if iv.hi != nil {
		ord := Compare(v, *iv.hi)
		if ord == Greater {
			return false
		}
		if ord == Equal && !iv.hiInclude {
			return false
		}
	}
	return true
}

// VersionRange is a set of half-open version intervals kept sorted and
// merged; the empty range is canonical (nil intervals slice).
type VersionRange struct {
	raw       string
	intervals []interval
}

// String returns the source text the range was parsed from.
func (r VersionRange) String() string {
	return r.raw
}

// ParseVersionRange parses the range syntax described in spec.md §3/§6:
// "==v", "v+", "<v", ">=v", "v1..v2", and "a|b" OR-composition.
func ParseVersionRange(raw string) (VersionRange, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return VersionRange{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("empty version range")
	}
	out := VersionRange{raw: trimmed}
	for _, part := range strings.Split(trimmed, "|") {
		iv, err := parseRangePart(strings.TrimSpace(part))
		if err != nil {
			return VersionRange{}, err
		}
		out.intervals = append(out.intervals, iv)
	}
	out.normalize()
	return out, nil
}

func parseRangePart(part string) (interval, error) {
	if part == "" {
		return interval{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("empty range component")
	}
	switch {
	case strings.HasPrefix(part, "=="):
		v, err := ParseVersion(strings.TrimSpace(part[2:]))
		if err != nil {
			return interval{}, err
		}
		return interval{lo: &v, loInclude: true, hi: &v, hiInclude: true}, nil
	case strings.HasPrefix(part, ">="):
		v, err := ParseVersion(strings.TrimSpace(part[2:]))
		if err != nil {
			return interval{}, err
		}
		return interval{lo: &v, loInclude: true}, nil
	case strings.HasSuffix(part, "+"):
		v, err := ParseVersion(strings.TrimSpace(strings.TrimSuffix(part, "+")))
		if err != nil {
			return interval{}, err
		}
		return interval{lo: &v, loInclude: true}, nil
	case strings.HasPrefix(part, "<="):
		v, err := ParseVersion(strings.TrimSpace(part[2:]))
		if err != nil {
			return interval{}, err
		}
		return interval{hi: &v, hiInclude: true}, nil
	case strings.HasPrefix(part, "<"):
		v, err := ParseVersion(strings.TrimSpace(part[1:]))
		if err != nil {
			return interval{}, err
		}
		return interval{hi: &v, hiInclude: false}, nil
	case strings.HasPrefix(part, ">"):
		v, err := ParseVersion(strings.TrimSpace(part[1:]))
		if err != nil {
			return interval{}, err
		}
		return interval{lo: &v, loInclude: false}, nil
	case strings.Contains(part, ".."):
		bounds := strings.SplitN(part, "..", 2)
		lo, err := ParseVersion(strings.TrimSpace(bounds[0]))
		if err != nil {
			return interval{}, err
		}
		hi, err := ParseVersion(strings.TrimSpace(bounds[1]))
		if err != nil {
			return interval{}, err
		}
		return interval{lo: &lo, loInclude: true, hi: &hi, hiInclude: true}, nil
	default:
		v, err := ParseVersion(part)
		if err != nil {
			return interval{}, err
		}
		return interval{lo: &v, loInclude: true, hi: &v, hiInclude: true}, nil
	}
}

// Contains returns true iff v falls within any of the range's intervals.
func (r VersionRange) Contains(v Version) bool {
	for _, iv := range r.intervals {
		if iv.contains(v) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the range matches no version.
func (r VersionRange) IsEmpty() bool {
	return len(r.intervals) == 0
}

// Intersect returns the set intersection of two ranges.
func (r VersionRange) Intersect(other VersionRange) VersionRange {
	var out VersionRange
	for _, a := range r.intervals {
		for _, b := range other.intervals {
			if iv, ok := intersectInterval(a, b); ok {
				out.intervals = append(out.intervals, iv)
			}
		}
	}
	out.normalize()
	return out
}

// Union returns the set union of two ranges.
func (r VersionRange) Union(other VersionRange) VersionRange {
	out := VersionRange{intervals: append(append([]interval{}, r.intervals...), other.intervals...)}
	out.normalize()
	return out
}

func intersectInterval(a interval, b interval) (interval, bool) {
	out := interval{lo: a.lo, loInclude: a.loInclude, hi: a.hi, hiInclude: a.hiInclude}
	if higherLowerBound(b.lo, b.loInclude, out.lo, out.loInclude) {
		out.lo, out.loInclude = b.lo, b.loInclude
	}
	if lowerUpperBound(b.hi, b.hiInclude, out.hi, out.hiInclude) {
		out.hi, out.hiInclude = b.hi, b.hiInclude
	}
	if out.lo != nil && out.hi != nil {
		ord := Compare(*out.lo, *out.hi)
		if ord == Greater {
			return interval{}, false
		}
		if ord == Equal && !(out.loInclude && out.hiInclude) {
			return interval{}, false
		}
	}
	return out, true
}

func higherLowerBound(candidate *Version, candidateInclude bool, current *Version, currentInclude bool) bool {
	if candidate == nil {
		return false
	}
	if current == nil {
		return true
	}
	ord := Compare(*candidate, *current)
	if ord == Greater {
		return true
	}
	if ord == Equal {
		return currentInclude && !candidateInclude
	}
	return false
}

func lowerUpperBound(candidate *Version, candidateInclude bool, current *Version, currentInclude bool) bool {
	if candidate == nil {
		return false
	}
	if current == nil {
		return true
	}
	ord := Compare(*candidate, *current)
	if ord == Less {
		return true
	}
	if ord == Equal {
		return currentInclude && !candidateInclude
	}
	return false
}

// normalize sorts intervals by lower bound and merges overlapping or
// adjacent ones, keeping the empty range canonical (nil slice).
func (r *VersionRange) normalize() {
	if len(r.intervals) == 0 {
		r.intervals = nil
		return
	}
	sort.Slice(r.intervals, func(i, j int) bool {
		return lowerBoundLess(r.intervals[i], r.intervals[j])
	})
	var merged []interval
	for _, iv := range r.intervals {
		if len(merged) == 0 {
			merged = append(merged, iv)
			continue
		}
		last := &merged[len(merged)-1]
		if overlapsOrAdjacent(*last, iv) {
			*last = mergeIntervals(*last, iv)
			continue
		}
		merged = append(merged, iv)
	}
	r.intervals = merged
}

func lowerBoundLess(a interval, b interval) bool {
	if a.lo == nil {
		return b.lo != nil
	}
	if b.lo == nil {
		return false
	}
	return Compare(*a.lo, *b.lo) == Less
}

func overlapsOrAdjacent(a interval, b interval) bool {
	if a.hi == nil || b.lo == nil {
		return true
	}
	ord := Compare(*b.lo, *a.hi)
	if ord == Less {
		return true
	}
	if ord == Equal {
		return a.hiInclude || b.loInclude
	}
	return false
}

func mergeIntervals(a interval, b interval) interval {
	out := a
	if lowerUpperBound(b.hi, b.hiInclude, out.hi, out.hiInclude) == false && !higherUpperBound(b.hi, b.hiInclude, out.hi, out.hiInclude) {
		// equal bounds: prefer inclusive
		if out.hi != nil && b.hi != nil && Compare(*out.hi, *b.hi) == Equal {
			out.hiInclude = out.hiInclude || b.hiInclude
		}
	} else if higherUpperBound(b.hi, b.hiInclude, out.hi, out.hiInclude) {
		out.hi, out.hiInclude = b.hi, b.hiInclude
	}
	return out
}

func higherUpperBound(candidate *Version, candidateInclude bool, current *Version, currentInclude bool) bool {
	if candidate == nil {
		return true
	}
	if current == nil {
		return false
	}
	ord := Compare(*candidate, *current)
	if ord == Greater {
		return true
	}
	if ord == Equal {
		return candidateInclude && !currentInclude
	}
	return false
}
