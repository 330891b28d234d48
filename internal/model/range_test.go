package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseRange(t *testing.T, raw string) VersionRange {
	t.Helper()
	r, err := ParseVersionRange(raw)
	require.NoError(t, err)
	return r
}

func TestRangeLowerBound(t *testing.T) {
	r := mustParseRange(t, "1.2+")
	assert.True(t, r.Contains(mustParse(t, "1.2.0")))
	assert.False(t, r.Contains(mustParse(t, "1.1.99")))
}

func TestRangeExact(t *testing.T) {
	r := mustParseRange(t, "==1.2.3")
	assert.True(t, r.Contains(mustParse(t, "1.2.3")))
	assert.False(t, r.Contains(mustParse(t, "1.2.4")))
}

func TestRangeUpperBoundExclusive(t *testing.T) {
	r := mustParseRange(t, "<2.0")
	assert.True(t, r.Contains(mustParse(t, "1.9.9")))
	assert.False(t, r.Contains(mustParse(t, "2.0")))
}

func TestRangeInterval(t *testing.T) {
	r := mustParseRange(t, "1.0..2.0")
	assert.True(t, r.Contains(mustParse(t, "1.0")))
	assert.True(t, r.Contains(mustParse(t, "2.0")))
	assert.True(t, r.Contains(mustParse(t, "1.5")))
	assert.False(t, r.Contains(mustParse(t, "2.0.1")))
}

func TestRangeUnionOr(t *testing.T) {
	r := mustParseRange(t, "1.0|2.0")
	assert.True(t, r.Contains(mustParse(t, "1.0")))
	assert.True(t, r.Contains(mustParse(t, "2.0")))
	assert.False(t, r.Contains(mustParse(t, "1.5")))
}

func TestRangeIsEmpty(t *testing.T) {
	var r VersionRange
	assert.True(t, r.IsEmpty())
	r = mustParseRange(t, "1.0+")
	assert.False(t, r.IsEmpty())
}

func TestRangeIntersect(t *testing.T) {
	a := mustParseRange(t, "1.0+")
	b := mustParseRange(t, "<3.0")
	i := a.Intersect(b)
	assert.True(t, i.Contains(mustParse(t, "2.0")))
	assert.False(t, i.Contains(mustParse(t, "3.0")))
	assert.False(t, i.Contains(mustParse(t, "0.5")))
}

func TestRangeIntersectDisjoint(t *testing.T) {
	a := mustParseRange(t, "<1.0")
	b := mustParseRange(t, "2.0+")
	i := a.Intersect(b)
	assert.True(t, i.IsEmpty())
}

func TestRangeUnionMergesOverlaps(t *testing.T) {
	a := mustParseRange(t, "1.0..2.0")
	b := mustParseRange(t, "1.5..3.0")
	u := a.Union(b)
	assert.True(t, u.Contains(mustParse(t, "2.5")))
	assert.Equal(t, 1, len(u.intervals))
}

func TestParseVersionRangeInvalid(t *testing.T) {
	_, err := ParseVersionRange("")
	assert.Error(t, err)
	_, err = ParseVersionRange("1.0||2.0")
	assert.Error(t, err)
}
