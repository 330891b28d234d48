package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) Version {
	t.Helper()
	v, err := ParseVersion(raw)
	require.NoError(t, err)
	return v
}

func TestVersionOrdering(t *testing.T) {
	a := mustParse(t, "1.2.3-alpha.1")
	b := mustParse(t, "1.2.3")
	c := mustParse(t, "1.2.3.1")
	assert.Equal(t, Less, Compare(a, b))
	assert.Equal(t, Less, Compare(b, c))

	d := mustParse(t, "10.0")
	e := mustParse(t, "2.0")
	assert.Equal(t, Greater, Compare(d, e))
}

func TestVersionCompareAntisymmetric(t *testing.T) {
	versions := []string{"1.0.0", "1.0.0-rc.1", "1.0.1", "2.0", "1.0.0+build"}
	for _, x := range versions {
		for _, y := range versions {
			vx := mustParse(t, x)
			vy := mustParse(t, y)
			assert.Equal(t, -Compare(vx, vy), Compare(vy, vx), "compare(%s,%s)", x, y)
		}
	}
}

func TestVersionCompareTransitive(t *testing.T) {
	a := mustParse(t, "1.0.0-alpha")
	b := mustParse(t, "1.0.0-beta")
	c := mustParse(t, "1.0.0")
	assert.Equal(t, Less, Compare(a, b))
	assert.Equal(t, Less, Compare(b, c))
	assert.Equal(t, Less, Compare(a, c))
}

func TestParseRenderRoundTrip(t *testing.T) {
	for _, raw := range []string{"1.2.3", "1.2.3-alpha.1", "1.0", "2.0.0-rc.2+build.5", "1.2.3.1"} {
		v := mustParse(t, raw)
		v2, err := ParseVersion(v.Render())
		require.NoError(t, err)
		assert.Equal(t, Equal, Compare(v, v2))
		assert.Equal(t, raw, v2.Render())
	}
}

func TestParseVersionInvalid(t *testing.T) {
	_, err := ParseVersion("")
	assert.Error(t, err)
	_, err = ParseVersion("1..2")
	assert.Error(t, err)
}

func TestVersionBump(t *testing.T) {
	v := mustParse(t, "1.2.3")
	bumped, err := v.Bump(BumpMinor)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", bumped.Render())
}
