package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadPackageYAML(t *testing.T) {
	path := writeTemp(t, "package.yaml", "name: foo\nversion: 1.0.0\nrequires:\n  - bar-1.0+\n")
	pkg, err := LoadPackage(path)
	require.NoError(t, err)
	assert.Equal(t, "foo", pkg.Name)
	assert.True(t, pkg.HasVersion)
	assert.Equal(t, "1.0.0", pkg.Version.Render())
	require.Len(t, pkg.Requires, 1)
	assert.Equal(t, "bar", pkg.Requires[0].Name)
}

func TestLoadPackageJSON(t *testing.T) {
	path := writeTemp(t, "package.json", `{"name":"foo","version":"2.0.0"}`)
	pkg, err := LoadPackage(path)
	require.NoError(t, err)
	assert.Equal(t, "foo", pkg.Name)
	assert.Equal(t, "2.0.0", pkg.Version.Render())
}

func TestLoadPackagePython(t *testing.T) {
	path := writeTemp(t, "package.py", "name = \"foo\"\nversion = \"1.2.3\"\nvariants = [[\"python-3.9\"]]\n")
	pkg, err := LoadPackage(path)
	require.NoError(t, err)
	assert.Equal(t, "foo", pkg.Name)
	require.Len(t, pkg.Variants, 1)
}

func TestLoadPackageRejectsUnknownExtension(t *testing.T) {
	path := writeTemp(t, "package.txt", "name: foo\n")
	_, err := LoadPackage(path)
	assert.Error(t, err)
}

func TestValidateRejectsEmptyVariant(t *testing.T) {
	p := Package{Name: "foo", Variants: [][]PackageRequirement{{}}}
	err := p.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsBadName(t *testing.T) {
	p := Package{Name: "bad name!"}
	err := p.Validate()
	assert.Error(t, err)
}
