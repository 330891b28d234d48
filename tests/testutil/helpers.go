// Package testutil provides shared test helpers used across integration,
// e2e, and unit test packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// RepoRoot returns the absolute path two directories above the current
// working directory, which is the repository root for a test package
// under tests/. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// WritePackageYAML writes a minimal package definition under dir and
// returns its path. extra is appended verbatim for requires, variants,
// commands, and similar fields.
func WritePackageYAML(t *testing.T, dir string, name string, version string, extra string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "name: " + name + "\nversion: " + version + "\n" + extra
	path := filepath.Join(dir, "package.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
