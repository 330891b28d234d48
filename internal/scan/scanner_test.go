package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writePackageYAML(t *testing.T, dir string, name string, version string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "package.yaml")
	content := "name: " + name + "\nversion: " + version + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanFindsPackagesAndCountsHits(t *testing.T) {
	root := t.TempDir()
	writePackageYAML(t, filepath.Join(root, "foo"), "foo", "1.0.0")

	s := New(Options{})
	defer s.Close()

	result, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, result.Packages, 1)
	require.Equal(t, "foo", result.Packages[0].Name)
	require.Empty(t, result.Errors)

	again, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, again.Packages, 1)
	require.GreaterOrEqual(t, again.CacheHits, int64(1))
}

func TestScanAccumulatesPerFileErrors(t *testing.T) {
	root := t.TempDir()
	writePackageYAML(t, filepath.Join(root, "good"), "good", "1.0.0")
	badDir := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "package.yaml"), []byte("name: [not a name\n"), 0o644))

	s := New(Options{})
	defer s.Close()

	result, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, result.Packages, 1)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "parse", result.Errors[0].Kind)
}

func TestScanPrunesExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writePackageYAML(t, filepath.Join(root, ".git"), "hidden", "1.0.0")
	writePackageYAML(t, filepath.Join(root, "visible"), "visible", "1.0.0")

	s := New(Options{})
	defer s.Close()

	result, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, result.Packages, 1)
	require.Equal(t, "visible", result.Packages[0].Name)
}

func TestScanInvalidatesOnChange(t *testing.T) {
	root := t.TempDir()
	path := writePackageYAML(t, filepath.Join(root, "foo"), "foo", "1.0.0")

	s := New(Options{})
	defer s.Close()

	_, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)

	// Rewrite with a changed size so the (mtime, size) stamp differs even
	// on coarse-mtime filesystems.
	require.NoError(t, os.WriteFile(path, []byte("name: foo\nversion: 2.0.0\ndescription: bumped\n"), 0o644))
	now := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, now, now))

	result, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, result.Packages, 1)
	require.Equal(t, "2.0.0", result.Packages[0].Version.Render())
}

func TestCandidatesAndPrefixLookup(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "foo")
	writePackageYAML(t, dir, "foo", "1.0.0")

	s := New(Options{})
	defer s.Close()

	_, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)

	candidates, err := s.Candidates(context.Background(), "foo")
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	pkg, ok := s.Lookup(filepath.Join(dir, "anything", "below"))
	require.True(t, ok)
	require.Equal(t, "foo", pkg.Name)
}

func TestScanDeterministicModuloOrder(t *testing.T) {
	root := t.TempDir()
	writePackageYAML(t, filepath.Join(root, "a"), "a", "1.0.0")
	writePackageYAML(t, filepath.Join(root, "b"), "b", "1.0.0")
	writePackageYAML(t, filepath.Join(root, "c"), "c", "1.0.0")

	s := New(Options{MaxConcurrentScans: 4})
	defer s.Close()

	first, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)
	second, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)

	names := func(r ScanResult) []string {
		var out []string
		for _, p := range r.Packages {
			out = append(out, p.Name)
		}
		sort.Strings(out)
		return out
	}
	require.Equal(t, names(first), names(second))
}
