package fetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitGitRef(t *testing.T) {
	cases := []struct {
		in  string
		url string
		ref string
	}{
		{"https://github.com/foo/bar.git", "https://github.com/foo/bar.git", ""},
		{"https://github.com/foo/bar.git@v1.2", "https://github.com/foo/bar.git", "v1.2"},
		{"git@github.com:foo/bar.git", "git@github.com:foo/bar.git", ""},
		{"git@github.com:foo/bar.git@main", "git@github.com:foo/bar.git", "main"},
		{"ssh://git@host/repo.git@abc123", "ssh://git@host/repo.git", "abc123"},
	}
	for _, tc := range cases {
		url, ref := splitGitRef(tc.in)
		require.Equal(t, tc.url, url, tc.in)
		require.Equal(t, tc.ref, ref, tc.in)
	}
}

func TestSourceSchemeClassification(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, schemeGit, sourceScheme("git://host/repo"))
	require.Equal(t, schemeGit, sourceScheme("https://github.com/foo/bar.git"))
	require.Equal(t, schemeGit, sourceScheme("git@github.com:foo/bar.git"))
	require.Equal(t, schemeHTTP, sourceScheme("https://example.com/src.tar.gz"))
	require.Equal(t, schemeLocal, sourceScheme(dir))
	require.Equal(t, schemeUnknown, sourceScheme("/does/not/exist/anywhere"))
}

func TestFetchLocalCopiesTree(t *testing.T) {
	source := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(source, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "sub", "file.txt"), []byte("content"), 0o644))

	f := NewFetcher(Config{CacheRoot: t.TempDir()})
	slot, err := f.Fetch(context.Background(), source, "pkg", "1.0.0", false)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(slot, "sub", "file.txt"))
	require.NoError(t, err)
	require.Equal(t, "content", string(data))
}

func TestFetchReusesPopulatedSlot(t *testing.T) {
	source := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(source, "a.txt"), []byte("one"), 0o644))

	root := t.TempDir()
	f := NewFetcher(Config{CacheRoot: root})
	slot, err := f.Fetch(context.Background(), source, "pkg", "1.0.0", false)
	require.NoError(t, err)

	// Change the source; without force the cached tree must win.
	require.NoError(t, os.WriteFile(filepath.Join(source, "a.txt"), []byte("two"), 0o644))
	again, err := f.Fetch(context.Background(), source, "pkg", "1.0.0", false)
	require.NoError(t, err)
	require.Equal(t, slot, again)
	data, err := os.ReadFile(filepath.Join(again, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "one", string(data))

	// force re-fetches.
	forced, err := f.Fetch(context.Background(), source, "pkg", "1.0.0", true)
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(forced, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "two", string(data))
}

func tarGzArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestFetchHTTPExtractsTarGz(t *testing.T) {
	payload := tarGzArchive(t, map[string]string{"src/main.c": "int main(){}"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	f := NewFetcher(Config{CacheRoot: t.TempDir()})
	slot, err := f.Fetch(context.Background(), server.URL+"/src.tar.gz", "pkg", "2.0.0", false)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(slot, "src", "main.c"))
	require.NoError(t, err)
	require.Equal(t, "int main(){}", string(data))
}

func TestFetchHTTPExtractsZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("hello.txt")
	require.NoError(t, err)
	_, err = entry.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	f := NewFetcher(Config{CacheRoot: t.TempDir()})
	slot, err := f.Fetch(context.Background(), server.URL+"/bundle", "pkg", "3.0.0", false)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(slot, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "hi", string(data))
}

func TestFetchHTTPRetriesOn5xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	f := NewFetcher(Config{CacheRoot: t.TempDir(), Retry: RetryConfig{Retries: 3, BaseDelay: 1}})
	slot, err := f.Fetch(context.Background(), server.URL+"/file.bin", "pkg", "4.0.0", false)
	require.NoError(t, err)
	require.Equal(t, 3, attempts)

	data, err := os.ReadFile(filepath.Join(slot, "file.bin"))
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestFetchUnsupportedScheme(t *testing.T) {
	f := NewFetcher(Config{CacheRoot: t.TempDir()})
	_, err := f.Fetch(context.Background(), "ftp://example.com/src", "pkg", "1.0.0", false)
	require.Error(t, err)
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	payload := tarGzArchive(t, map[string]string{"../escape.txt": "nope"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	f := NewFetcher(Config{CacheRoot: t.TempDir()})
	_, err := f.Fetch(context.Background(), server.URL+"/evil.tar.gz", "pkg", "5.0.0", false)
	require.Error(t, err)
}
