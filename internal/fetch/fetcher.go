// Package fetch retrieves build inputs from git, HTTP, or local sources
// into a persistent build cache keyed by (package, version).
package fetch

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rezgo/internal/ports"
	"rezgo/internal/shared"
)

// Config tunes a Fetcher. CacheRoot defaults to the conventional
// build-cache directory under the system temp dir.
type Config struct {
	CacheRoot string
	Retry     RetryConfig
	Logger    *zerolog.Logger
}

// Fetcher resolves source URLs into cached local trees.
type Fetcher struct {
	cacheRoot string
	retry     RetryConfig
	logger    zerolog.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg Config) *Fetcher {
	root := cfg.CacheRoot
	if root == "" {
		root = filepath.Join(os.TempDir(), "rez-core-build-cache")
	}
	f := &Fetcher{
		cacheRoot: root,
		retry:     cfg.Retry.withDefaults(),
		logger:    log.Logger,
	}
	if cfg.Logger != nil {
		f.logger = *cfg.Logger
	}
	return f
}

// Fetch retrieves source into the cache slot for (packageName, version)
// and returns the slot directory. A populated slot is reused unless
// force is set.
func (f *Fetcher) Fetch(ctx context.Context, source string, packageName string, version string, force bool) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("fetch source is empty")
	}
	slot := filepath.Join(f.cacheRoot, packageName+"-"+version)
	if force {
		if err := os.RemoveAll(slot); err != nil {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to clear build cache slot").
				WithCause(err)
		}
	}
	if populated(slot) {
		f.logger.Debug().Str("slot", slot).Msg("reusing cached source tree")
		return slot, nil
	}
	if err := os.MkdirAll(slot, 0o750); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create build cache slot").
			WithCause(err)
	}

	var err error
	switch sourceScheme(source) {
	case schemeGit:
		err = f.fetchGit(ctx, source, slot)
	case schemeHTTP:
		err = f.fetchHTTP(ctx, source, slot)
	case schemeLocal:
		err = copyTree(source, slot)
	default:
		err = errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("unsupported source scheme: " + source)
	}
	if err != nil {
		_ = os.RemoveAll(slot)
		return "", err
	}
	return slot, nil
}

func populated(slot string) bool {
	entries, err := os.ReadDir(slot)
	return err == nil && len(entries) > 0
}

type scheme int

const (
	schemeUnknown scheme = iota
	schemeGit
	schemeHTTP
	schemeLocal
)

// sourceScheme classifies a source string. scp-style git remotes
// (user@host:path) count as git; everything that exists on disk is
// local.
func sourceScheme(source string) scheme {
	switch {
	case strings.HasPrefix(source, "git://"), strings.HasPrefix(source, "ssh://"):
		return schemeGit
	case strings.HasSuffix(strings.Split(source, "@")[0], ".git"), strings.HasSuffix(source, ".git"):
		return schemeGit
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return schemeHTTP
	}
	if strings.Contains(source, "@") && strings.Contains(source, ":") && !strings.Contains(source, "://") {
		return schemeGit
	}
	if _, err := os.Stat(source); err == nil {
		return schemeLocal
	}
	return schemeUnknown
}

// splitGitRef splits an optional trailing @ref suffix from a git URL.
// The @ in scp-style remotes (user@host:path) is not a ref separator.
func splitGitRef(source string) (string, string) {
	idx := strings.LastIndex(source, "@")
	if idx <= 0 {
		return source, ""
	}
	rest := source[idx+1:]
	if strings.ContainsAny(rest, "/:") {
		return source, ""
	}
	// user@host:path has its @ before the colon; a ref suffix comes after.
	if before := source[:idx]; !strings.ContainsAny(before, ":/") {
		return source, ""
	}
	return source[:idx], rest
}

// fetchGit shells out to git for a shallow clone, checking out the
// optional ref.
func (f *Fetcher) fetchGit(ctx context.Context, source string, slot string) error {
	url, ref := splitGitRef(source)
	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, slot)
	cmd := exec.CommandContext(ctx, "git", args...)
	output, err := cmd.CombinedOutput()
	if err != nil && ref != "" {
		// --branch only takes branch/tag names; retry with a full clone
		// and an explicit checkout for commit hashes.
		_ = os.RemoveAll(slot)
		if mkErr := os.MkdirAll(slot, 0o750); mkErr != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to recreate build cache slot").
				WithCause(mkErr)
		}
		cmd = exec.CommandContext(ctx, "git", "clone", url, slot)
		if output, err = cmd.CombinedOutput(); err == nil {
			checkout := exec.CommandContext(ctx, "git", "-C", slot, "checkout", ref)
			output, err = checkout.CombinedOutput()
		}
	}
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("git fetch failed for " + source).
			WithCause(shared.CommandError(output, err))
	}
	return nil
}

// copyTree recursively copies a local directory (or single file) into
// the cache slot.
func copyTree(source string, slot string) error {
	info, err := os.Stat(source)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("local source not found: " + source).
			WithCause(err)
	}
	if !info.IsDir() {
		return copyFile(source, filepath.Join(slot, filepath.Base(source)), info.Mode())
	}
	return filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(slot, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(source string, target string, mode os.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

var _ ports.SourceFetcher = (*Fetcher)(nil)
