// Package scan discovers package definition files beneath configured
// roots and loads them into model.Package records, amortizing repeated
// scans through the two-level cache.
package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"rezgo/internal/cache"
	"rezgo/internal/model"
	"rezgo/internal/ports"
)

// includeNames is the default package definition filename set.
var includeNames = map[string]bool{
	"package.py":   true,
	"package.yaml": true,
	"package.yml":  true,
	"package.json": true,
}

// defaultExcludes prunes directories that never hold package definitions.
var defaultExcludes = []string{".git", "__pycache__", "node_modules"}

// Options bounds one scanner instance. Zero values fall back to the
// defaults below.
type Options struct {
	MaxDepth           int
	ExcludeGlobs       []string
	MaxConcurrentScans int
	ScanTimeout        time.Duration
	RefreshInterval    time.Duration
	PreloadRoots       []string
	Logger             *zerolog.Logger
}

const (
	defaultMaxDepth    = 16
	defaultConcurrency = 8
	defaultScanTimeout = 2 * time.Minute
)

// ScanError records one non-fatal per-file failure.
type ScanError struct {
	Path    string
	Kind    string
	Message string
}

// ScanResult is the outcome of one Scan call. Ordering of Packages is
// not guaranteed across runs; callers sort when determinism is needed.
type ScanResult struct {
	Packages  []model.Package
	Errors    []ScanError
	CacheHits int64
	Duration  time.Duration
}

// fileStamp is the cache validity key: a cached package is served only
// while the file's (mtime, size) pair is unchanged.
type fileStamp struct {
	modTime time.Time
	size    int64
}

// Scanner walks roots, classifies candidate files, and loads them
// through the package cache. Safe for concurrent use.
type Scanner struct {
	opts Options

	packages *cache.Manager[string, model.Package]

	stampMu sync.Mutex
	stamps  map[string]fileStamp

	prefixMu sync.Mutex
	prefixes []string

	predictor *predictor
	group     singleflight.Group
	logger    zerolog.Logger

	hits   int64
	hitsMu sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
}

// New builds a Scanner and starts its background refresh task when
// RefreshInterval is set. Preload roots are scanned asynchronously.
func New(opts Options) *Scanner {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	if opts.MaxConcurrentScans <= 0 {
		opts.MaxConcurrentScans = defaultConcurrency
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = defaultScanTimeout
	}
	s := &Scanner{
		opts:      opts,
		packages:  cache.New[string, model.Package](),
		stamps:    map[string]fileStamp{},
		predictor: newPredictor(),
		logger:    log.Logger,
		stop:      make(chan struct{}),
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	for _, root := range opts.PreloadRoots {
		root := root
		go func() {
			_, _ = s.Scan(context.Background(), []string{root})
		}()
	}
	if opts.RefreshInterval > 0 {
		go s.refreshLoop()
	}
	return s
}

// Close stops the background refresh task.
func (s *Scanner) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Scan walks the given roots and returns every package definition found.
// Per-file failures, including an unreadable root, accumulate in the
// result as ScanErrors; only an empty root path or an exceeded scan
// timeout fail the call.
func (s *Scanner) Scan(ctx context.Context, roots []string) (ScanResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.ScanTimeout)
	defer cancel()

	var result ScanResult
	var candidates []string
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			return ScanResult{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("scan root is empty")
		}
		found, errs := s.enumerate(ctx, root)
		candidates = append(candidates, found...)
		result.Errors = append(result.Errors, errs...)
	}
	if err := ctx.Err(); err != nil {
		return ScanResult{}, scanTimeoutError(err)
	}

	packages, errs, err := s.loadBatch(ctx, candidates)
	if err != nil {
		return ScanResult{}, err
	}
	result.Packages = packages
	result.Errors = append(result.Errors, errs...)
	result.CacheHits = s.snapshotHits()
	result.Duration = time.Since(start)

	s.logger.Debug().
		Int("candidates", len(candidates)).
		Int("packages", len(result.Packages)).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("scan complete")
	return result, nil
}

func scanTimeoutError(cause error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg("scan timed out").
		WithCause(cause)
}

// enumerate descends root up to MaxDepth, pruning excluded directories
// and ordering subdirectory traversal by predictor score. Unreadable
// directories become per-scan errors, not failures.
func (s *Scanner) enumerate(ctx context.Context, root string) ([]string, []ScanError) {
	var files []string
	var errs []ScanError
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if ctx.Err() != nil || depth > s.opts.MaxDepth {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			kind := "filesystem"
			if os.IsPermission(err) {
				kind = "permission"
			}
			errs = append(errs, ScanError{Path: dir, Kind: kind, Message: err.Error()})
			return
		}
		type scoredDir struct {
			path  string
			score float64
		}
		var subdirs []scoredDir
		for _, entry := range entries {
			name := entry.Name()
			path := filepath.Join(dir, name)
			if entry.IsDir() {
				if s.excluded(name) {
					continue
				}
				subdirs = append(subdirs, scoredDir{path: path, score: s.predictor.score(path)})
				continue
			}
			if includeNames[name] {
				files = append(files, path)
				s.predictor.recordHit(dir)
			}
		}
		sort.SliceStable(subdirs, func(i, j int) bool { return subdirs[i].score > subdirs[j].score })
		for _, sub := range subdirs {
			walk(sub.path, depth+1)
		}
	}
	walk(root, 0)
	return files, errs
}

func (s *Scanner) excluded(name string) bool {
	for _, glob := range defaultExcludes {
		if name == glob {
			return true
		}
	}
	for _, glob := range s.opts.ExcludeGlobs {
		if ok, _ := filepath.Match(glob, name); ok {
			return true
		}
	}
	return false
}

// loadBatch dispatches candidate paths across bounded workers. Each path
// is served from the cache when its (mtime, size) stamp still matches;
// otherwise it is read, parsed, validated, and published.
func (s *Scanner) loadBatch(ctx context.Context, paths []string) ([]model.Package, []ScanError, error) {
	var mu sync.Mutex
	var packages []model.Package
	var errs []ScanError

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.opts.MaxConcurrentScans)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			pkg, hit, err := s.loadOne(path)
			if err != nil {
				mu.Lock()
				errs = append(errs, ScanError{Path: path, Kind: "parse", Message: err.Error()})
				mu.Unlock()
				return nil
			}
			if hit {
				s.recordHit()
			}
			mu.Lock()
			packages = append(packages, pkg)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, scanTimeoutError(err)
	}
	return packages, errs, nil
}

// loadOne resolves one candidate path through the cache. The
// singleflight group guarantees two concurrent callers for the same
// path observe at most one parse.
func (s *Scanner) loadOne(path string) (model.Package, bool, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		canonical = path
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return model.Package{}, false, err
	}
	stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}

	if pkg, ok := s.cachedValid(canonical, stamp); ok {
		return pkg, true, nil
	}

	v, err, _ := s.group.Do(canonical, func() (interface{}, error) {
		// Re-check after winning the flight: a concurrent caller may
		// have published while this one waited.
		if pkg, ok := s.cachedValid(canonical, stamp); ok {
			return pkg, nil
		}
		pkg, err := model.LoadPackage(canonical)
		if err != nil {
			return nil, err
		}
		s.publish(canonical, pkg, stamp)
		return pkg, nil
	})
	if err != nil {
		return model.Package{}, false, err
	}
	return v.(model.Package), false, nil
}

func (s *Scanner) cachedValid(canonical string, stamp fileStamp) (model.Package, bool) {
	s.stampMu.Lock()
	cached, ok := s.stamps[canonical]
	s.stampMu.Unlock()
	if !ok || !cached.modTime.Equal(stamp.modTime) || cached.size != stamp.size {
		return model.Package{}, false
	}
	return s.packages.Get(canonical)
}

func (s *Scanner) publish(canonical string, pkg model.Package, stamp fileStamp) {
	s.packages.Put(canonical, pkg, stamp.size)
	s.stampMu.Lock()
	s.stamps[canonical] = stamp
	s.stampMu.Unlock()
	s.registerPrefix(filepath.Dir(canonical))
}

// RegisterPrefix adds a path prefix for second-chance lookups.
func (s *Scanner) RegisterPrefix(prefix string) {
	s.registerPrefix(prefix)
}

func (s *Scanner) registerPrefix(prefix string) {
	s.prefixMu.Lock()
	defer s.prefixMu.Unlock()
	for _, existing := range s.prefixes {
		if existing == prefix {
			return
		}
	}
	s.prefixes = append(s.prefixes, prefix)
}

// Lookup returns the cached package for path, falling back to a prefix
// match: when a registered prefix contains the query, the entry cached
// under that prefix's definition file is returned.
func (s *Scanner) Lookup(path string) (model.Package, bool) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		canonical = path
	}
	if pkg, ok := s.packages.Get(canonical); ok {
		return pkg, true
	}
	s.prefixMu.Lock()
	prefixes := append([]string(nil), s.prefixes...)
	s.prefixMu.Unlock()
	for _, prefix := range prefixes {
		if !strings.HasPrefix(canonical, prefix) {
			continue
		}
		for name := range includeNames {
			if pkg, ok := s.packages.Get(filepath.Join(prefix, name)); ok {
				return pkg, true
			}
		}
	}
	return model.Package{}, false
}

// refreshLoop periodically re-validates cached entries against on-disk
// state and evicts stale ones.
func (s *Scanner) refreshLoop() {
	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.refreshOnce()
		}
	}
}

func (s *Scanner) refreshOnce() {
	s.stampMu.Lock()
	snapshot := make(map[string]fileStamp, len(s.stamps))
	for k, v := range s.stamps {
		snapshot[k] = v
	}
	s.stampMu.Unlock()

	for path, stamp := range snapshot {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Equal(stamp.modTime) || info.Size() != stamp.size {
			s.packages.Remove(path)
			s.stampMu.Lock()
			delete(s.stamps, path)
			s.stampMu.Unlock()
			s.logger.Debug().Str("path", path).Msg("evicted stale scan cache entry")
		}
	}
}

func (s *Scanner) recordHit() {
	s.hitsMu.Lock()
	s.hits++
	s.hitsMu.Unlock()
}

func (s *Scanner) snapshotHits() int64 {
	s.hitsMu.Lock()
	defer s.hitsMu.Unlock()
	return s.hits
}

// Candidates implements ports.PackageRepository over the scanner cache:
// every cached package whose name matches is returned.
func (s *Scanner) Candidates(_ context.Context, name string) ([]model.Package, error) {
	var out []model.Package
	for _, pkg := range s.CachedPackages() {
		if pkg.Name == name {
			out = append(out, pkg)
		}
	}
	return out, nil
}

// CachedPackages returns a snapshot of every cached package.
func (s *Scanner) CachedPackages() []model.Package {
	s.stampMu.Lock()
	paths := make([]string, 0, len(s.stamps))
	for path := range s.stamps {
		paths = append(paths, path)
	}
	s.stampMu.Unlock()
	var out []model.Package
	for _, path := range paths {
		if pkg, ok := s.packages.Get(path); ok {
			out = append(out, pkg)
		}
	}
	return out
}

var _ ports.PackageRepository = (*Scanner)(nil)
