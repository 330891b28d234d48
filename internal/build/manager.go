package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rezgo/internal/model"
	"rezgo/internal/ports"
	"rezgo/internal/shared"
)

// Stats aggregates per-manager build counters.
type Stats struct {
	BuildsStarted   int64
	BuildsSucceeded int64
	BuildsFailed    int64
	BuildsCancelled int64
	StepTotals      map[model.BuildStep]time.Duration
	StepCounts      map[model.BuildStep]int64
}

// AvgStepDuration returns the mean duration observed for a step.
func (s Stats) AvgStepDuration(step model.BuildStep) time.Duration {
	count := s.StepCounts[step]
	if count == 0 {
		return 0
	}
	return s.StepTotals[step] / time.Duration(count)
}

// Config bounds a Manager.
type Config struct {
	MaxConcurrentBuilds int
	BuildRoot           string
	InstallRoot         string
	DefaultTimeout      time.Duration
	Systems             []ports.BuildSystem
	Logger              *zerolog.Logger
}

const (
	defaultMaxConcurrentBuilds = 4
	defaultBuildTimeout        = 30 * time.Minute
)

type jobEntry struct {
	mu     sync.Mutex
	job    model.BuildJob
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the bounded build pool and the job table. Each started
// build runs on its own driver task; observers read job snapshots.
type Manager struct {
	cfg Config
	sem chan struct{}

	mu   sync.Mutex
	jobs map[string]*jobEntry
	seq  int64

	statsMu sync.Mutex
	stats   Stats

	logger zerolog.Logger
}

// NewManager builds a Manager with the default adapter set unless
// Config.Systems overrides it.
func NewManager(cfg Config) *Manager {
	if cfg.MaxConcurrentBuilds <= 0 {
		cfg.MaxConcurrentBuilds = defaultMaxConcurrentBuilds
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultBuildTimeout
	}
	if cfg.BuildRoot == "" {
		cfg.BuildRoot = filepath.Join(os.TempDir(), "rezgo-build")
	}
	if len(cfg.Systems) == 0 {
		cfg.Systems = DefaultSystems()
	}
	m := &Manager{
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.MaxConcurrentBuilds),
		jobs:   map[string]*jobEntry{},
		logger: log.Logger,
		stats: Stats{
			StepTotals: map[model.BuildStep]time.Duration{},
			StepCounts: map[model.BuildStep]int64{},
		},
	}
	if cfg.Logger != nil {
		m.logger = *cfg.Logger
	}
	return m
}

// StartBuild validates the request, selects an adapter, and spawns the
// driver. It returns immediately with the job ID.
func (m *Manager) StartBuild(ctx context.Context, req model.BuildRequest) (string, error) {
	if strings.TrimSpace(req.SourceDir) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("build request has no source directory")
	}
	info, err := os.Stat(req.SourceDir)
	if err != nil || !info.IsDir() {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("build source directory not found: " + req.SourceDir).
			WithCause(err)
	}
	system := m.detect(req.SourceDir)
	if system == nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("no build system detected in " + req.SourceDir)
	}
	if req.InstallPath == "" {
		req.InstallPath = m.defaultInstallPath(req)
	}
	if req.Timeout <= 0 {
		req.Timeout = m.cfg.DefaultTimeout
	}

	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("build-%d-%s", m.seq, req.Package.Name)
	buildCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	entry := &jobEntry{
		job: model.BuildJob{
			ID:      id,
			Request: req,
			Status:  model.BuildQueued,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.jobs[id] = entry
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.BuildsStarted++
	m.statsMu.Unlock()

	go m.drive(buildCtx, entry, system)
	return id, nil
}

func (m *Manager) detect(sourceDir string) ports.BuildSystem {
	for _, system := range m.cfg.Systems {
		if system.Detect(sourceDir) {
			return system
		}
	}
	return nil
}

func (m *Manager) defaultInstallPath(req model.BuildRequest) string {
	root := m.cfg.InstallRoot
	if root == "" {
		root = filepath.Join(m.cfg.BuildRoot, "installed")
	}
	version := "unversioned"
	if req.Package.HasVersion {
		version = req.Package.Version.Render()
	}
	return filepath.Join(root, req.Package.Name, version)
}

// drive advances the job through the state machine. A failing step
// short-circuits to Failed; a cancelled context yields Cancelled.
func (m *Manager) drive(ctx context.Context, entry *jobEntry, system ports.BuildSystem) {
	defer close(entry.done)

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		m.finish(entry, model.BuildCancelled, "cancelled while queued")
		return
	}

	ctx, cancelTimeout := context.WithTimeout(ctx, entry.snapshot().Request.Timeout)
	defer cancelTimeout()

	req := entry.snapshot().Request
	buildDir := filepath.Join(m.cfg.BuildRoot, entry.snapshot().ID)
	if err := os.MkdirAll(buildDir, 0o750); err != nil {
		m.finish(entry, model.BuildFailed, shared.CommandError(nil, err).Error())
		return
	}
	env := buildEnv(req)

	entry.mu.Lock()
	entry.job.StartedAt = time.Now()
	entry.mu.Unlock()

	if !req.Options.ForceRebuild && m.installedMarkerValid(req) {
		m.logger.Debug().Str("job", entry.snapshot().ID).Msg("install up to date, short-circuiting build")
		m.finish(entry, model.BuildSucceeded, "")
		return
	}

	type stage struct {
		status model.BuildStatus
		step   model.BuildStep
		run    func(context.Context, model.BuildRequest, string, []string) model.StepResult
		skip   bool
	}
	stages := []stage{
		{status: model.BuildConfiguring, step: model.StepConfigure, run: system.Configure},
		{status: model.BuildCompiling, step: model.StepCompile, run: system.Compile},
		{status: model.BuildTesting, step: model.StepTest, run: system.Test, skip: req.Options.SkipTests},
		{status: model.BuildPackaging, step: model.StepPackage, run: system.Package},
		{status: model.BuildInstalling, step: model.StepInstall, run: system.Install},
	}

	for _, st := range stages {
		if ctx.Err() != nil {
			m.finish(entry, model.BuildCancelled, ctx.Err().Error())
			return
		}
		if st.skip {
			continue
		}
		m.transition(entry, st.status)
		m.logger.Debug().
			Str("job", entry.snapshot().ID).
			Str("system", system.Name()).
			Str("step", string(st.step)).
			Msg("running build step")

		result := st.run(ctx, req, buildDir, env)
		m.recordStep(entry, result)
		if !result.Success {
			if ctx.Err() != nil {
				m.finish(entry, model.BuildCancelled, ctx.Err().Error())
				return
			}
			m.finish(entry, model.BuildFailed, string(st.step)+" failed: "+strings.TrimSpace(result.Stderr))
			return
		}
	}

	m.writeInstalledMarker(req)
	m.finish(entry, model.BuildSucceeded, "")
}

func buildEnv(req model.BuildRequest) []string {
	if len(req.Options.Env) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range req.Options.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// installFingerprint keys the install short-circuit on
// (package, version, variant, option fingerprint).
func installFingerprint(req model.BuildRequest) string {
	version := ""
	if req.Package.HasVersion {
		version = req.Package.Version.Render()
	}
	return fmt.Sprintf("%s|%s|%d|%v|%v", req.Package.Name, version, req.VariantIndex, req.Options.ReleaseMode, req.Options.BuildArgs)
}

const installedMarkerName = ".rezgo-build-ok"

func (m *Manager) installedMarkerValid(req model.BuildRequest) bool {
	data, err := os.ReadFile(filepath.Join(req.InstallPath, installedMarkerName))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == installFingerprint(req)
}

func (m *Manager) writeInstalledMarker(req model.BuildRequest) {
	if err := os.MkdirAll(req.InstallPath, 0o750); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(req.InstallPath, installedMarkerName), []byte(installFingerprint(req)), 0o644)
}

func (m *Manager) transition(entry *jobEntry, status model.BuildStatus) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.job.Status.Terminal() {
		return
	}
	entry.job.Status = status
}

func (m *Manager) recordStep(entry *jobEntry, result model.StepResult) {
	entry.mu.Lock()
	entry.job.StepResults = append(entry.job.StepResults, result)
	entry.mu.Unlock()

	m.statsMu.Lock()
	m.stats.StepTotals[result.Step] += result.Duration
	m.stats.StepCounts[result.Step]++
	m.statsMu.Unlock()
}

func (m *Manager) finish(entry *jobEntry, status model.BuildStatus, reason string) {
	entry.mu.Lock()
	if !entry.job.Status.Terminal() {
		entry.job.Status = status
		entry.job.FailReason = reason
		entry.job.FinishedAt = time.Now()
	}
	final := entry.job.Status
	entry.mu.Unlock()

	m.statsMu.Lock()
	switch final {
	case model.BuildSucceeded:
		m.stats.BuildsSucceeded++
	case model.BuildFailed:
		m.stats.BuildsFailed++
	case model.BuildCancelled:
		m.stats.BuildsCancelled++
	}
	m.statsMu.Unlock()
}

func (e *jobEntry) snapshot() model.BuildJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	job := e.job
	job.StepResults = append([]model.StepResult(nil), e.job.StepResults...)
	return job
}

// Job returns a snapshot of the identified build.
func (m *Manager) Job(id string) (model.BuildJob, error) {
	m.mu.Lock()
	entry, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return model.BuildJob{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("unknown build job: " + id)
	}
	return entry.snapshot(), nil
}

// WaitForBuild blocks until the job reaches a terminal state or the
// context is cancelled.
func (m *Manager) WaitForBuild(ctx context.Context, id string) (model.BuildJob, error) {
	m.mu.Lock()
	entry, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return model.BuildJob{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("unknown build job: " + id)
	}
	select {
	case <-entry.done:
		return entry.snapshot(), nil
	case <-ctx.Done():
		return entry.snapshot(), errbuilder.New().
			WithCode(errbuilder.CodeDeadlineExceeded).
			WithMsg("wait for build interrupted").
			WithCause(ctx.Err())
	}
}

// Cancel signals the job's driver; a running child process is killed
// through the command context.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	entry, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("unknown build job: " + id)
	}
	entry.cancel()
	return nil
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	out := Stats{
		BuildsStarted:   m.stats.BuildsStarted,
		BuildsSucceeded: m.stats.BuildsSucceeded,
		BuildsFailed:    m.stats.BuildsFailed,
		BuildsCancelled: m.stats.BuildsCancelled,
		StepTotals:      map[model.BuildStep]time.Duration{},
		StepCounts:      map[model.BuildStep]int64{},
	}
	for k, v := range m.stats.StepTotals {
		out.StepTotals[k] = v
	}
	for k, v := range m.stats.StepCounts {
		out.StepCounts[k] = v
	}
	return out
}
