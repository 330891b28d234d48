package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rezgo/internal/model"
)

func mkRequest(t *testing.T, sourceDir string) model.BuildRequest {
	t.Helper()
	v, err := model.ParseVersion("1.0.0")
	require.NoError(t, err)
	return model.BuildRequest{
		Package:      model.Package{Name: "sample", Version: v, HasVersion: true},
		SourceDir:    sourceDir,
		VariantIndex: -1,
	}
}

func writeCustomScript(t *testing.T, dir string, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.sh"), []byte("#!/bin/sh\n"+body), 0o755))
}

func TestDetectionByMarkerFile(t *testing.T) {
	cases := map[string]string{
		"CMakeLists.txt": "cmake",
		"Makefile":       "make",
		"setup.py":       "python",
		"package.json":   "node",
		"Cargo.toml":     "cargo",
		"build.sh":       "custom",
	}
	for marker, want := range cases {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, marker), []byte(""), 0o644))
		m := NewManager(Config{})
		system := m.detect(dir)
		require.NotNil(t, system, "marker %s", marker)
		require.Equal(t, want, system.Name(), "marker %s", marker)
	}
}

func TestBuildHappyPathStepOrder(t *testing.T) {
	dir := t.TempDir()
	writeCustomScript(t, dir, "echo step-$1\nexit 0\n")

	m := NewManager(Config{BuildRoot: t.TempDir()})
	id, err := m.StartBuild(context.Background(), mkRequest(t, dir))
	require.NoError(t, err)

	job, err := m.WaitForBuild(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.BuildSucceeded, job.Status)

	var steps []model.BuildStep
	for _, result := range job.StepResults {
		require.True(t, result.Success)
		steps = append(steps, result.Step)
	}
	require.Equal(t, []model.BuildStep{
		model.StepConfigure,
		model.StepCompile,
		model.StepTest,
		model.StepPackage,
		model.StepInstall,
	}, steps)

	stats := m.Stats()
	require.Equal(t, int64(1), stats.BuildsStarted)
	require.Equal(t, int64(1), stats.BuildsSucceeded)
}

func TestBuildSkipTests(t *testing.T) {
	dir := t.TempDir()
	writeCustomScript(t, dir, "exit 0\n")

	m := NewManager(Config{BuildRoot: t.TempDir()})
	req := mkRequest(t, dir)
	req.Options.SkipTests = true
	id, err := m.StartBuild(context.Background(), req)
	require.NoError(t, err)

	job, err := m.WaitForBuild(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.BuildSucceeded, job.Status)
	for _, result := range job.StepResults {
		require.NotEqual(t, model.StepTest, result.Step)
	}
}

func TestBuildFailingStepShortCircuits(t *testing.T) {
	dir := t.TempDir()
	writeCustomScript(t, dir, "if [ \"$1\" = compile ]; then echo broken >&2; exit 1; fi\nexit 0\n")

	m := NewManager(Config{BuildRoot: t.TempDir()})
	id, err := m.StartBuild(context.Background(), mkRequest(t, dir))
	require.NoError(t, err)

	job, err := m.WaitForBuild(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.BuildFailed, job.Status)
	require.Contains(t, job.FailReason, "compile")

	last := job.StepResults[len(job.StepResults)-1]
	require.Equal(t, model.StepCompile, last.Step)
	require.False(t, last.Success)
	require.Contains(t, last.Stderr, "broken")

	stats := m.Stats()
	require.Equal(t, int64(1), stats.BuildsFailed)
}

func TestBuildNoSystemDetected(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(Config{})
	_, err := m.StartBuild(context.Background(), mkRequest(t, dir))
	require.Error(t, err)
}

func TestBuildCancel(t *testing.T) {
	dir := t.TempDir()
	writeCustomScript(t, dir, "sleep 30\n")

	m := NewManager(Config{BuildRoot: t.TempDir()})
	id, err := m.StartBuild(context.Background(), mkRequest(t, dir))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, m.Cancel(id))

	job, err := m.WaitForBuild(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.BuildCancelled, job.Status)
}

func TestBuildInstallShortCircuit(t *testing.T) {
	dir := t.TempDir()
	writeCustomScript(t, dir, "exit 0\n")
	installPath := t.TempDir()

	m := NewManager(Config{BuildRoot: t.TempDir()})
	req := mkRequest(t, dir)
	req.InstallPath = installPath

	id, err := m.StartBuild(context.Background(), req)
	require.NoError(t, err)
	first, err := m.WaitForBuild(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.BuildSucceeded, first.Status)
	require.NotEmpty(t, first.StepResults)

	id, err = m.StartBuild(context.Background(), req)
	require.NoError(t, err)
	second, err := m.WaitForBuild(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.BuildSucceeded, second.Status)
	require.Empty(t, second.StepResults)
}

func TestTerminalStateIsSticky(t *testing.T) {
	dir := t.TempDir()
	writeCustomScript(t, dir, "exit 0\n")

	m := NewManager(Config{BuildRoot: t.TempDir()})
	id, err := m.StartBuild(context.Background(), mkRequest(t, dir))
	require.NoError(t, err)
	job, err := m.WaitForBuild(context.Background(), id)
	require.NoError(t, err)
	require.True(t, job.Status.Terminal())

	// Cancel after completion must not move the job out of Succeeded.
	require.NoError(t, m.Cancel(id))
	again, err := m.Job(id)
	require.NoError(t, err)
	require.Equal(t, job.Status, again.Status)
}
