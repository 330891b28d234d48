package model

import "time"

// BuildOptions tunes one build request.
type BuildOptions struct {
	ForceRebuild bool
	SkipTests    bool
	ReleaseMode  bool
	BuildArgs    []string
	Env          map[string]string
}

// BuildRequest asks the orchestrator to build one package from a source
// directory (or a remote source fetched beforehand), optionally pinned
// to a single variant.
type BuildRequest struct {
	Package      Package
	SourceDir    string
	VariantIndex int // -1 builds the variant-less form
	Options      BuildOptions
	InstallPath  string
	Timeout      time.Duration
}

// BuildStatus is the job state machine's current position.
type BuildStatus string

const (
	BuildQueued      BuildStatus = "queued"
	BuildConfiguring BuildStatus = "configuring"
	BuildCompiling   BuildStatus = "compiling"
	BuildTesting     BuildStatus = "testing"
	BuildPackaging   BuildStatus = "packaging"
	BuildInstalling  BuildStatus = "installing"
	BuildSucceeded   BuildStatus = "succeeded"
	BuildFailed      BuildStatus = "failed"
	BuildCancelled   BuildStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s BuildStatus) Terminal() bool {
	switch s {
	case BuildSucceeded, BuildFailed, BuildCancelled:
		return true
	default:
		return false
	}
}

// BuildStep names one stage of the fixed build chain.
type BuildStep string

const (
	StepConfigure BuildStep = "configure"
	StepCompile   BuildStep = "compile"
	StepTest      BuildStep = "test"
	StepPackage   BuildStep = "package"
	StepInstall   BuildStep = "install"
)

// StepResult captures one step's outcome, including the captured child
// process output.
type StepResult struct {
	Step     BuildStep
	Success  bool
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// BuildJob is the orchestrator's view of one in-flight or finished
// build. Observers read snapshots; the driver task owns the live state.
type BuildJob struct {
	ID          string
	Request     BuildRequest
	Status      BuildStatus
	FailReason  string
	StartedAt   time.Time
	FinishedAt  time.Time
	StepResults []StepResult
}
