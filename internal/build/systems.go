// Package build drives build jobs through a fixed state machine across
// pluggable build-system adapters, under a bounded concurrency pool.
package build

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"rezgo/internal/model"
	"rezgo/internal/ports"
)

// runStep executes one external command under the resolved environment,
// capturing stdout/stderr separately. A non-zero exit or a cancelled
// context yields success=false.
func runStep(ctx context.Context, step model.BuildStep, argv []string, dir string, env []string) model.StepResult {
	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	result := model.StepResult{
		Step:     step,
		Success:  err == nil,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil && result.Stderr == "" {
		result.Stderr = err.Error()
	}
	return result
}

// skipStep is the no-op result for steps a build system has no work in.
func skipStep(step model.BuildStep) model.StepResult {
	return model.StepResult{Step: step, Success: true}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DefaultSystems returns the built-in adapter set in detection order.
// The custom adapter is last so marker files of known systems win.
func DefaultSystems() []ports.BuildSystem {
	return []ports.BuildSystem{
		cmakeSystem{},
		cargoSystem{},
		nodeSystem{},
		pythonSystem{},
		makeSystem{},
		customSystem{},
	}
}

type cmakeSystem struct{}

func (cmakeSystem) Name() string { return "cmake" }

func (cmakeSystem) Detect(sourceDir string) bool {
	return exists(filepath.Join(sourceDir, "CMakeLists.txt"))
}

func (cmakeSystem) Configure(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	args := []string{"cmake", "-S", req.SourceDir, "-B", buildDir}
	if req.Options.ReleaseMode {
		args = append(args, "-DCMAKE_BUILD_TYPE=Release")
	}
	args = append(args, req.Options.BuildArgs...)
	return runStep(ctx, model.StepConfigure, args, req.SourceDir, env)
}

func (cmakeSystem) Compile(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepCompile, []string{"cmake", "--build", buildDir}, req.SourceDir, env)
}

func (cmakeSystem) Test(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepTest, []string{"ctest", "--test-dir", buildDir, "--output-on-failure"}, req.SourceDir, env)
}

func (cmakeSystem) Package(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return skipStep(model.StepPackage)
}

func (cmakeSystem) Install(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepInstall, []string{"cmake", "--install", buildDir, "--prefix", req.InstallPath}, req.SourceDir, env)
}

type makeSystem struct{}

func (makeSystem) Name() string { return "make" }

func (makeSystem) Detect(sourceDir string) bool {
	return exists(filepath.Join(sourceDir, "Makefile"))
}

func (makeSystem) Configure(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return skipStep(model.StepConfigure)
}

func (makeSystem) Compile(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	args := append([]string{"make"}, req.Options.BuildArgs...)
	return runStep(ctx, model.StepCompile, args, req.SourceDir, env)
}

func (makeSystem) Test(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepTest, []string{"make", "test"}, req.SourceDir, env)
}

func (makeSystem) Package(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return skipStep(model.StepPackage)
}

func (makeSystem) Install(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepInstall, []string{"make", "install", "PREFIX=" + req.InstallPath}, req.SourceDir, env)
}

type pythonSystem struct{}

func (pythonSystem) Name() string { return "python" }

func (pythonSystem) Detect(sourceDir string) bool {
	return exists(filepath.Join(sourceDir, "setup.py")) || exists(filepath.Join(sourceDir, "pyproject.toml"))
}

func (pythonSystem) Configure(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return skipStep(model.StepConfigure)
}

func (pythonSystem) Compile(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepCompile, []string{"python3", "-m", "pip", "wheel", "--no-deps", "--wheel-dir", buildDir, "."}, req.SourceDir, env)
}

func (pythonSystem) Test(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepTest, []string{"python3", "-m", "pytest"}, req.SourceDir, env)
}

func (pythonSystem) Package(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return skipStep(model.StepPackage)
}

func (pythonSystem) Install(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepInstall, []string{"python3", "-m", "pip", "install", "--no-deps", "--target", req.InstallPath, "--find-links", buildDir, req.Package.Name}, req.SourceDir, env)
}

type nodeSystem struct{}

func (nodeSystem) Name() string { return "node" }

func (nodeSystem) Detect(sourceDir string) bool {
	return exists(filepath.Join(sourceDir, "package.json"))
}

func (nodeSystem) Configure(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepConfigure, []string{"npm", "install"}, req.SourceDir, env)
}

func (nodeSystem) Compile(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepCompile, []string{"npm", "run", "build", "--if-present"}, req.SourceDir, env)
}

func (nodeSystem) Test(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepTest, []string{"npm", "test"}, req.SourceDir, env)
}

func (nodeSystem) Package(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepPackage, []string{"npm", "pack", "--pack-destination", buildDir}, req.SourceDir, env)
}

func (nodeSystem) Install(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepInstall, []string{"npm", "install", "--prefix", req.InstallPath, req.SourceDir}, req.SourceDir, env)
}

type cargoSystem struct{}

func (cargoSystem) Name() string { return "cargo" }

func (cargoSystem) Detect(sourceDir string) bool {
	return exists(filepath.Join(sourceDir, "Cargo.toml"))
}

func (cargoSystem) Configure(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return skipStep(model.StepConfigure)
}

func (cargoSystem) Compile(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	args := []string{"cargo", "build"}
	if req.Options.ReleaseMode {
		args = append(args, "--release")
	}
	return runStep(ctx, model.StepCompile, args, req.SourceDir, env)
}

func (cargoSystem) Test(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepTest, []string{"cargo", "test"}, req.SourceDir, env)
}

func (cargoSystem) Package(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepPackage, []string{"cargo", "package", "--allow-dirty"}, req.SourceDir, env)
}

func (cargoSystem) Install(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return runStep(ctx, model.StepInstall, []string{"cargo", "install", "--path", req.SourceDir, "--root", req.InstallPath}, req.SourceDir, env)
}

// customSystem drives a discovered build script, passing the step name
// as the first argument.
type customSystem struct{}

var customScripts = []string{"build.sh", "build.py", "build"}

func (customSystem) Name() string { return "custom" }

func (customSystem) Detect(sourceDir string) bool {
	return customScript(sourceDir) != ""
}

func customScript(sourceDir string) string {
	for _, name := range customScripts {
		path := filepath.Join(sourceDir, name)
		if exists(path) {
			return path
		}
	}
	return ""
}

func (customSystem) run(ctx context.Context, req model.BuildRequest, step model.BuildStep, env []string) model.StepResult {
	script := customScript(req.SourceDir)
	if script == "" {
		result := skipStep(step)
		result.Success = false
		result.Stderr = "custom build script disappeared"
		return result
	}
	var argv []string
	if filepath.Ext(script) == ".py" {
		argv = []string{"python3", script, string(step)}
	} else {
		argv = []string{script, string(step)}
	}
	return runStep(ctx, step, argv, req.SourceDir, env)
}

func (c customSystem) Configure(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return c.run(ctx, req, model.StepConfigure, env)
}

func (c customSystem) Compile(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return c.run(ctx, req, model.StepCompile, env)
}

func (c customSystem) Test(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return c.run(ctx, req, model.StepTest, env)
}

func (c customSystem) Package(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return c.run(ctx, req, model.StepPackage, env)
}

func (c customSystem) Install(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult {
	return c.run(ctx, req, model.StepInstall, env)
}
