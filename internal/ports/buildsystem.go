package ports

import (
	"context"

	"rezgo/internal/model"
)

// BuildSystem is the capability set a build-system adapter implements.
// Detect is called against the request's source directory; the five step
// methods are invoked in chain order under the resolved context's
// environment. A failed StepResult short-circuits the chain.
type BuildSystem interface {
	Name() string
	Detect(sourceDir string) bool
	Configure(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult
	Compile(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult
	Test(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult
	Package(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult
	Install(ctx context.Context, req model.BuildRequest, buildDir string, env []string) model.StepResult
}
