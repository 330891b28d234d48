// Package app wires the core components into the library API the CLI
// (and any other embedder) consumes: scan, resolve, env, and build.
package app

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"rezgo/internal/build"
	"rezgo/internal/envctx"
	"rezgo/internal/fetch"
	"rezgo/internal/model"
	"rezgo/internal/ports"
	"rezgo/internal/resolver"
	"rezgo/internal/rex"
	"rezgo/internal/scan"
)

// Service owns one instance of every core component. All collaborators
// are constructor-owned so tests can instantiate isolated services.
type Service struct {
	Scanner  *scan.Scanner
	Resolver *resolver.Resolver
	Builder  *envctx.Builder
	Builds   *build.Manager
	Fetcher  ports.SourceFetcher
	Parser   *rex.Parser
}

// Options assembles a Service. Zero values fall back to component
// defaults.
type Options struct {
	ScanRoots   []string
	ScanOptions scan.Options
	Resolver    resolver.Config
	Env         envctx.Options
	Build       build.Config
	Fetch       fetch.Config
}

// NewService wires the components together: the scanner doubles as the
// resolver's package repository, and the env builder shares the Rex
// parser with the rest of the service.
func NewService(opts Options) *Service {
	parser := rex.NewParser(nil)
	if len(opts.ScanOptions.PreloadRoots) == 0 {
		opts.ScanOptions.PreloadRoots = opts.ScanRoots
	}
	scanner := scan.New(opts.ScanOptions)
	return &Service{
		Scanner:  scanner,
		Resolver: resolver.New(scanner, opts.Resolver),
		Builder:  envctx.NewBuilder(opts.Env, parser),
		Builds:   build.NewManager(opts.Build),
		Fetcher:  fetch.NewFetcher(opts.Fetch),
		Parser:   parser,
	}
}

// Close releases background tasks.
func (s *Service) Close() {
	s.Scanner.Close()
}

// Scan discovers package definitions beneath the given roots.
func (s *Service) Scan(ctx context.Context, roots []string) (scan.ScanResult, error) {
	return s.Scanner.Scan(ctx, roots)
}

// ResolveRequest bundles a resolution request with the scan roots that
// feed its candidate repository.
type ResolveRequest struct {
	Roots   []string
	Request resolver.SolverRequest
}

// Resolve scans the roots, resolves the request, and composes the
// resolved context.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (model.ResolvedContext, resolver.ResolutionResult, error) {
	if len(req.Roots) > 0 {
		if _, err := s.Scanner.Scan(ctx, req.Roots); err != nil {
			return model.ResolvedContext{}, resolver.ResolutionResult{}, err
		}
	}
	result, err := s.Resolver.Resolve(ctx, req.Request)
	if err != nil {
		return model.ResolvedContext{}, resolver.ResolutionResult{}, err
	}
	resolved, err := s.Builder.Build(ctx, req.Request.Requirements, result.Resolved)
	if err != nil {
		return model.ResolvedContext{}, resolver.ResolutionResult{}, err
	}
	log.Ctx(ctx).Debug().
		Int("packages", len(resolved.Resolved)).
		Str("fingerprint", resolved.Fingerprint()).
		Msg("resolved context composed")
	return resolved, result, nil
}

// RenderEnv renders a resolved context for a target shell.
func (s *Service) RenderEnv(resolved model.ResolvedContext, shell model.ShellType) (string, error) {
	if shell == "" {
		shell = resolved.Shell
	}
	return rex.NewRenderer(shell).Render(resolved.Env)
}

// Build fetches the request's source when it is remote, then starts the
// build and returns the job ID.
func (s *Service) Build(ctx context.Context, req model.BuildRequest, source string) (string, error) {
	if source != "" {
		version := ""
		if req.Package.HasVersion {
			version = req.Package.Version.Render()
		}
		dir, err := s.Fetcher.Fetch(ctx, source, req.Package.Name, version, req.Options.ForceRebuild)
		if err != nil {
			return "", err
		}
		req.SourceDir = dir
	}
	if req.SourceDir == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("build request needs a source directory or source URL")
	}
	return s.Builds.StartBuild(ctx, req)
}

// WaitForBuild blocks until the job is terminal.
func (s *Service) WaitForBuild(ctx context.Context, id string) (model.BuildJob, error) {
	return s.Builds.WaitForBuild(ctx, id)
}
