// Package envctx composes a resolved package list into a shell-agnostic
// environment specification, deterministically: identical resolutions
// yield identical specifications and fingerprints.
package envctx

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"

	"rezgo/internal/model"
	"rezgo/internal/rex"
)

// PathStrategy selects how package tool directories join PATH.
type PathStrategy string

const (
	PathPrepend  PathStrategy = "prepend"
	PathAppend   PathStrategy = "append"
	PathReplace  PathStrategy = "replace"
	PathNoModify PathStrategy = "nomodify"
)

// Options configures one Builder.
type Options struct {
	Shell          model.ShellType
	PathStrategy   PathStrategy
	Inherit        bool
	PackagesRoot   string
	AdditionalVars map[string]string
	UnsetVars      []string
}

// Builder turns resolved package lists into ResolvedContexts.
type Builder struct {
	opts   Options
	parser *rex.Parser
}

// NewBuilder builds a Builder; parser may be shared across builders to
// reuse its line cache.
func NewBuilder(opts Options, parser *rex.Parser) *Builder {
	if opts.Shell == "" {
		opts.Shell = model.ShellBash
	}
	if opts.PathStrategy == "" {
		opts.PathStrategy = PathPrepend
	}
	return &Builder{opts: opts, parser: parser}
}

// Build composes the environment specification from the resolved set in
// resolution order: per-package variables and bindings first, then the
// PATH policy, with the caller overlay and unset filter recorded on the
// specification for the renderer to apply last.
func (b *Builder) Build(ctx context.Context, requested []model.PackageRequirement, resolved []model.ResolvedPackage) (model.ResolvedContext, error) {
	assert.NotEmpty(ctx, string(b.opts.Shell), "context builder requires a shell type")
	assert.NotEmpty(ctx, string(b.opts.PathStrategy), "context builder requires a path strategy")

	var ops []model.EnvOp
	sep := b.opts.Shell.PathSep()
	replaced := false

	for _, rp := range resolved {
		if rp.Root == "" {
			rp.Root = b.defaultRoot(rp)
		}
		bindings, err := rex.GenerateBindings(b.parser, rp)
		if err != nil {
			return model.ResolvedContext{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("building bindings for " + rp.Package.Name).
				WithCause(err)
		}
		ops = append(ops, bindings...)

		if len(rp.Package.Tools) == 0 {
			continue
		}
		binDir := filepath.Join(rp.Root, "bin")
		switch b.opts.PathStrategy {
		case PathPrepend:
			ops = append(ops, model.EnvOp{Kind: model.OpPrepend, Name: "PATH", Value: binDir, Sep: sep})
		case PathAppend:
			ops = append(ops, model.EnvOp{Kind: model.OpAppend, Name: "PATH", Value: binDir, Sep: sep})
		case PathReplace:
			if replaced {
				ops = append(ops, model.EnvOp{Kind: model.OpAppend, Name: "PATH", Value: binDir, Sep: sep})
			} else {
				ops = append(ops, model.EnvOp{Kind: model.OpSet, Name: "PATH", Value: binDir})
				replaced = true
			}
		case PathNoModify:
		}
	}

	spec := model.EnvironmentSpecification{
		Ops:            ops,
		UnsetVars:      append([]string(nil), b.opts.UnsetVars...),
		AdditionalVars: copyVars(b.opts.AdditionalVars),
	}
	return model.ResolvedContext{
		Requested:    append([]model.PackageRequirement(nil), requested...),
		Resolved:     append([]model.ResolvedPackage(nil), resolved...),
		Env:          spec,
		Shell:        b.opts.Shell,
		PathStrategy: string(b.opts.PathStrategy),
	}, nil
}

// Apply executes the context's specification through the Rex
// interpreter and returns the effective environment. With Inherit set
// the parent process environment seeds the run.
func (b *Builder) Apply(ctx context.Context, resolved model.ResolvedContext) (map[string]string, rex.ExecutionResult, error) {
	seed := map[string]string{}
	if b.opts.Inherit {
		for _, kv := range os.Environ() {
			if name, value, ok := strings.Cut(kv, "="); ok {
				seed[name] = value
			}
		}
	}
	in := rex.NewInterpreter(b.parser, seed, nil)

	ops := append([]model.EnvOp(nil), resolved.Env.Ops...)
	for _, name := range sortedKeys(resolved.Env.AdditionalVars) {
		ops = append(ops, model.EnvOp{Kind: model.OpSet, Name: name, Value: resolved.Env.AdditionalVars[name]})
	}
	for _, name := range resolved.Env.UnsetVars {
		ops = append(ops, model.EnvOp{Kind: model.OpUnset, Name: name})
	}

	result := in.Execute(ctx, ops)
	if !result.Success {
		return nil, result, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("environment specification failed to execute: " + strings.Join(result.Errors, "; "))
	}
	env := map[string]string{}
	for name, value := range result.EnvChanges {
		if value != nil {
			env[name] = *value
		}
	}
	for name, value := range seed {
		if _, changed := result.EnvChanges[name]; !changed {
			env[name] = value
		}
	}
	return env, result, nil
}

func (b *Builder) defaultRoot(rp model.ResolvedPackage) string {
	root := b.opts.PackagesRoot
	if root == "" {
		root = filepath.Join(string(filepath.Separator), "packages")
	}
	if rp.Package.HasVersion {
		return filepath.Join(root, rp.Package.Name, rp.Package.Version.Render())
	}
	return filepath.Join(root, rp.Package.Name)
}

func copyVars(vars map[string]string) map[string]string {
	if len(vars) == 0 {
		return nil
	}
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func sortedKeys(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k := range vars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
