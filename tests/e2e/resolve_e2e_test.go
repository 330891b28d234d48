package e2e

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rezgo/internal/app"
	"rezgo/internal/model"
	"rezgo/internal/resolver"
	"rezgo/tests/testutil"
)

// TestScanResolveRenderPipeline drives the full data plane: scan a
// package tree, resolve a requirement with transitive dependencies,
// compose the context, and render it for bash.
func TestScanResolveRenderPipeline(t *testing.T) {
	root := t.TempDir()
	testutil.WritePackageYAML(t, filepath.Join(root, "python"), "python", "3.10.0",
		"tools:\n  - python3\ncommands: |\n  prependenv PYTHONPATH $PYTHON_ROOT/lib:\n")
	testutil.WritePackageYAML(t, filepath.Join(root, "numpy"), "numpy", "1.26.0",
		"requires:\n  - python>=3.9\n")

	service := app.NewService(app.Options{})
	defer service.Close()

	requirement, err := model.ParseRequirement("numpy")
	require.NoError(t, err)

	resolved, result, err := service.Resolve(context.Background(), app.ResolveRequest{
		Roots: []string{root},
		Request: resolver.SolverRequest{
			Requirements: []model.PackageRequirement{requirement},
			Strategy:     resolver.LatestWins,
		},
	})
	require.NoError(t, err)
	require.False(t, result.Partial)
	require.Len(t, resolved.Resolved, 2)

	rendered, err := service.RenderEnv(resolved, model.ShellBash)
	require.NoError(t, err)
	require.Contains(t, rendered, "export NUMPY_VERSION=\"1.26.0\"")
	require.Contains(t, rendered, "export PYTHON_VERSION=\"3.10.0\"")
	require.Contains(t, rendered, "export PYTHONPATH=\"$PYTHON_ROOT/lib:$PYTHONPATH\"")
	require.Contains(t, rendered, "PATH")

	// Identical request resolves to an identical fingerprint.
	again, _, err := service.Resolve(context.Background(), app.ResolveRequest{
		Roots: []string{root},
		Request: resolver.SolverRequest{
			Requirements: []model.PackageRequirement{requirement},
			Strategy:     resolver.LatestWins,
		},
	})
	require.NoError(t, err)
	require.Equal(t, resolved.Fingerprint(), again.Fingerprint())
}

// TestResolveConflictSurfacesInResult exercises the conflict path end
// to end: two incompatible pins under FailOnConflict reject, and the
// same request under LatestWins resolves to the newer version.
func TestResolveConflictSurfacesInResult(t *testing.T) {
	root := t.TempDir()
	testutil.WritePackageYAML(t, filepath.Join(root, "lib1"), "lib", "1.0.0", "")
	libDir2 := filepath.Join(root, "lib2")
	testutil.WritePackageYAML(t, libDir2, "lib", "2.0.0", "")

	service := app.NewService(app.Options{})
	defer service.Close()

	pin, err := model.ParseRequirement("lib==1.0.0")
	require.NoError(t, err)
	floor, err := model.ParseRequirement("lib>=2.0")
	require.NoError(t, err)

	_, _, err = service.Resolve(context.Background(), app.ResolveRequest{
		Roots: []string{root},
		Request: resolver.SolverRequest{
			Requirements: []model.PackageRequirement{pin, floor},
			Strategy:     resolver.FailOnConflict,
		},
	})
	require.Error(t, err)

	resolved, _, err := service.Resolve(context.Background(), app.ResolveRequest{
		Roots: []string{root},
		Request: resolver.SolverRequest{
			Requirements: []model.PackageRequirement{pin, floor},
			Strategy:     resolver.LatestWins,
		},
	})
	require.NoError(t, err)
	require.Len(t, resolved.Resolved, 1)
	require.Equal(t, "2.0.0", resolved.Resolved[0].Package.Version.Render())
}
