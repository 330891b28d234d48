package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rezgo/internal/model"
)

func TestSATBackendPicksLatestCompatibleSet(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"app": {mkpkg(t, "app", "1.0.0", "lib>=1.0")},
		"lib": {
			mkpkg(t, "lib", "1.0.0"),
			mkpkg(t, "lib", "2.0.0"),
		},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "app")},
		Strategy:     LatestWins,
		Backend:      BackendSAT,
	})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 2)
	byName := map[string]string{}
	for _, rp := range result.Resolved {
		byName[rp.Package.Name] = rp.Package.Version.Render()
	}
	require.Equal(t, "1.0.0", byName["app"])
	require.Equal(t, "2.0.0", byName["lib"])
}

func TestSATBackendRespectsTightConstraints(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"a": {mkpkg(t, "a", "1.0.0", "shared==1.0.0")},
		"b": {mkpkg(t, "b", "1.0.0", "shared<2")},
		"shared": {
			mkpkg(t, "shared", "1.0.0"),
			mkpkg(t, "shared", "2.0.0"),
		},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "a"), mkreq(t, "b")},
		Strategy:     FindCompatible,
		Backend:      BackendSAT,
	})
	require.NoError(t, err)
	byName := map[string]string{}
	for _, rp := range result.Resolved {
		byName[rp.Package.Name] = rp.Package.Version.Render()
	}
	require.Equal(t, "1.0.0", byName["shared"])
}

func TestSATBackendUnsatisfiable(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"a":      {mkpkg(t, "a", "1.0.0", "shared==1.0.0")},
		"b":      {mkpkg(t, "b", "1.0.0", "shared==2.0.0")},
		"shared": {mkpkg(t, "shared", "1.0.0"), mkpkg(t, "shared", "2.0.0")},
	}}
	r := New(repo, Config{})

	_, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "a"), mkreq(t, "b")},
		Strategy:     FindCompatible,
		Backend:      BackendSAT,
	})
	require.Error(t, err)
}

func TestSATBackendVariantExclusivity(t *testing.T) {
	lib := mkpkg(t, "lib", "1.0.0")
	lib.Variants = [][]model.PackageRequirement{
		{mkreq(t, "python==3.9")},
		{mkreq(t, "python==3.10")},
	}
	repo := fakeRepo{packages: map[string][]model.Package{
		"lib": {lib},
		"python": {
			mkpkg(t, "python", "3.9"),
			mkpkg(t, "python", "3.10"),
		},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "lib")},
		Strategy:     LatestWins,
		Backend:      BackendSAT,
	})
	require.NoError(t, err)
	count := 0
	for _, rp := range result.Resolved {
		if rp.Package.Name == "lib" {
			count++
		}
	}
	require.Equal(t, 1, count)
}
