package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rezgo/internal/model"
)

type fakeRepo struct {
	packages map[string][]model.Package
}

func (f fakeRepo) Candidates(_ context.Context, name string) ([]model.Package, error) {
	return f.packages[name], nil
}

func mkpkg(t *testing.T, name string, version string, requires ...string) model.Package {
	t.Helper()
	v, err := model.ParseVersion(version)
	require.NoError(t, err)
	pkg := model.Package{Name: name, Version: v, HasVersion: true}
	for _, r := range requires {
		req, err := model.ParseRequirement(r)
		require.NoError(t, err)
		pkg.Requires = append(pkg.Requires, req)
	}
	return pkg
}

func mkreq(t *testing.T, raw string) model.PackageRequirement {
	t.Helper()
	req, err := model.ParseRequirement(raw)
	require.NoError(t, err)
	return req
}

func TestResolveLatestWinsPicksNewest(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"python": {
			mkpkg(t, "python", "3.8.0"),
			mkpkg(t, "python", "3.9.0"),
			mkpkg(t, "python", "3.10.0"),
		},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "python>=3.9")},
		Strategy:     LatestWins,
	})
	require.NoError(t, err)
	require.False(t, result.Partial)
	require.Empty(t, result.Conflicts)
	require.Len(t, result.Resolved, 1)
	require.Equal(t, "3.10.0", result.Resolved[0].Package.Version.Render())
}

func TestResolveEarliestWinsPicksOldest(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"python": {
			mkpkg(t, "python", "3.9.0"),
			mkpkg(t, "python", "3.10.0"),
		},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "python>=3.9")},
		Strategy:     EarliestWins,
	})
	require.NoError(t, err)
	require.Equal(t, "3.9.0", result.Resolved[0].Package.Version.Render())
}

func TestResolveTransitiveRequirements(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"app": {mkpkg(t, "app", "1.0.0", "lib>=1.0")},
		"lib": {mkpkg(t, "lib", "1.0.0"), mkpkg(t, "lib", "2.0.0")},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "app")},
		Strategy:     LatestWins,
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

func TestResolveConflictFailOnConflict(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"lib": {mkpkg(t, "lib", "1.0.0"), mkpkg(t, "lib", "2.0.0")},
	}}
	r := New(repo, Config{})

	_, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{
			mkreq(t, "lib==1.0.0"),
			mkreq(t, "lib>=2.0"),
		},
		Strategy: FailOnConflict,
	})
	require.Error(t, err)
}

func TestResolveConflictLatestWinsOverrides(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"lib": {mkpkg(t, "lib", "1.0.0"), mkpkg(t, "lib", "2.0.0")},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{
			mkreq(t, "lib==1.0.0"),
			mkreq(t, "lib>=2.0"),
		},
		Strategy: LatestWins,
	})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 1)
	require.Equal(t, "lib", result.Resolved[0].Package.Name)
	require.Equal(t, "2.0.0", result.Resolved[0].Package.Version.Render())
}

func TestResolveMissingPackageDegrades(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "ghost")},
		Strategy:     LatestWins,
	})
	require.NoError(t, err)
	require.True(t, result.Partial)
	require.Len(t, result.Conflicts, 1)
	require.Equal(t, MissingPackage, result.Conflicts[0].Kind)
}

func TestResolveVariantsPickAtMostOne(t *testing.T) {
	withVariants := mkpkg(t, "lib", "1.0.0")
	withVariants.Variants = [][]model.PackageRequirement{
		{mkreq(t, "python==3.9")},
		{mkreq(t, "python==3.10")},
	}
	repo := fakeRepo{packages: map[string][]model.Package{
		"lib": {withVariants},
		"python": {
			mkpkg(t, "python", "3.9"),
			mkpkg(t, "python", "3.10"),
		},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "lib")},
		Strategy:     LatestWins,
	})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 2)
	var libVariant int
	for _, rp := range result.Resolved {
		if rp.Package.Name == "lib" {
			libVariant = rp.VariantIndex
		}
	}
	require.Contains(t, []int{0, 1}, libVariant)
}

func TestResolveCycleRecordedNotFatal(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"a": {mkpkg(t, "a", "1.0.0", "b")},
		"b": {mkpkg(t, "b", "1.0.0", "a")},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "a")},
		Strategy:     LatestWins,
	})
	require.NoError(t, err)
	// Both packages resolve; the back-edge is either satisfied by the
	// already-resolved package or logged as a cycle conflict.
	names := map[string]bool{}
	for _, rp := range result.Resolved {
		names[rp.Package.Name] = true
	}
	require.True(t, names["a"])
	require.True(t, names["b"])
}

func TestResolveDeterministic(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"app": {mkpkg(t, "app", "1.0.0", "liba", "libb")},
		"liba": {
			mkpkg(t, "liba", "1.0.0"),
			mkpkg(t, "liba", "1.1.0"),
		},
		"libb": {
			mkpkg(t, "libb", "2.0.0"),
			mkpkg(t, "libb", "2.1.0"),
		},
	}}

	request := SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "app")},
		Strategy:     LatestWins,
	}
	first, err := New(repo, Config{}).Resolve(context.Background(), request)
	require.NoError(t, err)
	second, err := New(repo, Config{}).Resolve(context.Background(), request)
	require.NoError(t, err)

	require.Equal(t, len(first.Resolved), len(second.Resolved))
	for i := range first.Resolved {
		require.Equal(t, first.Resolved[i].Package.Name, second.Resolved[i].Package.Name)
		require.Equal(t, first.Resolved[i].Package.Version.Render(), second.Resolved[i].Package.Version.Render())
	}
}

func TestResolveResultCached(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"python": {mkpkg(t, "python", "3.10.0")},
	}}
	r := New(repo, Config{})
	request := SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "python")},
		Strategy:     LatestWins,
	}
	first, err := r.Resolve(context.Background(), request)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), request)
	require.NoError(t, err)
	require.Equal(t, first.Resolved, second.Resolved)
}

func TestResolveNamesAppearOnce(t *testing.T) {
	repo := fakeRepo{packages: map[string][]model.Package{
		"app":   {mkpkg(t, "app", "1.0.0", "lib>=1.0"), mkpkg(t, "app", "2.0.0", "lib>=1.0")},
		"lib":   {mkpkg(t, "lib", "1.0.0"), mkpkg(t, "lib", "1.5.0")},
		"other": {mkpkg(t, "other", "1.0.0", "lib")},
	}}
	r := New(repo, Config{})

	result, err := r.Resolve(context.Background(), SolverRequest{
		Requirements: []model.PackageRequirement{mkreq(t, "app"), mkreq(t, "other")},
		Strategy:     LatestWins,
	})
	require.NoError(t, err)
	seen := map[string]int{}
	for _, rp := range result.Resolved {
		seen[rp.Package.Name]++
	}
	for name, count := range seen {
		require.Equal(t, 1, count, "package %s resolved more than once", name)
	}
}
