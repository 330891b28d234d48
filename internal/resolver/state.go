// Package resolver implements conflict-aware dependency resolution over
// the requirement lattice: an A* search as the primary engine and a
// SAT-backed backend for conflict-heavy requests.
package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"rezgo/internal/model"
)

// ConflictKind classifies one resolution conflict.
type ConflictKind string

const (
	VersionConflict    ConflictKind = "version_conflict"
	CircularDependency ConflictKind = "circular_dependency"
	MissingPackage     ConflictKind = "missing_package"
)

// Conflict records one unsatisfiable condition encountered during the
// search. Severity feeds the (non-admissible) heuristic penalty term.
type Conflict struct {
	Kind     ConflictKind
	Name     string
	Detail   string
	Severity float64
}

// searchState is one node of the A* search. A package name appears at
// most once in resolved; every resolved package's requirements are
// either resolved, pending, or recorded as a conflict.
type searchState struct {
	resolved  map[string]model.ResolvedPackage
	pending   []model.PackageRequirement
	conflicts []Conflict
	// edges holds the dependency graph built so far (dependent name →
	// required names); cycle checks walk it during successor generation.
	edges map[string][]string
	gCost float64
	hCost float64
	// origin names the package whose requirements produced each pending
	// entry, indexed in step with pending. Root requirements use "".
	origin []string
}

func newInitialState(reqs []model.PackageRequirement) *searchState {
	s := &searchState{
		resolved: map[string]model.ResolvedPackage{},
		edges:    map[string][]string{},
	}
	seen := map[string]bool{}
	for _, r := range reqs {
		key := r.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		s.pending = append(s.pending, r)
		s.origin = append(s.origin, "")
	}
	return s
}

func (s *searchState) goal() bool {
	return len(s.pending) == 0 && len(s.conflicts) == 0
}

func (s *searchState) fCost() float64 {
	return s.gCost + s.hCost
}

// clone copies the mutable containers; Packages themselves are shared
// immutable, so only the maps and slices are duplicated.
func (s *searchState) clone() *searchState {
	out := &searchState{
		resolved:  make(map[string]model.ResolvedPackage, len(s.resolved)),
		pending:   append([]model.PackageRequirement(nil), s.pending...),
		conflicts: append([]Conflict(nil), s.conflicts...),
		edges:     make(map[string][]string, len(s.edges)),
		gCost:     s.gCost,
		origin:    append([]string(nil), s.origin...),
	}
	for k, v := range s.resolved {
		out.resolved[k] = v
	}
	for k, v := range s.edges {
		out.edges[k] = append([]string(nil), v...)
	}
	return out
}

// hash is the duplicate-detection key: stable over the sorted resolved
// set, the pending queue, and the conflict count.
func (s *searchState) hash() string {
	resolved := make([]string, 0, len(s.resolved))
	for name, rp := range s.resolved {
		version := ""
		if rp.Package.HasVersion {
			version = rp.Package.Version.Render()
		}
		resolved = append(resolved, name+"="+version+"#"+strconv.Itoa(rp.VariantIndex))
	}
	sort.Strings(resolved)

	pending := make([]string, 0, len(s.pending))
	for _, r := range s.pending {
		pending = append(pending, r.String())
	}
	sort.Strings(pending)

	h := sha256.New()
	h.Write([]byte(strings.Join(resolved, ";")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(pending, ";")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(len(s.conflicts))))
	return hex.EncodeToString(h.Sum(nil))
}

// reachesCycle reports whether adding the edge from → to closes a loop
// in the dependency graph accumulated on this state's parent chain.
func (s *searchState) reachesCycle(from string, to string) bool {
	if from == "" || from == to {
		return from == to
	}
	// DFS from `to` looking for `from`.
	stack := []string{to}
	visited := map[string]bool{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == from {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, s.edges[cur]...)
	}
	return false
}

// orderedResolved returns the resolved set sorted by the stable
// name+version comparator the spec requires for deterministic output.
func (s *searchState) orderedResolved() []model.ResolvedPackage {
	out := make([]model.ResolvedPackage, 0, len(s.resolved))
	for _, rp := range s.resolved {
		out = append(out, rp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Package.Name != out[j].Package.Name {
			return out[i].Package.Name < out[j].Package.Name
		}
		return model.Compare(out[i].Package.Version, out[j].Package.Version) == model.Less
	})
	return out
}
