package resolver

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"rezgo/internal/model"
)

// frontier is the priority queue of states awaiting expansion, keyed by
// f = g + h with insertion order as the tiebreak for determinism.
type frontier struct {
	items []*frontierItem
}

type frontierItem struct {
	state *searchState
	seq   int
}

func (f *frontier) Len() int { return len(f.items) }
func (f *frontier) Less(i, j int) bool {
	fi, fj := f.items[i].state.fCost(), f.items[j].state.fCost()
	if fi != fj {
		return fi < fj
	}
	return f.items[i].seq < f.items[j].seq
}
func (f *frontier) Swap(i, j int) { f.items[i], f.items[j] = f.items[j], f.items[i] }
func (f *frontier) Push(x any)    { f.items = append(f.items, x.(*frontierItem)) }
func (f *frontier) Pop() any {
	old := f.items
	n := len(old)
	item := old[n-1]
	f.items = old[:n-1]
	return item
}

// search runs the A* loop. It is single-threaded over the frontier;
// candidate enumeration per popped requirement goes through the shared
// candidate cache.
func (r *Resolver) search(ctx context.Context, req SolverRequest) (ResolutionResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	budget := req.MaxExpansions
	if budget <= 0 {
		budget = r.cfg.MaxExpansions
	}

	depthOf := r.depthEstimator()
	prefOf := func(string) float64 { return 0 }

	start := newInitialState(req.Requirements)
	start.hCost = heuristic(start, r.cfg.Weights, r.cfg.StrictAdmissible, depthOf, prefOf)

	open := &frontier{}
	heap.Init(open)
	seq := 0
	heap.Push(open, &frontierItem{state: start, seq: seq})
	visited := map[string]bool{start.hash(): true}

	var bestPartial *searchState
	expansions := 0

	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return r.finish(req, bestPartial, expansions, true)
		}
		if expansions >= budget {
			return r.finish(req, bestPartial, expansions, true)
		}

		current := heap.Pop(open).(*frontierItem).state
		if current.goal() {
			return ResolutionResult{
				Resolved:   current.orderedResolved(),
				Expansions: expansions,
			}, nil
		}
		if current != start && (bestPartial == nil || current.hCost < bestPartial.hCost) {
			bestPartial = current
		}
		expansions++

		// Conflicted dead end: nothing left to expand, but the state
		// still competes as a best-partial candidate.
		if len(current.pending) == 0 {
			continue
		}

		children, err := r.successors(ctx, req, current)
		if err != nil {
			return ResolutionResult{}, err
		}
		for _, child := range children {
			key := child.hash()
			if visited[key] {
				continue
			}
			visited[key] = true
			child.hCost = heuristic(child, r.cfg.Weights, r.cfg.StrictAdmissible, depthOf, prefOf)
			seq++
			heap.Push(open, &frontierItem{state: child, seq: seq})
		}
	}

	return r.finish(req, bestPartial, expansions, false)
}

// finish handles the no-goal outcomes: FailOnConflict raises
// Unresolvable; other strategies emit the best partial solution.
func (r *Resolver) finish(req SolverRequest, bestPartial *searchState, expansions int, timedOut bool) (ResolutionResult, error) {
	if req.Strategy == FailOnConflict {
		msg := "no satisfying assignment exists"
		code := errbuilder.CodeFailedPrecondition
		if timedOut {
			msg = "resolution budget exceeded"
			code = errbuilder.CodeDeadlineExceeded
		}
		err := errbuilder.New().WithCode(code).WithMsg(msg)
		if bestPartial != nil && len(bestPartial.conflicts) > 0 {
			err = err.WithCause(fmt.Errorf("conflicts: %v", conflictSummaries(bestPartial.conflicts)))
		}
		return ResolutionResult{}, err
	}
	if bestPartial == nil {
		return ResolutionResult{Expansions: expansions, Partial: true}, nil
	}
	return ResolutionResult{
		Resolved:          bestPartial.orderedResolved(),
		Conflicts:         append([]Conflict(nil), bestPartial.conflicts...),
		ConflictsResolved: len(bestPartial.conflicts) > 0,
		Partial:           true,
		Expansions:        expansions,
	}, nil
}

func conflictSummaries(conflicts []Conflict) []string {
	out := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, string(c.Kind)+":"+c.Name)
	}
	return out
}

// successors pops one requirement and enumerates candidate packages
// (and, for variant packages, each variant) as child states.
func (r *Resolver) successors(ctx context.Context, req SolverRequest, s *searchState) ([]*searchState, error) {
	requirement := s.pending[0]
	originName := s.origin[0]

	// Already resolved: either the pin satisfies the requirement, or the
	// strategies diverge on how to treat the conflict.
	if existing, ok := s.resolved[requirement.Name]; ok {
		return r.unifyExisting(ctx, req, s, requirement, existing)
	}

	candidates, err := r.candidatesFor(ctx, req, requirement)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		child := popPending(s)
		child.conflicts = append(child.conflicts, Conflict{
			Kind:     MissingPackage,
			Name:     requirement.Name,
			Detail:   "no candidates satisfy " + requirement.String(),
			Severity: 1,
		})
		return []*searchState{child}, nil
	}

	var children []*searchState
	for _, candidate := range candidates {
		variants := candidate.Variants
		if len(variants) == 0 {
			children = append(children, r.adopt(s, requirement, originName, candidate, -1))
			continue
		}
		for idx := range variants {
			children = append(children, r.adopt(s, requirement, originName, candidate, idx))
		}
	}
	return children, nil
}

// adopt builds the child state that unifies candidate into the resolved
// set: the requirement is popped, the candidate's runtime requires (plus
// the chosen variant's) extend pending, and cycles are recorded as
// CircularDependency conflicts rather than followed.
func (r *Resolver) adopt(s *searchState, requirement model.PackageRequirement, originName string, candidate model.Package, variantIndex int) *searchState {
	child := popPending(s)
	rp := model.ResolvedPackage{Package: candidate, VariantIndex: variantIndex}
	child.resolved[candidate.Name] = rp
	child.gCost++
	if requirement.Weak && !requirement.Matches(candidate) {
		child.gCost += weakViolationCost
	}
	if originName != "" {
		child.edges[originName] = append(child.edges[originName], candidate.Name)
	}

	for _, next := range rp.Requires() {
		if resolved, ok := child.resolved[next.Name]; ok {
			if !next.Matches(resolved.Package) && !next.Weak {
				child.conflicts = append(child.conflicts, Conflict{
					Kind:     VersionConflict,
					Name:     next.Name,
					Detail:   "resolved " + renderResolved(resolved) + " does not satisfy " + next.String(),
					Severity: 1,
				})
			}
			continue
		}
		if child.reachesCycle(candidate.Name, next.Name) {
			child.conflicts = append(child.conflicts, Conflict{
				Kind:     CircularDependency,
				Name:     next.Name,
				Detail:   candidate.Name + " participates in a dependency cycle through " + next.Name,
				Severity: 0.5,
			})
			continue
		}
		child.pending = append(child.pending, next)
		child.origin = append(child.origin, candidate.Name)
	}
	return child
}

// unifyExisting handles a requirement whose name is already pinned.
// A satisfying pin (or a weak requirement) simply pops the requirement.
// An incompatible pin is a VersionConflict; every strategy except
// FailOnConflict additionally offers children that replace the pin with
// the strategy's first candidate for the new requirement (one child per
// variant), each charged weakViolationCost.
func (r *Resolver) unifyExisting(ctx context.Context, req SolverRequest, s *searchState, requirement model.PackageRequirement, existing model.ResolvedPackage) ([]*searchState, error) {
	if requirement.Matches(existing.Package) || requirement.Weak {
		return []*searchState{popPending(s)}, nil
	}

	conflicted := popPending(s)
	conflicted.conflicts = append(conflicted.conflicts, Conflict{
		Kind:     VersionConflict,
		Name:     requirement.Name,
		Detail:   "pinned " + renderResolved(existing) + " conflicts with " + requirement.String(),
		Severity: 1,
	})
	children := []*searchState{conflicted}

	if req.Strategy == FailOnConflict {
		return children, nil
	}

	candidates, err := r.candidatesFor(ctx, req, requirement)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		// Replacing the pin re-adopts the strategy's preferred candidate.
		// Only the replacement's own requires are checked; requirements
		// the old pin satisfied are not re-checked on that branch.
		candidate := candidates[0]
		if len(candidate.Variants) == 0 {
			children = append(children, r.adopt(s, requirement, "", candidate, -1))
		} else {
			for idx := range candidate.Variants {
				children = append(children, r.adopt(s, requirement, "", candidate, idx))
			}
		}
		for i := 1; i < len(children); i++ {
			children[i].gCost += weakViolationCost
		}
	}
	return children, nil
}

func popPending(s *searchState) *searchState {
	child := s.clone()
	child.pending = child.pending[1:]
	child.origin = child.origin[1:]
	return child
}

func renderResolved(rp model.ResolvedPackage) string {
	if !rp.Package.HasVersion {
		return rp.Package.Name
	}
	return rp.Package.Name + "-" + rp.Package.Version.Render()
}

// depthEstimator returns a memoized estimate of a requirement's
// transitive fan-out, used by the non-admissible depth term. It reads
// only the candidate cache; unseen names estimate to 1.
func (r *Resolver) depthEstimator() func(name string) float64 {
	memo := map[string]float64{}
	return func(name string) float64 {
		if d, ok := memo[name]; ok {
			return d
		}
		d := 1.0
		if pkgs, ok := r.candidates.Get(name); ok && len(pkgs) > 0 {
			d += float64(len(pkgs[0].Requires))
		}
		memo[name] = d
		return d
	}
}
