package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/crillab/gophersat/solver"

	"rezgo/internal/model"
)

// satVar is one SAT variable: a concrete (package, variant) candidate.
type satVar struct {
	pkg          model.Package
	variantIndex int
}

// satState holds all bookkeeping for one SAT solver invocation.
// Isolating this avoids passing two maps, two slices and the variable
// counter through every helper call.
type satState struct {
	packageVars map[string][]int
	varMeta     map[int]satVar
	varID       int
	costLits    []solver.Lit
	costWeights []int
}

// resolveSAT encodes the whole request as a weighted SAT problem:
//  1. At-most-one: a name resolves to at most one (version, variant).
//  2. Root demands: each requested requirement keeps one candidate true.
//  3. Transitive: a selected candidate implies each of its requirements
//     keeps one satisfying candidate true.
//
// Minimizing the version-preference cost picks the strategy's preferred
// versions among all satisfying assignments.
func (r *Resolver) resolveSAT(ctx context.Context, req SolverRequest) (ResolutionResult, error) {
	universe, err := r.collectUniverse(ctx, req)
	if err != nil {
		return ResolutionResult{}, err
	}
	state := buildSATState(universe, req.Strategy)
	if state.varID == 0 {
		return ResolutionResult{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("sat backend received no package candidates to solve")
	}

	clauses, err := r.buildSATClauses(state, req)
	if err != nil {
		return ResolutionResult{}, err
	}

	resolved, err := solveSAT(ctx, state, clauses)
	if err != nil {
		return ResolutionResult{}, err
	}
	return ResolutionResult{Resolved: resolved}, nil
}

// collectUniverse gathers every candidate reachable from the request's
// requirement names through runtime and variant requires.
func (r *Resolver) collectUniverse(ctx context.Context, req SolverRequest) (map[string][]model.Package, error) {
	universe := map[string][]model.Package{}
	queue := make([]string, 0, len(req.Requirements))
	for _, q := range req.Requirements {
		queue = append(queue, q.Name)
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, ok := universe[name]; ok {
			continue
		}
		candidates, err := r.candidatesFor(ctx, req, model.PackageRequirement{Name: name})
		if err != nil {
			return nil, err
		}
		universe[name] = candidates
		for _, pkg := range candidates {
			for _, next := range pkg.Requires {
				queue = append(queue, next.Name)
			}
			for _, variant := range pkg.Variants {
				for _, next := range variant {
					queue = append(queue, next.Name)
				}
			}
		}
	}
	return universe, nil
}

// buildSATState enumerates every (package, variant) pair as a SAT
// variable. Cost weights order candidates by the strategy's version
// preference: the preferred version carries weight zero.
func buildSATState(universe map[string][]model.Package, strategy Strategy) satState {
	s := satState{
		packageVars: map[string][]int{},
		varMeta:     map[int]satVar{},
	}
	names := make([]string, 0, len(universe))
	for name := range universe {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ordered := append([]model.Package(nil), universe[name]...)
		orderCandidates(ordered, strategy)
		var ids []int
		for rank, pkg := range ordered {
			variantCount := len(pkg.Variants)
			if variantCount == 0 {
				variantCount = 1
			}
			for v := 0; v < variantCount; v++ {
				variantIndex := v
				if len(pkg.Variants) == 0 {
					variantIndex = -1
				}
				s.varID++
				id := s.varID
				ids = append(ids, id)
				s.varMeta[id] = satVar{pkg: pkg, variantIndex: variantIndex}
				s.costLits = append(s.costLits, solver.IntToLit(int32(id))) //nolint:gosec // id is bounded by the candidate count, well within int32 range
				s.costWeights = append(s.costWeights, rank)
			}
		}
		if len(ids) > 0 {
			s.packageVars[name] = ids
		}
	}
	return s
}

func (r *Resolver) buildSATClauses(s satState, req SolverRequest) ([][]int, error) {
	var clauses [][]int

	// At-most-one per package name
	names := make([]string, 0, len(s.packageVars))
	for name := range s.packageVars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ids := s.packageVars[name]
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				clauses = append(clauses, []int{-ids[i], -ids[j]})
			}
		}
	}

	// Root requirement demands
	for _, requirement := range req.Requirements {
		candidates := s.candidatesForRequirement(requirement)
		if len(candidates) == 0 {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg(fmt.Sprintf("no candidates for %s", requirement.Name))
		}
		clauses = append(clauses, candidates)
	}

	// Transitive requirement clauses
	for id := 1; id <= s.varID; id++ {
		meta := s.varMeta[id]
		rp := model.ResolvedPackage{Package: meta.pkg, VariantIndex: meta.variantIndex}
		for _, requirement := range rp.Requires() {
			candidates := s.candidatesForRequirement(requirement)
			if len(candidates) == 0 {
				if requirement.Weak {
					continue
				}
				clauses = append(clauses, []int{-id})
				continue
			}
			clause := append([]int{-id}, candidates...)
			clauses = append(clauses, clause)
		}
	}
	return clauses, nil
}

// candidatesForRequirement returns the variable IDs whose package
// satisfies the requirement. Weak requirements admit every candidate of
// the name; the cost function expresses the preference instead.
func (s satState) candidatesForRequirement(requirement model.PackageRequirement) []int {
	var out []int
	for _, id := range s.packageVars[requirement.Name] {
		meta := s.varMeta[id]
		if requirement.Weak || requirement.Matches(meta.pkg) {
			out = append(out, id)
		}
	}
	return out
}

// solveSAT feeds the clauses to gophersat's optimization solver and
// extracts the selected candidates from the model.
func solveSAT(ctx context.Context, s satState, clauses [][]int) ([]model.ResolvedPackage, error) {
	problem := solver.ParseSliceNb(clauses, s.varID)
	problem.SetCostFunc(s.costLits, s.costWeights)
	sat := solver.New(problem)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if cost := sat.Minimize(); cost < 0 {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("sat backend found no satisfiable solution")
	}
	satModel := sat.Model()
	var selected []model.ResolvedPackage
	for id := 1; id <= s.varID; id++ {
		if id-1 >= len(satModel) || !satModel[id-1] {
			continue
		}
		meta := s.varMeta[id]
		selected = append(selected, model.ResolvedPackage{Package: meta.pkg, VariantIndex: meta.variantIndex})
	}
	if len(selected) == 0 {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("sat backend produced empty selection")
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Package.Name < selected[j].Package.Name
	})
	return selected, nil
}
