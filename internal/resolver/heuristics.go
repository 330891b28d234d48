package resolver

// HeuristicWeights tunes the composite h estimate. The conflict penalty
// term makes the composite non-admissible; strict-admissible mode
// disables it so callers that need optimality guarantees can opt in.
type HeuristicWeights struct {
	Pending           float64
	ConflictPenalty   float64
	DepthEstimate     float64
	VersionPreference float64
}

// FastProfile biases toward fewer expansions; solution quality may
// suffer on conflict-heavy graphs.
func FastProfile() HeuristicWeights {
	return HeuristicWeights{
		Pending:           2.0,
		ConflictPenalty:   4.0,
		DepthEstimate:     1.0,
		VersionPreference: 0.5,
	}
}

// ThoroughProfile biases toward solution quality at the cost of a larger
// frontier.
func ThoroughProfile() HeuristicWeights {
	return HeuristicWeights{
		Pending:           1.0,
		ConflictPenalty:   2.0,
		DepthEstimate:     0.5,
		VersionPreference: 1.0,
	}
}

// heuristic computes the composite h for a state. depthOf and prefOf are
// supplied by the resolver so candidate-set knowledge stays cached in
// one place. With strictAdmissible set the conflict term is dropped and
// the remaining terms are clamped to the admissible pending count.
func heuristic(s *searchState, w HeuristicWeights, strictAdmissible bool, depthOf func(name string) float64, prefOf func(r string) float64) float64 {
	if strictAdmissible {
		// Each pending requirement needs at least one expansion; this
		// never overestimates the true remaining cost.
		return float64(len(s.pending))
	}
	h := w.Pending * float64(len(s.pending))
	for _, c := range s.conflicts {
		h += w.ConflictPenalty * c.Severity
	}
	for _, r := range s.pending {
		h += w.DepthEstimate * depthOf(r.Name)
		h += w.VersionPreference * prefOf(r.String())
	}
	return h
}
