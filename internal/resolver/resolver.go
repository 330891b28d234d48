package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rezgo/internal/cache"
	"rezgo/internal/model"
	"rezgo/internal/ports"
)

// Strategy selects how conflicting pins are handled and how candidates
// are ordered during successor generation.
type Strategy string

const (
	LatestWins     Strategy = "latest_wins"
	EarliestWins   Strategy = "earliest_wins"
	FindCompatible Strategy = "find_compatible"
	FailOnConflict Strategy = "fail_on_conflict"
)

// Backend selects the search engine. The SAT backend delegates the
// whole request to a weighted SAT encoding; conflict-heavy requests
// resolve faster there, at the cost of partial-solution reporting.
type Backend string

const (
	BackendAStar Backend = "astar"
	BackendSAT   Backend = "sat"
)

// SolverRequest is one resolution request.
type SolverRequest struct {
	Requirements []model.PackageRequirement
	Constraints  []model.PackageRequirement
	Excludes     []string
	Platform     string
	Arch         string
	Strategy     Strategy
	Backend      Backend
	// MaxExpansions bounds the search; zero means the default budget.
	MaxExpansions int
	Timeout       time.Duration
}

// ResolutionResult is the search outcome: the ordered package list plus
// whether conflicts had to be resolved along the way.
type ResolutionResult struct {
	Resolved          []model.ResolvedPackage
	Conflicts         []Conflict
	ConflictsResolved bool
	Partial           bool
	Expansions        int
	Duration          time.Duration
}

// Config tunes a Resolver instance.
type Config struct {
	Weights          HeuristicWeights
	StrictAdmissible bool
	MaxExpansions    int
	Timeout          time.Duration
	Logger           *zerolog.Logger
}

const (
	defaultMaxExpansions = 100000
	defaultTimeout       = 60 * time.Second
	weakViolationCost    = 0.5
)

// Resolver runs A* searches over a package repository. The search loop
// itself is single-threaded per request (frontier integrity); results
// and candidate sets are cached across requests. Conflict decisions are
// not cached.
type Resolver struct {
	repo ports.PackageRepository
	cfg  Config

	results    *cache.Manager[string, ResolutionResult]
	candidates *cache.Manager[string, []model.Package]
	logger     zerolog.Logger
}

// New builds a Resolver over the given repository port.
func New(repo ports.PackageRepository, cfg Config) *Resolver {
	if cfg.Weights == (HeuristicWeights{}) {
		cfg.Weights = FastProfile()
	}
	if cfg.MaxExpansions <= 0 {
		cfg.MaxExpansions = defaultMaxExpansions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	r := &Resolver{
		repo:       repo,
		cfg:        cfg,
		results:    cache.New[string, ResolutionResult](),
		candidates: cache.New[string, []model.Package](),
		logger:     log.Logger,
	}
	if cfg.Logger != nil {
		r.logger = *cfg.Logger
	}
	return r
}

// Resolve runs the request through the selected backend. Identical
// requests are served from the result cache.
func (r *Resolver) Resolve(ctx context.Context, req SolverRequest) (ResolutionResult, error) {
	if len(req.Requirements) == 0 {
		return ResolutionResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("solver request has no requirements")
	}
	if req.Strategy == "" {
		req.Strategy = LatestWins
	}
	if req.Backend == "" {
		req.Backend = BackendAStar
	}

	key := requestFingerprint(req)
	if cached, ok := r.results.Get(key); ok {
		return cached, nil
	}

	start := time.Now()
	var result ResolutionResult
	var err error
	switch req.Backend {
	case BackendSAT:
		result, err = r.resolveSAT(ctx, req)
	default:
		result, err = r.search(ctx, req)
	}
	if err != nil {
		return ResolutionResult{}, err
	}
	result.Duration = time.Since(start)

	r.logger.Debug().
		Str("strategy", string(req.Strategy)).
		Str("backend", string(req.Backend)).
		Int("expansions", result.Expansions).
		Int("resolved", len(result.Resolved)).
		Bool("partial", result.Partial).
		Dur("duration", result.Duration).
		Msg("resolution complete")

	r.results.Put(key, result, int64(len(result.Resolved)))
	return result, nil
}

// requestFingerprint keys the result cache: stable over requirements,
// constraints, excludes, platform, arch, strategy, and backend.
func requestFingerprint(req SolverRequest) string {
	reqs := make([]string, 0, len(req.Requirements))
	for _, q := range req.Requirements {
		reqs = append(reqs, q.String())
	}
	sort.Strings(reqs)
	cons := make([]string, 0, len(req.Constraints))
	for _, q := range req.Constraints {
		cons = append(cons, q.String())
	}
	sort.Strings(cons)
	excludes := append([]string(nil), req.Excludes...)
	sort.Strings(excludes)

	h := sha256.New()
	for _, part := range []string{
		strings.Join(reqs, ";"),
		strings.Join(cons, ";"),
		strings.Join(excludes, ";"),
		req.Platform,
		req.Arch,
		string(req.Strategy),
		string(req.Backend),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// candidatesFor returns the repository's candidates for a requirement,
// filtered by range, constraints, and excludes, ordered per strategy.
func (r *Resolver) candidatesFor(ctx context.Context, req SolverRequest, requirement model.PackageRequirement) ([]model.Package, error) {
	for _, excluded := range req.Excludes {
		if excluded == requirement.Name {
			return nil, nil
		}
	}

	all, ok := r.candidates.Get(requirement.Name)
	if !ok {
		var err error
		all, err = r.repo.Candidates(ctx, requirement.Name)
		if err != nil {
			return nil, err
		}
		r.candidates.Put(requirement.Name, all, int64(len(all)))
	}

	var out []model.Package
	for _, pkg := range all {
		if !requirement.Matches(pkg) && !(requirement.Weak && requirement.Name == pkg.Name) {
			continue
		}
		if !r.satisfiesConstraints(req.Constraints, pkg) {
			continue
		}
		out = append(out, pkg)
	}
	orderCandidates(out, req.Strategy)
	return out, nil
}

func (r *Resolver) satisfiesConstraints(constraints []model.PackageRequirement, pkg model.Package) bool {
	for _, c := range constraints {
		if c.Name != pkg.Name {
			continue
		}
		if !c.Matches(pkg) {
			return false
		}
	}
	return true
}

// orderCandidates sorts deterministically per strategy: LatestWins
// descending, EarliestWins ascending, FindCompatible ascending by
// version (no constraint-violation score is computed). Ties break on the stable
// name+version comparator.
func orderCandidates(pkgs []model.Package, strategy Strategy) {
	sort.SliceStable(pkgs, func(i, j int) bool {
		ord := model.Compare(pkgs[i].Version, pkgs[j].Version)
		switch strategy {
		case EarliestWins, FindCompatible:
			if ord != model.Equal {
				return ord == model.Less
			}
		default:
			if ord != model.Equal {
				return ord == model.Greater
			}
		}
		return pkgs[i].Name < pkgs[j].Name
	})
}
