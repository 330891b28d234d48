package scan

import (
	"path/filepath"
	"sync"
)

// predictor assigns discovered directories a priority score that guides
// traversal order: directories that themselves, or whose parent, yielded
// package definitions before are visited first.
type predictor struct {
	mu   sync.Mutex
	hits map[string]int
}

func newPredictor() *predictor {
	return &predictor{hits: map[string]int{}}
}

// recordHit notes that dir directly contained a package definition.
func (p *predictor) recordHit(dir string) {
	p.mu.Lock()
	p.hits[dir]++
	p.mu.Unlock()
}

// score rates a directory by its own hit history plus a decayed share of
// its parent's, so productive subtrees bubble up.
func (p *predictor) score(dir string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	score := float64(p.hits[dir])
	parent := filepath.Dir(dir)
	if parent != dir {
		score += 0.5 * float64(p.hits[parent])
	}
	return score
}
