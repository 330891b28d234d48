package cache

import (
	"sync"
	"time"
)

// Loader is invoked by the Preheater to best-effort load a key it
// predicts will soon be requested. Preheat loads never block the
// caller that triggered the original miss.
type Loader[K comparable] func(key K)

// Preheater records per-key access timestamps within a sliding window
// and, on a miss, schedules loads for keys whose historical co-access
// frequency with the missed key exceeds Score. Grounded on spec.md
// §4.4's predictive preheater and the access-pattern analyzer
// supplementing it from the Rust original's intelligent_manager.
type Preheater[K comparable] struct {
	mu         sync.Mutex
	window     time.Duration
	score      float64
	loader     Loader[K]
	accessLog  map[K][]time.Time
	coAccess   map[K]map[K]int64
	lastAccess []K // bounded ring of recently-seen keys, for co-access attribution
	ringCap    int
}

// NewPreheater builds a Preheater with the given sliding window, a
// co-access score threshold (fraction of a key's total accesses that
// must co-occur with another key to trigger a preheat), and a loader
// callback. A nil loader disables preheat scheduling but access
// tracking still runs, in case a future loader is attached.
func NewPreheater[K comparable](window time.Duration, score float64, loader Loader[K]) *Preheater[K] {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if score <= 0 {
		score = 0.5
	}
	return &Preheater[K]{
		window:    window,
		score:     score,
		loader:    loader,
		accessLog: map[K][]time.Time{},
		coAccess:  map[K]map[K]int64{},
		ringCap:   32,
	}
}

// RecordAccess logs a successful access (hit or fresh put) and updates
// co-access counts against recently-seen keys within the ring.
func (p *Preheater[K]) RecordAccess(key K) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.accessLog[key] = p.prune(append(p.accessLog[key], now), now)

	for _, recent := range p.lastAccess {
		if recent == key {
			continue
		}
		if p.coAccess[key] == nil {
			p.coAccess[key] = map[K]int64{}
		}
		p.coAccess[key][recent]++
		if p.coAccess[recent] == nil {
			p.coAccess[recent] = map[K]int64{}
		}
		p.coAccess[recent][key]++
	}
	p.lastAccess = append(p.lastAccess, key)
	if len(p.lastAccess) > p.ringCap {
		p.lastAccess = p.lastAccess[len(p.lastAccess)-p.ringCap:]
	}
}

// RecordMiss consults the pattern store for keys whose co-access
// frequency with key exceeds the configured score and schedules best-
// effort loads for them.
func (p *Preheater[K]) RecordMiss(key K) {
	if p.loader == nil {
		return
	}
	p.mu.Lock()
	total := int64(len(p.accessLog[key]))
	var candidates []K
	if total > 0 {
		for other, count := range p.coAccess[key] {
			if float64(count)/float64(total) >= p.score {
				candidates = append(candidates, other)
			}
		}
	}
	p.mu.Unlock()

	for _, c := range candidates {
		go p.loader(c)
	}
}

func (p *Preheater[K]) prune(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-p.window)
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}
