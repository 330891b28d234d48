// Package cache implements the two-level intelligent cache of spec.md
// §4.4: a hot L1 tier and a cold L2 tier, coupled with a predictive
// preheater, an adaptive tuner, and a latency monitor. It is the
// cross-cutting dependency used by the scanner, the resolver, and the
// Rex layer, so it is generic over key and value rather than tied to
// any one consumer's types.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Level identifies which cache tier an entry currently lives in.
type Level int

const (
	LevelNone Level = iota
	Level1
	Level2
)

// Entry mirrors spec.md's CacheEntry<V>: value plus the bookkeeping
// fields eviction and promotion scoring need.
type Entry[V any] struct {
	Value           V
	CreatedAt       time.Time
	LastAccessed    time.Time
	AccessCount     int64
	Level           Level
	SizeBytes       int64
	TTL             time.Duration
	PredictionScore float64
}

func (e *Entry[V]) expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) >= e.TTL
}

func (e *Entry[V]) priority(now time.Time) float64 {
	size := e.SizeBytes
	if size < 1 {
		size = 1
	}
	age := now.Sub(e.CreatedAt).Seconds()
	if age < 0 {
		age = 0
	}
	return float64(e.AccessCount) / float64(size) / (age + 1)
}

// Config bounds the two tiers and the promotion threshold. Zero values
// fall back to conservative defaults.
type Config struct {
	L1Capacity         int
	L2Capacity         int
	L1TTL              time.Duration
	L2TTL              time.Duration
	PromotionThreshold int64
}

// Option configures a Manager, following the functional-options idiom
// used across the pack for constructor-owned collaborators.
type Option[K comparable, V any] func(*Manager[K, V])

func WithL1Capacity[K comparable, V any](n int) Option[K, V] {
	return func(m *Manager[K, V]) {
		if n > 0 {
			m.cfg.L1Capacity = n
		}
	}
}

func WithL2Capacity[K comparable, V any](n int) Option[K, V] {
	return func(m *Manager[K, V]) {
		if n > 0 {
			m.cfg.L2Capacity = n
		}
	}
}

func WithTTLs[K comparable, V any](l1, l2 time.Duration) Option[K, V] {
	return func(m *Manager[K, V]) {
		m.cfg.L1TTL = l1
		m.cfg.L2TTL = l2
	}
}

func WithPromotionThreshold[K comparable, V any](n int64) Option[K, V] {
	return func(m *Manager[K, V]) {
		if n > 0 {
			m.promotion.Store(n)
		}
	}
}

func WithPreheater[K comparable, V any](p *Preheater[K]) Option[K, V] {
	return func(m *Manager[K, V]) {
		m.preheater = p
	}
}

func WithTuner[K comparable, V any](t *Tuner) Option[K, V] {
	return func(m *Manager[K, V]) {
		m.tuner = t
	}
}

func WithLogger[K comparable, V any](l zerolog.Logger) Option[K, V] {
	return func(m *Manager[K, V]) {
		m.logger = l
	}
}

// Manager is the two-level cache described in spec.md §4.4. A key
// appears in at most one level at any instant; promotions and
// demotions are serialized under narrow per-tier mutexes so that a
// concurrent Get either observes the value in exactly one place or
// misses and can retry.
type Manager[K comparable, V any] struct {
	cfg Config

	mu1 sync.Mutex
	l1  map[K]*Entry[V]

	mu2 sync.Mutex
	l2  map[K]*Entry[V]

	statsMu sync.Mutex
	monitor *Monitor

	// promotion threshold is read on the L2 path and written by the
	// tuner; atomic so neither side needs the other's lock.
	promotion atomic.Int64

	preheater *Preheater[K]
	tuner     *Tuner
	group     singleflight.Group
	logger    zerolog.Logger
}

const (
	defaultL1Capacity         = 1024
	defaultL2Capacity         = 8192
	defaultPromotionThreshold = 3
)

// New builds a Manager with the given options applied over conservative
// defaults. A nil Preheater/Tuner disables the corresponding feature.
func New[K comparable, V any](opts ...Option[K, V]) *Manager[K, V] {
	m := &Manager[K, V]{
		cfg: Config{
			L1Capacity: defaultL1Capacity,
			L2Capacity: defaultL2Capacity,
		},
		l1:      map[K]*Entry[V]{},
		l2:      map[K]*Entry[V]{},
		monitor: NewMonitor(256),
		logger:  log.Logger,
	}
	m.promotion.Store(defaultPromotionThreshold)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get probes L1, then L2, promoting on sufficient access_count. A miss
// triggers the preheater (best effort, never blocking).
func (m *Manager[K, V]) Get(key K) (V, bool) {
	start := time.Now()
	defer func() { m.recordLatency("get", time.Since(start)) }()

	now := time.Now()

	m.mu1.Lock()
	if e, ok := m.l1[key]; ok {
		if e.expired(now) {
			delete(m.l1, key)
			m.mu1.Unlock()
			m.recordMiss()
			return m.missAndPreheat(key)
		}
		e.LastAccessed = now
		e.AccessCount++
		val := e.Value
		m.mu1.Unlock()
		m.recordHit()
		if m.preheater != nil {
			m.preheater.RecordAccess(key)
		}
		return val, true
	}
	m.mu1.Unlock()

	m.mu2.Lock()
	e, ok := m.l2[key]
	if !ok {
		m.mu2.Unlock()
		m.recordMiss()
		return m.missAndPreheat(key)
	}
	if e.expired(now) {
		delete(m.l2, key)
		m.mu2.Unlock()
		m.recordMiss()
		return m.missAndPreheat(key)
	}
	e.LastAccessed = now
	e.AccessCount++
	val := e.Value
	promote := e.AccessCount >= m.promotion.Load()
	if promote {
		delete(m.l2, key)
	}
	m.mu2.Unlock()
	m.recordHit()
	if m.preheater != nil {
		m.preheater.RecordAccess(key)
	}

	if promote {
		// The singleflight group collapses a burst of concurrent
		// promotions for the same key into one insert.
		_, _, _ = m.group.Do(fmt.Sprintf("%v", key), func() (interface{}, error) {
			promoted := &Entry[V]{
				Value:        val,
				CreatedAt:    e.CreatedAt,
				LastAccessed: now,
				AccessCount:  e.AccessCount,
				Level:        Level1,
				SizeBytes:    e.SizeBytes,
				TTL:          m.cfg.L1TTL,
			}
			m.insertL1(key, promoted)
			return nil, nil
		})
	}
	return val, true
}

func (m *Manager[K, V]) missAndPreheat(key K) (V, bool) {
	var zero V
	if m.preheater != nil {
		m.preheater.RecordMiss(key)
	}
	return zero, false
}

// Put writes value into L1, constructing a fresh entry and evicting if
// L1 is at capacity. sizeBytes is used for eviction priority; pass 0 if
// unknown (treated as 1 for scoring purposes).
func (m *Manager[K, V]) Put(key K, value V, sizeBytes int64) {
	now := time.Now()
	entry := &Entry[V]{
		Value:        value,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
		Level:        Level1,
		SizeBytes:    sizeBytes,
		TTL:          m.cfg.L1TTL,
	}
	m.insertL1(key, entry)
	if m.preheater != nil {
		m.preheater.RecordAccess(key)
	}
}

// insertL1 stores entry at key, evicting the bottom 10% (at least one)
// by priority first if the tier is at capacity.
func (m *Manager[K, V]) insertL1(key K, entry *Entry[V]) {
	m.mu1.Lock()
	defer m.mu1.Unlock()
	if _, exists := m.l1[key]; !exists && len(m.l1) >= m.cfg.L1Capacity && m.cfg.L1Capacity > 0 {
		m.evictL1Locked()
	}
	m.l1[key] = entry
}

// evictL1Locked must be called with mu1 held. It picks the lowest-priority
// 10% (at least one entry) and demotes those victims with access_count > 1
// into L2; the rest are dropped.
func (m *Manager[K, V]) evictL1Locked() {
	now := time.Now()
	type scored struct {
		key K
		e   *Entry[V]
		p   float64
	}
	all := make([]scored, 0, len(m.l1))
	for k, e := range m.l1 {
		all = append(all, scored{key: k, e: e, p: e.priority(now)})
	}
	n := len(all) / 10
	if n < 1 {
		n = 1
	}
	// partial selection sort for the n lowest-priority entries; tier
	// sizes are bounded by L1Capacity so this stays cheap.
	for i := 0; i < n; i++ {
		lowest := i
		for j := i + 1; j < len(all); j++ {
			if all[j].p < all[lowest].p {
				lowest = j
			}
		}
		all[i], all[lowest] = all[lowest], all[i]
	}
	for i := 0; i < n; i++ {
		victim := all[i]
		delete(m.l1, victim.key)
		if victim.e.AccessCount > 1 {
			m.demoteToL2(victim.key, victim.e)
		}
		m.recordEviction()
	}
}

func (m *Manager[K, V]) demoteToL2(key K, entry *Entry[V]) {
	m.mu2.Lock()
	defer m.mu2.Unlock()
	if _, exists := m.l2[key]; !exists && len(m.l2) >= m.cfg.L2Capacity && m.cfg.L2Capacity > 0 {
		m.evictL2Locked()
	}
	demoted := *entry
	demoted.Level = Level2
	demoted.TTL = m.cfg.L2TTL
	m.l2[key] = &demoted
}

func (m *Manager[K, V]) evictL2Locked() {
	now := time.Now()
	var victimKey K
	var victim *Entry[V]
	lowest := -1.0
	first := true
	for k, e := range m.l2 {
		p := e.priority(now)
		if first || p < lowest {
			lowest = p
			victimKey = k
			victim = e
			first = false
		}
	}
	if victim != nil {
		delete(m.l2, victimKey)
	}
}

// Remove deletes key from whichever level it occupies.
func (m *Manager[K, V]) Remove(key K) {
	m.mu1.Lock()
	delete(m.l1, key)
	m.mu1.Unlock()
	m.mu2.Lock()
	delete(m.l2, key)
	m.mu2.Unlock()
}

// Len returns the combined L1+L2 entry count, mostly for tests.
func (m *Manager[K, V]) Len() int {
	m.mu1.Lock()
	n1 := len(m.l1)
	m.mu1.Unlock()
	m.mu2.Lock()
	n2 := len(m.l2)
	m.mu2.Unlock()
	return n1 + n2
}

func (m *Manager[K, V]) recordHit() {
	m.statsMu.Lock()
	m.monitor.hits++
	m.statsMu.Unlock()
}

func (m *Manager[K, V]) recordMiss() {
	m.statsMu.Lock()
	m.monitor.misses++
	m.statsMu.Unlock()
}

func (m *Manager[K, V]) recordEviction() {
	m.statsMu.Lock()
	m.monitor.evictions++
	m.statsMu.Unlock()
}

func (m *Manager[K, V]) recordLatency(op string, d time.Duration) {
	m.statsMu.Lock()
	m.monitor.record(op, d)
	m.statsMu.Unlock()
}

// RunTuner starts the attached adaptive tuner against this manager,
// blocking until ctx is cancelled. A manager without a tuner returns
// immediately.
func (m *Manager[K, V]) RunTuner(ctx context.Context) {
	if m.tuner == nil {
		return
	}
	m.tuner.Run(ctx, m)
}

// Stats returns a snapshot of monitor counters, used by the adaptive
// tuner and by callers that expose cache health.
func (m *Manager[K, V]) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.monitor.snapshot()
}

// CapacityL1 returns the current L1 capacity, used by the adaptive
// tuner to compute bounded deltas.
func (m *Manager[K, V]) CapacityL1() int {
	m.mu1.Lock()
	defer m.mu1.Unlock()
	return m.cfg.L1Capacity
}

// CapacityL2 returns the current L2 capacity.
func (m *Manager[K, V]) CapacityL2() int {
	m.mu2.Lock()
	defer m.mu2.Unlock()
	return m.cfg.L2Capacity
}

// PromotionThreshold returns the current promotion threshold.
func (m *Manager[K, V]) PromotionThreshold() int64 {
	return m.promotion.Load()
}

// Resize adjusts L1/L2 capacity and promotion threshold, used by the
// adaptive tuner within its configured bounds.
func (m *Manager[K, V]) Resize(l1Capacity, l2Capacity int, promotionThreshold int64) {
	m.mu1.Lock()
	if l1Capacity > 0 {
		m.cfg.L1Capacity = l1Capacity
	}
	m.mu1.Unlock()
	m.mu2.Lock()
	if l2Capacity > 0 {
		m.cfg.L2Capacity = l2Capacity
	}
	m.mu2.Unlock()
	if promotionThreshold > 0 {
		m.promotion.Store(promotionThreshold)
	}
}
