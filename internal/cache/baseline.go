package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// baselineEntry is the JSON-serializable shape of one cache entry,
// persisted only for keys/values that are themselves JSON-marshalable.
// Cache baselines are an optional, external collaborator format per
// spec.md §6; this mirrors the teacher's RepoIndexWriterAdapter.Write /
// sbom_writer.go "marshal a domain struct, write atomically" idiom.
type baselineEntry[K comparable, V any] struct {
	Key         K         `json:"key"`
	Value       V         `json:"value"`
	CreatedAt   time.Time `json:"created_at"`
	AccessCount int64     `json:"access_count"`
	SizeBytes   int64     `json:"size_bytes"`
}

type Baseline[K comparable, V any] struct {
	Entries []baselineEntry[K, V] `json:"entries"`
}

// SaveBaseline snapshots the L1 tier (the entries most worth warming on
// next start) to a JSON file, written atomically via a temp-file
// rename.
func (m *Manager[K, V]) SaveBaseline(path string) error {
	m.mu1.Lock()
	baseline := Baseline[K, V]{Entries: make([]baselineEntry[K, V], 0, len(m.l1))}
	for k, e := range m.l1 {
		baseline.Entries = append(baseline.Entries, baselineEntry[K, V]{
			Key:         k,
			Value:       e.Value,
			CreatedAt:   e.CreatedAt,
			AccessCount: e.AccessCount,
			SizeBytes:   e.SizeBytes,
		})
	}
	m.mu1.Unlock()

	data, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to marshal cache baseline").
			WithCause(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create cache baseline directory").
			WithCause(err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write cache baseline").
			WithCause(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to finalize cache baseline").
			WithCause(err)
	}
	return nil
}

// LoadBaseline restores entries from a prior SaveBaseline into L1,
// preserving their original creation time and access count so
// eviction priority reflects pre-restart history.
func (m *Manager[K, V]) LoadBaseline(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read cache baseline").
			WithCause(err)
	}
	var baseline Baseline[K, V]
	if err := json.Unmarshal(data, &baseline); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse cache baseline").
			WithCause(err)
	}
	now := time.Now()
	for _, be := range baseline.Entries {
		m.insertL1(be.Key, &Entry[V]{
			Value:        be.Value,
			CreatedAt:    be.CreatedAt,
			LastAccessed: now,
			AccessCount:  be.AccessCount,
			Level:        Level1,
			SizeBytes:    be.SizeBytes,
			TTL:          m.cfg.L1TTL,
		})
	}
	return nil
}
