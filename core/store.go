package core

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// store is the engine's in-memory key/value table. It is not exported;
// DefaultEngine is the public surface.
type store struct {
	mu      sync.RWMutex
	entries map[string]Entry

	dirty   bool
	version uint64
}

func newStore() *store {
	return &store{entries: make(map[string]Entry)}
}

// put inserts e under key if it wins the latest-timestamp-wins merge
// against any existing entry, and marks the version dirty when it changes
// anything observable.
func (s *store) put(key string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if ok && !e.newerThan(existing) {
		return
	}
	s.entries[key] = e
	s.dirty = true
}

func (s *store) get(key string, now int64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || e.IsExpired(now) {
		return Entry{}, false
	}
	return e, true
}

// root returns a snapshot of every non-expired entry.
func (s *store) root(now int64) map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Entry, len(s.entries))
	for k, e := range s.entries {
		if !e.IsExpired(now) {
			out[k] = e
		}
	}
	return out
}

func (s *store) length(now int64) int {
	return len(s.root(now))
}

// purge drops every expired entry and reports how many were removed.
func (s *store) purge(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.IsExpired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	if removed > 0 {
		s.dirty = true
	}
	return removed
}

// versionHash returns the order-independent content hash of the live entries,
// recomputing only when the store has been mutated since the last call.
func (s *store) versionHash(now int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return s.version
	}

	var acc uint64
	for k, e := range s.entries {
		if e.IsExpired(now) {
			continue
		}
		acc ^= entryHash(k, e.ts())
	}
	s.version = acc
	s.dirty = false
	return acc
}

// entryHash hashes a (key, ts) pair so that version() is a XOR-fold over a
// set of per-entry hashes: order independent and cheap to update
// incrementally, at the cost of being recomputed from scratch here whenever
// the store is dirty.
func entryHash(key string, ts int64) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(key)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts))
	_, _ = h.Write(tsBuf[:])
	return h.Sum64()
}

// diff returns the entries that differ between this store and other. For a
// key present on both sides, the entry with the *smaller* ts is included —
// the side that is behind — so the recipient learns the older view it was
// missing; equal timestamps are omitted. Keys present on only one side are
// included as-is, from whichever side has them.
func (s *store) diff(other map[string]Entry, now int64) map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Entry)
	seen := make(map[string]bool, len(s.entries))
	for k, local := range s.entries {
		if local.IsExpired(now) {
			continue
		}
		seen[k] = true

		remote, ok := other[k]
		switch {
		case !ok:
			out[k] = local
		case local.ts() == remote.ts():
			// converged, omit
		case local.ts() < remote.ts():
			out[k] = local
		default:
			out[k] = remote
		}
	}
	for k, remote := range other {
		if seen[k] {
			continue
		}
		out[k] = remote
	}
	return out
}
