// Package market implements the three Marketplaces (Item, Labor, Land) as
// ordinary agents on the Connection Network rather than as shared data
// structures any agent can reach into directly — matching spec §4.4's
// requirement that marketplaces behave exactly like any other agent: one
// process-local lock per store, and sampling that snapshots under the
// lock and releases it before doing the actual random selection.
//
// Grounded on original_source/Marketplace.py for the sampling contract
// (random.sample semantics, return-all-if-fewer-than-k) and on the
// teacher's internal/sim/world/board.go bulletin-board listing pattern
// for the single-mutex, replace-or-delete store shape.
package market

import (
	"math/rand"
	"sync"
)

// Store is a generic single-mutex listing table keyed by K. It is safe
// for concurrent use.
type Store[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]V
}

// NewStore returns an empty Store.
func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{items: make(map[K]V)}
}

// Upsert inserts or replaces the listing keyed by k.
func (s *Store[K, V]) Upsert(k K, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[k] = v
}

// Remove deletes the listing keyed by k, if present.
func (s *Store[K, V]) Remove(k K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, k)
}

// Len returns the number of active listings.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// snapshot copies every value matching keep into a slice while holding
// the lock, then releases it — the sampling itself happens outside the
// critical section.
func (s *Store[K, V]) snapshot(keep func(K, V) bool) []V {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]V, 0, len(s.items))
	for k, v := range s.items {
		if keep == nil || keep(k, v) {
			out = append(out, v)
		}
	}
	return out
}

// Sample returns up to n uniformly-chosen listings matching keep (keep
// may be nil to match everything). If fewer than n listings match, all of
// them are returned — original_source/Marketplace.py's
// random.sample-on-a-short-list fallback. rng may be nil, in which case
// the package-level default source is used.
func (s *Store[K, V]) Sample(n int, keep func(K, V) bool, rng *rand.Rand) []V {
	all := s.snapshot(keep)
	if n <= 0 || len(all) <= n {
		return all
	}
	intn := rand.Intn
	if rng != nil {
		intn = rng.Intn
	}
	// Partial Fisher-Yates: shuffle only the first n slots to get a
	// uniform size-n subset without shuffling the whole slice.
	for i := 0; i < n; i++ {
		j := i + intn(len(all)-i)
		all[i], all[j] = all[j], all[i]
	}
	out := make([]V, n)
	copy(out, all[:n])
	return out
}
