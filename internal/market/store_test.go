package market

import (
	"math/rand"
	"testing"
)

func TestStoreUpsertRemoveLen(t *testing.T) {
	s := NewStore[string, int]()
	if s.Len() != 0 {
		t.Fatalf("new store Len() = %d, want 0", s.Len())
	}
	s.Upsert("a", 1)
	s.Upsert("b", 2)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	s.Upsert("a", 11)
	if s.Len() != 2 {
		t.Fatalf("Upsert of an existing key changed Len(): got %d", s.Len())
	}
	s.Remove("a")
	if s.Len() != 1 {
		t.Fatalf("Len() after Remove = %d, want 1", s.Len())
	}
	s.Remove("does-not-exist")
	if s.Len() != 1 {
		t.Fatalf("Remove of a missing key changed Len(): got %d", s.Len())
	}
}

func TestStoreSampleReturnsAllWhenShort(t *testing.T) {
	s := NewStore[int, string]()
	s.Upsert(1, "a")
	s.Upsert(2, "b")
	s.Upsert(3, "c")

	got := s.Sample(10, nil, nil)
	if len(got) != 3 {
		t.Fatalf("Sample(10, ...) on a 3-element store returned %d, want 3", len(got))
	}
}

func TestStoreSampleZeroOrNegativeReturnsAll(t *testing.T) {
	s := NewStore[int, string]()
	for i := 0; i < 5; i++ {
		s.Upsert(i, "x")
	}
	if got := s.Sample(0, nil, nil); len(got) != 5 {
		t.Fatalf("Sample(0, ...) = %d items, want all 5", len(got))
	}
	if got := s.Sample(-1, nil, nil); len(got) != 5 {
		t.Fatalf("Sample(-1, ...) = %d items, want all 5", len(got))
	}
}

func TestStoreSampleRespectsKeepFilter(t *testing.T) {
	s := NewStore[string, int]()
	s.Upsert("grain", 1)
	s.Upsert("flour", 2)
	s.Upsert("bread", 3)

	got := s.Sample(10, func(k string, v int) bool { return k == "flour" }, nil)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("Sample with keep filter = %v, want [2]", got)
	}
}

func TestStoreSampleExactSizeWithSeededRNG(t *testing.T) {
	s := NewStore[int, int]()
	for i := 0; i < 20; i++ {
		s.Upsert(i, i)
	}
	rng := rand.New(rand.NewSource(1))
	got := s.Sample(5, nil, rng)
	if len(got) != 5 {
		t.Fatalf("Sample(5, ...) returned %d items, want 5", len(got))
	}
	seen := make(map[int]bool, len(got))
	for _, v := range got {
		if seen[v] {
			t.Fatalf("Sample returned duplicate value %d", v)
		}
		seen[v] = true
	}
}

// TestStoreSampleUniformity checks every listing has roughly the same
// chance of being drawn, a property the trade protocol's fairness relies
// on (original_source/Marketplace.py's random.sample is uniform).
func TestStoreSampleUniformity(t *testing.T) {
	s := NewStore[int, int]()
	const n = 10
	for i := 0; i < n; i++ {
		s.Upsert(i, i)
	}

	counts := make([]int, n)
	rng := rand.New(rand.NewSource(42))
	const trials = 4000
	for i := 0; i < trials; i++ {
		for _, v := range s.Sample(3, nil, rng) {
			counts[v]++
		}
	}

	// Expected count per item ~= trials * 3 / n = 1200. Allow generous
	// slack since this is a statistical test, not an exact one.
	want := trials * 3 / n
	for v, c := range counts {
		if c < want/2 || c > want*3/2 {
			t.Errorf("item %d drawn %d times, want near %d", v, c, want)
		}
	}
}
