// SPDX-License-Identifier: AGPL-3.0-or-later

package scheduler

import (
	"sync/atomic"
	"testing"

	"github.com/kestrelgo/delaunay/store"
)

func set(ids ...store.SimplexID) map[store.SimplexID]struct{} {
	m := make(map[store.SimplexID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func TestAssignWavesDisjointSetsShareWaveOne(t *testing.T) {
	sets := []map[store.SimplexID]struct{}{
		set(0, 1),
		set(2, 3),
		set(4, 5),
	}
	waves := AssignWaves(sets)
	for i, w := range waves {
		if w != 1 {
			t.Fatalf("waves[%d] = %d, want 1 (all disjoint)", i, w)
		}
	}
}

func TestAssignWavesOverlapSplitsIntoSeparateWaves(t *testing.T) {
	sets := []map[store.SimplexID]struct{}{
		set(0, 1),
		set(1, 2), // overlaps candidate 0 at id 1
		set(5, 6), // disjoint from both -- must join wave 1
	}
	waves := AssignWaves(sets)
	if waves[0] != 1 {
		t.Fatalf("waves[0] = %d, want 1", waves[0])
	}
	if waves[1] != 2 {
		t.Fatalf("waves[1] = %d, want 2 (overlaps candidate 0)", waves[1])
	}
	if waves[2] != 1 {
		t.Fatalf("waves[2] = %d, want 1 (disjoint from wave 1's members)", waves[2])
	}
}

func TestGroupPreservesQueueOrderWithinWave(t *testing.T) {
	groups := Group([]int{1, 2, 1, 1, 2})
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if got := groups[0]; len(got) != 3 || got[0] != 0 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("groups[0] = %v, want [0 2 3]", got)
	}
	if got := groups[1]; len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("groups[1] = %v, want [1 4]", got)
	}
}

func TestPrefixSizesAndTotal(t *testing.T) {
	counts := []int{3, 0, 2, 5}
	bases := PrefixSizes(counts)
	want := []int{0, 3, 3, 5}
	for i := range want {
		if bases[i] != want[i] {
			t.Fatalf("bases[%d] = %d, want %d", i, bases[i], want[i])
		}
	}
	if total := Total(counts); total != 10 {
		t.Fatalf("Total() = %d, want 10", total)
	}
}

func TestRunParallelVisitsEveryIndexExactlyOnce(t *testing.T) {
	const n = 5000
	var counts [n]int32
	RunParallel(n, func(i int) {
		atomic.AddInt32(&counts[i], 1)
	})
	for i, c := range counts {
		if c != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, c)
		}
	}
}

func TestRunParallelZero(t *testing.T) {
	RunParallel(0, func(i int) { t.Fatal("must not be called") })
}
