// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scheduler partitions a stream of candidate insertions into
// conflict-free waves (spec.md S4.5): insertions sharing no simplex id in
// their adjacency-one conflict closure can run their kernel.ComputeUpdate
// and kernel.Apply steps concurrently without racing on any store key.
package scheduler

import "github.com/kestrelgo/delaunay/store"

// Candidate is one pending insertion: its cavity (from kernel.Locate) and
// the point it would insert.
type Candidate struct {
	Point  []float64
	Cavity []store.SimplexID
}

// ConflictSet returns the adjacency-one closure of a cavity: the cavity
// itself plus every simplex adjacent to a cavity member. Two insertions
// whose cavities only touch at a shared *neighbor* simplex would otherwise
// race on that neighbor's Neighbors slice during Apply's step 3 relink
// (spec.md S4.5).
func ConflictSet(cavity []store.SimplexID, s *store.Store) map[store.SimplexID]struct{} {
	closure := make(map[store.SimplexID]struct{}, len(cavity)*2)
	for _, id := range cavity {
		closure[id] = struct{}{}
	}
	for _, id := range cavity {
		simplex := s.GetSimplex(id)
		for _, n := range simplex.Neighbors {
			closure[n] = struct{}{}
		}
	}
	return closure
}

// overlaps reports whether two conflict sets share any simplex id.
func overlaps(a, b map[store.SimplexID]struct{}) bool {
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}
	for id := range small {
		if _, ok := large[id]; ok {
			return true
		}
	}
	return false
}

// AssignWaves assigns each candidate (identified by its conflict set, in
// queue order) the smallest wave number w >= 1 such that no
// already-assigned candidate sharing wave w overlaps it (spec.md S4.5).
// The returned slice is parallel to conflictSets: result[i] is the wave
// number for conflictSets[i].
func AssignWaves(conflictSets []map[store.SimplexID]struct{}) []int {
	waves := make([]int, len(conflictSets))
	// waveMembers[w] holds the conflict sets already placed in wave w+1.
	var waveMembers [][]map[store.SimplexID]struct{}

	for i, cs := range conflictSets {
		placed := false
		for w := range waveMembers {
			conflict := false
			for _, other := range waveMembers[w] {
				if overlaps(cs, other) {
					conflict = true
					break
				}
			}
			if !conflict {
				waveMembers[w] = append(waveMembers[w], cs)
				waves[i] = w + 1
				placed = true
				break
			}
		}
		if !placed {
			waveMembers = append(waveMembers, []map[store.SimplexID]struct{}{cs})
			waves[i] = len(waveMembers)
		}
	}
	return waves
}

// Group partitions indices [0, len(waves)) by their assigned wave number,
// in ascending wave order, each group retaining queue order.
func Group(waves []int) [][]int {
	if len(waves) == 0 {
		return nil
	}
	maxWave := 0
	for _, w := range waves {
		if w > maxWave {
			maxWave = w
		}
	}
	groups := make([][]int, maxWave)
	for i, w := range waves {
		groups[w-1] = append(groups[w-1], i)
	}
	return groups
}

// PrefixSizes returns, for each count in counts, the sum of all preceding
// counts -- the disjoint id-range base each wave member's new simplices
// are allocated from (spec.md S4.4.3/S9: the prefix sum must be computed
// before any Apply call allocates ids, or ids collide).
func PrefixSizes(counts []int) []int {
	bases := make([]int, len(counts))
	sum := 0
	for i, c := range counts {
		bases[i] = sum
		sum += c
	}
	return bases
}

// Total returns the sum of counts, i.e. how far to advance the global
// simplex id counter after a wave commits.
func Total(counts []int) int {
	sum := 0
	for _, c := range counts {
		sum += c
	}
	return sum
}
