// SPDX-License-Identifier: AGPL-3.0-or-later

package spatial

import (
	"math/rand"
	"testing"
)

func TestNearestEmpty(t *testing.T) {
	idx := New(2)
	if _, ok := idx.Nearest([]float64{0, 0}); ok {
		t.Fatal("empty index must report no nearest point")
	}
}

func TestNearestExactMatch(t *testing.T) {
	idx := New(2)
	idx.Insert(0, []float64{0, 0})
	idx.Insert(1, []float64{5, 5})
	idx.Insert(2, []float64{10, 0})

	id, ok := idx.Nearest([]float64{5.1, 4.9})
	if !ok || id != 1 {
		t.Fatalf("Nearest = (%v, %v), want (1, true)", id, ok)
	}
}

func TestNearestAgainstBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	idx := New(3)
	points := make([][]float64, 200)
	for i := range points {
		p := []float64{r.Float64()*100 - 50, r.Float64()*100 - 50, r.Float64()*100 - 50}
		points[i] = p
		idx.Insert(VertexID(i), p)
	}

	for q := 0; q < 50; q++ {
		query := []float64{r.Float64()*100 - 50, r.Float64()*100 - 50, r.Float64()*100 - 50}

		bestID := 0
		bestDist := sqDist(query, points[0])
		for i, p := range points {
			if d := sqDist(query, p); d < bestDist {
				bestDist = d
				bestID = i
			}
		}

		gotID, ok := idx.Nearest(query)
		if !ok || int(gotID) != bestID {
			t.Fatalf("Nearest(%v) = %v, want %v (brute force)", query, gotID, bestID)
		}
	}
}

func TestLen(t *testing.T) {
	idx := New(2)
	for i := 0; i < 10; i++ {
		idx.Insert(VertexID(i), []float64{float64(i), 0})
	}
	if idx.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", idx.Len())
	}
}
