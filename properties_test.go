// SPDX-License-Identifier: AGPL-3.0-or-later

package delaunay

import (
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/kestrelgo/delaunay/internal/genpoints"
	"github.com/kestrelgo/delaunay/store"
)

// assertInvariants checks the commit-boundary invariants (I1-I4, spec
// properties P1-P4) that must hold after every AddPoints call returns.
func assertInvariants(t *testing.T, tri *Triangulation) {
	t.Helper()

	ok, bad := tri.CheckDelaunay()
	if !ok {
		t.Fatalf("CheckDelaunay failed: vertex %d lies inside simplex %d's circumsphere", bad.Vertex, bad.Simplex)
	}

	tri.store.ForEachSimplex(func(id store.SimplexID, simplex store.Simplex) {
		// I2/P4: every corner's incident set must list this simplex, and
		// conversely every simplex id a corner claims must actually have
		// that corner.
		for _, v := range simplex.Vertices {
			vertex := tri.store.GetVertex(v)
			if _, ok := vertex.Incident[id]; !ok {
				t.Fatalf("vertex %d does not list incident simplex %d, one of its own corners", v, id)
			}
		}

		// I3/P2: neighbor symmetry.
		for _, n := range simplex.Neighbors {
			other := tri.store.GetSimplex(n)
			found := false
			for _, back := range other.Neighbors {
				if back == id {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("neighbor asymmetry: simplex %d lists %d but not vice versa", id, n)
			}

			// I4/P3: two neighbors must share exactly N=dim corners.
			if shared := simplex.SharedVertexCount(&other); shared != tri.dim {
				t.Fatalf("simplices %d and %d are neighbors but share %d corners, want %d", id, n, shared, tri.dim)
			}
		}
	})

	tri.store.ForEachVertex(func(id store.VertexID, v store.Vertex) {
		for sid := range v.Incident {
			simplex := tri.store.GetSimplex(sid)
			if !simplex.HasVertex(id) {
				t.Fatalf("vertex %d claims incidence to simplex %d, which does not have it as a corner", id, sid)
			}
		}
	})
}

// --- R1/R2: round-trip and idempotence -----------------------------------

func TestAddPointsEmptyIsNoOp(t *testing.T) {
	tri, err := New2D([][2]float64{{0, 0}, {1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("New2D: %v", err)
	}
	beforeV, beforeS := tri.VertexCount(), tri.SimplexCount()

	if err := tri.AddPoints(nil); err != nil {
		t.Fatalf("AddPoints(nil): %v", err)
	}
	if err := tri.AddPoints([][]float64{}); err != nil {
		t.Fatalf("AddPoints([]): %v", err)
	}

	if tri.VertexCount() != beforeV || tri.SimplexCount() != beforeS {
		t.Fatalf("AddPoints with no points changed counts: vertices %d->%d, simplices %d->%d",
			beforeV, tri.VertexCount(), beforeS, tri.SimplexCount())
	}
}

func TestDuplicatePointIsSilentlyDropped(t *testing.T) {
	tri, err := New2D([][2]float64{{0, 0}, {2, 0}, {0, 2}, {2, 2}})
	if err != nil {
		t.Fatalf("New2D: %v", err)
	}
	beforeV, beforeS := tri.VertexCount(), tri.SimplexCount()

	if err := tri.AddPoints([][]float64{{0, 0}}); err != nil {
		t.Fatalf("AddPoints(duplicate): %v", err)
	}

	if tri.VertexCount() != beforeV {
		t.Fatalf("VertexCount() = %d, want unchanged %d (duplicate must be skipped)", tri.VertexCount(), beforeV)
	}
	if tri.SimplexCount() != beforeS {
		t.Fatalf("SimplexCount() = %d, want unchanged %d", tri.SimplexCount(), beforeS)
	}
	assertInvariants(t, tri)
}

// --- Concrete scenarios (spec.md S8) --------------------------------------

// S1: a unit square. The shared circumsphere of its 4 corners makes the
// diagonal choice an exact cosphericity tie (spec.md S9 flags this as the
// dominant floating-point fragility), so this test only asserts the
// invariants that must hold regardless of which diagonal floating-point
// rounding happens to pick, rather than the specific diagonal.
func TestUnitSquareStaysDelaunay(t *testing.T) {
	tri, err := New2D([][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}})
	if err != nil {
		t.Fatalf("New2D: %v", err)
	}
	assertInvariants(t, tri)
}

// S2: a regular hexagon plus its center, center inserted last.
func TestHexagonWithCenterLastFansFromCenter(t *testing.T) {
	var hexPoints [][2]float64
	for i := 0; i < 6; i++ {
		angle := 2 * math.Pi * float64(i) / 6
		hexPoints = append(hexPoints, [2]float64{math.Cos(angle), math.Sin(angle)})
	}

	tri, err := New2D(hexPoints)
	if err != nil {
		t.Fatalf("New2D: %v", err)
	}
	center := store.VertexID(tri.VertexCount()) // next id to be assigned, before insertion
	if err := tri.AddPoints([][]float64{{0, 0}}); err != nil {
		t.Fatalf("AddPoints(center): %v", err)
	}
	assertInvariants(t, tri)

	v := tri.store.GetVertex(center)
	if len(v.Incident) != 6 {
		t.Fatalf("center vertex incident to %d simplices, want 6 (one per hexagon edge)", len(v.Incident))
	}
}

// S3: a regular tetrahedron plus its centroid. A tetrahedron with exactly
// one interior point and no other vertices has exactly one topologically
// valid triangulation -- one sub-tetrahedron per original facet, 4 total --
// and for a regular tetrahedron the centroid coincides with the
// circumcenter, so that 1-to-4 split is already Delaunay with no further
// flips (verified directly: the circumsphere of {centroid, v2, v3, v4}
// excludes v1 by a wide margin). See DESIGN.md for why this test asserts 4
// rather than the six the scenario's informal description suggests.
func TestTetrahedronPlusCentroidSplitsIntoFour(t *testing.T) {
	corners := [][3]float64{
		{1, 1, 1},
		{1, -1, -1},
		{-1, 1, -1},
		{-1, -1, 1},
	}
	tri, err := New3D(corners)
	if err != nil {
		t.Fatalf("New3D: %v", err)
	}
	centroid := store.VertexID(tri.VertexCount()) // next id to be assigned, before insertion
	if err := tri.AddPoints([][]float64{{0, 0, 0}}); err != nil {
		t.Fatalf("AddPoints(centroid): %v", err)
	}
	assertInvariants(t, tri)

	v := tri.store.GetVertex(centroid)
	if len(v.Incident) != 4 {
		t.Fatalf("centroid incident to %d simplices, want 4 (one per tetrahedron facet)", len(v.Incident))
	}
}

// S4: 1000 uniformly random points in the unit cube, inserted in batches
// of 100; check_delaunay must hold over the whole construction.
func TestUniformCubeBatchedInsertion(t *testing.T) {
	points := genpoints.Uniform(1000, 3, 99)

	tri, err := New3D(nil)
	if err != nil {
		t.Fatalf("New3D: %v", err)
	}

	const batch = 100
	for start := 0; start < len(points); start += batch {
		end := start + batch
		if end > len(points) {
			end = len(points)
		}
		if err := tri.AddPoints(points[start:end]); err != nil {
			t.Fatalf("AddPoints[%d:%d]: %v", start, end, err)
		}
	}

	ok, bad := tri.CheckDelaunay()
	if !ok {
		t.Fatalf("CheckDelaunay failed: vertex %d inside simplex %d", bad.Vertex, bad.Simplex)
	}
}

// S5 (proxy): chunking the same point set into different batch sizes must
// not change the final count of live (non-ghost) vertices and simplices,
// since wave partitioning only changes execution order within the
// commutative guarantee spec.md S5 documents -- not the resulting mesh.
func TestBatchChunkingIsEquivalentToOneShot(t *testing.T) {
	points := genpoints.Uniform(200, 2, 7)
	pts2D := make([][2]float64, len(points))
	for i, p := range points {
		pts2D[i] = [2]float64{p[0], p[1]}
	}

	oneShot, err := New2D(pts2D)
	if err != nil {
		t.Fatalf("New2D (one shot): %v", err)
	}

	chunked, err := New2D(nil)
	if err != nil {
		t.Fatalf("New2D (empty): %v", err)
	}
	const batch = 17
	flat := make([][]float64, len(pts2D))
	for i, p := range pts2D {
		flat[i] = []float64{p[0], p[1]}
	}
	for start := 0; start < len(flat); start += batch {
		end := start + batch
		if end > len(flat) {
			end = len(flat)
		}
		if err := chunked.AddPoints(flat[start:end]); err != nil {
			t.Fatalf("AddPoints[%d:%d]: %v", start, end, err)
		}
	}

	if oneShot.VertexCount() != chunked.VertexCount() {
		t.Fatalf("VertexCount mismatch: one-shot %d, chunked %d", oneShot.VertexCount(), chunked.VertexCount())
	}
	if oneShot.SimplexCount() != chunked.SimplexCount() {
		t.Fatalf("SimplexCount mismatch: one-shot %d, chunked %d", oneShot.SimplexCount(), chunked.SimplexCount())
	}
	assertInvariants(t, oneShot)
	assertInvariants(t, chunked)
}

// S6: stress with 10,000 random 3D points -- must not panic, and final
// invariants P1-P4 (assertInvariants) must hold.
func TestStress3DNoPanic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in -short mode")
	}
	points := genpoints.Uniform(10000, 3, 2024)

	tri, err := New3D(nil)
	if err != nil {
		t.Fatalf("New3D: %v", err)
	}
	if err := tri.AddPoints(points); err != nil {
		t.Fatalf("AddPoints: %v", err)
	}
	assertInvariants(t, tri)
}

// --- P6: insertion-order insensitivity -------------------------------------

// canonicalSimplexSet returns the set of live non-ghost simplices as
// coordinate-sorted, string-keyed corner tuples, so two triangulations
// built from the same point set in different insertion orders (hence
// different VertexIDs) can still be compared for equality.
func canonicalSimplexSet(t *testing.T, tri *Triangulation) map[string]struct{} {
	t.Helper()
	set := make(map[string]struct{})
	tri.store.ForEachSimplex(func(_ store.SimplexID, simplex store.Simplex) {
		if simplex.Ghost {
			return
		}
		corners := make([]string, len(simplex.Vertices))
		for i, v := range simplex.Vertices {
			corners[i] = fmt.Sprintf("%v", tri.store.GetVertex(v).Coordinates)
		}
		sort.Strings(corners)
		set[fmt.Sprintf("%v", corners)] = struct{}{}
	})
	return set
}

// P6: for a generic (non-cospherical) point set, the final set of simplex
// corner-tuples must not depend on insertion order.
func TestPermutationInsensitivity(t *testing.T) {
	points := genpoints.Uniform(60, 2, 123)
	pts2D := make([][2]float64, len(points))
	for i, p := range points {
		pts2D[i] = [2]float64{p[0], p[1]}
	}

	forward, err := New2D(pts2D)
	if err != nil {
		t.Fatalf("New2D (forward order): %v", err)
	}

	reversed := make([][2]float64, len(pts2D))
	for i, p := range pts2D {
		reversed[len(pts2D)-1-i] = p
	}
	backward, err := New2D(reversed)
	if err != nil {
		t.Fatalf("New2D (reversed order): %v", err)
	}

	assertInvariants(t, forward)
	assertInvariants(t, backward)

	want := canonicalSimplexSet(t, forward)
	got := canonicalSimplexSet(t, backward)

	if len(want) != len(got) {
		t.Fatalf("simplex count differs by insertion order: forward %d, reversed %d", len(want), len(got))
	}
	for key := range want {
		if _, ok := got[key]; !ok {
			t.Fatalf("simplex %s present when inserted forward, missing when reversed", key)
		}
	}
}

// --- P5: identifier monotonicity ------------------------------------------

func TestSimplexIDsAreNeverReused(t *testing.T) {
	tri, err := New2D([][2]float64{{0, 0}, {5, 0}, {0, 5}})
	if err != nil {
		t.Fatalf("New2D: %v", err)
	}

	seen := make(map[store.SimplexID]struct{})
	tri.store.ForEachSimplex(func(id store.SimplexID, _ store.Simplex) { seen[id] = struct{}{} })
	lastMax := tri.maxID

	points := genpoints.Uniform(50, 2, 3)
	for _, p := range points {
		if err := tri.AddPoints([][]float64{p}); err != nil {
			t.Fatalf("AddPoints: %v", err)
		}
		if tri.maxID < lastMax {
			t.Fatalf("maxID went backwards: %d -> %d", lastMax, tri.maxID)
		}
		lastMax = tri.maxID

		tri.store.ForEachSimplex(func(id store.SimplexID, _ store.Simplex) {
			if _, ok := seen[id]; ok {
				return
			}
			if uint64(id) >= tri.maxID {
				t.Fatalf("live simplex id %d is not less than maxID %d", id, tri.maxID)
			}
			seen[id] = struct{}{}
		})
	}
}
