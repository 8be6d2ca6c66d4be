// SPDX-License-Identifier: AGPL-3.0-or-later

// Package delaunay is the construction driver for a parallel incremental
// Delaunay triangulation engine (spec.md S4.6): it bootstraps an
// enclosing super-simplex, partitions each batch of points into
// conflict-free waves via package scheduler, computes each wave's updates
// concurrently via package kernel, and commits them to package store.
//
// This mirrors the shape of server/update.go and server/physics.go's
// Hub.Update/Hub.Physics: a parallel compute phase, a single barrier, and
// a commit step, run once per logical tick there and once per wave here.
package delaunay

import (
	"math"
	"strconv"
	"sync"

	"github.com/kestrelgo/delaunay/geom"
	"github.com/kestrelgo/delaunay/kernel"
	"github.com/kestrelgo/delaunay/scheduler"
	"github.com/kestrelgo/delaunay/spatial"
	"github.com/kestrelgo/delaunay/store"
)

// Triangulation is a live Delaunay triangulation of dimension 2 or 3.
type Triangulation struct {
	dim   int
	store *store.Store
	index *spatial.Index

	// maxID is the global simplex id counter (spec.md S3): the next free
	// id is always maxID, since every id below it is either live in the
	// store or was permanently retired on a kill.
	maxID uint64

	// addMu serializes AddPoints calls; within a call, waves still run
	// their compute phase in parallel (spec.md S5: "all blocking occurs at
	// the wave barrier").
	addMu sync.Mutex
}

// IntegrityError reports a failed insertion or query (spec.md S7): an
// empty cavity from kernel.Locate (Op "locate"), or an error from
// kernel.ComputeUpdate such as a degenerate new simplex (Op "compute").
// Neighbor symmetry is not checked here, and a reference to an absent id
// is not reported through this type: the store panics with ErrMissingKey.
// It is always fatal -- the triangulation's state is considered
// unrecoverable once raised.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return "delaunay: integrity error during " + e.Op + ": " + e.Err.Error()
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// dim2, dim3 name the only two bootstrap-supported dimensions (spec.md S6).
const (
	dim2 = 2
	dim3 = 3
)

// New2D builds a triangulation whose super-triangle encloses every point
// in the initial set (scaled 10x over their bounding sphere, spec.md S3),
// then inserts them.
func New2D(points [][2]float64) (*Triangulation, error) {
	flat := make([][]float64, len(points))
	for i, p := range points {
		flat[i] = []float64{p[0], p[1]}
	}
	t, err := bootstrap2D(flat)
	if err != nil {
		return nil, err
	}
	if err := t.AddPoints(flat); err != nil {
		return nil, err
	}
	return t, nil
}

// New3D builds a triangulation whose super-tetrahedron encloses every
// point in the initial set, then inserts them.
func New3D(points [][3]float64) (*Triangulation, error) {
	flat := make([][]float64, len(points))
	for i, p := range points {
		flat[i] = []float64{p[0], p[1], p[2]}
	}
	t, err := bootstrap3D(flat)
	if err != nil {
		return nil, err
	}
	if err := t.AddPoints(flat); err != nil {
		return nil, err
	}
	return t, nil
}

// bootstrap2D places a super-triangle whose corners sit on a circle of
// radius 10x the input bounding sphere, at angles 0, 2*pi/3 and 4*pi/3 --
// the same layout DelaunayTree<2,3>::new uses in the original source.
func bootstrap2D(points [][]float64) (*Triangulation, error) {
	center, radius := enclosingRadius(points, dim2)

	corners := [][]float64{
		{center[0] + radius, center[1]},
		{center[0] + radius*math.Cos(2*math.Pi/3), center[1] + radius*math.Sin(2*math.Pi/3)},
		{center[0] + radius*math.Cos(4*math.Pi/3), center[1] + radius*math.Sin(4*math.Pi/3)},
	}
	return buildSuperSimplex(dim2, corners, center, radius)
}

// bootstrap3D places a super-tetrahedron: an apex above the bounding
// sphere's center and three base corners below it, at the same angular
// layout as DelaunayTree<3,4>::new.
func bootstrap3D(points [][]float64) (*Triangulation, error) {
	center, radius := enclosingRadius(points, dim3)

	corners := [][]float64{
		{center[0], center[1], center[2] + radius},
		{center[0] + radius, center[1], center[2] - radius},
		{center[0] + radius*math.Cos(2*math.Pi/3), center[1] + radius*math.Sin(2*math.Pi/3), center[2] - radius},
		{center[0] + radius*math.Cos(4*math.Pi/3), center[1] + radius*math.Sin(4*math.Pi/3), center[2] - radius},
	}
	return buildSuperSimplex(dim3, corners, center, radius)
}

// enclosingRadius returns a bounding sphere for points scaled 10x (spec.md
// S3: "derived from a bounding sphere scaled by 10x"), falling back to the
// unit sphere at the origin, scaled the same 10x, when no points are given
// yet (an empty initial batch is valid, R1). The super-simplex is never
// enlarged afterwards, so later points must lie inside it.
func enclosingRadius(points [][]float64, dim int) ([]float64, float64) {
	if len(points) == 0 {
		return make([]float64, dim), 10
	}
	center, radius := geom.BoundingSphere(points)
	if radius == 0 {
		radius = 1
	}
	return center, radius * 10
}

// buildSuperSimplex wires the M=N+1 real corners and their M ghost
// simplices (one glued to each facet) the way both DelaunayTree::new
// constructors do in the original source: the real simplex's circumsphere
// is solved from its corners (the scaled bounding sphere is used only if
// that solve fails), every ghost simplex carries a zero-radius
// sentinel sphere, and ghost vertex coordinates are taken identical to
// their corresponding real corner -- they are never read by any
// predicate once bootstrap completes, since ghost simplices never regain
// a nonzero radius.
func buildSuperSimplex(dim int, corners [][]float64, center []float64, radius float64) (*Triangulation, error) {
	m := len(corners) // M = N+1

	t := &Triangulation{
		dim:   dim,
		store: store.New(),
		index: spatial.New(dim),
	}

	realVertexIDs := make([]store.VertexID, m)
	ghostVertexIDs := make([]store.VertexID, m)
	for i, c := range corners {
		realVertexIDs[i] = store.VertexID(i)
		t.store.InsertVertex(realVertexIDs[i], c, false)
		t.index.Insert(spatial.VertexID(realVertexIDs[i]), c)
	}
	for i := 0; i < m; i++ {
		ghostVertexIDs[i] = store.VertexID(m + i)
		t.store.InsertVertex(ghostVertexIDs[i], corners[i], true)
		// Ghost vertices are deliberately left out of the spatial index:
		// spec.md S4.4.1 seeds Locate from the nearest *real* site, and a
		// real query point enclosed by the super-simplex is always closer
		// to a real corner than to the super-simplex's own boundary.
	}

	cirCenter, cirRadius, err := geom.Circumsphere(corners)
	if err != nil {
		// Super-simplex corners are constructed to be non-degenerate by
		// placement; fall back to the bounding sphere itself if solved
		// anyway fails (extremely tight/degenerate initial point sets).
		cirCenter, cirRadius = center, radius
	}

	realID := store.SimplexID(0)
	ghostIDs := make([]store.SimplexID, m)
	for i := range ghostIDs {
		ghostIDs[i] = store.SimplexID(i + 1)
	}

	t.store.InsertSimplex(realID, store.Simplex{
		Vertices:  append([]store.VertexID(nil), realVertexIDs...),
		Center:    cirCenter,
		Radius:    cirRadius,
		Neighbors: append([]store.SimplexID(nil), ghostIDs...),
	})

	for i := 0; i < m; i++ {
		// Ghost simplex i is glued to the facet opposite real corner i:
		// its corners are the ghost vertex plus every real corner except i.
		ghostVertices := make([]store.VertexID, 0, m)
		ghostVertices = append(ghostVertices, ghostVertexIDs[i])
		for j, rv := range realVertexIDs {
			if j != i {
				ghostVertices = append(ghostVertices, rv)
			}
		}
		t.store.InsertSimplex(ghostIDs[i], store.Simplex{
			Vertices:  ghostVertices,
			Center:    make([]float64, dim),
			Radius:    0,
			Neighbors: []store.SimplexID{realID},
			Ghost:     true,
		})
	}

	for i, rv := range realVertexIDs {
		rv := rv
		t.store.UpdateVertex(rv, func(v *store.Vertex) { v.Incident[realID] = struct{}{} })
		for j := 0; j < m; j++ {
			if j != i {
				id := ghostIDs[j]
				t.store.UpdateVertex(rv, func(v *store.Vertex) { v.Incident[id] = struct{}{} })
			}
		}
	}
	for i, gv := range ghostVertexIDs {
		gv, id := gv, ghostIDs[i]
		t.store.UpdateVertex(gv, func(v *store.Vertex) { v.Incident[id] = struct{}{} })
	}

	t.maxID = uint64(m + 1) // real simplex 0 plus m ghost simplices
	return t, nil
}

// AddPoints inserts points into the triangulation (spec.md S4.6).
// An empty slice is a no-op (R1). Per the documented duplicate-point
// policy (R2, see DESIGN.md), a point whose nearest existing vertex sits
// at the exact same coordinates is silently skipped rather than carving a
// zero-measure cavity -- and so is a point that exactly coincides with an
// earlier point in this same batch, since the index snapshot used to
// detect the former can't see the latter until a wave actually commits it.
func (t *Triangulation) AddPoints(points [][]float64) error {
	if len(points) == 0 {
		return nil
	}

	t.addMu.Lock()
	defer t.addMu.Unlock()

	seenInBatch := make(map[string]struct{}, len(points))
	queue := make([][]float64, 0, len(points))
	for _, p := range points {
		if t.isDuplicate(p) {
			continue
		}
		key := coordKey(p)
		if _, dup := seenInBatch[key]; dup {
			continue
		}
		seenInBatch[key] = struct{}{}
		queue = append(queue, p)
	}
	if len(queue) == 0 {
		return nil
	}

	// Each round commits only wave 1 of the assignment; the points placed in
	// later waves are located again against the updated store in the next
	// round, since their cavities may hold simplices that wave 1 killed.
	for len(queue) > 0 {
		cavities := make([][]store.SimplexID, len(queue))
		for i, p := range queue {
			cavity, err := kernel.Locate(t.store, t.index, p)
			if err != nil {
				return &IntegrityError{Op: "locate", Err: err}
			}
			cavities[i] = cavity
		}

		conflictSets := make([]map[store.SimplexID]struct{}, len(queue))
		for i, cavity := range cavities {
			conflictSets[i] = scheduler.ConflictSet(cavity, t.store)
		}

		waves := scheduler.AssignWaves(conflictSets)
		if err := t.runWave(scheduler.Group(waves)[0], queue, cavities); err != nil {
			return err
		}

		rest := make([][]float64, 0, len(queue))
		for i, w := range waves {
			if w != 1 {
				rest = append(rest, queue[i])
			}
		}
		queue = rest
	}
	return nil
}

// isDuplicate reports whether p coincides exactly with the nearest
// existing vertex's coordinates (the chosen R2 policy).
func (t *Triangulation) isDuplicate(p []float64) bool {
	if t.index.Len() == 0 {
		return false
	}
	nearestID, ok := t.index.Nearest(p)
	if !ok {
		return false
	}
	v := t.store.GetVertex(store.VertexID(nearestID))
	for k := range p {
		if v.Coordinates[k] != p[k] {
			return false
		}
	}
	return true
}

// coordKey renders p's exact bit pattern as a map key, so two points are
// equal under coordKey iff every coordinate compares == (the same notion
// of "duplicate" isDuplicate uses against the index).
func coordKey(p []float64) string {
	buf := make([]byte, 0, len(p)*24)
	for _, c := range p {
		buf = strconv.AppendFloat(buf, c, 'g', -1, 64)
		buf = append(buf, ',')
	}
	return string(buf)
}

// runWave computes every member's update in parallel against the frozen
// pre-wave store (spec.md S4.4/S5's barrier), then commits them, advancing
// the global simplex id counter by the wave's prefix-summed total
// (spec.md S4.4.3/S9).
func (t *Triangulation) runWave(indices []int, queue [][]float64, cavities [][]store.SimplexID) error {
	base := store.VertexID(t.store.VertexCount())

	updates := make([]*kernel.Update, len(indices))
	computeErr := make([]error, len(indices))

	t.store.SetParallel(true)
	scheduler.RunParallel(len(indices), func(i int) {
		idx := indices[i]
		vertexID := base + store.VertexID(i)
		u, err := kernel.ComputeUpdate(t.store, cavities[idx], queue[idx], vertexID)
		updates[i] = u
		computeErr[i] = err
	})
	t.store.SetParallel(false)

	for _, err := range computeErr {
		if err != nil {
			return &IntegrityError{Op: "compute", Err: err}
		}
	}

	counts := make([]int, len(updates))
	for i, u := range updates {
		counts[i] = len(u.NewSimplices)
	}
	bases := scheduler.PrefixSizes(counts)
	idBase := store.SimplexID(t.nextSimplexID())

	// The k-d tree is a single unsharded structure with no concurrent-write
	// support (unlike the sharded store), so every wave member's vertex is
	// inserted serially here, before any Apply call runs -- mirroring
	// insert_points_parallel's serial kdtree.add pass ahead of its par_iter
	// block in the original source. Nothing in this wave's Apply phase
	// reads the index again (Locate already ran against the pre-wave
	// state), so inserting ahead of the commit is safe.
	for _, u := range updates {
		t.index.Insert(spatial.VertexID(u.VertexID), u.Point)
	}

	scheduler.RunParallel(len(updates), func(i int) {
		kernel.Apply(t.store, updates[i], idBase+store.SimplexID(bases[i]))
	})

	t.advanceSimplexID(scheduler.Total(counts))
	return nil
}

func (t *Triangulation) nextSimplexID() store.SimplexID {
	return store.SimplexID(t.maxID)
}

func (t *Triangulation) advanceSimplexID(n int) {
	t.maxID += uint64(n)
}

// Dim returns 2 or 3, the dimension this triangulation was constructed for.
func (t *Triangulation) Dim() int { return t.dim }

// VertexCount returns the number of live vertices, including the
// bootstrap super-simplex's real and ghost corners.
func (t *Triangulation) VertexCount() int { return t.store.VertexCount() }

// SimplexCount returns the number of live simplices, including ghosts.
func (t *Triangulation) SimplexCount() int { return t.store.SimplexCount() }

// Locate returns the ids of every live, non-ghost simplex whose
// circumsphere contains p -- a read-only query against the current
// triangulation, exposing kernel.Locate's cavity-finding walk without
// mutating anything (spec.md S4.4.1).
func (t *Triangulation) Locate(p []float64) ([]store.SimplexID, error) {
	cavity, err := kernel.Locate(t.store, t.index, p)
	if err != nil {
		return nil, &IntegrityError{Op: "locate", Err: err}
	}
	real := cavity[:0:0]
	for _, id := range cavity {
		if !t.store.GetSimplex(id).Ghost {
			real = append(real, id)
		}
	}
	return real, nil
}

// Counterexample names a simplex that fails the empty-circumsphere
// invariant (I1, spec.md S3): a live vertex strictly inside a simplex's
// circumsphere that isn't one of its own corners.
type Counterexample struct {
	Simplex store.SimplexID
	Vertex  store.VertexID
}

// CheckDelaunay walks every live non-ghost simplex and every live
// non-ghost vertex, verifying that no vertex lies strictly inside a
// simplex's circumsphere unless it is one of that simplex's own corners
// (spec.md S4.7, invariant I1). It reports the first violation found, if
// any -- an O(V*S) diagnostic, not meant for hot paths.
func (t *Triangulation) CheckDelaunay() (bool, *Counterexample) {
	var bad *Counterexample

	t.store.ForEachSimplex(func(sid store.SimplexID, simplex store.Simplex) {
		if bad != nil || simplex.Ghost {
			return
		}
		t.store.ForEachVertex(func(vid store.VertexID, v store.Vertex) {
			if bad != nil || v.Ghost || simplex.HasVertex(vid) {
				return
			}
			if geom.InSphere(v.Coordinates, simplex.Center, simplex.Radius) {
				bad = &Counterexample{Simplex: sid, Vertex: vid}
			}
		})
	})

	return bad == nil, bad
}
