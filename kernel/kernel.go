// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kernel implements the Bowyer-Watson incremental construction
// step (spec.md S4.4): locating the cavity a new point carves, computing
// its replacement simplices as a pure read of the store, and applying
// that update to mutate the store. The compute/apply split is what lets
// a wave of insertions run its compute phase concurrently -- exactly the
// shape server/world/entity.go documents for Entity.Update: "each one can
// be processed by a different goroutine" because it "only modifies
// itself"; here generalized to "only reads the frozen pre-wave store".
package kernel

import (
	"errors"
	"sort"

	"github.com/kestrelgo/delaunay/geom"
	"github.com/kestrelgo/delaunay/spatial"
	"github.com/kestrelgo/delaunay/store"
)

// ErrEmptyCavity reports that Locate found no conflicting simplex for a
// point -- a fatal integrity violation under I1 combined with the
// super-simplex enclosure (spec.md S4.4.1, S7 IntegrityError).
var ErrEmptyCavity = errors.New("kernel: empty cavity (integrity violation)")

// Locate finds the cavity a point at p would carve against the store's
// current (frozen) state: the breadth-first closure, over neighbor links,
// of simplices whose circumsphere contains p, seeded from the nearest
// existing vertex (spec.md S4.4.1). The walk is iterative with an
// explicit worklist -- spec.md S9 prefers this over the recursive walk
// the original source (find_all_neighbors in delaunay_tree.rs) uses, to
// avoid stack overflow on large cavities.
func Locate(s *store.Store, idx *spatial.Index, p []float64) ([]store.SimplexID, error) {
	nearestID, ok := idx.Nearest(p)
	if !ok {
		return nil, ErrEmptyCavity
	}
	v := s.GetVertex(store.VertexID(nearestID))

	accepted := make(map[store.SimplexID]struct{})
	var worklist []store.SimplexID

	for id := range v.Incident {
		simplex := s.GetSimplex(id)
		if geom.InSphere(p, simplex.Center, simplex.Radius) {
			if _, seen := accepted[id]; !seen {
				accepted[id] = struct{}{}
				worklist = append(worklist, id)
			}
		}
	}

	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]

		simplex := s.GetSimplex(id)
		for _, neighbor := range simplex.Neighbors {
			if _, seen := accepted[neighbor]; seen {
				continue
			}
			ns := s.GetSimplex(neighbor)
			if geom.InSphere(p, ns.Center, ns.Radius) {
				accepted[neighbor] = struct{}{}
				worklist = append(worklist, neighbor)
			}
		}
	}

	if len(accepted) == 0 {
		return nil, ErrEmptyCavity
	}

	cavity := make([]store.SimplexID, 0, len(accepted))
	for id := range accepted {
		cavity = append(cavity, id)
	}
	sort.Slice(cavity, func(i, j int) bool { return cavity[i] < cavity[j] })
	return cavity, nil
}

// ExternalPair records that NewSimplices[i] replaces Killed on the far
// side of the boundary facet it shares with External -- one entry per
// new simplex, in lockstep with NewSimplices (spec.md S4.4.2).
type ExternalPair struct {
	External store.SimplexID
	Killed   store.SimplexID
}

// InternalPair records that the two new simplices at these local indices
// (into Update.NewSimplices) share an N-facet and must be linked as
// neighbors once both exist (spec.md S4.4.2's "internal pairing").
type InternalPair struct {
	A, B int
}

// Update is the pure output of ComputeUpdate: everything Apply needs to
// mutate the store for one insertion, with no store access of its own.
type Update struct {
	VertexID      store.VertexID
	Point         []float64
	Cavity        []store.SimplexID
	NewSimplices  []store.Simplex // NewSimplices[i] pairs with ExternalPairs[i]
	ExternalPairs []ExternalPair
	InternalPairs []InternalPair
}

// ComputeUpdate carves the cavity and re-triangulates it (spec.md
// S4.4.2), reading only the store's frozen pre-wave state. vertexID is
// pre-assigned by the caller (the driver knows, before any compute phase
// runs, how many vertices exist at wave start plus this candidate's
// position within the wave) so that every new simplex's corner set can be
// built and its circumsphere solved without waiting for a commit.
func ComputeUpdate(s *store.Store, cavity []store.SimplexID, point []float64, vertexID store.VertexID) (*Update, error) {
	u := &Update{VertexID: vertexID, Point: point, Cavity: cavity}

	for _, killedID := range cavity {
		killed := s.GetSimplex(killedID)

		for _, neighborID := range killed.Neighbors {
			neighbor := s.GetSimplex(neighborID)
			if geom.InSphere(point, neighbor.Center, neighbor.Radius) {
				// Interior facet: both K and its neighbor are cavity members
				// (or will be handled from the neighbor's own cavity pass);
				// nothing to carve here.
				continue
			}

			corners := make([]store.VertexID, 0, len(killed.Vertices))
			corners = append(corners, vertexID)
			for _, v := range killed.Vertices {
				if neighbor.HasVertex(v) {
					corners = append(corners, v)
				}
			}

			coords := make([][]float64, len(corners))
			coords[0] = point
			for i := 1; i < len(corners); i++ {
				coords[i] = s.GetVertex(corners[i]).Coordinates
			}

			center, radius, err := geom.Circumsphere(coords)
			if err != nil {
				return nil, err
			}

			u.NewSimplices = append(u.NewSimplices, store.Simplex{
				Vertices:  corners,
				Center:    center,
				Radius:    radius,
				Neighbors: []store.SimplexID{neighborID},
			})
			u.ExternalPairs = append(u.ExternalPairs, ExternalPair{External: neighborID, Killed: killedID})
		}
	}

	n := len(point)
	for i := 0; i < len(u.NewSimplices); i++ {
		for j := i + 1; j < len(u.NewSimplices); j++ {
			a, b := &u.NewSimplices[i], &u.NewSimplices[j]
			if a.SharedVertexCount(b) == n {
				u.InternalPairs = append(u.InternalPairs, InternalPair{A: i, B: j})
			}
		}
	}

	return u, nil
}

// Apply mutates the store per spec.md S4.4.3's six ordered sub-steps,
// using the identifier range [idBase, idBase+len(new)) handed to it by the
// scheduler's prefix sum (spec.md S4.5/S9) -- the property that makes
// concurrent Apply calls within a wave touch disjoint store keys.
//
// The spatial index is not touched here: unlike the store, it is a single
// unsharded k-d tree with no concurrent-write support, so every wave
// member's vertex must be inserted into it by a serial pass before Apply
// is ever run in parallel -- matching insert_points_parallel's serial
// kdtree.add loop, which always completes before its par_iter block in
// the original source.
func Apply(s *store.Store, u *Update, idBase store.SimplexID) {
	// 1. Insert the new vertex into the vertex table.
	s.InsertVertex(u.VertexID, u.Point, false)

	// 2. Insert each new simplex with a fresh id; its initial neighbor list
	// already holds the external neighbor (set in ComputeUpdate).
	ids := make([]store.SimplexID, len(u.NewSimplices))
	for i, ns := range u.NewSimplices {
		id := idBase + store.SimplexID(i)
		ids[i] = id
		s.InsertSimplex(id, ns)
	}

	// 3. Relink each external neighbor from the killed simplex to the new one.
	for i, pair := range u.ExternalPairs {
		newID := ids[i]
		s.UpdateSimplex(pair.External, func(ext *store.Simplex) {
			for j, n := range ext.Neighbors {
				if n == pair.Killed {
					ext.Neighbors[j] = newID
				}
			}
		})
	}

	// 4. Link internal pairs among the new simplices.
	for _, ip := range u.InternalPairs {
		a, b := ids[ip.A], ids[ip.B]
		s.UpdateSimplex(a, func(simplex *store.Simplex) { simplex.Neighbors = append(simplex.Neighbors, b) })
		s.UpdateSimplex(b, func(simplex *store.Simplex) { simplex.Neighbors = append(simplex.Neighbors, a) })
	}

	// 5. Record incidence of each new simplex at its corners.
	for i, ns := range u.NewSimplices {
		id := ids[i]
		for _, v := range ns.Vertices {
			s.UpdateVertex(v, func(vertex *store.Vertex) { vertex.Incident[id] = struct{}{} })
		}
	}

	// 6. Strip incidence and delete every killed simplex.
	for _, killedID := range u.Cavity {
		killed := s.GetSimplex(killedID)
		for _, v := range killed.Vertices {
			s.UpdateVertex(v, func(vertex *store.Vertex) { delete(vertex.Incident, killedID) })
		}
		s.RemoveSimplex(killedID)
	}
}
