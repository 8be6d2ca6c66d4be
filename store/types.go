// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the triangulation's vertex and simplex tables
// (spec.md S4.3): two keyed tables offering concurrent reads and
// single-writer-per-key mutation during a wave's commit. Sharding by
// identifier (rather than by spatial region, as the teacher's
// server/world/sector package shards by position) is what lets the
// scheduler's disjoint-identifier-range guarantee (spec.md S4.5) turn
// into disjoint-lock guarantees here.
package store

// VertexID is the insertion-order index of a vertex (spec.md S3).
type VertexID uint32

// SimplexID is a monotonically increasing, never-reused simplex
// identifier (spec.md S3).
type SimplexID uint64

// Vertex holds an N-tuple of coordinates and the set of simplices
// currently incident to it.
type Vertex struct {
	Coordinates []float64
	Incident    map[SimplexID]struct{}
	Ghost       bool
}

func newVertex(coordinates []float64, ghost bool) *Vertex {
	return &Vertex{
		Coordinates: coordinates,
		Incident:    make(map[SimplexID]struct{}),
		Ghost:       ghost,
	}
}

// clone returns a deep copy safe to hand to a reader outside the shard lock.
func (v *Vertex) clone() Vertex {
	coords := make([]float64, len(v.Coordinates))
	copy(coords, v.Coordinates)
	incident := make(map[SimplexID]struct{}, len(v.Incident))
	for id := range v.Incident {
		incident[id] = struct{}{}
	}
	return Vertex{Coordinates: coords, Incident: incident, Ghost: v.Ghost}
}

// Simplex holds the M=N+1 corners of a triangle/tetrahedron, its
// circumsphere, and its neighbor list (spec.md S3).
type Simplex struct {
	Vertices  []VertexID
	Center    []float64
	Radius    float64
	Neighbors []SimplexID
	Ghost     bool
}

func (s *Simplex) clone() Simplex {
	vertices := make([]VertexID, len(s.Vertices))
	copy(vertices, s.Vertices)
	center := make([]float64, len(s.Center))
	copy(center, s.Center)
	neighbors := make([]SimplexID, len(s.Neighbors))
	copy(neighbors, s.Neighbors)
	return Simplex{Vertices: vertices, Center: center, Radius: s.Radius, Neighbors: neighbors, Ghost: s.Ghost}
}

// HasVertex reports whether v is one of the simplex's corners.
func (s *Simplex) HasVertex(v VertexID) bool {
	for _, c := range s.Vertices {
		if c == v {
			return true
		}
	}
	return false
}

// SharedVertexCount returns how many corners s and other have in common.
func (s *Simplex) SharedVertexCount(other *Simplex) int {
	count := 0
	for _, v := range s.Vertices {
		if other.HasVertex(v) {
			count++
		}
	}
	return count
}
