// SPDX-License-Identifier: AGPL-3.0-or-later

// Package spatial implements the nearest-site lookup the Bowyer-Watson
// kernel uses to seed a cavity (spec.md S4.2): a k-d tree over
// N-dimensional float64 coordinates. The tree is not rebalanced, so its
// shape depends on insertion order. Deletion is never required -- sites
// are only ever added, matching the engine's no-deletion scope.
package spatial

// VertexID mirrors store.VertexID without importing it, so spatial has no
// dependency on the triangulation store; the driver wires the two
// together.
type VertexID uint32

type kdNode struct {
	id          VertexID
	point       []float64
	left, right *kdNode
}

// Index is a k-d tree supporting insertion and nearest-neighbor lookup;
// insertion never rebalances it. It is not safe for concurrent writes or for a write concurrent
// with a read; the driver inserts every wave member's vertex in a single
// serial pass before that wave's parallel apply phase starts touching
// anything else, so no goroutine ever calls Insert or Nearest while
// another goroutine is inside Insert (spec.md S4.2, S5).
type Index struct {
	dim  int
	root *kdNode
	size int
}

// New creates an empty index over dim-dimensional points.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// Len returns the number of points in the index.
func (idx *Index) Len() int {
	return idx.size
}

// Insert adds a point under the given id. The caller owns id uniqueness;
// the index does not check for duplicates.
func (idx *Index) Insert(id VertexID, point []float64) {
	idx.root = insert(idx.root, &kdNode{id: id, point: point}, 0, idx.dim)
	idx.size++
}

func insert(node, leaf *kdNode, depth, dim int) *kdNode {
	if node == nil {
		return leaf
	}
	axis := depth % dim
	if leaf.point[axis] < node.point[axis] {
		node.left = insert(node.left, leaf, depth+1, dim)
	} else {
		node.right = insert(node.right, leaf, depth+1, dim)
	}
	return node
}

// Nearest returns the id of the point closest to query (by squared
// Euclidean distance), or false if the index is empty.
func (idx *Index) Nearest(query []float64) (VertexID, bool) {
	if idx.root == nil {
		return 0, false
	}
	best := idx.root
	bestDist := sqDist(query, idx.root.point)
	nearest(idx.root, query, 0, idx.dim, &best, &bestDist)
	return best.id, true
}

func nearest(node *kdNode, query []float64, depth, dim int, best **kdNode, bestDist *float64) {
	if node == nil {
		return
	}

	if d := sqDist(query, node.point); d < *bestDist {
		*bestDist = d
		*best = node
	}

	axis := depth % dim
	diff := query[axis] - node.point[axis]

	near, far := node.left, node.right
	if diff > 0 {
		near, far = node.right, node.left
	}

	nearest(near, query, depth+1, dim, best, bestDist)

	// Only descend into the far subtree if it could still contain a closer
	// point than the best found so far -- the defining k-d tree pruning step.
	if diff*diff < *bestDist {
		nearest(far, query, depth+1, dim, best, bestDist)
	}
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for k := range a {
		d := a[k] - b[k]
		s += d * d
	}
	return s
}
