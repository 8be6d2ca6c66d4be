// SPDX-License-Identifier: AGPL-3.0-or-later

// Package geom implements the floating-point geometric predicates the
// Bowyer-Watson kernel depends on: the circumsphere of M=N+1 points,
// the strict point-in-sphere test, and a cheap bounding sphere used once
// at bootstrap. Predicates are not exact (no adaptive precision, no
// symbolic perturbation) -- near-degenerate corners produce an
// ill-conditioned solve rather than a detected error.
package geom

import (
	"errors"
	"math"
)

// ErrDegenerate is returned by Circumsphere when the M corners are
// co-hyperplanar (or numerically indistinguishable from it), so the
// defining linear system has no unique solution.
var ErrDegenerate = errors.New("geom: degenerate simplex (coplanar/collinear corners)")

// Circumsphere solves for the center and radius of the unique (N-1)-sphere
// passing through the M=N+1 points given, each of length N. It builds the
// system from pairwise squared-distance-equality constraints
//
//	|x - c|^2 = |p_i - c|^2 = |p_j - c|^2
//
// which linearizes to 2*(p_i - p_j)*c = |p_i|^2 - |p_j|^2, giving a square
// N x N system in the unknown center c (using point 0 as the pivot row
// partner for every other point). The system is solved by Gaussian
// elimination with partial pivoting; a singular pivot reports
// ErrDegenerate.
func Circumsphere(points [][]float64) (center []float64, radius float64, err error) {
	m := len(points)
	if m < 2 {
		return nil, 0, errors.New("geom: circumsphere needs at least 2 points")
	}
	n := len(points[0])
	if m != n+1 {
		return nil, 0, errors.New("geom: circumsphere needs M=N+1 points")
	}

	// Build the N x (N+1) augmented matrix for 2*(p_i - p_0)*c = |p_i|^2 - |p_0|^2
	a := make([][]float64, n)
	p0 := points[0]
	sq0 := sqNorm(p0)
	for row := 0; row < n; row++ {
		pi := points[row+1]
		line := make([]float64, n+1)
		for k := 0; k < n; k++ {
			line[k] = 2 * (pi[k] - p0[k])
		}
		line[n] = sqNorm(pi) - sq0
		a[row] = line
	}

	center, err = solveLinear(a, n)
	if err != nil {
		return nil, 0, err
	}

	radius = math.Sqrt(sqDist(center, p0))
	return center, radius, nil
}

// InSphere reports whether p lies strictly inside the sphere of the given
// center and radius. Strict inequality is what keeps a simplex's own
// corners (which lie exactly on its circumsphere, modulo floating-point
// slop) from being reported as conflicting with it, and what keeps
// zero-radius ghost spheres permanently inert. The distance is compared
// with radius directly rather than its square with radius*radius, because
// re-squaring the rounded square root can exceed a corner's own squared
// distance by one ulp and report that corner as inside.
func InSphere(p, center []float64, radius float64) bool {
	return math.Sqrt(sqDist(p, center)) < radius
}

// BoundingSphere returns a sphere enclosing every point given. It is not
// minimal: Ritter's algorithm (two passes to find a good enough starting
// pair, one pass to grow the radius) gives an adequate, cheap bound for
// one-time use at bootstrap.
func BoundingSphere(points [][]float64) (center []float64, radius float64) {
	if len(points) == 0 {
		return nil, 0
	}
	n := len(points[0])

	// Pass 1: pick an arbitrary point x, find the point y farthest from x.
	x := points[0]
	y := farthest(points, x)
	// Pass 2: find the point z farthest from y; {y, z} approximates the diameter.
	z := farthest(points, y)

	center = make([]float64, n)
	for k := range center {
		center[k] = (y[k] + z[k]) / 2
	}
	radius = math.Sqrt(sqDist(y, z)) / 2

	// Pass 3: grow the sphere to cover every point.
	for _, p := range points {
		d := math.Sqrt(sqDist(p, center))
		if d > radius {
			grow := (d - radius) / 2
			radius += grow
			scale := grow / d
			for k := range center {
				center[k] += (p[k] - center[k]) * scale
			}
		}
	}
	return center, radius
}

func farthest(points [][]float64, from []float64) []float64 {
	best := points[0]
	bestD := sqDist(points[0], from)
	for _, p := range points[1:] {
		if d := sqDist(p, from); d > bestD {
			bestD = d
			best = p
		}
	}
	return best
}

func sqNorm(p []float64) float64 {
	s := 0.0
	for _, v := range p {
		s += v * v
	}
	return s
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for k := range a {
		d := a[k] - b[k]
		s += d * d
	}
	return s
}

// solveLinear solves the n x n system encoded in the augmented matrix a
// (each row has n+1 entries, the last being the RHS) via Gaussian
// elimination with partial pivoting.
func solveLinear(a [][]float64, n int) ([]float64, error) {
	const pivotEps = 1e-12

	for col := 0; col < n; col++ {
		// Partial pivot: find the largest-magnitude entry in this column at or below the diagonal.
		pivotRow := col
		pivotVal := math.Abs(a[col][col])
		for row := col + 1; row < n; row++ {
			if v := math.Abs(a[row][col]); v > pivotVal {
				pivotVal = v
				pivotRow = row
			}
		}
		if pivotVal < pivotEps {
			return nil, ErrDegenerate
		}
		a[col], a[pivotRow] = a[pivotRow], a[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for k := col; k <= n; k++ {
				a[row][k] -= factor * a[col][k]
			}
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := a[row][n]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}
