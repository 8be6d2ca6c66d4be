// SPDX-License-Identifier: AGPL-3.0-or-later

// Package genpoints generates synthetic point sets for exercising and
// benchmarking the triangulation engine: a uniform distribution and a
// Perlin-displaced lattice, the same two shapes server/util.go's randPool
// and server/terrain/noise.Generator produce for gameplay randomness and
// terrain heightmaps respectively, repurposed here as geometry fixtures.
package genpoints

import (
	"math/rand"

	"github.com/aquilax/go-perlin"
)

// Uniform returns n independent points of the given dimension (2 or 3),
// each coordinate drawn uniformly from [0, 1), seeded deterministically so
// a run can be reproduced -- mirroring server/util.go's per-goroutine
// rand.Rand pooling, without the pool itself since point generation is a
// one-shot, not a per-tick hot path.
func Uniform(n, dim int, seed int64) [][]float64 {
	r := rand.New(rand.NewSource(seed))
	points := make([][]float64, n)
	for i := range points {
		p := make([]float64, dim)
		for k := range p {
			p[k] = r.Float64()
		}
		points[i] = p
	}
	return points
}

// PerlinCluster returns n points arranged on a jittered lattice and
// displaced by Perlin noise, producing the kind of clustered, non-uniform
// density that stresses the scheduler's conflict-set sizing more than a
// uniform fill does. Grounded on server/terrain/noise.Generator's use of
// aquilax/go-perlin: one octave count (4) and persistence (2.0) borrowed
// directly from its landHi generator, generalized here to 2 or 3
// dimensions via Noise2D/Noise3D.
func PerlinCluster(n, dim int, seed int64) [][]float64 {
	const (
		alpha       = 2.0
		beta        = 2.0
		octaves     = int32(4)
		frequency   = 0.37
		displaceAmt = 0.15
	)

	p := perlin.NewPerlin(alpha, beta, octaves, seed)
	r := rand.New(rand.NewSource(seed + 1))

	side := latticeSide(n, dim)
	points := make([][]float64, 0, n)

	switch dim {
	case 2:
		for i := 0; i < side && len(points) < n; i++ {
			for j := 0; j < side && len(points) < n; j++ {
				x := float64(i) / float64(side)
				y := float64(j) / float64(side)
				dx := p.Noise2D(x*frequency, y*frequency) * displaceAmt
				dy := p.Noise2D((x+7.3)*frequency, (y+7.3)*frequency) * displaceAmt
				jitterX := (r.Float64() - 0.5) / float64(side)
				jitterY := (r.Float64() - 0.5) / float64(side)
				points = append(points, []float64{x + dx + jitterX, y + dy + jitterY})
			}
		}
	case 3:
		for i := 0; i < side && len(points) < n; i++ {
			for j := 0; j < side && len(points) < n; j++ {
				for k := 0; k < side && len(points) < n; k++ {
					x := float64(i) / float64(side)
					y := float64(j) / float64(side)
					z := float64(k) / float64(side)
					dx := p.Noise3D(x*frequency, y*frequency, z*frequency) * displaceAmt
					dy := p.Noise3D((x+7.3)*frequency, (y+7.3)*frequency, (z+7.3)*frequency) * displaceAmt
					dz := p.Noise3D((x+13.1)*frequency, (y+13.1)*frequency, (z+13.1)*frequency) * displaceAmt
					jitter := (r.Float64() - 0.5) / float64(side)
					points = append(points, []float64{x + dx + jitter, y + dy + jitter, z + dz + jitter})
				}
			}
		}
	default:
		panic("genpoints: dim must be 2 or 3")
	}

	return points
}

// latticeSide returns the smallest grid side length whose dim-th power
// covers at least n points.
func latticeSide(n, dim int) int {
	side := 1
	for pow(side, dim) < n {
		side++
	}
	return side
}

func pow(base, exp int) int {
	r := 1
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}
