// SPDX-License-Identifier: AGPL-3.0-or-later

// Command delaunaydemo builds a Delaunay triangulation over a synthetic
// point set and reports its shape and Delaunay validity, mirroring
// server_main/main.go's flag-parse-then-log style.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/kestrelgo/delaunay"
	"github.com/kestrelgo/delaunay/internal/genpoints"
)

func main() {
	var (
		n        int
		dim      int
		seed     int64
		distr    string
		verify   bool
		batchLen int
	)

	flag.IntVar(&n, "n", 1000, "number of points to insert")
	flag.IntVar(&dim, "dim", 2, "dimension: 2 or 3")
	flag.Int64Var(&seed, "seed", 1, "random seed")
	flag.StringVar(&distr, "distribution", "uniform", "point distribution: uniform or perlin")
	flag.BoolVar(&verify, "verify", true, "run CheckDelaunay after construction")
	flag.IntVar(&batchLen, "batch", 0, "insert points in batches of this size instead of all at once (0 disables batching)")
	flag.Parse()

	if dim != 2 && dim != 3 {
		log.Fatalf("invalid argument dim: %d (must be 2 or 3)", dim)
	}
	if n < 0 {
		log.Fatal("invalid argument n: ", n)
	}

	var points [][]float64
	switch distr {
	case "uniform":
		points = genpoints.Uniform(n, dim, seed)
	case "perlin":
		points = genpoints.PerlinCluster(n, dim, seed)
	default:
		log.Fatalf("invalid argument distribution: %q (must be uniform or perlin)", distr)
	}

	log.Printf("generated %d points (dim=%d, distribution=%s, seed=%d)", len(points), dim, distr, seed)

	start := time.Now()
	tri, err := build(dim, points, batchLen)
	if err != nil {
		log.Fatalf("construction failed: %v", err)
	}
	elapsed := time.Since(start)

	log.Printf("built triangulation in %s: %d vertices, %d simplices", elapsed, tri.VertexCount(), tri.SimplexCount())

	if verify {
		ok, bad := tri.CheckDelaunay()
		if ok {
			log.Println("CheckDelaunay: ok")
		} else {
			log.Fatalf("CheckDelaunay: violation -- vertex %d lies inside simplex %d's circumsphere", bad.Vertex, bad.Simplex)
		}
	}
}

// build constructs the triangulation, either in one shot or in fixed-size
// batches (exercising AddPoints against an already-live triangulation, not
// just the constructors' own initial-batch insert).
func build(dim int, points [][]float64, batchLen int) (*delaunay.Triangulation, error) {
	if batchLen <= 0 || batchLen >= len(points) {
		return newTriangulation(dim, points)
	}

	first := points[:batchLen]
	rest := points[batchLen:]

	tri, err := newTriangulation(dim, first)
	if err != nil {
		return nil, err
	}
	for start := 0; start < len(rest); start += batchLen {
		end := start + batchLen
		if end > len(rest) {
			end = len(rest)
		}
		if err := tri.AddPoints(rest[start:end]); err != nil {
			return nil, err
		}
	}
	return tri, nil
}

func newTriangulation(dim int, points [][]float64) (*delaunay.Triangulation, error) {
	if dim == 2 {
		pts := make([][2]float64, len(points))
		for i, p := range points {
			pts[i] = [2]float64{p[0], p[1]}
		}
		return delaunay.New2D(pts)
	}
	pts := make([][3]float64, len(points))
	for i, p := range points {
		pts[i] = [3]float64{p[0], p[1], p[2]}
	}
	return delaunay.New3D(pts)
}
