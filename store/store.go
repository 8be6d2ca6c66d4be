// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

type vertexShard struct {
	mu      sync.RWMutex
	entries map[VertexID]*Vertex
}

type simplexShard struct {
	mu      sync.RWMutex
	entries map[SimplexID]*Simplex
}

// Store is the concurrent-read/disjoint-write triangulation table pair
// (spec.md S4.3). Shards are chosen by identifier, not position: unlike
// the teacher's server/world/sector.World (which shards entities by
// spatial sector because its reader/writer discipline is "whole-sector at
// a time"), this store's writers are handed disjoint *identifier ranges*
// by the scheduler (spec.md S4.5), so sharding by id is what actually
// lines up with the concurrency contract.
type Store struct {
	vertexShards  []vertexShard
	simplexShards []simplexShard
	vertexMask    uint32
	simplexMask   uint64

	vertexCount  int64
	simplexCount int64

	parallel int32 // atomic bool set by SetParallel; no store operation reads it
}

// ErrMissingKey panics are raised through this sentinel message when a
// caller dereferences an id the algorithm should never have produced
// once invariant I5 (spec.md S3) holds -- a broken invariant, not a
// recoverable condition (spec.md S7, IntegrityError).
type ErrMissingKey struct {
	Kind string
	ID   uint64
}

func (e ErrMissingKey) Error() string {
	return fmt.Sprintf("store: missing %s id %d", e.Kind, e.ID)
}

// New creates an empty Store sharded across runtime.NumCPU() (rounded up
// to a power of two) shards per table.
func New() *Store {
	shardCount := nextPow2(runtime.NumCPU())

	vs := make([]vertexShard, shardCount)
	ss := make([]simplexShard, shardCount)
	for i := range vs {
		vs[i].entries = make(map[VertexID]*Vertex)
	}
	for i := range ss {
		ss[i].entries = make(map[SimplexID]*Simplex)
	}

	return &Store{
		vertexShards:  vs,
		simplexShards: ss,
		vertexMask:    uint32(shardCount - 1),
		simplexMask:   uint64(shardCount - 1),
	}
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (s *Store) vShard(id VertexID) *vertexShard {
	return &s.vertexShards[uint32(id)&s.vertexMask]
}

func (s *Store) sShard(id SimplexID) *simplexShard {
	return &s.simplexShards[uint64(id)&s.simplexMask]
}

// SetParallel records whether the store is executing a wave's parallel
// compute phase and always returns true. The flag is not checked by any
// store operation -- shard locks are always taken regardless -- so it
// asserts nothing and is not a correctness mechanism.
func (s *Store) SetParallel(parallel bool) bool {
	if parallel {
		atomic.StoreInt32(&s.parallel, 1)
	} else {
		atomic.StoreInt32(&s.parallel, 0)
	}
	return true
}

// GetVertex returns a deep copy of the vertex for id. It panics if id is
// absent: the algorithm never dereferences a stale id once I5 holds, so an
// absent key is an integrity violation (spec.md S7).
func (s *Store) GetVertex(id VertexID) Vertex {
	shard := s.vShard(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.entries[id]
	if !ok {
		panic(ErrMissingKey{Kind: "vertex", ID: uint64(id)})
	}
	return v.clone()
}

// GetSimplex returns a deep copy of the simplex for id. Panics if absent.
func (s *Store) GetSimplex(id SimplexID) Simplex {
	shard := s.sShard(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	simplex, ok := shard.entries[id]
	if !ok {
		panic(ErrMissingKey{Kind: "simplex", ID: uint64(id)})
	}
	return simplex.clone()
}

// InsertVertex adds a fresh vertex under id. The caller owns id uniqueness.
func (s *Store) InsertVertex(id VertexID, coordinates []float64, ghost bool) {
	shard := s.vShard(id)
	shard.mu.Lock()
	shard.entries[id] = newVertex(coordinates, ghost)
	shard.mu.Unlock()
	atomic.AddInt64(&s.vertexCount, 1)
}

// UpdateVertex runs mutator against the live vertex for id under the
// shard's write lock, mirroring sector.World.EntityByID's
// callback-under-lock shape.
func (s *Store) UpdateVertex(id VertexID, mutator func(*Vertex)) {
	shard := s.vShard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	v, ok := shard.entries[id]
	if !ok {
		panic(ErrMissingKey{Kind: "vertex", ID: uint64(id)})
	}
	mutator(v)
}

// InsertSimplex adds a fresh simplex under id. The caller owns id
// uniqueness (the scheduler's prefix-sum id ranges, spec.md S4.5).
func (s *Store) InsertSimplex(id SimplexID, simplex Simplex) {
	shard := s.sShard(id)
	shard.mu.Lock()
	shard.entries[id] = &simplex
	shard.mu.Unlock()
	atomic.AddInt64(&s.simplexCount, 1)
}

// UpdateSimplex runs mutator against the live simplex for id under the
// shard's write lock.
func (s *Store) UpdateSimplex(id SimplexID, mutator func(*Simplex)) {
	shard := s.sShard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	simplex, ok := shard.entries[id]
	if !ok {
		panic(ErrMissingKey{Kind: "simplex", ID: uint64(id)})
	}
	mutator(simplex)
}

// RemoveSimplex deletes a killed simplex. Callers must have already
// stripped id from every corner's Incident set (invariant I5, spec.md S3)
// before calling this.
func (s *Store) RemoveSimplex(id SimplexID) {
	shard := s.sShard(id)
	shard.mu.Lock()
	_, ok := shard.entries[id]
	delete(shard.entries, id)
	shard.mu.Unlock()
	if ok {
		atomic.AddInt64(&s.simplexCount, -1)
	}
}

// VertexCount returns the number of live vertices.
func (s *Store) VertexCount() int {
	return int(atomic.LoadInt64(&s.vertexCount))
}

// SimplexCount returns the number of live simplices.
func (s *Store) SimplexCount() int {
	return int(atomic.LoadInt64(&s.simplexCount))
}

// ForEachSimplex calls f for every live simplex id. f must not mutate the
// store; this is a read-only snapshot walk used by CheckDelaunay and
// diagnostics.
func (s *Store) ForEachSimplex(f func(id SimplexID, simplex Simplex)) {
	for i := range s.simplexShards {
		shard := &s.simplexShards[i]
		shard.mu.RLock()
		for id, simplex := range shard.entries {
			f(id, simplex.clone())
		}
		shard.mu.RUnlock()
	}
}

// ForEachVertex calls f for every live vertex id.
func (s *Store) ForEachVertex(f func(id VertexID, v Vertex)) {
	for i := range s.vertexShards {
		shard := &s.vertexShards[i]
		shard.mu.RLock()
		for id, v := range shard.entries {
			f(id, v.clone())
		}
		shard.mu.RUnlock()
	}
}
