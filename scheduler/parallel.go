// SPDX-License-Identifier: AGPL-3.0-or-later

package scheduler

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// chunkSize mirrors for_entities.go's sectorsPerAdd: claiming a small
// batch of work per atomic increment amortizes contention on the shared
// counter without starving other workers of a turn.
const chunkSize = 8

// RunParallel runs work(i) for every i in [0, n) using up to
// runtime.NumCPU() goroutines, each claiming a chunk of indices at a time
// via atomic.AddInt64 -- the same work-stealing shape
// server/world/sector/for_entities.go's forEntitiesParallel uses to drain
// disjoint sectors. It blocks until every index has been processed.
func RunParallel(n int, work func(i int)) {
	if n <= 0 {
		return
	}
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			work(i)
		}
		return
	}

	var cursor int64
	var wg sync.WaitGroup
	wg.Add(workers)

	for c := 0; c < workers; c++ {
		go func() {
			defer wg.Done()
			for {
				end := int(atomic.AddInt64(&cursor, chunkSize))
				start := end - chunkSize
				if start < 0 {
					start = 0
				}
				if start >= n {
					return
				}
				if end > n {
					end = n
				}
				for i := start; i < end; i++ {
					work(i)
				}
			}
		}()
	}
	wg.Wait()
}
