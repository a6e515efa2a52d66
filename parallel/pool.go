package parallel

import (
	"runtime"
	"sync"
)

type (
	WorkerFunc func(func())
	CancelFunc func()
)

// Pool runs closures on a fixed set of goroutines. It can be reused for any
// number of Split calls until Close. A pool of one worker runs everything
// inline on the caller's goroutine.
type Pool struct {
	wg    sync.WaitGroup
	size  int
	Do    WorkerFunc
	Close CancelFunc
}

func Start(numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	pool := &Pool{
		size: numWorkers,
		Do: func(f func()) {
			f()
		},
		Close: func() {},
	}

	if numWorkers > 1 {
		workChan := make(chan func(), numWorkers)

		for range numWorkers {
			pool.wg.Go(func() {
				for f := range workChan {
					f()
				}
			})
		}

		pool.Do = func(f func()) {
			workChan <- f
		}

		pool.Close = sync.OnceFunc(func() {
			close(workChan)
			pool.wg.Wait()
		})
	}

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Split partitions [0, n) into contiguous bands, runs f on each band from the
// pool and waits for all of them. Bands never overlap. Split must not be
// called from inside a pool task.
func (p *Pool) Split(n int, f func(lo, hi int)) {
	if n <= 0 {
		return
	}

	bands := min(n, p.size*4)
	if bands <= 1 || p.size <= 1 {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	step := (n + bands - 1) / bands
	for lo := 0; lo < n; lo += step {
		hi := min(lo+step, n)
		wg.Add(1)
		p.Do(func() {
			defer wg.Done()
			f(lo, hi)
		})
	}
	wg.Wait()
}
