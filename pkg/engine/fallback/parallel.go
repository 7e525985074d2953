package fallback

import "golang.org/x/sync/errgroup"

// minItemsPerWorker keeps tiny kernels on the calling goroutine, where the
// cost of spawning workers would dominate.
const minItemsPerWorker = 64

// parallelFor calls fn over contiguous chunks covering [0, n).
// Chunks never overlap, so fn may write to per-item state without locking.
func parallelFor(n, parallelism int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := min(parallelism, (n+minItemsPerWorker-1)/minItemsPerWorker)
	if workers < 2 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	_ = g.Wait()
}
