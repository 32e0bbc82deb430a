package stage

import (
	"context"
	"sync"
)

// runIndexedParallel executes fn for indices [0,n) on at most workers
// goroutines and returns all results in completion order. Once ctx is done no
// further index is handed out; indices already running finish normally.
func runIndexedParallel[T any](ctx context.Context, n, workers int, fn func(int) T) []T {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	jobs := make(chan int)
	results := make(chan T)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range jobs {
			results <- fn(idx)
		}
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go worker()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]T, 0, n)
	for r := range results {
		out = append(out, r)
	}
	return out
}
