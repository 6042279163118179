package pipeline

import (
	"context"
	"sync"
)

// RunPool executes fn over items using up to workers goroutines, the same
// index-channel shape as this codebase's evaluation worker pool: an
// indexed job channel feeding a fixed goroutine count, an indexed result
// channel collected back into input order. The Orchestrator's phases call
// RunPoolCtx instead: Phase 2 (indicators) and Phase 4 (ratios/scores) run
// their per-ticker work through it, while price refresh, fundamentals,
// backfill and the delisting sweep process their worklists sequentially.
func RunPool[T any, R any](workers int, items []T, fn func(T) R) []R {
	n := len(items)
	if n == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 5
	}
	if n < workers {
		workers = n
	}

	jobs := make(chan poolJob[T], n)
	results := make(chan poolResult[R], n)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- poolResult[R]{index: job.index, value: fn(job.value)}
			}
		}()
	}

	for idx, item := range items {
		jobs <- poolJob[T]{index: idx, value: item}
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]R, n)
	for r := range results {
		out[r.index] = r.value
	}
	return out
}

type poolJob[T any] struct {
	index int
	value T
}

type poolResult[R any] struct {
	index int
	value R
}

// RunPoolCtx is RunPool's cancellable sibling: it stops dispatching new jobs
// once ctx is done (the global deadline, per §5's drain-in-place
// cancellation) or once isDeferred reports that a completed result hit the
// per-phase backpressure threshold, returning the results produced before
// that point and the items that were never dispatched, so the caller can
// log them as deferred for the next run. isDeferred may be nil, in which
// case the pool only stops early on ctx.
func RunPoolCtx[T any, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R, isDeferred func(R) bool) (results []R, deferred []T) {
	n := len(items)
	if n == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 5
	}
	if n < workers {
		workers = n
	}

	stopCtx, stop := context.WithCancel(ctx)
	defer stop()

	jobs := make(chan poolJob[T], workers)
	out := make(chan poolResult[R], n)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				r := fn(stopCtx, job.value)
				out <- poolResult[R]{index: job.index, value: r}
				// A deferral marks the phase as ending early: stop feeding
				// the remaining queue to workers, per §5's backpressure
				// rule, rather than let every worker individually stall.
				if isDeferred != nil && isDeferred(r) {
					stop()
				}
			}
		}()
	}

	dispatched := make([]bool, n)
dispatchLoop:
	for idx, item := range items {
		select {
		case <-stopCtx.Done():
			break dispatchLoop
		case jobs <- poolJob[T]{index: idx, value: item}:
			dispatched[idx] = true
		}
	}
	close(jobs)

	wg.Wait()
	close(out)

	results = make([]R, n)
	produced := make([]bool, n)
	for r := range out {
		results[r.index] = r.value
		produced[r.index] = true
	}

	var finalResults []R
	for i, item := range items {
		if produced[i] {
			finalResults = append(finalResults, results[i])
		} else {
			deferred = append(deferred, item)
		}
	}
	return finalResults, deferred
}
