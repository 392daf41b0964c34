// Package concurrent holds small bounded-concurrency helpers.
package concurrent

import (
	"context"
	"sync"
)

// DefaultConcurrency is used when a non-positive limit is given.
const DefaultConcurrency = 10

// WorkerPool bounds how many callers run a section at once.
type WorkerPool struct {
	maxWorkers int
	sem        chan struct{}
}

// NewWorkerPool creates a new worker pool with the specified max workers
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultConcurrency
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
	}
}

// Size returns the configured worker limit.
func (wp *WorkerPool) Size() int { return wp.maxWorkers }

// InFlight returns the number of slots currently held.
func (wp *WorkerPool) InFlight() int { return len(wp.sem) }

// Do runs fn once a slot is free, or returns ctx.Err() if ctx ends first.
func (wp *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn()
	}
}

// ParallelMap applies fn to every item with at most maxConcurrency calls in
// flight. Results keep the order of items. Items not started before ctx ends
// get their zero value, and the first error in item order is returned.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), maxConcurrency int) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}

	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)

	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
				results[idx], errs[idx] = fn(ctx, val)
			}
		}(i, item)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}

	return results, nil
}
