// Package pool provides bounded-concurrency task scheduling with
// order-preserving result collection and optional fail-fast short-circuiting.
package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"chainwork/core"
)

// MapConcurrent runs fn over items with at most limit concurrent calls.
// result[i] always corresponds to items[i] regardless of completion order;
// start order follows item order up to the concurrency cap. The first error
// returned by fn cancels nothing but is propagated after all calls finish.
func MapConcurrent[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	if limit <= 0 {
		limit = 1
	}
	results := make([]R, len(items))
	sem := semaphore.NewWeighted(int64(limit))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			errOnce.Do(func() { firstErr = err })
			break
		}
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer sem.Release(1)
			r, err := fn(ctx, item)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			results[i] = r
		}(i, item)
	}
	wg.Wait()
	return results, firstErr
}

// Task produces one TaskResult. Failures of the task itself are reported via
// the result's exit code; a returned error means the execution machinery
// broke and is propagated to the caller of RunTasks.
type Task func(ctx context.Context) (*core.TaskResult, error)

// Skipper supplies the synthetic result for a task that fail-fast scheduling
// decided not to start.
type Skipper func(index int) *core.TaskResult

// RunTasks executes tasks with at most limit in flight. With failFast set,
// a task failure lets in-flight siblings finish but replaces every
// not-yet-started task with the Skipper's synthetic result (exit code -1)
// instead of launching it.
func RunTasks(ctx context.Context, tasks []Task, limit int, failFast bool, skip Skipper) ([]*core.TaskResult, error) {
	if limit <= 0 {
		limit = 1
	}
	results := make([]*core.TaskResult, len(tasks))
	sem := semaphore.NewWeighted(int64(limit))

	var (
		wg       sync.WaitGroup
		failed   atomic.Bool
		errOnce  sync.Once
		firstErr error
	)
	for i, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			errOnce.Do(func() { firstErr = err })
			break
		}
		// The fail-fast check happens after acquiring a slot so start order
		// stays deterministic and a failure observed here is definitive for
		// every later index.
		if failFast && failed.Load() {
			results[i] = skip(i)
			sem.Release(1)
			continue
		}
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			defer sem.Release(1)
			res, err := task(ctx)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				failed.Store(true)
				return
			}
			results[i] = res
			if res.Failed() {
				failed.Store(true)
			}
		}(i, task)
	}
	wg.Wait()
	return results, firstErr
}
