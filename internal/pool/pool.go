// Package pool runs a fixed number of workers over a shared task queue and
// collects the successful results.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/metrics"
	"github.com/JakeFAU/affiche/internal/queue/memory"
)

// DefaultWorkers is used when a Pool is built with a non-positive worker count.
const DefaultWorkers = 4

// Pool bounds the concurrency of a fan-out stage.
type Pool struct {
	workers int
	logger  *zap.Logger
}

// New creates a Pool.
func New(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{workers: workers, logger: logger.Named("pool")}
}

// Workers reports the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Run applies fn to every task and returns the results of the calls that succeeded,
// in completion order. Failed or panicking calls are logged and dropped.
// Run returns only after every task has been processed. When ctx ends early the
// result is partial; callers check ctx.Err() before trusting it.
func Run[T, R any](ctx context.Context, p *Pool, tasks []T, fn func(context.Context, T) (R, error)) []R {
	if len(tasks) == 0 {
		return nil
	}
	if p == nil {
		p = New(DefaultWorkers, nil)
	}

	// Capacity equals len(tasks), so enqueueing never blocks. Cancellation is left to the
	// workers so every task is queued whatever the state of ctx.
	q := memory.NewQueue[T](len(tasks))
	enqueueCtx := context.WithoutCancel(ctx)
	for _, task := range tasks {
		if err := q.Enqueue(enqueueCtx, task); err != nil {
			p.logger.Warn("enqueue failed", zap.Error(err))
			break
		}
	}
	q.Close()

	workers := min(p.workers, len(tasks))
	var (
		mu      sync.Mutex
		results = make([]R, 0, len(tasks))
		wg      sync.WaitGroup
	)
	for id := range workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()

			logger := p.logger.With(zap.Int("worker_id", id))
			for {
				task, err := q.Dequeue(ctx)
				if err != nil {
					if !errors.Is(err, memory.ErrClosed) {
						logger.Debug("worker stopping", zap.Error(err))
					}
					return
				}
				value, err := call(ctx, fn, task)
				if err != nil {
					outcome := "dropped"
					if errors.Is(err, errPanic) {
						outcome = "panic"
					}
					metrics.ObservePoolTask(outcome)
					logger.Warn("task dropped", zap.Error(err))
					continue
				}
				metrics.ObservePoolTask("ok")
				mu.Lock()
				results = append(results, value)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return results
}

var errPanic = errors.New("task panicked")

func call[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), task T) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return fn(ctx, task)
}
