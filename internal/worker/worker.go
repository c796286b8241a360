package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Job interface{}

type ProcessFunc func(ctx context.Context, job Job) error

// WorkerPool runs a fixed number of goroutines over a buffered job channel.
// Stop lets in-flight jobs finish; jobs still buffered after ctx is
// cancelled are abandoned.
type WorkerPool struct {
	name       string
	numWorkers int
	jobs       chan Job
	processor  ProcessFunc
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	done    <-chan struct{}
}

func NewWorkerPool(name string, numWorkers int, bufferSize int, processor ProcessFunc) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		name:       name,
		numWorkers: numWorkers,
		jobs:       make(chan Job, bufferSize),
		processor:  processor,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	wp.done = ctx.Done()
	wp.mu.Unlock()

	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			wp.run(ctx, id, job)
		}
	}
}

// run keeps a panicking job from taking its worker down with it.
func (wp *WorkerPool) run(ctx context.Context, id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker job panicked", "pool", wp.name, "worker", id, "panic", r)
		}
	}()
	if err := wp.processor(ctx, job); err != nil {
		slog.Debug("worker job failed", "pool", wp.name, "worker", id, "error", err)
	}
}

// Submit blocks until buffer space is free or the pool's context is done.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}
	select {
	case wp.jobs <- job:
		return nil
	case <-wp.done:
		return ErrPoolStopped
	}
}

// TrySubmit never blocks. It reports false when the buffer is full or the
// pool has been stopped.
func (wp *WorkerPool) TrySubmit(job Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}
	select {
	case wp.jobs <- job:
		return true
	default:
		return false
	}
}

func (wp *WorkerPool) Pending() int {
	return len(wp.jobs)
}

func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
}
