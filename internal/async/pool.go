// Package async provides a bounded worker pool for operations that must run
// off the request-handling goroutine.
package async

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the backlog is full; tasks are rejected
	// rather than queued indefinitely.
	ErrQueueFull = errors.New("async: task queue is full")
	// ErrStopped is returned when submitting to a stopped pool.
	ErrStopped = errors.New("async: pool is stopped")
)

// Task is a unit of background work. Once submitted it runs to completion or
// times out; there is no cancellation hook.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of workers fed from a bounded queue.
type Pool struct {
	tasks       chan Task
	taskTimeout time.Duration
	wg          sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewPool starts workers goroutines draining a queue of queueSize slots.
// Each task gets taskTimeout before its context expires.
func NewPool(workers, queueSize int, taskTimeout time.Duration) *Pool {
	p := &Pool{
		tasks:       make(chan Task, queueSize),
		taskTimeout: taskTimeout,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	log.Printf("async pool started workers=%d queue=%d", workers, queueSize)
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
		task(ctx)
		cancel()
	}
}

// Submit enqueues a task without blocking. A full queue rejects the task.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains queued tasks and waits for the workers to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
