package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of background work. The context is cancelled when the pool
// is forced to stop.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed number of goroutines. Submit never
// blocks: when the queue is full the task is dropped and logged.
type Pool struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan Task
	group  errgroup.Group

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

// NewPool starts a pool with the given number of workers and queue capacity
func NewPool(name string, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan Task, queueSize),
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.work)
	}
	return p
}

// work drains the queue. A panicking task does not stop the worker; the
// first panic is reported by Close.
func (p *Pool) work() error {
	var first error
	for task := range p.tasks {
		if err := p.run(task); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *Pool) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker pool %s: task panicked: %v", p.name, r)
			err = fmt.Errorf("worker pool %s: task panicked: %v", p.name, r)
		}
	}()
	task(p.ctx)
	return nil
}

// Submit queues task. It returns false if the pool is closed or full.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		p.dropped.Add(1)
		log.Printf("Worker pool %s: queue full, dropping task", p.name)
		return false
	}
}

// Dropped returns the number of tasks rejected because the queue was full
func (p *Pool) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting tasks and waits for queued ones to finish. It returns
// the first task panic, if any. If ctx ends first, running tasks are
// cancelled and ctx's error is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- p.group.Wait()
	}()

	select {
	case err := <-done:
		p.cancel()
		return err
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
