// File: internal/concurrency/executor.go
// Package concurrency implements a bounded task executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor runs tasks on a fixed set of worker goroutines fed from one bounded
// queue. Submit never blocks: a full queue is reported to the caller so it can
// shed the work instead of piling up goroutines.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	queue      chan TaskFunc // bounded task queue shared by all workers
	closeCh    chan struct{} // signals executor shutdown
	mu         sync.RWMutex  // orders Submit against Close
	closed     bool
	wg         sync.WaitGroup
	numWorkers int
	onPanic    func(any)

	// statistics
	submitted atomic.Int64
	completed atomic.Int64
}

// NewExecutor creates a new Executor with numWorkers goroutines and room for
// queueSize pending tasks. If numWorkers <= 0, defaults to runtime.NumCPU();
// if queueSize <= 0, defaults to numWorkers*4.
func NewExecutor(numWorkers, queueSize int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 4
	}
	e := &Executor{
		queue:      make(chan TaskFunc, queueSize),
		closeCh:    make(chan struct{}),
		numWorkers: numWorkers,
	}
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.run()
	}
	return e
}

// OnPanic installs a hook receiving values recovered from panicking tasks.
// Must be called before the first Submit.
func (e *Executor) OnPanic(fn func(any)) {
	e.onPanic = fn
}

// Submit enqueues a task. Returns ErrExecutorClosed after Close and
// ErrQueueFull when every slot is taken.
func (e *Executor) Submit(task TaskFunc) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	select {
	case e.queue <- task:
		e.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks, lets workers finish what is queued and waits
// for them to exit. Idempotent.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.closeCh)
	e.mu.Unlock()
	e.wg.Wait()
}

// NumWorkers returns the worker count.
func (e *Executor) NumWorkers() int {
	return e.numWorkers
}

// Pending returns the number of queued, not yet started tasks.
func (e *Executor) Pending() int {
	return len(e.queue)
}

// Stats returns submitted and completed task counts.
func (e *Executor) Stats() (submitted, completed int64) {
	return e.submitted.Load(), e.completed.Load()
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.queue:
			e.safeExecute(task)
		case <-e.closeCh:
			for {
				select {
				case task := <-e.queue:
					e.safeExecute(task)
				default:
					return
				}
			}
		}
	}
}

func (e *Executor) safeExecute(task TaskFunc) {
	defer func() {
		e.completed.Add(1)
		if r := recover(); r != nil && e.onPanic != nil {
			e.onPanic(r)
		}
	}()
	task()
}
