// File: internal/concurrency/eventloop.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop is a single-consumer FIFO. Any number of producers Push; one
// goroutine blocks on a condition variable, drains everything queued, hands
// each item to the sink in push order, then blocks again. Sequence numbers are
// assigned under the same lock that appends, so they describe the one global
// order the sink observes.

package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// entry pairs an item with its sequence number.
type entry[T any] struct {
	seq uint64
	v   T
}

// EventLoop delivers pushed items to a sink in strict enqueue order.
type EventLoop[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	q        *queue.Queue // of entry[T]
	seq      uint64
	stopping bool

	sink    func(seq uint64, v T)
	onPanic func(any)

	running atomic.Bool
	doneCh  chan struct{}
}

// NewEventLoop creates a loop delivering to sink. Run must be started by the caller.
func NewEventLoop[T any](sink func(seq uint64, v T)) *EventLoop[T] {
	el := &EventLoop[T]{
		q:      queue.New(),
		sink:   sink,
		doneCh: make(chan struct{}),
	}
	el.cond = sync.NewCond(&el.mu)
	return el
}

// OnPanic installs a hook receiving values recovered from a panicking sink.
func (el *EventLoop[T]) OnPanic(fn func(any)) {
	el.mu.Lock()
	el.onPanic = fn
	el.mu.Unlock()
}

// Push appends v and wakes the consumer. It returns the assigned sequence
// number, or ErrLoopStopped once Stop has been called.
func (el *EventLoop[T]) Push(v T) (uint64, error) {
	el.mu.Lock()
	if el.stopping {
		el.mu.Unlock()
		return 0, ErrLoopStopped
	}
	el.seq++
	seq := el.seq
	el.q.Add(entry[T]{seq: seq, v: v})
	el.mu.Unlock()
	el.cond.Signal()
	return seq, nil
}

// Pending returns the number of items waiting for the consumer.
func (el *EventLoop[T]) Pending() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.q.Length()
}

// Run consumes until Stop is called and the queue is empty. Only the first
// call runs; later calls return immediately.
func (el *EventLoop[T]) Run() {
	if !el.running.CompareAndSwap(false, true) {
		return
	}
	defer close(el.doneCh)

	batch := make([]entry[T], 0, 64)
	for {
		el.mu.Lock()
		for el.q.Length() == 0 && !el.stopping {
			el.cond.Wait()
		}
		if el.q.Length() == 0 {
			el.mu.Unlock()
			return
		}
		batch = batch[:0]
		for el.q.Length() > 0 {
			batch = append(batch, el.q.Remove().(entry[T]))
		}
		onPanic := el.onPanic
		el.mu.Unlock()

		for i := range batch {
			el.deliver(batch[i], onPanic)
			batch[i] = entry[T]{}
		}
	}
}

func (el *EventLoop[T]) deliver(e entry[T], onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	el.sink(e.seq, e.v)
}

// Stop refuses further pushes, lets the consumer drain what is queued and
// waits for it to exit. Safe to call when Run was never started.
func (el *EventLoop[T]) Stop() {
	el.mu.Lock()
	el.stopping = true
	el.mu.Unlock()
	el.cond.Broadcast()
	if el.running.Load() {
		<-el.doneCh
	}
}

// Done is closed after Run returns.
func (el *EventLoop[T]) Done() <-chan struct{} {
	return el.doneCh
}
