// File: server/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dispatcher delivers events to subscribers from one goroutine, in the order
// they were published across all connections.

package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/roomsock/control"
	"github.com/momentics/roomsock/internal/concurrency"
)

// Handler consumes one event. Handlers run on the dispatcher goroutine and
// must not block for long.
type Handler func(Event)

// Middleware wraps the delivery of every event.
type Middleware func(Handler) Handler

// NewHandlerChain applies middleware in order: first in slice is outermost.
func NewHandlerChain(base Handler, mw ...Middleware) Handler {
	h := base
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

type subscription struct {
	id uint64
	fn Handler
}

// subscriberList is copy-on-write: writers serialize on mu, the dispatcher
// reads the current snapshot without locking.
type subscriberList struct {
	mu   sync.Mutex
	snap atomic.Pointer[[]subscription]
}

func (l *subscriberList) load() []subscription {
	if p := l.snap.Load(); p != nil {
		return *p
	}
	return nil
}

func (l *subscriberList) add(s subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.load()
	next := make([]subscription, len(old), len(old)+1)
	copy(next, old)
	next = append(next, s)
	l.snap.Store(&next)
}

func (l *subscriberList) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.load()
	next := make([]subscription, 0, len(old))
	for _, s := range old {
		if s.id != id {
			next = append(next, s)
		}
	}
	l.snap.Store(&next)
}

// Dispatcher fans published events out to per-kind subscribers.
type Dispatcher struct {
	loop    *concurrency.EventLoop[Event]
	subs    [numEventKinds]subscriberList
	nextID  atomic.Uint64
	chainMu sync.Mutex
	mw      []Middleware
	chain   atomic.Pointer[Handler]
	logger  *slog.Logger
	metrics *control.Metrics
}

// NewDispatcher creates a dispatcher. Start must be called before events flow.
func NewDispatcher(logger *slog.Logger, metrics *control.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger, metrics: metrics}
	d.loop = concurrency.NewEventLoop(d.deliver)
	d.loop.OnPanic(func(r any) {
		d.logger.Error("event middleware panicked", "panic", r)
	})
	base := Handler(d.fanout)
	d.chain.Store(&base)
	return d
}

// On subscribes fn to kind and returns a function removing the subscription.
func (d *Dispatcher) On(kind EventKind, fn Handler) (unsubscribe func()) {
	if kind < 0 || kind >= numEventKinds || fn == nil {
		return func() {}
	}
	id := d.nextID.Add(1)
	list := &d.subs[kind]
	list.add(subscription{id: id, fn: fn})
	var once sync.Once
	return func() { once.Do(func() { list.remove(id) }) }
}

// OnConnected subscribes to EventConnected.
func (d *Dispatcher) OnConnected(fn Handler) func() { return d.On(EventConnected, fn) }

// OnDisconnected subscribes to EventDisconnected.
func (d *Dispatcher) OnDisconnected(fn Handler) func() { return d.On(EventDisconnected, fn) }

// OnMessage subscribes to EventMessage.
func (d *Dispatcher) OnMessage(fn Handler) func() { return d.On(EventMessage, fn) }

// OnControlFrame subscribes to EventControlFrame.
func (d *Dispatcher) OnControlFrame(fn Handler) func() { return d.On(EventControlFrame, fn) }

// OnError subscribes to EventError.
func (d *Dispatcher) OnError(fn Handler) func() { return d.On(EventError, fn) }

// Use appends middleware around event delivery.
func (d *Dispatcher) Use(mw ...Middleware) {
	d.chainMu.Lock()
	defer d.chainMu.Unlock()
	d.mw = append(d.mw, mw...)
	h := NewHandlerChain(d.fanout, d.mw...)
	d.chain.Store(&h)
}

// Publish enqueues ev for delivery.
func (d *Dispatcher) Publish(ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := d.loop.Push(ev)
	return err
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int { return d.loop.Pending() }

// Start launches the delivery goroutine.
func (d *Dispatcher) Start() { go d.loop.Run() }

// Stop refuses new events, delivers everything queued and returns when the
// delivery goroutine has exited.
func (d *Dispatcher) Stop() { d.loop.Stop() }

func (d *Dispatcher) deliver(seq uint64, ev Event) {
	ev.Seq = seq
	d.metrics.EventDispatched(ev.Kind.String())
	(*d.chain.Load())(ev)
}

func (d *Dispatcher) fanout(ev Event) {
	if ev.Kind < 0 || ev.Kind >= numEventKinds {
		return
	}
	for _, s := range d.subs[ev.Kind].load() {
		d.call(s.fn, ev)
	}
}

func (d *Dispatcher) call(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "kind", ev.Kind.String(), "seq", ev.Seq, "panic", r)
		}
	}()
	fn(ev)
}
