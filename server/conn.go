// File: server/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client: one upgraded TCP connection and its lifecycle.

package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/momentics/roomsock/api"
	"github.com/momentics/roomsock/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Conn is what the engine and applications need from a connection.
type Conn interface {
	ID() string
	CreatedAt() time.Time
	Request() *protocol.Request
	Subprotocol() string
	RemoteAddr() net.Addr
	State() api.State
	Send(f *protocol.Frame) error
	Close(code protocol.CloseCode, reason string) error
}

var _ Conn = (*Client)(nil)

// Client owns an upgraded socket exclusively.
type Client struct {
	id          string
	createdAt   time.Time
	conn        net.Conn
	reader      *bufio.Reader
	req         *protocol.Request
	subprotocol string

	state     atomic.Int32
	closeSent atomic.Bool
	asm       *protocol.Assembler

	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeTimeout time.Duration

	values sync.Map

	disposeOnce sync.Once
	onDispose   func(*Client)
	onSent      func(protocol.Opcode)
	tracer      trace.Tracer
	recvDone    chan struct{}
	closed      chan struct{}
}

// clientOptions carries the per-server settings a Client needs.
type clientOptions struct {
	writeTimeout   time.Duration
	closeTimeout   time.Duration
	maxFragments   int
	maxMessageSize int
	tracer         trace.Tracer
	onDispose      func(*Client)
	onSent         func(protocol.Opcode)
}

// newClient wraps an upgraded socket. reader must be the buffered reader that
// served the handshake so bytes the peer pipelined after it are not lost.
func newClient(conn net.Conn, reader *bufio.Reader, req *protocol.Request, subprotocol string, o clientOptions) *Client {
	c := &Client{
		id:           uuid.NewString(),
		createdAt:    time.Now(),
		conn:         conn,
		reader:       reader,
		req:          req,
		subprotocol:  subprotocol,
		asm:          protocol.NewAssembler(o.maxFragments, o.maxMessageSize),
		writeTimeout: o.writeTimeout,
		closeTimeout: o.closeTimeout,
		tracer:       o.tracer,
		onDispose:    o.onDispose,
		onSent:       o.onSent,
		recvDone:     make(chan struct{}),
		closed:       make(chan struct{}),
	}
	c.state.Store(int32(api.StateOpen))
	return c
}

// ID returns the connection's unique id.
func (c *Client) ID() string { return c.id }

// CreatedAt returns the time the handshake completed.
func (c *Client) CreatedAt() time.Time { return c.createdAt }

// Request returns the handshake metadata.
func (c *Client) Request() *protocol.Request { return c.req }

// Path is shorthand for Request().Path.
func (c *Client) Path() string { return c.req.Path }

// Subprotocol returns the echoed subprotocol, if any.
func (c *Client) Subprotocol() string { return c.subprotocol }

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// State returns the lifecycle state.
func (c *Client) State() api.State { return api.State(c.state.Load()) }

// Set stores an application value on the connection.
func (c *Client) Set(key string, value any) { c.values.Store(key, value) }

// Get loads an application value.
func (c *Client) Get(key string) (any, bool) { return c.values.Load(key) }

// Delete removes an application value.
func (c *Client) Delete(key string) { c.values.Delete(key) }

// Done is closed once the socket has been released.
func (c *Client) Done() <-chan struct{} { return c.closed }

// Send writes one frame. Data frames are refused once the connection has
// started closing.
func (c *Client) Send(f *protocol.Frame) error {
	if f == nil {
		return api.ErrInvalidArgument
	}
	if f.Opcode != protocol.OpClose && c.State() >= api.StateClosing {
		return api.ErrTransportClosed
	}
	return c.writeFrame(f)
}

// writeFrame serializes outside the lock and writes under it.
func (c *Client) writeFrame(f *protocol.Frame) error {
	if c.State() == api.StateClosed {
		return api.ErrTransportClosed
	}
	buf, err := protocol.Serialize(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(buf); err != nil {
		return api.Transport("write "+f.Opcode.String(), err)
	}
	if c.onSent != nil {
		c.onSent(f.Opcode)
	}
	return nil
}

// Close starts the closing handshake: it sends a Close frame, waits up to the
// close timeout for the peer's reply to be read and then releases the socket.
// The socket is released immediately if the Close frame cannot be sent. When
// the peer never answers, the socket is still released and the error wraps
// api.ErrOperationTimeout. Closing an already closing or closed connection is
// a no-op.
func (c *Client) Close(code protocol.CloseCode, reason string) error {
	if !c.state.CompareAndSwap(int32(api.StateOpen), int32(api.StateClosing)) {
		return nil
	}
	_, span := c.startSpan(context.Background(), spanClose,
		attribute.Int(attrCloseCode, int(code)),
		attribute.String(attrCloseReason, reason),
	)
	defer span.End()

	// set first: the peer's reply may be read before writeFrame returns
	c.closeSent.Store(true)
	if err := c.writeFrame(protocol.NewCloseFrame(code, reason)); err != nil {
		c.dispose()
		return handleError(err, span, "close frame not sent")
	}

	timer := time.NewTimer(c.closeTimeout)
	defer timer.Stop()
	select {
	case <-c.recvDone:
	case <-c.closed:
	case <-timer.C:
		span.AddEvent(eventCloseTimeout)
		c.dispose()
		return handleError(fmt.Errorf("close handshake: %w", api.ErrOperationTimeout), span, "peer did not answer close")
	}
	c.dispose()
	return handlePotentialError(nil, span)
}

// beginClosing moves Open -> Closing, reporting whether this call did it.
func (c *Client) beginClosing() bool {
	return c.state.CompareAndSwap(int32(api.StateOpen), int32(api.StateClosing))
}

// dispose releases the socket exactly once.
func (c *Client) dispose() {
	c.disposeOnce.Do(func() {
		c.state.Store(int32(api.StateClosed))
		_ = c.conn.Close()
		c.asm.Reset()
		close(c.closed)
		if c.onDispose != nil {
			c.onDispose(c)
		}
	})
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	attrs = append(attrs, attribute.String(attrConnID, c.id))
	return c.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(attrs...))
}

// isTeardownText reports whether a single-frame text payload is the junk some
// clients send while tearing down: empty, or one control character.
func isTeardownText(p []byte) bool {
	if len(p) == 0 {
		return true
	}
	r, size := utf8.DecodeRune(p)
	return size == len(p) && unicode.IsControl(r)
}
