// File: client/client.go
// Package client provides a minimal masking WebSocket client.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This client implements:
// - RFC6455 handshake over bare TCP (ws:// URL or host:port)
// - Accept key verification and subprotocol offer
// - Masked frame writes, fragment reassembly on read
// - Automatic Pong replies and Close echo
// - Optional heartbeat (Ping) and dial retries with linear backoff

package client

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/roomsock/api"
	"github.com/momentics/roomsock/protocol"
)

// Config holds all configurable parameters for the client.
type Config struct {
	Addr              string            // ws:// URL or bare host:port
	Subprotocols      []string          // offered in Sec-WebSocket-Protocol
	Header            map[string]string // extra request headers
	DialTimeout       time.Duration     // TCP connect and handshake budget
	ReadTimeout       time.Duration     // per-frame read deadline, 0 disables
	WriteTimeout      time.Duration     // per-frame write deadline, 0 disables
	ReconnectMax      int               // dial attempts beyond the first, 0 = none
	HeartbeatInterval time.Duration     // send Ping every interval, 0 disables
	MaxFramePayload   int64             // 0 selects protocol.MaxFramePayload
}

// DefaultConfig returns a config for addr with conservative timeouts.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// HandshakeError is returned when the server refuses the upgrade.
type HandshakeError struct {
	StatusCode int
	Status     string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed: %s", e.Status)
}

// CloseError reports a Close frame received from the server.
type CloseError struct {
	Code   protocol.CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed: %d", uint16(e.Code))
	}
	return fmt.Sprintf("websocket closed: %d %s", uint16(e.Code), e.Reason)
}

// Client is one client-side WebSocket connection. Reads must come from a
// single goroutine; writes may be concurrent.
type Client struct {
	cfg         Config
	conn        net.Conn
	reader      *bufio.Reader
	subprotocol string
	asm         *protocol.Assembler

	writeMu   sync.Mutex
	closeSent atomic.Bool
	closed    atomic.Bool
	closeCh   chan struct{}
}

// Dial connects and completes the handshake, retrying up to ReconnectMax
// additional times.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.ReconnectMax; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		c, err := dialAndHandshake(ctx, cfg)
		if err == nil {
			return c, nil
		}
		lastErr = err
		if _, refused := err.(*HandshakeError); refused {
			break
		}
	}
	if cfg.ReconnectMax > 0 {
		return nil, fmt.Errorf("max reconnect attempts reached: %w", lastErr)
	}
	return nil, lastErr
}

// target splits addr into the dial host and request URI.
func target(addr string) (host, path string, err error) {
	if !strings.Contains(addr, "://") {
		return addr, "/", nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", err
	}
	return u.Host, u.RequestURI(), nil
}

// dialAndHandshake performs one TCP dial and WebSocket HTTP Upgrade handshake.
func dialAndHandshake(ctx context.Context, cfg Config) (*Client, error) {
	host, path, err := target(cfg.Addr)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	keyBytes := make([]byte, 16)
	_, _ = rand.Read(keyBytes)
	secKey := base64.StdEncoding.EncodeToString(keyBytes)

	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\nHost: %s\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n", path, host)
	fmt.Fprintf(&b, "%s: %s\r\n%s: 13\r\n", protocol.HeaderSecWebSocketKey, secKey, protocol.HeaderSecWebSocketVer)
	if len(cfg.Subprotocols) > 0 {
		fmt.Fprintf(&b, "%s: %s\r\n", protocol.HeaderSecWebSocketPro, strings.Join(cfg.Subprotocols, ", "))
	}
	for k, v := range cfg.Header {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	if _, err := conn.Write([]byte(b.String())); err != nil {
		conn.Close()
		return nil, api.Transport("write handshake", err)
	}

	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake read error: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		conn.Close()
		return nil, &HandshakeError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if got := resp.Header.Get(protocol.HeaderSecWebSocketAcc); got != protocol.AcceptKey(secKey) {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: bad accept key %q", got)
	}
	_ = conn.SetDeadline(time.Time{})

	c := &Client{
		cfg:         cfg,
		conn:        conn,
		reader:      reader,
		subprotocol: resp.Header.Get(protocol.HeaderSecWebSocketPro),
		asm:         protocol.NewAssembler(0, 0),
		closeCh:     make(chan struct{}),
	}
	if cfg.HeartbeatInterval > 0 {
		go c.heartbeatLoop()
	}
	return c, nil
}

// Subprotocol returns the subprotocol the server selected.
func (c *Client) Subprotocol() string { return c.subprotocol }

// LocalAddr returns the client socket address.
func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// WriteFrame masks and sends f. The caller's frame is not modified.
func (c *Client) WriteFrame(f *protocol.Frame) error {
	if c.closed.Load() {
		return api.ErrTransportClosed
	}
	out := *f
	out.Masked = true
	buf, err := protocol.Serialize(&out)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if _, err := c.conn.Write(buf); err != nil {
		return api.Transport("write frame", err)
	}
	return nil
}

// WriteRaw writes bytes verbatim, bypassing the codec.
func (c *Client) WriteRaw(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(b)
	return err
}

// SendText sends a single-frame text message.
func (c *Client) SendText(text string) error {
	return c.WriteFrame(protocol.NewTextFrame(text))
}

// SendBinary sends a single-frame binary message.
func (c *Client) SendBinary(data []byte) error {
	return c.WriteFrame(protocol.NewBinaryFrame(data))
}

// Ping sends a Ping with payload.
func (c *Client) Ping(payload []byte) error {
	return c.WriteFrame(protocol.NewPingFrame(payload))
}

// ReadFrame reads one raw frame.
func (c *Client) ReadFrame() (*protocol.Frame, error) {
	if c.cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	return protocol.ReadFrame(c.reader, c.cfg.MaxFramePayload)
}

// ReadMessage returns the next complete data message. Pings are answered,
// pongs skipped. A Close from the server is echoed and surfaces as
// *CloseError.
func (c *Client) ReadMessage() (*protocol.Message, error) {
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return nil, err
		}
		switch f.Opcode {
		case protocol.OpPing:
			if err := c.WriteFrame(protocol.NewPongFrame(f.Payload)); err != nil {
				return nil, err
			}
		case protocol.OpPong:
		case protocol.OpClose:
			if c.closeSent.CompareAndSwap(false, true) {
				_ = c.WriteFrame(protocol.NewCloseFrame(f.CloseCode, ""))
			}
			c.shutdown()
			return nil, &CloseError{Code: f.CloseCode, Reason: f.CloseReason}
		case protocol.OpText, protocol.OpBinary:
			if !f.Fin {
				if err := c.asm.Start(f); err != nil {
					return nil, err
				}
				continue
			}
			return protocol.MessageFromFrame(f), nil
		case protocol.OpContinuation:
			msg, err := c.asm.Append(f)
			if err != nil {
				return nil, err
			}
			if msg != nil {
				return msg, nil
			}
		}
	}
}

// Close sends a Close frame and releases the socket without waiting for the
// reply. Idempotent.
func (c *Client) Close(code protocol.CloseCode, reason string) error {
	var err error
	if c.closeSent.CompareAndSwap(false, true) {
		err = c.WriteFrame(protocol.NewCloseFrame(code, reason))
	}
	c.shutdown()
	return err
}

// CloseGracefully sends a Close frame and reads until the server's Close
// arrives or timeout elapses, then releases the socket.
func (c *Client) CloseGracefully(code protocol.CloseCode, reason string, timeout time.Duration) error {
	if !c.closeSent.CompareAndSwap(false, true) {
		c.shutdown()
		return nil
	}
	if err := c.WriteFrame(protocol.NewCloseFrame(code, reason)); err != nil {
		c.shutdown()
		return err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		f, err := protocol.ReadFrame(c.reader, c.cfg.MaxFramePayload)
		if err != nil || f.Opcode == protocol.OpClose {
			c.shutdown()
			return nil
		}
	}
}

// Done is closed once the socket has been released.
func (c *Client) Done() <-chan struct{} { return c.closeCh }

func (c *Client) shutdown() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.closeCh)
		_ = c.conn.Close()
	}
}

// heartbeatLoop sends Ping frames at the configured interval.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = c.Ping(nil)
		case <-c.closeCh:
			return
		}
	}
}
