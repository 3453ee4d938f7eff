// File: server/receive.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection receive loop. Frames of one connection are handled strictly
// in arrival order; the next header is read only after the previous frame has
// been fully processed.

package server

import (
	"errors"
	"io"
	"time"

	"github.com/momentics/roomsock/api"
	"github.com/momentics/roomsock/protocol"
)

func (s *Server) receive(c *Client) {
	defer s.receivers.Done()
	defer close(c.recvDone)

	var hdr [2]byte
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		if _, err := io.ReadFull(c.reader, hdr[:]); err != nil {
			s.disconnect(c, s.readFailure(c, err))
			return
		}
		f, err := protocol.ParseFrame(hdr, c.reader, s.cfg.MaxFramePayload)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.metrics.FrameReceived(f.Opcode.String())
		s.logger.Debug("frame", "conn_id", c.id, "opcode", f.Opcode.String(), "fin", f.Fin, "len", len(f.Payload))

		done, err := s.handleFrame(c, f)
		if err != nil {
			s.fail(c, err)
			return
		}
		if done {
			return
		}
	}
}

// handleFrame applies one frame to the connection. done reports that the
// connection has been torn down.
func (s *Server) handleFrame(c *Client, f *protocol.Frame) (done bool, err error) {
	switch f.Opcode {
	case protocol.OpContinuation:
		msg, err := c.asm.Append(f)
		if err != nil {
			return false, err
		}
		if msg != nil {
			s.publish(Event{Kind: EventMessage, Conn: c, Message: msg})
		}

	case protocol.OpText, protocol.OpBinary:
		if !f.Fin {
			return false, c.asm.Start(f)
		}
		if c.asm.Pending() {
			return false, protocol.ErrFragmentInProgress
		}
		if f.Opcode == protocol.OpText && isTeardownText(f.Payload) {
			s.logger.Debug("teardown text frame", "conn_id", c.id)
			s.disconnect(c, nil)
			return true, nil
		}
		s.publish(Event{Kind: EventMessage, Conn: c, Message: protocol.MessageFromFrame(f)})

	case protocol.OpClose:
		if c.closeSent.Load() {
			// reply to our own Close
			s.publish(Event{Kind: EventControlFrame, Conn: c, Frame: f})
			s.disconnect(c, nil)
			return true, nil
		}
		c.beginClosing()
		if err := c.writeFrame(protocol.NewCloseFrame(f.CloseCode, "")); err != nil {
			s.logger.Debug("close echo failed", "conn_id", c.id, "err", err)
		}
		s.publish(Event{Kind: EventControlFrame, Conn: c, Frame: f})
		s.disconnect(c, nil)
		return true, nil

	case protocol.OpPing:
		if err := c.writeFrame(protocol.NewPongFrame(f.Payload)); err != nil {
			return false, err
		}
		s.publish(Event{Kind: EventControlFrame, Conn: c, Frame: f})

	case protocol.OpPong:
		s.publish(Event{Kind: EventControlFrame, Conn: c, Frame: f})
	}
	return false, nil
}

// readFailure classifies a failed header read. A clean EOF, or any error
// after we already released the socket, is an orderly disconnect.
func (s *Server) readFailure(c *Client, err error) error {
	if errors.Is(err, io.EOF) || c.State() == api.StateClosed {
		return nil
	}
	return api.Transport("read frame header", err)
}

// fail tears a connection down after an error. Protocol violations get a
// best-effort Close frame with their close code and an Error event first.
func (s *Server) fail(c *Client, err error) {
	if api.IsKind(err, api.KindProtocol) {
		code := protocol.CloseCodeOf(err)
		s.metrics.ProtocolError(api.KindProtocol.String())
		s.logger.Warn("protocol error", "conn_id", c.id, "remote", c.RemoteAddr().String(), "close_code", int(code), "err", err)
		if c.beginClosing() {
			_ = c.writeFrame(protocol.NewCloseFrame(code, ""))
		}
		s.publish(Event{Kind: EventError, Conn: c, Err: err})
	} else if c.State() == api.StateClosed {
		err = nil
	} else {
		s.metrics.ProtocolError(kindLabel(err))
		s.logger.Info("connection failed", "conn_id", c.id, "err", err)
	}
	s.disconnect(c, err)
}

// disconnect disposes the socket and publishes Disconnected.
func (s *Server) disconnect(c *Client, err error) {
	c.dispose()
	s.logger.Info("connection closed", "conn_id", c.id, "err", err)
	s.publish(Event{Kind: EventDisconnected, Conn: c, Err: err})
}

func kindLabel(err error) string {
	k, _ := api.KindOf(err)
	return k.String()
}
