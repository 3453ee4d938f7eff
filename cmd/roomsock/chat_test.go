package main

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/momentics/roomsock/api"
	"github.com/momentics/roomsock/protocol"
	"github.com/momentics/roomsock/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

// fakeConn records frames sent to it.
type fakeConn struct {
	id     string
	closed bool
	mu     sync.Mutex
	sent   []*protocol.Frame
}

func (f *fakeConn) ID() string                 { return f.id }
func (f *fakeConn) CreatedAt() time.Time       { return time.Time{} }
func (f *fakeConn) Request() *protocol.Request { return &protocol.Request{Path: "/"} }
func (f *fakeConn) Subprotocol() string        { return "" }
func (f *fakeConn) RemoteAddr() net.Addr       { return &net.TCPAddr{} }
func (f *fakeConn) State() api.State {
	if f.closed {
		return api.StateClosed
	}
	return api.StateOpen
}
func (f *fakeConn) Close(protocol.CloseCode, string) error {
	return nil
}

func (f *fakeConn) Send(fr *protocol.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeConn) last(t *testing.T) chatEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	var ev chatEvent
	require.NoError(t, sonnet.Unmarshal(f.sent[len(f.sent)-1].Payload, &ev))
	return ev
}

func textEvent(c server.Conn, text string) server.Event {
	return server.Event{Kind: server.EventMessage, Conn: c, Message: &protocol.Message{Type: protocol.OpText, Data: []byte(text)}}
}

func TestParseChatCommand(t *testing.T) {
	tests := []struct {
		in   string
		want chatCommand
		ok   bool
	}{
		{"join /lobby", chatCommand{Op: opJoin, Room: "/lobby"}, true},
		{"  leave lobby/eu/ ", chatCommand{Op: opLeave, Room: "/lobby/eu"}, true},
		{"say /lobby hello there", chatCommand{Op: opSay, Room: "/lobby", Text: "hello there"}, true},
		{`{"op":"say","room":"/a/b","text":"hi"}`, chatCommand{Op: opSay, Room: "/a/b", Text: "hi"}, true},
		{`{"op":"join","room":"x"}`, chatCommand{Op: opJoin, Room: "/x"}, true},
		{"say /lobby", chatCommand{}, false},
		{"hello world", chatCommand{}, false},
		{"join", chatCommand{}, false},
		{`{"op":"join"}`, chatCommand{}, false},
		{`{not json`, chatCommand{}, false},
	}
	for _, tt := range tests {
		got, ok := parseChatCommand(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestChat_JoinSayLeave(t *testing.T) {
	srv, err := server.New(nil, server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	ch := newChat(srv, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ann := &fakeConn{id: "ann"}
	bob := &fakeConn{id: "bob"}
	ch.onMessage(textEvent(ann, "join /lobby"))
	assert.Equal(t, chatEvent{Op: "joined", Room: "/lobby", Members: 1}, ann.last(t))
	ch.onMessage(textEvent(bob, "join /lobby/eu"))

	// recursive: /lobby and /lobby/eu both receive
	ch.onMessage(textEvent(ann, `{"op":"say","room":"/lobby","text":"hi all"}`))
	assert.Equal(t, chatEvent{Op: "sent", Room: "/lobby", Sent: 2}, ann.last(t))
	assert.Equal(t, chatEvent{Op: "message", Room: "/lobby", From: "ann", Text: "hi all"}, bob.last(t))

	ch.onMessage(textEvent(bob, "leave /lobby/eu"))
	assert.Equal(t, chatEvent{Op: "left", Room: "/lobby/eu"}, bob.last(t))
	ch.onMessage(textEvent(bob, "leave /lobby/eu"))
	assert.Equal(t, "error", bob.last(t).Op)
	assert.Empty(t, srv.Rooms().PathsOf("bob"))
	assert.Equal(t, []string{"/lobby"}, srv.Rooms().PathsOf("ann"))
}

func TestChat_JoinFromClosedConnIgnored(t *testing.T) {
	srv, err := server.New(nil, server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	ch := newChat(srv, slog.New(slog.NewTextHandler(io.Discard, nil)))

	gone := &fakeConn{id: "gone", closed: true}
	ch.onMessage(textEvent(gone, "join /lobby"))

	assert.Empty(t, gone.sent)
	assert.Empty(t, srv.Rooms().PathsOf("gone"))
	assert.Len(t, srv.Rooms().Rooms(), 1, "only the root room exists")
}

func TestChat_EchoesOtherMessages(t *testing.T) {
	srv, err := server.New(nil)
	require.NoError(t, err)
	ch := newChat(srv, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := &fakeConn{id: "c"}

	ch.onMessage(textEvent(c, "just chatting"))
	ch.onMessage(server.Event{Kind: server.EventMessage, Conn: c, Message: &protocol.Message{Type: protocol.OpBinary, Data: []byte{1, 2}}})

	require.Len(t, c.sent, 2)
	assert.Equal(t, "just chatting", c.sent[0].Text())
	assert.Equal(t, protocol.OpBinary, c.sent[1].Opcode)
	assert.Equal(t, []byte{1, 2}, c.sent[1].Payload)
}
