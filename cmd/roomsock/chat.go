// File: cmd/roomsock/chat.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Chat commands carried in text messages.

package main

import (
	"log/slog"
	"strings"

	"github.com/momentics/roomsock/protocol"
	"github.com/momentics/roomsock/room"
	"github.com/momentics/roomsock/server"
	"github.com/sugawarayuuta/sonnet"
)

const (
	opJoin  = "join"
	opLeave = "leave"
	opSay   = "say"
)

// chatCommand is one parsed chat instruction.
type chatCommand struct {
	Op   string `json:"op"`
	Room string `json:"room"`
	Text string `json:"text,omitempty"`
}

// chatEvent is what clients receive in reply to commands and broadcasts.
type chatEvent struct {
	Op      string `json:"op"`
	Room    string `json:"room"`
	From    string `json:"from,omitempty"`
	Text    string `json:"text,omitempty"`
	Members int    `json:"members,omitempty"`
	Sent    int    `json:"sent,omitempty"`
	Error   string `json:"error,omitempty"`
}

// parseChatCommand recognizes "join <room>", "leave <room>",
// "say <room> <text>" and the equivalent JSON object.
func parseChatCommand(msg string) (chatCommand, bool) {
	var cmd chatCommand
	msg = strings.TrimSpace(msg)
	if strings.HasPrefix(msg, "{") {
		if err := sonnet.Unmarshal([]byte(msg), &cmd); err != nil {
			return chatCommand{}, false
		}
	} else {
		fields := strings.SplitN(msg, " ", 3)
		if len(fields) < 2 {
			return chatCommand{}, false
		}
		cmd.Op, cmd.Room = fields[0], fields[1]
		if len(fields) == 3 {
			cmd.Text = fields[2]
		}
	}
	switch cmd.Op {
	case opJoin, opLeave:
	case opSay:
		if cmd.Text == "" {
			return chatCommand{}, false
		}
	default:
		return chatCommand{}, false
	}
	if cmd.Room == "" {
		return chatCommand{}, false
	}
	cmd.Room = room.Clean(cmd.Room)
	return cmd, true
}

// roomRouter is the part of *server.Server the chat handler drives.
type roomRouter interface {
	Route(c server.Conn, path string) (*room.Room, error)
	Unroute(c server.Conn, path string) bool
	BroadcastPath(path string, f *protocol.Frame, recursive bool) (int, error)
}

type chat struct {
	rooms  roomRouter
	logger *slog.Logger
}

func newChat(rooms roomRouter, logger *slog.Logger) *chat {
	return &chat{rooms: rooms, logger: logger}
}

// onMessage executes chat commands and echoes everything else.
func (ch *chat) onMessage(ev server.Event) {
	c, msg := ev.Conn, ev.Message
	if !msg.IsText() {
		ch.send(c, protocol.NewBinaryFrame(msg.Data))
		return
	}
	cmd, ok := parseChatCommand(msg.Text())
	if !ok {
		ch.send(c, protocol.NewTextFrame(msg.Text()))
		return
	}

	switch cmd.Op {
	case opJoin:
		r, err := ch.rooms.Route(c, cmd.Room)
		if err != nil {
			ch.logger.Debug("join refused", "conn_id", c.ID(), "room", cmd.Room, "err", err)
			return
		}
		ch.reply(c, chatEvent{Op: "joined", Room: r.Name(), Members: r.Len()})
	case opLeave:
		if !ch.rooms.Unroute(c, cmd.Room) {
			ch.reply(c, chatEvent{Op: "error", Room: cmd.Room, Error: "not a member"})
			return
		}
		ch.reply(c, chatEvent{Op: "left", Room: cmd.Room})
	case opSay:
		payload, err := sonnet.Marshal(chatEvent{Op: "message", Room: cmd.Room, From: c.ID(), Text: cmd.Text})
		if err != nil {
			ch.logger.Error("encode chat message", "err", err)
			return
		}
		n, err := ch.rooms.BroadcastPath(cmd.Room, protocol.NewTextFrame(string(payload)), true)
		if err != nil {
			ch.logger.Warn("broadcast incomplete", "room", cmd.Room, "err", err)
		}
		ch.reply(c, chatEvent{Op: "sent", Room: cmd.Room, Sent: n})
	}
}

func (ch *chat) reply(c server.Conn, ev chatEvent) {
	payload, err := sonnet.Marshal(ev)
	if err != nil {
		ch.logger.Error("encode chat reply", "err", err)
		return
	}
	ch.send(c, protocol.NewTextFrame(string(payload)))
}

func (ch *chat) send(c server.Conn, f *protocol.Frame) {
	if err := c.Send(f); err != nil {
		ch.logger.Debug("reply not sent", "conn_id", c.ID(), "err", err)
	}
}
