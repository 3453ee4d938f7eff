// File: room/room.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package room

import (
	"errors"
	"fmt"
	"sync"

	"github.com/momentics/roomsock/protocol"
)

// Member is the minimal capability a room needs from a connection.
type Member interface {
	ID() string
	Send(f *protocol.Frame) error
}

// SendFunc delivers a frame to one member. Servers pass their own send
// primitive so that accounting stays in one place; nil means Member.Send.
type SendFunc func(m Member, f *protocol.Frame) error

// Room is a named, unordered set of members.
type Room struct {
	name    string
	mu      sync.RWMutex
	members map[string]Member
}

// New creates an empty room.
func New(name string) *Room {
	return &Room{name: name, members: make(map[string]Member)}
}

// Name returns the room's name (its directory path when owned by a Directory).
func (r *Room) Name() string { return r.name }

// Add inserts m; it reports false if a member with the same id is present.
func (r *Room) Add(m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.ID()]; ok {
		return false
	}
	r.members[m.ID()] = m
	return true
}

// Remove deletes the member with the given id.
func (r *Room) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// Contains reports membership by id.
func (r *Room) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Len returns the member count.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns a snapshot of the current members.
func (r *Room) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Broadcast sends f to every member while holding the room lock. It returns
// the number of send invocations and the joined send errors.
func (r *Room) Broadcast(send SendFunc, f *protocol.Frame) (int, error) {
	return r.broadcast(send, f, nil)
}

// BroadcastExcept is Broadcast skipping the member with id skip.
func (r *Room) BroadcastExcept(send SendFunc, f *protocol.Frame, skip string) (int, error) {
	return r.broadcast(send, f, func(id string) bool { return id != skip })
}

// broadcast sends to every member accepted by filter (all when nil).
func (r *Room) broadcast(send SendFunc, f *protocol.Frame, filter func(id string) bool) (int, error) {
	if send == nil {
		send = func(m Member, f *protocol.Frame) error { return m.Send(f) }
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		n    int
		errs []error
	)
	for id, m := range r.members {
		if filter != nil && !filter(id) {
			continue
		}
		n++
		if err := send(m, f); err != nil {
			errs = append(errs, fmt.Errorf("room %s: member %s: %w", r.name, id, err))
		}
	}
	return n, errors.Join(errs...)
}
