// File: room/directory.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Directory: rooms arranged as a tree of path segments.

package room

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/momentics/roomsock/protocol"
)

// Root is the normalized path of the directory root.
const Root = "/"

type node struct {
	room     *Room
	children map[string]*node
}

func newNode(path string) *node {
	return &node{room: New(path), children: make(map[string]*node)}
}

// Info summarizes one room for listings.
type Info struct {
	Path    string `json:"path"`
	Members int    `json:"members"`
}

// Directory is a tree of rooms keyed by slash-delimited path segments.
// Tree shape and the member index are guarded by one RWMutex; membership of
// each room by the room's own lock.
type Directory struct {
	mu    sync.RWMutex
	root  *node
	index map[string]map[string]struct{} // member id -> routed paths
}

// NewDirectory returns a directory holding only the root room.
func NewDirectory() *Directory {
	return &Directory{root: newNode(Root), index: make(map[string]map[string]struct{})}
}

// Split returns the non-empty segments of path.
func Split(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// Clean normalizes path: "a//b/" becomes "/a/b", "" becomes "/".
func Clean(path string) string {
	return Root + strings.Join(Split(path), "/")
}

// find walks to the node at segs without creating anything. Caller holds mu.
func (d *Directory) find(segs []string) *node {
	n := d.root
	for _, s := range segs {
		next, ok := n.children[s]
		if !ok {
			return nil
		}
		n = next
	}
	return n
}

// Route adds m to the room at path, creating missing intermediate nodes.
func (d *Directory) Route(m Member, path string) *Room {
	segs := Split(path)
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.root
	for i, s := range segs {
		next, ok := n.children[s]
		if !ok {
			next = newNode(Root + strings.Join(segs[:i+1], "/"))
			n.children[s] = next
		}
		n = next
	}
	n.room.Add(m)
	paths, ok := d.index[m.ID()]
	if !ok {
		paths = make(map[string]struct{})
		d.index[m.ID()] = paths
	}
	paths[n.room.Name()] = struct{}{}
	return n.room
}

// Unroute removes m from the room at path only. Rooms left empty with no
// children are removed from the tree.
func (d *Directory) Unroute(m Member, path string) bool {
	segs := Split(path)
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.find(segs)
	if n == nil || !n.room.Remove(m.ID()) {
		return false
	}
	if paths, ok := d.index[m.ID()]; ok {
		delete(paths, n.room.Name())
		if len(paths) == 0 {
			delete(d.index, m.ID())
		}
	}
	d.pruneAlong(segs)
	return true
}

// pruneAlong removes the empty childless nodes on segs, deepest first,
// stopping at the first node still in use. Caller holds mu.
func (d *Directory) pruneAlong(segs []string) {
	chain := make([]*node, 0, len(segs)+1)
	n := d.root
	chain = append(chain, n)
	for _, s := range segs {
		next, ok := n.children[s]
		if !ok {
			break
		}
		n = next
		chain = append(chain, n)
	}
	for i := len(chain) - 1; i > 0; i-- {
		n := chain[i]
		if len(n.children) > 0 || n.room.Len() > 0 {
			return
		}
		delete(chain[i-1].children, segs[i-1])
	}
}

// RemoveMember removes the member id from every room it was routed to and
// returns how many rooms it left. Rooms left empty are pruned as by Unroute.
func (d *Directory) RemoveMember(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths, ok := d.index[id]
	if !ok {
		return 0
	}
	delete(d.index, id)
	removed := 0
	for p := range paths {
		segs := Split(p)
		if n := d.find(segs); n != nil && n.room.Remove(id) {
			removed++
			d.pruneAlong(segs)
		}
	}
	return removed
}

// PathsOf lists the rooms a member is routed to, sorted.
func (d *Directory) PathsOf(id string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.index[id]))
	for p := range d.index[id] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the room at path if its node exists.
func (d *Directory) Lookup(path string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := d.find(Split(path))
	if n == nil {
		return nil, false
	}
	return n.room, true
}

// Walk visits the room at path and all rooms below it, parents before
// children and siblings in name order. Returning false from fn stops the walk.
// fn runs under the directory read lock and must not route or unroute.
func (d *Directory) Walk(path string, fn func(r *Room) bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := d.find(Split(path))
	if n == nil {
		return
	}
	walk(n, fn)
}

func walk(n *node, fn func(r *Room) bool) bool {
	if !fn(n.room) {
		return false
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !walk(n.children[name], fn) {
			return false
		}
	}
	return true
}

// BroadcastPath sends f to the room at path, or to its whole subtree when
// recursive is set. A member present in several visited rooms receives the
// frame once. It returns the number of send invocations.
func (d *Directory) BroadcastPath(path string, send SendFunc, f *protocol.Frame, recursive bool) (int, error) {
	if !recursive {
		r, ok := d.Lookup(path)
		if !ok {
			return 0, nil
		}
		return r.Broadcast(send, f)
	}
	seen := make(map[string]struct{})
	var (
		total int
		errs  []error
	)
	d.Walk(path, func(r *Room) bool {
		n, err := r.broadcast(send, f, func(id string) bool {
			if _, dup := seen[id]; dup {
				return false
			}
			seen[id] = struct{}{}
			return true
		})
		total += n
		if err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return total, errors.Join(errs...)
}

// Rooms lists every room in the tree with its member count.
func (d *Directory) Rooms() []Info {
	var out []Info
	d.Walk(Root, func(r *Room) bool {
		out = append(out, Info{Path: r.Name(), Members: r.Len()})
		return true
	})
	return out
}

// Prune removes empty leaf nodes bottom-up and returns how many were removed.
// The root is never removed. Unroute and RemoveMember already prune the paths
// they touch; Prune sweeps nodes created by Route calls whose room was never
// populated, such as intermediate nodes of a path routed and left.
func (d *Directory) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return prune(d.root)
}

func prune(n *node) int {
	removed := 0
	for name, child := range n.children {
		removed += prune(child)
		if len(child.children) == 0 && child.room.Len() == 0 {
			delete(n.children, name)
			removed++
		}
	}
	return removed
}
