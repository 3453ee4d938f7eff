// File: room/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package room groups connections for broadcast. A Room is a thread-safe set
// of members; a Directory arranges rooms in a tree addressed by
// slash-delimited paths ("/chat/eu/general") so that a broadcast can target a
// single room or a whole subtree. Rooms never own their members: removing a
// member from the Directory removes it from every room it was routed to.
package room
