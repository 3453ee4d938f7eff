// File: internal/registry/registry.go
// Package registry
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sharded, thread-safe id -> value map holding every open connection.

package registry

import (
	"hash/fnv"
	"sync"
)

// Registry stores values by string id across power-of-two shards.
type Registry[V any] struct {
	shards []*shard[V]
	mask   uint32
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New constructs a registry with at least shardCount shards.
func New[V any](shardCount int) *Registry[V] {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard[V], m)
	for i := range shards {
		shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return &Registry[V]{shards: shards, mask: m - 1}
}

func (r *Registry[V]) shard(id string) *shard[V] {
	return r.shards[fnv32(id)&r.mask]
}

// Add stores v under id. It reports false and leaves the map untouched when
// id is already present.
func (r *Registry[V]) Add(id string, v V) bool {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.items[id]; ok {
		return false
	}
	sh.items[id] = v
	return true
}

// Get fetches the value stored under id.
func (r *Registry[V]) Get(id string) (V, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.items[id]
	return v, ok
}

// Remove deletes id and returns the value it held.
func (r *Registry[V]) Remove(id string) (V, bool) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.items[id]
	if ok {
		delete(sh.items, id)
	}
	return v, ok
}

// Len counts entries across all shards.
func (r *Registry[V]) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn for each entry until fn returns false. fn runs under the
// shard read lock and must not call back into the registry for writes.
func (r *Registry[V]) Range(fn func(id string, v V) bool) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, v := range sh.items {
			if !fn(id, v) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

// Snapshot copies every value into a new slice.
func (r *Registry[V]) Snapshot() []V {
	out := make([]V, 0, r.Len())
	r.Range(func(_ string, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
