// Package shard provides lock-sharded concurrent maps. Keys are spread over a
// fixed number of independently locked buckets so that operations on
// unrelated keys rarely contend.
package shard

import (
	"hash/maphash"
	"sync"
)

// DefaultShards is the bucket count used when New is given n <= 0.
const DefaultShards = 64

type bucket[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

// Map is a concurrent map sharded by key hash. The zero value is not usable;
// create one with New.
type Map[K comparable, V any] struct {
	seed    maphash.Seed
	buckets []bucket[K, V]
}

// New creates a Map with n buckets.
func New[K comparable, V any](n int) *Map[K, V] {
	if n <= 0 {
		n = DefaultShards
	}
	m := &Map[K, V]{
		seed:    maphash.MakeSeed(),
		buckets: make([]bucket[K, V], n),
	}
	for i := range m.buckets {
		m.buckets[i].m = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) bucketFor(key K) *bucket[K, V] {
	h := maphash.Comparable(m.seed, key)
	return &m.buckets[h%uint64(len(m.buckets))]
}

// Load returns the value stored for key.
func (m *Map[K, V]) Load(key K) (V, bool) {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[key]
	return v, ok
}

// Store sets the value for key.
func (m *Map[K, V]) Store(key K, value V) {
	b := m.bucketFor(key)
	b.mu.Lock()
	b.m[key] = value
	b.mu.Unlock()
}

// Delete removes key and reports whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.m[key]
	delete(b.m, key)
	return ok
}

// Compute atomically replaces the value for key with the result of fn.
// fn receives the current value and whether it exists; when it returns
// keep == false the key is removed. fn runs under the bucket lock and must
// not call back into the map.
func (m *Map[K, V]) Compute(key K, fn func(cur V, ok bool) (next V, keep bool)) V {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.m[key]
	next, keep := fn(cur, ok)
	if keep {
		b.m[key] = next
	} else {
		delete(b.m, key)
	}
	return next
}

// Range calls fn for every entry, one bucket at a time. Iteration stops when
// fn returns false. fn must not call back into the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		for k, v := range b.m {
			if !fn(k, v) {
				b.mu.Unlock()
				return
			}
		}
		b.mu.Unlock()
	}
}

// DeleteIf removes every entry for which pred returns true and returns the
// number removed.
func (m *Map[K, V]) DeleteIf(pred func(key K, value V) bool) int {
	removed := 0
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		for k, v := range b.m {
			if pred(k, v) {
				delete(b.m, k)
				removed++
			}
		}
		b.mu.Unlock()
	}
	return removed
}

// Len returns the number of entries. The count is not a snapshot: buckets
// are visited one at a time.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		n += len(b.m)
		b.mu.Unlock()
	}
	return n
}

// Clear removes all entries.
func (m *Map[K, V]) Clear() {
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		clear(b.m)
		b.mu.Unlock()
	}
}
