package shard

// Set is a concurrent set built on Map.
type Set[K comparable] struct {
	m *Map[K, struct{}]
}

// NewSet creates a Set with n buckets.
func NewSet[K comparable](n int) *Set[K] {
	return &Set[K]{m: New[K, struct{}](n)}
}

// Add inserts key and reports whether it was newly added.
func (s *Set[K]) Add(key K) bool {
	added := false
	s.m.Compute(key, func(_ struct{}, ok bool) (struct{}, bool) {
		added = !ok
		return struct{}{}, true
	})
	return added
}

// Contains reports whether key is in the set.
func (s *Set[K]) Contains(key K) bool {
	_, ok := s.m.Load(key)
	return ok
}

// Remove deletes key and reports whether it was present.
func (s *Set[K]) Remove(key K) bool {
	return s.m.Delete(key)
}

// Len returns the number of members.
func (s *Set[K]) Len() int {
	return s.m.Len()
}

// Clear removes all members.
func (s *Set[K]) Clear() {
	s.m.Clear()
}

// Members returns a copy of the current members in no particular order.
func (s *Set[K]) Members() []K {
	out := make([]K, 0, s.m.Len())
	s.m.Range(func(k K, _ struct{}) bool {
		out = append(out, k)
		return true
	})
	return out
}
