package cas

import "iter"

// ContentMap is a table keyed by Hash.
//
// Hash keys are already uniformly distributed, so no extra hashing layer
// sits on top: the runtime map over the fixed-size value type is the
// whole implementation.
type ContentMap[V any] map[Hash]V

// NewContentMap creates an empty ContentMap.
func NewContentMap[V any]() ContentMap[V] { return make(ContentMap[V]) }

// Get returns the value stored for h.
func (m ContentMap[V]) Get(h Hash) (V, bool) {
	v, ok := m[h]
	return v, ok
}

// Set stores v under h, replacing any previous value.
func (m ContentMap[V]) Set(h Hash, v V) { m[h] = v }

// Delete removes the entry for h, if any.
func (m ContentMap[V]) Delete(h Hash) { delete(m, h) }

// Len returns the number of entries.
func (m ContentMap[V]) Len() int { return len(m) }

// All returns an iterator over all entries in unspecified order.
func (m ContentMap[V]) All() iter.Seq2[Hash, V] {
	return func(yield func(Hash, V) bool) {
		for h, v := range m {
			if !yield(h, v) {
				return
			}
		}
	}
}

// ContentSet is a set of Hash values.
type ContentSet map[Hash]struct{}

// NewContentSet creates a set containing the given hashes.
func NewContentSet(hashes ...Hash) ContentSet {
	s := make(ContentSet, len(hashes))
	for _, h := range hashes {
		s.Add(h)
	}
	return s
}

// Add inserts h into the set.
func (s ContentSet) Add(h Hash) { s[h] = struct{}{} }

// Contains reports whether h is in the set.
func (s ContentSet) Contains(h Hash) bool {
	_, ok := s[h]
	return ok
}

// Delete removes h from the set, if present.
func (s ContentSet) Delete(h Hash) { delete(s, h) }

// Len returns the number of hashes in the set.
func (s ContentSet) Len() int { return len(s) }

// All returns an iterator over the set in unspecified order.
func (s ContentSet) All() iter.Seq[Hash] {
	return func(yield func(Hash) bool) {
		for h := range s {
			if !yield(h) {
				return
			}
		}
	}
}
