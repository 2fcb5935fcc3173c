package cmap

import "iter"

// Range calls fn for every pair until fn returns false.
//
// A shard's read lock is held while fn runs for its items, so fn must not
// write to the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// All returns an iterator over a copy of each shard, taken one shard at a
// time. The loop body may write to the map.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, s := range m.shards {
			s.mu.RLock()
			keys := make([]K, 0, len(s.items))
			vals := make([]V, 0, len(s.items))
			for k, v := range s.items {
				keys = append(keys, k)
				vals = append(vals, v)
			}
			s.mu.RUnlock()

			for i := range keys {
				if !yield(keys[i], vals[i]) {
					return
				}
			}
		}
	}
}

// Keys returns all keys.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Count())
	for k := range m.All() {
		keys = append(keys, k)
	}
	return keys
}

// Values returns all values.
func (m *Map[K, V]) Values() []V {
	values := make([]V, 0, m.Count())
	for _, v := range m.All() {
		values = append(values, v)
	}
	return values
}
