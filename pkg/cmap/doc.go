// Package cmap provides a concurrent map sharded by key hash.
//
// The server keeps its live sessions here: connections come and go from
// many goroutines while the append fan-out iterates the whole set.
//
// Usage:
//
//	m := cmap.New[string, *Session]()
//	m.Set(s.ID, s)
//	for id, s := range m.All() { ... }
//
// All operations are safe for concurrent use. Reads take a shard read lock,
// writes a shard write lock. Iteration visits shards one at a time, so it is
// not a consistent snapshot of the whole map.
package cmap
