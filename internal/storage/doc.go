// Package storage provides the versioned ordered key-value store served by protobee.
//
// The store is an append-only log of puts and deletions layered on Badger
// in managed mode. Block seq N is committed at Badger timestamp N+1, which
// makes point-in-time reads native: a read at timestamp V sees the first V
// blocks, header included.
//
// Three views share one operation surface (View):
//
//   - Engine: the live root; every write appends and notifies OnAppend listeners
//   - Batch: pending writes over the root, committed atomically by Flush
//   - Checkout: a read-only view pinned to a version (Snapshot pins the current one)
//
// Writers are serialized by a single writer lock. A batch takes it on its
// first write (or Lock) and holds it until Flush or Close.
package storage
