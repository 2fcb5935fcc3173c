package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	"github.com/LuKks/protobee/internal/core/domain"
)

// pendingNode is the latest pending write of a key inside a batch.
type pendingNode struct {
	seq   uint64
	del   bool
	value json.RawMessage
}

// Batch collects writes that become visible to other readers atomically on
// Flush. Reads through the batch see its own pending writes.
//
// The first write (or Lock) takes the engine's single writer lock; it is held
// until Flush or Close, so root writes wait for the batch.
type Batch struct {
	e *Engine

	mu      sync.Mutex
	locked  bool
	closed  bool
	ops     []op
	pending map[string]*pendingNode
}

// Version is the committed version plus the pending appends.
func (b *Batch) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.e.Version() + uint64(len(b.ops))
}

// Length is the committed log length; pending appends are not part of it yet.
func (b *Batch) Length() uint64 {
	return b.e.Version()
}

// Lock takes the writer lock without writing.
func (b *Batch) Lock(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lockLocked(ctx)
}

func (b *Batch) lockLocked(ctx context.Context) error {
	if b.closed {
		return domain.ErrHandleClosed
	}
	if b.locked {
		return nil
	}
	if err := b.e.lock(ctx); err != nil {
		return err
	}
	b.locked = true
	return nil
}

// Get returns the node at key including pending writes, or nil.
func (b *Batch) Get(ctx context.Context, key string, opts domain.KeyOptions) (*domain.Node, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, domain.ErrHandleClosed
	}
	return b.getLocked(userKey(opts.Namespace, key), key)
}

func (b *Batch) getLocked(ukey, key string) (*domain.Node, error) {
	if p, ok := b.pending[ukey]; ok {
		if p.del {
			return nil, nil
		}
		return &domain.Node{Seq: p.seq, Key: key, Value: p.value}, nil
	}
	return b.e.get(b.e.Version(), ukey, key)
}

// Put stages a write of key.
func (b *Batch) Put(ctx context.Context, key string, value json.RawMessage, opts domain.PutOptions) error {
	value, err := normalizeValue(value)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.lockLocked(ctx); err != nil {
		return err
	}

	ukey := userKey(opts.Namespace, key)
	if opts.CAS {
		cur, err := b.getLocked(ukey, key)
		if err != nil {
			return err
		}
		if cur != nil && sameValue(cur.Value, value) {
			return nil
		}
	}
	b.stage(op{ukey: ukey, value: value})
	return nil
}

// Del stages a deletion of key. Deleting an absent key stages nothing.
func (b *Batch) Del(ctx context.Context, key string, opts domain.KeyOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.lockLocked(ctx); err != nil {
		return err
	}

	ukey := userKey(opts.Namespace, key)
	cur, err := b.getLocked(ukey, key)
	if err != nil || cur == nil {
		return err
	}
	b.stage(op{del: true, ukey: ukey})
	return nil
}

func (b *Batch) stage(o op) {
	seq := b.e.Version() + uint64(len(b.ops))
	b.ops = append(b.ops, o)
	b.pending[o.ukey] = &pendingNode{seq: seq, del: o.del, value: o.value}
}

// Peek returns the first node of the scan, or nil.
func (b *Batch) Peek(ctx context.Context, rng domain.Range, opts domain.ReadOptions) (*domain.Node, error) {
	return first(b.ReadStream(rng, opts))
}

// ReadStream scans committed keys merged with pending writes.
func (b *Batch) ReadStream(rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.Node, error] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errSeq[*domain.Node](domain.ErrHandleClosed)
	}
	return limit(b.scanLocked(rng, opts), opts.Limit)
}

func (b *Batch) scanLocked(rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.Node, error] {
	overlay := sortedOverlay(b.pending, opts.Namespace, rng, opts.Reverse)
	return mergeOverlay(b.e.scan(b.e.Version(), opts.Namespace, rng, opts.Reverse), overlay, opts.Reverse)
}

// HistoryStream scans the committed log followed by the pending appends.
func (b *Batch) HistoryStream(opts domain.HistoryOptions) iter.Seq2[*domain.HistoryEntry, error] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errSeq[*domain.HistoryEntry](domain.ErrHandleClosed)
	}

	base := b.e.Version()
	lo, hi := seqBounds(opts, base+uint64(len(b.ops)))
	var staged []*domain.HistoryEntry
	for i, o := range b.ops {
		seq := base + uint64(i)
		if seq < lo || seq >= hi {
			continue
		}
		key, ok := stripNamespace(opts.Namespace, o.ukey)
		if !ok {
			continue
		}
		typ := recordPut
		if o.del {
			typ = recordDel
		}
		staged = append(staged, historyEntry(seq, typ, key, o.value))
	}
	committed := b.e.history(base, opts.Namespace, opts)

	return limit(func(yield func(*domain.HistoryEntry, error) bool) {
		if !opts.Reverse {
			for entry, err := range committed {
				if !yield(entry, err) || err != nil {
					return
				}
			}
		}
		for i := range staged {
			entry := staged[i]
			if opts.Reverse {
				entry = staged[len(staged)-1-i]
			}
			if !yield(entry, nil) {
				return
			}
		}
		if opts.Reverse {
			for entry, err := range committed {
				if !yield(entry, err) || err != nil {
					return
				}
			}
		}
	}, opts.Limit)
}

// DiffStream compares the batch view (left) with a committed version (right).
func (b *Batch) DiffStream(otherVersion uint64, rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.DiffEntry, error] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errSeq[*domain.DiffEntry](domain.ErrHandleClosed)
	}
	return b.e.diffAt(b.scanLocked(rng, opts), otherVersion, rng, opts)
}

// GetHeader returns the header block.
func (b *Batch) GetHeader(ctx context.Context, opts domain.HeaderOptions) (*domain.Header, error) {
	return b.e.GetHeader(ctx, opts)
}

// Flush commits the pending writes as consecutive appends and releases the
// batch. It fires one append notification when anything was written.
func (b *Batch) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrHandleClosed
	}
	if len(b.ops) > 0 && !b.locked {
		// Unreachable: staging always locks first.
		b.mu.Unlock()
		return fmt.Errorf("batch: pending writes without writer lock")
	}

	var err error
	if len(b.ops) > 0 {
		err = b.e.commit(b.e.Version(), b.ops)
	}
	appended := err == nil && len(b.ops) > 0
	b.releaseLocked()
	b.mu.Unlock()

	if appended {
		b.e.notifyAppend()
	}
	return err
}

// Close discards pending writes and releases the writer lock.
func (b *Batch) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked()
	return nil
}

func (b *Batch) releaseLocked() {
	if b.closed {
		return
	}
	b.closed = true
	b.ops = nil
	b.pending = nil
	if b.locked {
		b.locked = false
		b.e.unlock()
	}
}
