package storage

import (
	"context"
	"encoding/json"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/LuKks/protobee/internal/core/domain"
)

// Checkout is a read-only view pinned to a version. Its namespace, when set,
// applies to every operation that does not name its own.
//
// The version may be ahead of the engine. Get, Peek and GetHeader then wait
// for it to be committed; streams should be opened after Wait.
type Checkout struct {
	e       *Engine
	version uint64
	ns      string
	closed  atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

// Wait blocks until the engine has reached the pinned version, the view is
// closed or ctx is done.
func (c *Checkout) Wait(ctx context.Context) error {
	if c.e.Version() >= c.version {
		return nil
	}

	appended := make(chan struct{}, 1)
	cancel := c.e.OnAppend(func() {
		select {
		case appended <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for c.e.Version() < c.version {
		if c.e.closed.Load() {
			return domain.ErrEngineClosed
		}
		select {
		case <-appended:
		case <-c.done:
			return domain.ErrHandleClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Version returns the pinned version.
func (c *Checkout) Version() uint64 { return c.version }

// Length returns the pinned version.
func (c *Checkout) Length() uint64 { return c.version }

func (c *Checkout) namespace(ns string) string {
	if ns != "" {
		return ns
	}
	return c.ns
}

// Get returns the node at key as of the pinned version, or nil.
func (c *Checkout) Get(ctx context.Context, key string, opts domain.KeyOptions) (*domain.Node, error) {
	if c.closed.Load() {
		return nil, domain.ErrHandleClosed
	}
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	return c.e.get(c.version, userKey(c.namespace(opts.Namespace), key), key)
}

// Put always fails: checkouts are read-only.
func (c *Checkout) Put(ctx context.Context, key string, value json.RawMessage, opts domain.PutOptions) error {
	return domain.ErrReadOnly
}

// Del always fails: checkouts are read-only.
func (c *Checkout) Del(ctx context.Context, key string, opts domain.KeyOptions) error {
	return domain.ErrReadOnly
}

// Peek returns the first node of the scan, or nil.
func (c *Checkout) Peek(ctx context.Context, rng domain.Range, opts domain.ReadOptions) (*domain.Node, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	return first(c.ReadStream(rng, opts))
}

// ReadStream scans keys as of the pinned version.
func (c *Checkout) ReadStream(rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.Node, error] {
	if c.closed.Load() {
		return errSeq[*domain.Node](domain.ErrHandleClosed)
	}
	return limit(c.e.scan(c.version, c.namespace(opts.Namespace), rng, opts.Reverse), opts.Limit)
}

// HistoryStream scans the log up to the pinned version.
func (c *Checkout) HistoryStream(opts domain.HistoryOptions) iter.Seq2[*domain.HistoryEntry, error] {
	if c.closed.Load() {
		return errSeq[*domain.HistoryEntry](domain.ErrHandleClosed)
	}
	return limit(c.e.history(c.version, c.namespace(opts.Namespace), opts), opts.Limit)
}

// DiffStream compares the pinned version (left) with otherVersion (right).
func (c *Checkout) DiffStream(otherVersion uint64, rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.DiffEntry, error] {
	if c.closed.Load() {
		return errSeq[*domain.DiffEntry](domain.ErrHandleClosed)
	}
	opts.Namespace = c.namespace(opts.Namespace)
	return c.e.diffAt(c.e.scan(c.version, opts.Namespace, rng, opts.Reverse), otherVersion, rng, opts)
}

// GetHeader returns the header block, or nil for a checkout of version 0.
func (c *Checkout) GetHeader(ctx context.Context, opts domain.HeaderOptions) (*domain.Header, error) {
	if c.closed.Load() {
		return nil, domain.ErrHandleClosed
	}
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	return c.e.header(c.version)
}

// Close releases the view. Later operations fail with ErrHandleClosed.
func (c *Checkout) Close() error {
	c.closed.Store(true)
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
