package client

import (
	"cmp"
	"context"
	"encoding/json"
	"iter"
	"math"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/LuKks/protobee/internal/core/domain"
	"github.com/LuKks/protobee/internal/protocol"
)

// StreamOption configures a stream.
type StreamOption func(*streamOptions)

type streamOptions struct {
	prefetch int
}

// WithPrefetch keeps up to n extra stream-read requests in flight.
func WithPrefetch(n int) StreamOption {
	return func(o *streamOptions) { o.prefetch = max(n, 0) }
}

// Stream is a server-side scan read over the connection one item at a time.
// The scan is opened by the first Next and destroyed once it ends or on
// Close.
//
//	s := db.ReadStream(client.Range{Gte: "/a"}, client.ReadOptions{})
//	defer s.Close(ctx)
//	for s.Next(ctx) {
//		use(s.Value())
//	}
//	if err := s.Err(); err != nil { ... }
//
// A Stream is not safe for concurrent use.
type Stream[T any] struct {
	db       *DB
	method   string
	params   func(protocol.Target) any
	prefetch int

	opened bool
	id     uint32
	gen    uint64
	buf    []*T
	cur    *T
	ended  bool
	err    error

	destroyOnce sync.Once
	destroyed   bool
	destroyErr  error
}

func newStream[T any](db *DB, method string, params func(protocol.Target) any, opts []StreamOption) *Stream[T] {
	var o streamOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Stream[T]{db: db, method: method, params: params, prefetch: o.prefetch}
}

// ReadStream scans keys inside rng in key order.
func (db *DB) ReadStream(rng Range, opts ReadOptions, sopts ...StreamOption) *Stream[Node] {
	return newStream[Node](db, protocol.MethodReadStream, func(id protocol.Target) any {
		return protocol.RangeParams{ID: id, Range: rng, Options: opts}
	}, sopts)
}

// HistoryStream scans the append log.
func (db *DB) HistoryStream(opts HistoryOptions, sopts ...StreamOption) *Stream[HistoryEntry] {
	return newStream[HistoryEntry](db, protocol.MethodHistoryStream, func(id protocol.Target) any {
		return protocol.HistoryParams{ID: id, Options: opts}
	}, sopts)
}

// DiffStream compares this handle (left) with other (right), which is a
// version or another handle whose version is used.
func (db *DB) DiffStream(other Versioned, rng Range, opts ReadOptions, sopts ...StreamOption) *Stream[DiffEntry] {
	return newStream[DiffEntry](db, protocol.MethodDiffStream, func(id protocol.Target) any {
		return protocol.DiffParams{ID: id, OtherVersion: other.Version(), Range: rng, Options: opts}
	}, sopts)
}

// Next advances to the next item. It returns false at the end of the scan
// or on error.
func (s *Stream[T]) Next(ctx context.Context) bool {
	for len(s.buf) == 0 {
		if s.err != nil {
			s.cur = nil
			return false
		}
		if s.ended {
			s.cur = nil
			if err := s.destroy(ctx); err != nil {
				s.err = err
			}
			return false
		}
		if !s.opened {
			if s.err = s.open(ctx); s.err != nil {
				return false
			}
			continue
		}
		s.fill(ctx)
	}
	s.cur, s.buf = s.buf[0], s.buf[1:]
	return true
}

// Value returns the current item.
func (s *Stream[T]) Value() *T { return s.cur }

// Err returns the error that stopped the stream, if any.
func (s *Stream[T]) Err() error { return s.err }

// Destroyed reports whether the server-side scan has been released.
func (s *Stream[T]) Destroyed() bool { return s.destroyed }

// All iterates the remaining items and closes the stream when done.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		defer s.Close(ctx)
		for s.Next(ctx) {
			if !yield(s.Value(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Close destroys the scan early. It is a no-op once the stream ended or
// when the connection is gone.
func (s *Stream[T]) Close(ctx context.Context) error {
	s.buf = nil
	if s.err == nil && !s.ended {
		s.err = ErrHandleClosed.WithDetails("stream closed")
	}
	return s.destroy(ctx)
}

func (s *Stream[T]) open(ctx context.Context) error {
	conn, err := s.db.connect(ctx)
	if err != nil {
		return err
	}
	var resp protocol.Response[uint32]
	if err := conn.call(ctx, s.method, s.params(s.db.target()), &resp); err != nil {
		return err
	}
	s.db.apply(resp.Sync)
	s.opened = true
	s.id = resp.Out
	s.gen = conn.gen
	if s.id == 0 {
		// The target handle is gone on the server; nothing to read.
		s.ended = true
		s.destroyed = true
	}
	return nil
}

// fill issues 1+prefetch concurrent reads and applies them in request order,
// stopping at the first that reports the end. The scan is destroyed by Next
// once the buffered items are consumed.
func (s *Stream[T]) fill(ctx context.Context) {
	conn, err := s.db.connect(ctx)
	if err == nil && conn.gen != s.gen {
		err = ErrInstanceLost
	}
	if err != nil {
		s.err = err
		return
	}

	n := 1 + s.prefetch
	chunks := make([]*protocol.StreamChunk, n)
	errs := make([]error, n)
	envs := make([]protocol.Envelope, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			var resp protocol.Response[*protocol.StreamChunk]
			errs[i] = conn.call(ctx, protocol.MethodStreamRead, protocol.StreamParams{StreamID: s.id}, &resp)
			chunks[i], envs[i] = resp.Out, resp.Sync
			return errs[i]
		})
	}
	g.Wait()

	// Requests may reach the server in any order; apply them in read order.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(chunkSeq(chunks[a]), chunkSeq(chunks[b]))
	})

	for _, i := range order {
		if errs[i] != nil {
			s.err = errs[i]
			return
		}
		s.db.apply(envs[i])

		chunk := chunks[i]
		if chunk == nil || chunk.Ended {
			s.ended = true
			return
		}

		v := new(T)
		if err := json.Unmarshal(chunk.Value, v); err != nil {
			s.err = domain.ErrInvalidRequest.Wrap(err)
			return
		}
		s.buf = append(s.buf, v)
	}
}

// chunkSeq orders missing chunks last.
func chunkSeq(c *protocol.StreamChunk) uint64 {
	if c == nil {
		return math.MaxUint64
	}
	return c.Seq
}

func (s *Stream[T]) destroy(ctx context.Context) error {
	if !s.opened || s.id == 0 {
		s.destroyed = true
		return nil
	}
	s.destroyOnce.Do(func() {
		s.destroyed = true
		conn, ok := s.db.link.current()
		if !ok || conn.gen != s.gen {
			return
		}
		var resp protocol.Response[json.RawMessage]
		if err := conn.call(ctx, protocol.MethodStreamDestroy, protocol.StreamParams{StreamID: s.id}, &resp); err != nil {
			s.destroyErr = err
			return
		}
		s.db.apply(resp.Sync)
	})
	return s.destroyErr
}
