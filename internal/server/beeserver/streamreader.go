package beeserver

import (
	"context"
	"iter"
	"sync"

	"github.com/LuKks/protobee/internal/storage"
)

// StreamState is the lifecycle state of a StreamReader.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamReadable
	StreamEnded
	StreamDestroyed
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamReadable:
		return "readable"
	case StreamEnded:
		return "ended"
	case StreamDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// ticket is a reserved turn in a reader's queue. done is closed once the
// turn is over; prev is the turn before it.
type ticket struct {
	prev <-chan struct{}
	done chan struct{}
}

// streamHandle is what the stream registry holds, whatever the item type.
type streamHandle interface {
	reserve() ticket
	readAny(ctx context.Context, t ticket) (any, uint64, bool, error)
	Destroy()
	State() StreamState
	view() storage.View
}

// StreamReader turns a lazy sequence into pull reads that can be driven by
// independent requests.
//
// Reads run in the order their turns were reserved; the session reserves a
// turn when a stream-read arrives, before handing it to a goroutine. Every
// read is numbered. Exhaustion, an error or Destroy stop the sequence and
// release its transaction.
type StreamReader[T any] struct {
	// sem is a one slot lock that can be waited on with a context.
	sem chan struct{}

	qmu   sync.Mutex
	tail  chan struct{}
	reads uint64

	next  func() (T, error, bool)
	stop  func()
	state StreamState

	source storage.View
}

// NewStreamReader wraps seq, which was opened against source.
func NewStreamReader[T any](seq iter.Seq2[T, error], source storage.View) *StreamReader[T] {
	next, stop := iter.Pull2(seq)
	return &StreamReader[T]{
		sem:    make(chan struct{}, 1),
		next:   next,
		stop:   stop,
		source: source,
	}
}

func (r *StreamReader[T]) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *StreamReader[T]) release() { <-r.sem }

func (r *StreamReader[T]) reserve() ticket {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	t := ticket{prev: r.tail, done: make(chan struct{})}
	r.tail = t.done
	return t
}

// Read returns the next item. At the end of the sequence, and on every read
// after it or after Destroy, it returns the zero item with ended set.
func (r *StreamReader[T]) Read(ctx context.Context) (item T, ended bool, err error) {
	item, _, ended, err = r.readTurn(ctx, r.reserve())
	return item, ended, err
}

// readTurn waits for the turns reserved before t, then reads. seq numbers
// the read on this stream, starting at 1.
func (r *StreamReader[T]) readTurn(ctx context.Context, t ticket) (item T, seq uint64, ended bool, err error) {
	defer close(t.done)
	if t.prev != nil {
		select {
		case <-t.prev:
		case <-ctx.Done():
			return item, 0, false, ctx.Err()
		}
	}

	if err := r.acquire(ctx); err != nil {
		return item, 0, false, err
	}
	defer r.release()

	r.reads++
	seq = r.reads

	switch r.state {
	case StreamEnded, StreamDestroyed:
		return item, seq, true, nil
	}

	v, err, ok := r.next()
	if err != nil {
		r.stop()
		r.state = StreamEnded
		return item, seq, false, err
	}
	if !ok {
		r.stop()
		r.state = StreamEnded
		return item, seq, true, nil
	}
	r.state = StreamReadable
	return v, seq, false, nil
}

func (r *StreamReader[T]) readAny(ctx context.Context, t ticket) (any, uint64, bool, error) {
	return r.readTurn(ctx, t)
}

// Destroy stops the sequence early, waiting for an in-flight read first.
// It is safe to call more than once.
func (r *StreamReader[T]) Destroy() {
	r.sem <- struct{}{}
	defer r.release()

	if r.state != StreamDestroyed {
		r.stop()
		r.state = StreamDestroyed
	}
}

// State reports the current lifecycle state.
func (r *StreamReader[T]) State() StreamState {
	r.sem <- struct{}{}
	defer r.release()
	return r.state
}

func (r *StreamReader[T]) view() storage.View { return r.source }
