package client

import (
	"context"
	"encoding/json"

	"github.com/LuKks/protobee/internal/core/domain"
	"github.com/LuKks/protobee/internal/protocol"
)

func (db *DB) readOnly() bool {
	return db.kind == KindCheckout || db.kind == KindSnapshot
}

func encodeValue(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, domain.ErrInvalidRequest.WithDetails("value is not valid JSON")
		}
		return raw, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, domain.ErrInvalidRequest.Wrap(err)
	}
	return raw, nil
}

func targetParams(id protocol.Target) any {
	return protocol.TargetParams{ID: id}
}

// Update fetches the current watermark of the handle's target.
func (db *DB) Update(ctx context.Context) error {
	s, err := db.connect(ctx)
	if err != nil {
		return err
	}
	var env protocol.Envelope
	if err := s.call(ctx, protocol.MethodSync, protocol.TargetParams{ID: db.target()}, &env); err != nil {
		return err
	}
	db.apply(env)
	return nil
}

// Put writes value at key. value is encoded as JSON unless it already is a
// json.RawMessage. With CAS set, a structurally equal stored value makes the
// put a no-op.
func (db *DB) Put(ctx context.Context, key string, value any, opts PutOptions) error {
	if db.readOnly() {
		return ErrReadOnly.WithDetails("can not put from a " + db.kind.String())
	}
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}

	_, err = request[json.RawMessage](ctx, db, protocol.MethodPut, func(id protocol.Target) any {
		params := protocol.PutParams{
			ID:      id,
			Key:     key,
			Value:   raw,
			Options: domain.KeyOptions{Namespace: opts.Namespace},
		}
		if opts.CAS {
			params.CAS = json.RawMessage("true")
		}
		return params
	})
	return err
}

// Get returns the node at key, or nil when absent.
func (db *DB) Get(ctx context.Context, key string, opts KeyOptions) (*Node, error) {
	return request[*Node](ctx, db, protocol.MethodGet, func(id protocol.Target) any {
		return protocol.KeyParams{ID: id, Key: key, Options: opts}
	})
}

// Del deletes key.
func (db *DB) Del(ctx context.Context, key string, opts DelOptions) error {
	if db.readOnly() {
		return ErrReadOnly.WithDetails("can not del from a " + db.kind.String())
	}
	if opts.CAS {
		return ErrUnsupportedOption.WithDetails("cas is not supported on del")
	}
	_, err := request[json.RawMessage](ctx, db, protocol.MethodDel, func(id protocol.Target) any {
		return protocol.KeyParams{ID: id, Key: key, Options: domain.KeyOptions{Namespace: opts.Namespace}}
	})
	return err
}

// Peek returns the first node of the scan, or nil.
func (db *DB) Peek(ctx context.Context, rng Range, opts ReadOptions) (*Node, error) {
	return request[*Node](ctx, db, protocol.MethodPeek, func(id protocol.Target) any {
		return protocol.RangeParams{ID: id, Range: rng, Options: opts}
	})
}

// GetHeader returns the header block.
func (db *DB) GetHeader(ctx context.Context, opts HeaderOptions) (*Header, error) {
	return request[*Header](ctx, db, protocol.MethodGetHeader, func(id protocol.Target) any {
		return protocol.HeaderParams{ID: id, Options: opts}
	})
}

// Batch starts a batch. Writes through it become visible on the root
// atomically when it is flushed.
func (db *DB) Batch() (*DB, error) {
	if db.kind != KindMain {
		return nil, ErrNestedDerivation.WithDetails("batch")
	}
	return db.derive(KindBatch, db.envelope(), protocol.MethodBatch, nil), nil
}

// Checkout opens a read-only view of the database at version.
func (db *DB) Checkout(version uint64, opts ViewOptions) (*DB, error) {
	if db.kind != KindMain {
		return nil, ErrNestedDerivation.WithDetails("checkout")
	}
	env := protocol.Envelope{Version: version}
	if version > 0 {
		env.Length = version - 1
	}
	return db.derive(KindCheckout, env, protocol.MethodCheckout, protocol.CheckoutParams{Version: version, Options: opts}), nil
}

// Snapshot opens a read-only view of the current version.
func (db *DB) Snapshot(opts ViewOptions) (*DB, error) {
	if db.kind != KindMain {
		return nil, ErrNestedDerivation.WithDetails("snapshot")
	}
	return db.derive(KindSnapshot, db.envelope(), protocol.MethodSnapshot, protocol.SnapshotParams{Options: opts}), nil
}

// Lock takes the writer lock for the batch without writing.
func (db *DB) Lock(ctx context.Context) error {
	if db.kind != KindBatch {
		return ErrNotBatch.WithDetails("lock")
	}
	_, err := request[json.RawMessage](ctx, db, protocol.MethodLock, targetParams)
	return err
}

// Flush commits the batch and closes it. The root handle observes the new
// version as well.
func (db *DB) Flush(ctx context.Context) error {
	if db.kind != KindBatch {
		return ErrNotBatch.WithDetails("flush")
	}

	s, err := db.connect(ctx)
	if err != nil {
		return err
	}
	var resp protocol.Response[json.RawMessage]
	if err := s.call(ctx, protocol.MethodFlush, protocol.TargetParams{ID: db.target()}, &resp); err != nil {
		return err
	}

	db.mu.Lock()
	db.flushed = true
	db.env = db.env.Merge(resp.Sync)
	db.mu.Unlock()
	db.root.apply(resp.Sync)

	return db.Close(ctx)
}
