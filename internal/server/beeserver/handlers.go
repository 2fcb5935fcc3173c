package beeserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/LuKks/protobee/internal/core/domain"
	"github.com/LuKks/protobee/internal/protocol"
	"github.com/LuKks/protobee/internal/registry"
	"github.com/LuKks/protobee/internal/storage"
)

type handlerFunc func(s *session, ctx context.Context, params json.RawMessage) (any, error)

var handlers = map[string]handlerFunc{
	protocol.MethodSync:          (*session).onSync,
	protocol.MethodPut:           (*session).onPut,
	protocol.MethodGet:           (*session).onGet,
	protocol.MethodDel:           (*session).onDel,
	protocol.MethodPeek:          (*session).onPeek,
	protocol.MethodBatch:         (*session).onBatch,
	protocol.MethodLock:          (*session).onLock,
	protocol.MethodFlush:         (*session).onFlush,
	protocol.MethodCheckout:      (*session).onCheckout,
	protocol.MethodSnapshot:      (*session).onSnapshot,
	protocol.MethodReadStream:    (*session).onReadStream,
	protocol.MethodHistoryStream: (*session).onHistoryStream,
	protocol.MethodDiffStream:    (*session).onDiffStream,
	protocol.MethodStreamRead:    (*session).onStreamRead,
	protocol.MethodStreamDestroy: (*session).onStreamDestroy,
	protocol.MethodGetHeader:     (*session).onGetHeader,
	protocol.MethodClose:         (*session).onClose,
}

func (s *session) call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	h, ok := handlers[method]
	if !ok {
		return nil, domain.ErrUnknownMethod.WithDetails(method)
	}
	return h(s, ctx, params)
}

// resolve returns the view addressed by target. An id this session never
// registered (or already released) resolves to nil without error; an id
// owned by another session is a protocol violation.
func (s *session) resolve(target protocol.Target) (storage.View, error) {
	if target.IsRoot() {
		return s.srv.engine, nil
	}
	inst, err := s.srv.instances.Get(s, registry.ID(target.ID()))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return inst, nil
}

func envelope(v storage.View) protocol.Envelope {
	return protocol.Envelope{Length: v.Length(), Version: v.Version()}
}

// wrap pairs out with the envelope of v, or of the root when v is nil.
func (s *session) wrap(out any, v storage.View) protocol.Response[any] {
	if v == nil {
		v = s.srv.engine
	}
	return protocol.Response[any]{Out: out, Sync: envelope(v)}
}

func (s *session) onSync(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.TargetParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	v, err := s.resolve(p.ID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		// Released or never registered; the caller keeps its watermark.
		return protocol.Envelope{}, nil
	}
	return envelope(v), nil
}

func (s *session) onPut(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.PutParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	cas, err := p.CASFlag()
	if err != nil {
		return nil, err
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	if err := v.Put(ctx, p.Key, p.Value, domain.PutOptions{CAS: cas, Namespace: p.Options.Namespace}); err != nil {
		return nil, err
	}
	return s.wrap(nil, v), nil
}

func (s *session) onGet(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.KeyParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	node, err := v.Get(ctx, p.Key, p.Options)
	if err != nil {
		return nil, err
	}
	return s.wrap(node, v), nil
}

func (s *session) onDel(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.KeyParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	if len(p.CAS) > 0 && string(p.CAS) != "null" && string(p.CAS) != "false" {
		return nil, domain.ErrUnsupportedOption.WithDetails("cas is not supported on del")
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	if err := v.Del(ctx, p.Key, p.Options); err != nil {
		return nil, err
	}
	return s.wrap(nil, v), nil
}

func (s *session) onPeek(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.RangeParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	node, err := v.Peek(ctx, p.Range, p.Options)
	if err != nil {
		return nil, err
	}
	return s.wrap(node, v), nil
}

func (s *session) onBatch(ctx context.Context, params json.RawMessage) (any, error) {
	b := s.srv.engine.Batch()
	id := s.srv.instances.Add(s, b)
	return s.wrap(id, b), nil
}

func (s *session) onLock(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.TargetParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	b, ok := v.(*storage.Batch)
	if !ok {
		return nil, domain.ErrNotBatch
	}
	if err := b.Lock(ctx); err != nil {
		return nil, err
	}
	return s.wrap(nil, b), nil
}

// onFlush unregisters the batch before committing it, so the id is gone
// whatever the outcome. The envelope is the root's.
func (s *session) onFlush(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.TargetParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	if p.ID.IsRoot() {
		return nil, domain.ErrNotBatch
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	b, ok := v.(*storage.Batch)
	if !ok {
		return nil, domain.ErrNotBatch
	}
	if _, err := s.srv.instances.Delete(s, registry.ID(p.ID.ID())); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.wrap(nil, nil), nil
		}
		return nil, err
	}
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return s.wrap(nil, nil), nil
}

func (s *session) onCheckout(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.CheckoutParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	c, err := s.srv.engine.Checkout(p.Version, p.Options)
	if err != nil {
		return nil, err
	}
	id := s.srv.instances.Add(s, c)
	return s.wrap(id, c), nil
}

func (s *session) onSnapshot(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.SnapshotParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	c, err := s.srv.engine.Snapshot(p.Options)
	if err != nil {
		return nil, err
	}
	id := s.srv.instances.Add(s, c)
	return s.wrap(id, c), nil
}

// await holds a stream open on a checkout until its version is committed.
func await(ctx context.Context, v storage.View) error {
	if c, ok := v.(*storage.Checkout); ok {
		return c.Wait(ctx)
	}
	return nil
}

func (s *session) openStream(h streamHandle) any {
	id := s.srv.streams.Add(s, h)
	return s.wrap(id, h.view())
}

func (s *session) onReadStream(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.RangeParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	if err := await(ctx, v); err != nil {
		return nil, err
	}
	return s.openStream(NewStreamReader(v.ReadStream(p.Range, p.Options), v)), nil
}

func (s *session) onHistoryStream(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.HistoryParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	if err := await(ctx, v); err != nil {
		return nil, err
	}
	return s.openStream(NewStreamReader(v.HistoryStream(p.Options), v)), nil
}

func (s *session) onDiffStream(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.DiffParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	if err := await(ctx, v); err != nil {
		return nil, err
	}
	return s.openStream(NewStreamReader(v.DiffStream(p.OtherVersion, p.Range, p.Options), v)), nil
}

func (s *session) onStreamRead(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.StreamParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	q, ok := ctx.Value(queuedReadKey{}).(queuedRead)
	if !ok {
		h, err := s.srv.streams.Get(s, registry.ID(p.StreamID))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return s.wrap(nil, nil), nil
			}
			return nil, err
		}
		q = queuedRead{h: h, t: h.reserve()}
	}

	item, seq, ended, err := q.h.readAny(ctx, q.t)
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(item)
	if err != nil {
		return nil, domain.ErrEngine.Wrap(err)
	}
	return s.wrap(protocol.StreamChunk{Value: value, Ended: ended, Seq: seq}, q.h.view()), nil
}

func (s *session) onStreamDestroy(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.StreamParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	h, err := s.srv.streams.Delete(s, registry.ID(p.StreamID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.wrap(nil, nil), nil
		}
		return nil, err
	}
	h.Destroy()
	return s.wrap(nil, nil), nil
}

func (s *session) onGetHeader(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.HeaderParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	v, err := s.resolve(p.ID)
	if err != nil || v == nil {
		return s.wrap(nil, nil), err
	}
	header, err := v.GetHeader(ctx, p.Options)
	if err != nil {
		return nil, err
	}
	return s.wrap(header, v), nil
}

// onClose releases an instance; a batch that was never flushed is discarded.
// The envelope is the root's.
func (s *session) onClose(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.TargetParams
	if err := protocol.Decode(params, &p); err != nil {
		return nil, err
	}
	if p.ID.IsRoot() {
		return s.wrap(nil, nil), nil
	}
	inst, err := s.srv.instances.Delete(s, registry.ID(p.ID.ID()))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.wrap(nil, nil), nil
		}
		return nil, err
	}
	if err := inst.Close(); err != nil {
		return nil, err
	}
	return s.wrap(nil, nil), nil
}
