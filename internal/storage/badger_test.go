package storage

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/LuKks/protobee/internal/core/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := Config{InMemory: true, Badger: DefaultBadgerConfig()}
	e, err := Open(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func collect[T any](t *testing.T, seq iter.Seq2[T, error]) []T {
	t.Helper()
	var out []T
	for v, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, v)
	}
	return out
}

func mustPut(t *testing.T, v View, key, value string) {
	t.Helper()
	if err := v.Put(context.Background(), key, raw(value), domain.PutOptions{}); err != nil {
		t.Fatalf("Put(%q) error: %v", key, err)
	}
}

func TestEngine_BasicOperations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if got := e.Version(); got != 1 {
		t.Fatalf("Version() on new store = %d, want 1", got)
	}

	t.Run("Header", func(t *testing.T) {
		h, err := e.GetHeader(ctx, domain.HeaderOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if h == nil || h.Protocol != domain.HeaderProtocol {
			t.Errorf("GetHeader() = %+v, want protocol %q", h, domain.HeaderProtocol)
		}
	})

	t.Run("Put and Get", func(t *testing.T) {
		mustPut(t, e, "/a", `{"num":123}`)
		node, err := e.Get(ctx, "/a", domain.KeyOptions{})
		if err != nil {
			t.Fatal(err)
		}
		want := &domain.Node{Seq: 1, Key: "/a", Value: raw(`{"num":123}`)}
		if diff := cmp.Diff(want, node); diff != "" {
			t.Errorf("Get(/a) mismatch (-want +got):\n%s", diff)
		}
		if got := e.Version(); got != 2 {
			t.Errorf("Version() = %d, want 2", got)
		}
	})

	t.Run("Get missing key", func(t *testing.T) {
		node, err := e.Get(ctx, "/missing", domain.KeyOptions{})
		if err != nil || node != nil {
			t.Errorf("Get(/missing) = (%v, %v), want (nil, nil)", node, err)
		}
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		err := e.Put(ctx, "/bad", raw(`{`), domain.PutOptions{})
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("Put(invalid) error = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("Del missing key appends nothing", func(t *testing.T) {
		before := e.Version()
		if err := e.Del(ctx, "/missing", domain.KeyOptions{}); err != nil {
			t.Fatal(err)
		}
		if got := e.Version(); got != before {
			t.Errorf("Version() after no-op del = %d, want %d", got, before)
		}
	})

	t.Run("Del", func(t *testing.T) {
		mustPut(t, e, "/gone", `1`)
		if err := e.Del(ctx, "/gone", domain.KeyOptions{}); err != nil {
			t.Fatal(err)
		}
		node, _ := e.Get(ctx, "/gone", domain.KeyOptions{})
		if node != nil {
			t.Errorf("Get after Del = %+v, want nil", node)
		}
	})
}

func TestEngine_CAS(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mustPut(t, e, "/a", `{"x":1,"y":[1,2]}`)
	v := e.Version()

	// Same structure, different formatting.
	if err := e.Put(ctx, "/a", raw(`{ "y": [1, 2], "x": 1 }`), domain.PutOptions{CAS: true}); err != nil {
		t.Fatal(err)
	}
	if got := e.Version(); got != v {
		t.Errorf("Version() after equal CAS put = %d, want %d", got, v)
	}

	if err := e.Put(ctx, "/a", raw(`{"x":2}`), domain.PutOptions{CAS: true}); err != nil {
		t.Fatal(err)
	}
	if got := e.Version(); got != v+1 {
		t.Errorf("Version() after different CAS put = %d, want %d", got, v+1)
	}

	// Without CAS an equal value still appends.
	mustPut(t, e, "/a", `{"x":2}`)
	if got := e.Version(); got != v+2 {
		t.Errorf("Version() after plain put = %d, want %d", got, v+2)
	}
}

func TestEngine_ReadStream(t *testing.T) {
	e := newTestEngine(t)
	for _, k := range []string{"/a", "/b", "/c", "/d"} {
		mustPut(t, e, k, `"`+k+`"`)
	}

	keys := func(nodes []*domain.Node) []string {
		out := make([]string, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, n.Key)
		}
		return out
	}

	tests := []struct {
		name string
		rng  domain.Range
		opts domain.ReadOptions
		want []string
	}{
		{"all", domain.Range{}, domain.ReadOptions{}, []string{"/a", "/b", "/c", "/d"}},
		{"gt", domain.Range{Gt: "/a"}, domain.ReadOptions{}, []string{"/b", "/c", "/d"}},
		{"gte lt", domain.Range{Gte: "/b", Lt: "/d"}, domain.ReadOptions{}, []string{"/b", "/c"}},
		{"lte", domain.Range{Lte: "/b"}, domain.ReadOptions{}, []string{"/a", "/b"}},
		{"reverse", domain.Range{}, domain.ReadOptions{Reverse: true}, []string{"/d", "/c", "/b", "/a"}},
		{"reverse bounded", domain.Range{Gt: "/a", Lt: "/d"}, domain.ReadOptions{Reverse: true}, []string{"/c", "/b"}},
		{"limit", domain.Range{}, domain.ReadOptions{Limit: 2}, []string{"/a", "/b"}},
		{"reverse limit", domain.Range{}, domain.ReadOptions{Reverse: true, Limit: 1}, []string{"/d"}},
		{"empty", domain.Range{Gt: "/z"}, domain.ReadOptions{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keys(collect(t, e.ReadStream(tt.rng, tt.opts)))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ReadStream mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("peek", func(t *testing.T) {
		node, err := e.Peek(context.Background(), domain.Range{Gt: "/b"}, domain.ReadOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if node == nil || node.Key != "/c" {
			t.Errorf("Peek(gt /b) = %+v, want /c", node)
		}
	})
}

func TestEngine_HistoryStream(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mustPut(t, e, "/a", `"1"`)
	mustPut(t, e, "/b", `"2"`)
	if err := e.Del(ctx, "/a", domain.KeyOptions{}); err != nil {
		t.Fatal(err)
	}

	all := []*domain.HistoryEntry{
		{Type: "put", Seq: 1, Key: "/a", Value: raw(`"1"`)},
		{Type: "put", Seq: 2, Key: "/b", Value: raw(`"2"`)},
		{Type: "del", Seq: 3, Key: "/a", Value: raw(`null`)},
	}

	tests := []struct {
		name string
		opts domain.HistoryOptions
		want []*domain.HistoryEntry
	}{
		{"all", domain.HistoryOptions{}, all},
		{"gt", domain.HistoryOptions{Gt: 2}, all[2:]},
		{"gte lt", domain.HistoryOptions{Gte: 2, Lt: 3}, all[1:2]},
		{"lte", domain.HistoryOptions{Lte: 1}, all[:1]},
		{"reverse", domain.HistoryOptions{Reverse: true}, []*domain.HistoryEntry{all[2], all[1], all[0]}},
		{"limit", domain.HistoryOptions{Limit: 2}, all[:2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, e.HistoryStream(tt.opts))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("HistoryStream mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEngine_DiffStream(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mustPut(t, e, "/a", `"1"`)
	mustPut(t, e, "/b", `"2"`)
	if err := e.Del(ctx, "/a", domain.KeyOptions{}); err != nil {
		t.Fatal(err)
	}

	got := collect(t, e.DiffStream(2, domain.Range{}, domain.ReadOptions{}))
	want := []*domain.DiffEntry{
		{Left: nil, Right: &domain.Node{Seq: 1, Key: "/a", Value: raw(`"1"`)}},
		{Left: &domain.Node{Seq: 2, Key: "/b", Value: raw(`"2"`)}, Right: nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DiffStream(2) mismatch (-want +got):\n%s", diff)
	}

	got = collect(t, e.DiffStream(2, domain.Range{Gt: "/a"}, domain.ReadOptions{}))
	if diff := cmp.Diff(want[1:], got); diff != "" {
		t.Errorf("DiffStream(2, gt /a) mismatch (-want +got):\n%s", diff)
	}

	if got := collect(t, e.DiffStream(e.Version(), domain.Range{}, domain.ReadOptions{})); len(got) != 0 {
		t.Errorf("DiffStream(current) = %d entries, want 0", len(got))
	}

	for _, err := range e.DiffStream(e.Version()+1, domain.Range{}, domain.ReadOptions{}) {
		if !errors.Is(err, domain.ErrVersionOutOfRange) {
			t.Errorf("DiffStream(future) error = %v, want ErrVersionOutOfRange", err)
		}
	}
}

func TestEngine_Checkout(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mustPut(t, e, "/a", `"old"`)
	v := e.Version()
	mustPut(t, e, "/a", `"new"`)
	mustPut(t, e, "/b", `"b"`)

	co, err := e.Checkout(v, domain.ViewOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer co.Close()

	if co.Version() != v {
		t.Errorf("Checkout.Version() = %d, want %d", co.Version(), v)
	}
	node, err := co.Get(ctx, "/a", domain.KeyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if node == nil || string(node.Value) != `"old"` || node.Seq != 1 {
		t.Errorf("Checkout.Get(/a) = %+v, want seq 1 \"old\"", node)
	}
	if nodes := collect(t, co.ReadStream(domain.Range{}, domain.ReadOptions{})); len(nodes) != 1 {
		t.Errorf("Checkout.ReadStream = %d nodes, want 1", len(nodes))
	}
	if entries := collect(t, co.HistoryStream(domain.HistoryOptions{})); len(entries) != 1 {
		t.Errorf("Checkout.HistoryStream = %d entries, want 1", len(entries))
	}

	if err := co.Put(ctx, "/x", raw(`1`), domain.PutOptions{}); !errors.Is(err, domain.ErrReadOnly) {
		t.Errorf("Checkout.Put error = %v, want ErrReadOnly", err)
	}
	if err := co.Del(ctx, "/a", domain.KeyOptions{}); !errors.Is(err, domain.ErrReadOnly) {
		t.Errorf("Checkout.Del error = %v, want ErrReadOnly", err)
	}

	co.Close()
	if _, err := co.Get(ctx, "/a", domain.KeyOptions{}); !errors.Is(err, domain.ErrHandleClosed) {
		t.Errorf("Get after Close error = %v, want ErrHandleClosed", err)
	}
}

func TestEngine_FutureCheckout(t *testing.T) {
	e := newTestEngine(t)

	mustPut(t, e, "/a", `"1"`)
	co, err := e.Checkout(e.Version()+1, domain.ViewOptions{})
	if err != nil {
		t.Fatalf("Checkout(future) error = %v", err)
	}
	defer co.Close()

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := co.Get(short, "/a", domain.KeyOptions{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Get before the version exists = %v, want DeadlineExceeded", err)
	}

	type result struct {
		node *domain.Node
		err  error
	}
	done := make(chan result, 1)
	go func() {
		node, err := co.Get(context.Background(), "/a", domain.KeyOptions{})
		done <- result{node, err}
	}()

	mustPut(t, e, "/a", `"2"`)

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatal(r.err)
		}
		if r.node == nil || r.node.Seq != 2 || string(r.node.Value) != `"2"` {
			t.Errorf("Get() = %+v, want seq 2 \"2\"", r.node)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Get() did not resolve after the version was committed")
	}

	// Closing wakes a pending wait.
	ahead, err := e.Checkout(e.Version()+5, domain.ViewOptions{})
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		ahead.Close()
	}()
	if err := ahead.Wait(context.Background()); !errors.Is(err, domain.ErrHandleClosed) {
		t.Errorf("Wait() after Close = %v, want ErrHandleClosed", err)
	}
}

func TestEngine_Snapshot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mustPut(t, e, "/a", `1`)
	snap, err := e.Snapshot(domain.ViewOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Close()

	mustPut(t, e, "/a", `2`)

	if snap.Version() != 2 {
		t.Errorf("Snapshot.Version() = %d, want 2", snap.Version())
	}
	node, _ := snap.Get(ctx, "/a", domain.KeyOptions{})
	if node == nil || string(node.Value) != `1` {
		t.Errorf("Snapshot.Get(/a) = %+v, want value 1", node)
	}
}

func TestEngine_Namespace(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	files := domain.KeyOptions{Namespace: "files"}

	if err := e.Put(ctx, "/a", raw(`"1"`), domain.PutOptions{Namespace: "files"}); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "/b", raw(`"2"`), domain.PutOptions{Namespace: "files"}); err != nil {
		t.Fatal(err)
	}

	if node, _ := e.Get(ctx, "/a", domain.KeyOptions{}); node != nil {
		t.Errorf("Get(/a) outside namespace = %+v, want nil", node)
	}
	node, _ := e.Get(ctx, "/a", files)
	if diff := cmp.Diff(&domain.Node{Seq: 1, Key: "/a", Value: raw(`"1"`)}, node); diff != "" {
		t.Errorf("Get(/a, files) mismatch (-want +got):\n%s", diff)
	}

	if err := e.Del(ctx, "/a", files); err != nil {
		t.Fatal(err)
	}

	nodes := collect(t, e.ReadStream(domain.Range{}, domain.ReadOptions{Namespace: "files"}))
	if diff := cmp.Diff([]*domain.Node{{Seq: 2, Key: "/b", Value: raw(`"2"`)}}, nodes); diff != "" {
		t.Errorf("ReadStream(files) mismatch (-want +got):\n%s", diff)
	}

	history := collect(t, e.HistoryStream(domain.HistoryOptions{Gt: 2, Namespace: "files"}))
	if diff := cmp.Diff([]*domain.HistoryEntry{{Type: "del", Seq: 3, Key: "/a", Value: raw(`null`)}}, history); diff != "" {
		t.Errorf("HistoryStream(files) mismatch (-want +got):\n%s", diff)
	}

	co, err := e.Checkout(2, domain.ViewOptions{Namespace: "files"})
	if err != nil {
		t.Fatal(err)
	}
	defer co.Close()
	node, _ = co.Get(ctx, "/a", domain.KeyOptions{})
	if node == nil || node.Seq != 1 {
		t.Errorf("Checkout(files).Get(/a) = %+v, want seq 1", node)
	}
}

func TestBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("isolation and flush", func(t *testing.T) {
		e := newTestEngine(t)
		mustPut(t, e, "/a", `1`)

		b := e.Batch()
		mustPut(t, b, "/b", `2`)
		mustPut(t, b, "/c", `3`)

		if got := b.Version(); got != 4 {
			t.Errorf("Batch.Version() = %d, want 4", got)
		}
		if got := e.Version(); got != 2 {
			t.Errorf("root Version() during batch = %d, want 2", got)
		}
		if node, _ := e.Get(ctx, "/b", domain.KeyOptions{}); node != nil {
			t.Errorf("root sees pending write: %+v", node)
		}
		node, _ := b.Get(ctx, "/b", domain.KeyOptions{})
		if node == nil || node.Seq != 2 {
			t.Errorf("Batch.Get(/b) = %+v, want seq 2", node)
		}
		if nodes := collect(t, b.ReadStream(domain.Range{}, domain.ReadOptions{})); len(nodes) != 3 {
			t.Errorf("Batch.ReadStream = %d nodes, want 3", len(nodes))
		}

		if err := b.Flush(ctx); err != nil {
			t.Fatal(err)
		}
		if got := e.Version(); got != 4 {
			t.Errorf("root Version() after flush = %d, want 4", got)
		}
		node, _ = e.Get(ctx, "/c", domain.KeyOptions{})
		if node == nil || node.Seq != 3 {
			t.Errorf("Get(/c) after flush = %+v, want seq 3", node)
		}

		// Intermediate versions of a flushed batch stay addressable.
		co, err := e.Checkout(3, domain.ViewOptions{})
		if err != nil {
			t.Fatal(err)
		}
		defer co.Close()
		if node, _ := co.Get(ctx, "/c", domain.KeyOptions{}); node != nil {
			t.Errorf("Checkout(3).Get(/c) = %+v, want nil", node)
		}
	})

	t.Run("close discards", func(t *testing.T) {
		e := newTestEngine(t)
		b := e.Batch()
		mustPut(t, b, "/a", `1`)
		if err := b.Close(); err != nil {
			t.Fatal(err)
		}
		if got := e.Version(); got != 1 {
			t.Errorf("Version() after discarded batch = %d, want 1", got)
		}
		// The writer lock was released.
		mustPut(t, e, "/b", `2`)
		if err := b.Flush(ctx); !errors.Is(err, domain.ErrHandleClosed) {
			t.Errorf("Flush after Close error = %v, want ErrHandleClosed", err)
		}
	})

	t.Run("root write waits for locked batch", func(t *testing.T) {
		e := newTestEngine(t)
		b := e.Batch()
		if err := b.Lock(ctx); err != nil {
			t.Fatal(err)
		}

		done := make(chan error, 1)
		go func() { done <- e.Put(ctx, "/root", raw(`1`), domain.PutOptions{}) }()

		select {
		case err := <-done:
			t.Fatalf("root put finished while batch locked: %v", err)
		case <-time.After(50 * time.Millisecond):
		}

		mustPut(t, b, "/batch", `1`)
		if err := b.Flush(ctx); err != nil {
			t.Fatal(err)
		}

		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("root put still blocked after flush")
		}

		node, _ := e.Get(ctx, "/batch", domain.KeyOptions{})
		if node == nil || node.Seq != 1 {
			t.Errorf("Get(/batch) = %+v, want seq 1", node)
		}
		node, _ = e.Get(ctx, "/root", domain.KeyOptions{})
		if node == nil || node.Seq != 2 {
			t.Errorf("Get(/root) = %+v, want seq 2", node)
		}
	})

	t.Run("lock honors context", func(t *testing.T) {
		e := newTestEngine(t)
		b := e.Batch()
		if err := b.Lock(ctx); err != nil {
			t.Fatal(err)
		}
		defer b.Close()

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if err := e.Put(cctx, "/x", raw(`1`), domain.PutOptions{}); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Put while locked error = %v, want deadline exceeded", err)
		}
	})

	t.Run("deletes and history", func(t *testing.T) {
		e := newTestEngine(t)
		mustPut(t, e, "/a", `1`)

		b := e.Batch()
		if err := b.Del(ctx, "/a", domain.KeyOptions{}); err != nil {
			t.Fatal(err)
		}
		if err := b.Del(ctx, "/a", domain.KeyOptions{}); err != nil {
			t.Fatal(err)
		}
		mustPut(t, b, "/b", `2`)

		if got := b.Version(); got != 4 {
			t.Errorf("Batch.Version() = %d, want 4 (second del is a no-op)", got)
		}
		history := collect(t, b.HistoryStream(domain.HistoryOptions{}))
		want := []*domain.HistoryEntry{
			{Type: "put", Seq: 1, Key: "/a", Value: raw(`1`)},
			{Type: "del", Seq: 2, Key: "/a", Value: raw(`null`)},
			{Type: "put", Seq: 3, Key: "/b", Value: raw(`2`)},
		}
		if diff := cmp.Diff(want, history); diff != "" {
			t.Errorf("Batch.HistoryStream mismatch (-want +got):\n%s", diff)
		}
		diffs := collect(t, b.DiffStream(2, domain.Range{}, domain.ReadOptions{}))
		if len(diffs) != 2 {
			t.Errorf("Batch.DiffStream(2) = %d entries, want 2", len(diffs))
		}
		b.Close()
	})
}

func TestEngine_OnAppend(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var calls atomic.Int32
	cancel := e.OnAppend(func() { calls.Add(1) })

	mustPut(t, e, "/a", `1`)
	_ = e.Put(ctx, "/a", raw(`1`), domain.PutOptions{CAS: true}) // no-op
	_ = e.Del(ctx, "/missing", domain.KeyOptions{})              // no-op

	b := e.Batch()
	mustPut(t, b, "/b", `1`)
	mustPut(t, b, "/c", `1`)
	if err := b.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("append notifications = %d, want 2", got)
	}

	cancel()
	mustPut(t, e, "/d", `1`)
	if got := calls.Load(); got != 2 {
		t.Errorf("notifications after cancel = %d, want 2", got)
	}
}

func TestEngine_Reopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Badger.GCInterval = "1h"
	cfg.Metadata = raw(`{"name":"test"}`)

	e, err := Open(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	mustPut(t, e, "/a", `1`)
	b := e.Batch()
	mustPut(t, b, "/b", `2`)
	mustPut(t, b, "/c", `3`)
	if err := b.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e, err = Open(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if got := e.Version(); got != 4 {
		t.Errorf("Version() after reopen = %d, want 4", got)
	}
	node, _ := e.Get(context.Background(), "/c", domain.KeyOptions{})
	if node == nil || node.Seq != 3 {
		t.Errorf("Get(/c) after reopen = %+v, want seq 3", node)
	}
	h, _ := e.GetHeader(context.Background(), domain.HeaderOptions{})
	if h == nil || string(h.Metadata) != `{"name":"test"}` {
		t.Errorf("header metadata = %+v", h)
	}
}

func TestEngine_Closed(t *testing.T) {
	e := newTestEngine(t)
	e.Close()

	if _, err := e.Get(context.Background(), "/a", domain.KeyOptions{}); !errors.Is(err, domain.ErrEngineClosed) {
		t.Errorf("Get on closed engine error = %v, want ErrEngineClosed", err)
	}
	if err := e.Put(context.Background(), "/a", raw(`1`), domain.PutOptions{}); !errors.Is(err, domain.ErrEngineClosed) {
		t.Errorf("Put on closed engine error = %v, want ErrEngineClosed", err)
	}
}
