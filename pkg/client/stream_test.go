package client

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func seed(t *testing.T, ctx context.Context, db *DB, kv ...string) {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		if err := db.Put(ctx, kv[i], kv[i+1], PutOptions{}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReadStreamCompletion(t *testing.T) {
	for _, prefetch := range []int{0, 1, 5} {
		t.Run("", func(t *testing.T) {
			srv := newTestServer(t)
			db := openDB(t, srv)
			ctx := testContext(t)
			seed(t, ctx, db, "/c", "3", "/a", "1", "/b", "2")

			s := db.ReadStream(Range{}, ReadOptions{}, WithPrefetch(prefetch))
			var keys []string
			for s.Next(ctx) {
				if s.Destroyed() {
					t.Error("stream destroyed before the end")
				}
				keys = append(keys, s.Value().Key)
			}
			if err := s.Err(); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"/a", "/b", "/c"}, keys); diff != "" {
				t.Errorf("keys mismatch (-want +got):\n%s", diff)
			}
			if !s.Destroyed() {
				t.Error("stream not destroyed after the end")
			}
			if srv.Streams() != 0 {
				t.Errorf("Streams() = %d, want 0", srv.Streams())
			}
			if s.Next(ctx) {
				t.Error("Next() after the end returned true")
			}
		})
	}
}

func TestReadStreamRangeAndAll(t *testing.T) {
	srv := newTestServer(t)
	db := openDB(t, srv)
	ctx := testContext(t)
	seed(t, ctx, db, "/a", "1", "/b", "2", "/c", "3", "/d", "4")

	var keys []string
	for node, err := range db.ReadStream(Range{Gt: "/a", Lte: "/c"}, ReadOptions{Reverse: true}).All(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, node.Key)
	}
	if diff := cmp.Diff([]string{"/c", "/b"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	// Breaking out of All destroys the stream early.
	for range db.ReadStream(Range{}, ReadOptions{}, WithPrefetch(2)).All(ctx) {
		break
	}
	waitFor(t, "stream release", func() bool { return srv.Streams() == 0 })
}

func TestStreamCloseEarly(t *testing.T) {
	srv := newTestServer(t)
	db := openDB(t, srv)
	ctx := testContext(t)
	seed(t, ctx, db, "/a", "1", "/b", "2")

	s := db.ReadStream(Range{}, ReadOptions{})
	if !s.Next(ctx) {
		t.Fatal(s.Err())
	}
	if srv.Streams() != 1 {
		t.Errorf("Streams() = %d, want 1", srv.Streams())
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if !s.Destroyed() || srv.Streams() != 0 {
		t.Errorf("Destroyed() = %v, Streams() = %d", s.Destroyed(), srv.Streams())
	}
	if s.Next(ctx) {
		t.Error("Next() after Close returned true")
	}
	if !errors.Is(s.Err(), ErrHandleClosed) {
		t.Errorf("Err() = %v, want ErrHandleClosed", s.Err())
	}
}

func TestHistoryAndDiffStreams(t *testing.T) {
	srv := newTestServer(t)
	db := openDB(t, srv)
	ctx := testContext(t)
	seed(t, ctx, db, "/a", "1", "/b", "2")
	before := db.Version()
	db.Del(ctx, "/a", DelOptions{})

	var types []string
	for entry, err := range db.HistoryStream(HistoryOptions{}).All(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		types = append(types, entry.Type+" "+entry.Key)
	}
	if diff := cmp.Diff([]string{"put /a", "put /b", "del /a"}, types); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	co, _ := db.Checkout(before, ViewOptions{})
	for _, other := range []Versioned{AtVersion(before), co} {
		var got []DiffEntry
		for d, err := range db.DiffStream(other, Range{}, ReadOptions{}).All(ctx) {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, *d)
		}
		if len(got) != 1 || got[0].Left != nil || got[0].Right == nil || got[0].Right.Key != "/a" {
			t.Errorf("diff against %d = %+v, want /a removed", other.Version(), got)
		}
	}
}

func TestStreamOnBatch(t *testing.T) {
	srv := newTestServer(t)
	db := openDB(t, srv)
	ctx := testContext(t)
	seed(t, ctx, db, "/a", "1")

	b, _ := db.Batch()
	b.Put(ctx, "/b", "2", PutOptions{})

	var keys []string
	for node, err := range b.ReadStream(Range{}, ReadOptions{}).All(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, node.Key)
	}
	if diff := cmp.Diff([]string{"/a", "/b"}, keys); diff != "" {
		t.Errorf("batch scan mismatch (-want +got):\n%s", diff)
	}
	b.Close(ctx)
}
