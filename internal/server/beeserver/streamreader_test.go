package beeserver

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"
)

// sliceSeq yields items and records when the sequence released its resources.
func sliceSeq(items []string, failAt int, released *bool) iter.Seq2[*string, error] {
	return func(yield func(*string, error) bool) {
		defer func() { *released = true }()
		for i := range items {
			if i == failAt {
				yield(nil, errors.New("scan failed"))
				return
			}
			if !yield(&items[i], nil) {
				return
			}
		}
	}
}

func TestStreamReaderReadsInOrder(t *testing.T) {
	var released bool
	r := NewStreamReader(sliceSeq([]string{"/a", "/b", "/c"}, -1, &released), nil)
	ctx := context.Background()

	if r.State() != StreamIdle {
		t.Errorf("initial state = %s, want idle", r.State())
	}

	for _, want := range []string{"/a", "/b", "/c"} {
		item, ended, err := r.Read(ctx)
		if err != nil || ended {
			t.Fatalf("Read() = (%v, %v, %v)", item, ended, err)
		}
		if *item != want {
			t.Errorf("Read() = %s, want %s", *item, want)
		}
	}
	if r.State() != StreamReadable {
		t.Errorf("state = %s, want readable", r.State())
	}

	for i := 0; i < 2; i++ {
		item, ended, err := r.Read(ctx)
		if err != nil || !ended || item != nil {
			t.Fatalf("Read() after end = (%v, %v, %v), want (nil, true, nil)", item, ended, err)
		}
	}
	if !released {
		t.Error("sequence not released at end")
	}
	if r.State() != StreamEnded {
		t.Errorf("state = %s, want ended", r.State())
	}
}

func TestStreamReaderDestroy(t *testing.T) {
	var released bool
	r := NewStreamReader(sliceSeq([]string{"/a", "/b"}, -1, &released), nil)
	ctx := context.Background()

	if _, _, err := r.Read(ctx); err != nil {
		t.Fatal(err)
	}
	r.Destroy()
	if !released {
		t.Error("Destroy() did not release the sequence")
	}
	r.Destroy()

	item, ended, err := r.Read(ctx)
	if err != nil || !ended || item != nil {
		t.Errorf("Read() after Destroy = (%v, %v, %v), want (nil, true, nil)", item, ended, err)
	}
	if r.State() != StreamDestroyed {
		t.Errorf("state = %s, want destroyed", r.State())
	}
}

func TestStreamReaderError(t *testing.T) {
	var released bool
	r := NewStreamReader(sliceSeq([]string{"/a", "/b"}, 1, &released), nil)
	ctx := context.Background()

	if _, _, err := r.Read(ctx); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Read(ctx); err == nil {
		t.Fatal("Read() should surface the scan error")
	}
	if !released {
		t.Error("sequence not released after error")
	}
	if _, ended, _ := r.Read(ctx); !ended {
		t.Error("Read() after error should report ended")
	}
}

func TestStreamReaderConcurrentReads(t *testing.T) {
	items := make([]string, 100)
	for i := range items {
		items[i] = string(rune('a' + i%26))
	}
	var released bool
	r := NewStreamReader(sliceSeq(items, -1, &released), nil)

	var (
		mu    sync.Mutex
		got   int
		ended int
		wg    sync.WaitGroup
	)
	for i := 0; i < 110; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, end, err := r.Read(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if end {
				ended++
			} else if item != nil {
				got++
			}
		}()
	}
	wg.Wait()

	if got != 100 || ended != 10 {
		t.Errorf("items = %d, ended = %d; want 100 and 10", got, ended)
	}
}

func TestStreamReaderReadCanceled(t *testing.T) {
	block := make(chan struct{})
	seq := func(yield func(*string, error) bool) {
		<-block
	}
	r := NewStreamReader[*string](seq, nil)

	go r.Read(context.Background())
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := r.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Read() while another read blocks = %v, want DeadlineExceeded", err)
	}
	close(block)
}

func TestStreamReaderTurnOrder(t *testing.T) {
	var released bool
	r := NewStreamReader(sliceSeq([]string{"/a", "/b", "/c"}, -1, &released), nil)

	turns := []ticket{r.reserve(), r.reserve(), r.reserve()}

	type result struct {
		key string
		seq uint64
	}
	results := make([]chan result, len(turns))
	// Start the turns last to first; they still read first to last.
	for i := len(turns) - 1; i >= 0; i-- {
		results[i] = make(chan result, 1)
		go func() {
			item, seq, _, err := r.readTurn(context.Background(), turns[i])
			if err != nil {
				t.Error(err)
			}
			var key string
			if item != nil {
				key = *item
			}
			results[i] <- result{key, seq}
		}()
		time.Sleep(5 * time.Millisecond)
	}

	for i, want := range []string{"/a", "/b", "/c"} {
		got := <-results[i]
		if got.key != want || got.seq != uint64(i+1) {
			t.Errorf("turn %d = %+v, want {%s %d}", i, got, want, i+1)
		}
	}
}
