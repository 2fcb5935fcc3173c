package shutdown

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"
)

func recordHooks(h *Handler, n int) func() []int {
	var mu sync.Mutex
	var order []int
	for i := 1; i <= n; i++ {
		h.OnShutdown(func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	return func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), order...)
	}
}

func waitAsync(h *Handler, ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(ctx) }()
	return errCh
}

func expectDone(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not complete in time")
		return nil
	}
}

func TestHandler_Done(t *testing.T) {
	h := NewHandler(5 * time.Second)

	select {
	case <-h.Done():
		t.Error("Done channel should not be closed initially")
	default:
	}
}

func TestHandler_Trigger_ReverseOrder(t *testing.T) {
	h := NewHandler(5 * time.Second)
	order := recordHooks(h, 3)

	errCh := waitAsync(h, context.Background())
	h.Trigger()
	h.Trigger()

	if err := expectDone(t, errCh); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	got := order()
	if len(got) != 3 || got[0] != 3 || got[1] != 2 || got[2] != 1 {
		t.Errorf("hooks called in order %v, want [3 2 1]", got)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after Wait completes")
	}
}

func TestHandler_Wait_ContextCanceled(t *testing.T) {
	h := NewHandler(5 * time.Second)
	order := recordHooks(h, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := waitAsync(h, ctx)
	cancel()

	if err := expectDone(t, errCh); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if len(order()) != 1 {
		t.Error("hook should run when the context is canceled")
	}
}

func TestHandler_Wait_Signal(t *testing.T) {
	h := NewHandler(5 * time.Second)
	order := recordHooks(h, 2)

	errCh := waitAsync(h, context.Background())
	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	if err := expectDone(t, errCh); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if len(order()) != 2 {
		t.Errorf("hooks called = %v", order())
	}
}

func TestHandler_Wait_JoinsErrors(t *testing.T) {
	h := NewHandler(5 * time.Second)

	errA := errors.New("close listener")
	errB := errors.New("close engine")
	h.OnShutdown(func(context.Context) error { return errB })
	h.OnShutdown(func(context.Context) error { return nil })
	h.OnShutdown(func(context.Context) error { return errA })

	errCh := waitAsync(h, context.Background())
	h.Trigger()

	err := expectDone(t, errCh)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Wait() = %v, want both hook errors", err)
	}
}

func TestHandler_HookDeadline(t *testing.T) {
	h := NewHandler(20 * time.Millisecond)
	h.OnShutdown(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	errCh := waitAsync(h, context.Background())
	h.Trigger()

	if err := expectDone(t, errCh); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
}

func TestHandler_ConcurrentOnShutdown(t *testing.T) {
	h := NewHandler(5 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown(func(context.Context) error { return nil })
		}()
	}
	wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.hooks) != 10 {
		t.Errorf("expected 10 hooks, got %d", len(h.hooks))
	}
}
