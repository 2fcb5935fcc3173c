package client

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRefresherCoalesces(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 10)
	release := make(chan struct{})

	r := newRefresher(func() {
		runs.Add(1)
		started <- struct{}{}
		<-release
	})

	r.Trigger()
	<-started

	// Every push during the in-flight refresh collapses into one follow-up.
	for i := 0; i < 20; i++ {
		r.Trigger()
	}
	close(release)

	<-started
	waitFor(t, "refresher idle", func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return !r.running
	})

	if n := runs.Load(); n != 2 {
		t.Errorf("runs = %d, want 2", n)
	}
}

func TestRefresherIdleTriggerRunsOnce(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{}, 1)
	r := newRefresher(func() {
		runs.Add(1)
		done <- struct{}{}
	})

	r.Trigger()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh did not run")
	}
	waitFor(t, "refresher idle", func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return !r.running
	})
	if n := runs.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}
