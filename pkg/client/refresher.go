package client

import "sync"

// refresher runs fn in the background, at most once at a time. Triggers that
// arrive while fn runs collapse into a single follow-up run.
type refresher struct {
	fn func()

	mu      sync.Mutex
	running bool
	pending bool
}

func newRefresher(fn func()) *refresher {
	return &refresher{fn: fn}
}

// Trigger schedules a run. It never blocks.
func (r *refresher) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.pending = true
		return
	}
	r.running = true
	go r.loop()
}

func (r *refresher) loop() {
	for {
		r.fn()

		r.mu.Lock()
		if !r.pending {
			r.running = false
			r.mu.Unlock()
			return
		}
		r.pending = false
		r.mu.Unlock()
	}
}
