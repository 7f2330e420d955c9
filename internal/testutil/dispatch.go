package testutil

import "sync"

// ManualDispatcher queues backend calls until the test releases them. This
// lets a test hold a fetch or like "in flight" for as long as it needs.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ManualDispatcher struct {
	mu    sync.Mutex
	queue []func()
}

// Go implements deck.Dispatcher by queueing fn.
func (d *ManualDispatcher) Go(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, fn)
}

// RunNext runs the oldest queued call. Returns false if nothing is queued.
func (d *ManualDispatcher) RunNext() bool {
	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return false
	}
	fn := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.mu.Unlock()

	fn()
	return true
}

// RunAll runs queued calls, including ones queued while running, until the
// queue is empty. Returns how many ran.
func (d *ManualDispatcher) RunAll() int {
	n := 0
	for d.RunNext() {
		n++
	}
	return n
}

// Pending returns the number of queued calls.
func (d *ManualDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// InlineDispatcher runs each call immediately on the caller's goroutine.
type InlineDispatcher struct{}

// Go implements deck.Dispatcher.
func (InlineDispatcher) Go(fn func()) {
	fn()
}
