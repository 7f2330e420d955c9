package deck

import "sync"

// Dispatcher runs a backend call away from the event loop. The call reports
// back by enqueueing an event, never by touching feed state directly.
type Dispatcher interface {
	Go(fn func())
}

// GoDispatcher runs each call on its own goroutine.
type GoDispatcher struct{}

// Go implements Dispatcher.
func (GoDispatcher) Go(fn func()) {
	go fn()
}

// WaitDispatcher runs each call on its own goroutine and can wait for all
// of them. A driver pumping the engine by hand uses Wait to know every
// in-flight call has reported back.
type WaitDispatcher struct {
	wg sync.WaitGroup
}

// Go implements Dispatcher.
func (d *WaitDispatcher) Go(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Wait blocks until every call started so far has returned.
func (d *WaitDispatcher) Wait() {
	d.wg.Wait()
}
