package engine

import (
	"sync"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engagement"
	"github.com/roach88/storydeck/internal/gesture"
	"github.com/roach88/storydeck/internal/pages"
	"github.com/roach88/storydeck/internal/playback"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventStart loads the first deck.
	EventStart EventType = iota + 1
	// EventSwipe carries a raw drag vector.
	EventSwipe
	// EventTap carries the affordance that was tapped.
	EventTap
	// EventCommand carries an already-mapped command (keyboard, remote).
	EventCommand
	// EventTimerFired is a playback countdown expiry.
	EventTimerFired
	// EventFetchResolved is a page fetch result.
	EventFetchResolved
	// EventMutationResolved is an engagement call result.
	EventMutationResolved
	// EventOverlayOpened and EventOverlayClosed bracket a full-attention
	// overlay such as the comment sheet.
	EventOverlayOpened
	EventOverlayClosed
	// EventLike toggles the viewer's like.
	EventLike
	// EventComment posts a comment.
	EventComment
	// EventDelete deletes one of the viewer's items.
	EventDelete
	// EventRetry retries a failed page fetch.
	EventRetry
)

var eventTypeNames = map[EventType]string{
	EventStart:            "start",
	EventSwipe:            "swipe",
	EventTap:              "tap",
	EventCommand:          "command",
	EventTimerFired:       "timer",
	EventFetchResolved:    "fetch",
	EventMutationResolved: "mutation",
	EventOverlayOpened:    "overlay_open",
	EventOverlayClosed:    "overlay_close",
	EventLike:             "like",
	EventComment:          "comment",
	EventDelete:           "delete",
	EventRetry:            "retry",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one input to the engine. Only the fields for its Type are set.
type Event struct {
	Type EventType

	Vector  gesture.Vector
	Target  gesture.Target
	Command gesture.Command

	Fire     playback.Fire
	Fetch    pages.FetchResult
	Mutation engagement.Result

	// Item is the target of like, comment and delete. Empty means the
	// active item.
	Item deck.ItemID
	Body string
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so dispatcher goroutines and timer callbacks never
// block on a busy loop.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Release the slot so fetched pages can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// closedAndEmpty reports whether the queue was closed and fully drained.
func (q *eventQueue) closedAndEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
