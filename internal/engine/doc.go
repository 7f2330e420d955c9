// Package engine runs the story feed as a single-writer event loop.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every state change (page appends, cursor moves, timer arming, counter
// patches) happens on the goroutine running Engine.Run. Everything else
// talks to the engine by enqueueing an Event:
//
//   - input: swipes, taps, direct commands, overlay open/close, like,
//     comment and delete requests
//   - page fetches: the backend call runs on a dispatcher goroutine and comes
//     back as a fetch-resolved event
//   - engagement calls: same, as a mutation-resolved event
//   - the playback countdown: its expiry comes back as a timer-fired event
//
// Because the loop is the only writer, page appends and counter patches never
// race and need no lock between them.
//
// Event Processing Flow:
//  1. Events enqueued to FIFO queue
//  2. Run dequeues one at a time (Pump does the same synchronously in tests)
//  3. processEvent routes to the handler for the event type
//  4. The handler updates pages, cursor, scheduler or patcher
//  5. The active item is re-derived; if its identity changed the scheduler
//     rearms
//  6. A Transition is recorded for observers, then collaborator callbacks
//     (notices, paywall, profile routing) run outside the state lock
//
// Pending Advance:
// An advance past the last loaded deck while the backend may have more sets a
// pending advance and starts a fetch. When that page appends and the cursor
// has not moved since, the advance completes. Any other navigation drops it.
// Further advances while the fetch is in flight are coalesced by the page
// store.
package engine
