// Package playback implements the story auto-advance timer.
//
// A Scheduler owns at most one countdown at any instant. Whenever the active
// item changes the previous countdown is disarmed before a new one is
// considered, so skipped items never leave a stray timer behind.
//
// Durations: a video with a positive duration hint plays for that long; every
// other item gets the fixed dwell time.
//
// Full-attention overlays (the comment panel) suspend the countdown. Closing
// the overlay starts a fresh full-length countdown; time elapsed before the
// overlay opened is discarded.
//
// Timer callbacks run on whatever goroutine the Clock uses. The Scheduler
// only passes them a Fire token; the owner re-enters through its event loop
// and calls Accept, which drops firings whose generation is stale.
package playback
