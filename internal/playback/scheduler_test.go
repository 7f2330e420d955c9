package playback_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/playback"
	"github.com/roach88/storydeck/internal/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// recorder collects firings and accepts them the way the event loop does.
type recorder struct {
	sched *playback.Scheduler
	fired []deck.ItemID
	stale int
}

func (r *recorder) onFire(f playback.Fire) {
	if r.sched.Accept(f) {
		r.fired = append(r.fired, f.Item)
		return
	}
	r.stale++
}

func newScheduler(t *testing.T, opts ...playback.Option) (*playback.Scheduler, *testutil.ManualClock, *recorder) {
	t.Helper()
	clock := testutil.NewManualClock(epoch)
	rec := &recorder{}
	rec.sched = playback.NewScheduler(clock, rec.onFire, opts...)
	return rec.sched, clock, rec
}

func photo(id string) *deck.Item {
	return &deck.Item{ID: deck.ItemID(id), MediaKind: deck.MediaPhoto}
}

func video(id string, seconds float64) *deck.Item {
	return &deck.Item{ID: deck.ItemID(id), MediaKind: deck.MediaVideo, DurationHint: seconds}
}

func TestDuration(t *testing.T) {
	dwell := 5 * time.Second

	assert.Equal(t, dwell, playback.Duration(photo("p"), dwell))
	assert.Equal(t, 4*time.Second, playback.Duration(video("v", 4), dwell))
	assert.Equal(t, 2500*time.Millisecond, playback.Duration(video("v", 2.5), dwell))
	assert.Equal(t, dwell, playback.Duration(video("v", 0), dwell), "missing hint falls back to dwell")
	assert.Equal(t, dwell, playback.Duration(video("v", -3), dwell), "negative hint falls back to dwell")

	// A hint on a photo is ignored.
	p := photo("p")
	p.DurationHint = 9
	assert.Equal(t, dwell, playback.Duration(p, dwell))
}

func TestScheduler_FiresAfterDwell(t *testing.T) {
	s, clock, rec := newScheduler(t, playback.WithDwell(3*time.Second))

	s.Rearm(photo("a"))
	require.Equal(t, 1, s.Armed())

	clock.Advance(2999 * time.Millisecond)
	assert.Empty(t, rec.fired)

	clock.Advance(time.Millisecond)
	assert.Equal(t, []deck.ItemID{"a"}, rec.fired)
	assert.Equal(t, 0, s.Armed())
}

func TestScheduler_RearmReplacesCountdown(t *testing.T) {
	s, clock, rec := newScheduler(t)

	s.Rearm(photo("a"))
	clock.Advance(4 * time.Second)
	s.Rearm(video("b", 2))

	assert.Equal(t, 1, s.Armed())
	assert.Equal(t, 1, clock.Pending(), "the replaced countdown must be disarmed")

	clock.Advance(time.Second)
	assert.Empty(t, rec.fired, "a's countdown must not fire after being replaced")

	clock.Advance(time.Second)
	assert.Equal(t, []deck.ItemID{"b"}, rec.fired)
}

func TestScheduler_NeverMoreThanOneArmed(t *testing.T) {
	s, clock, _ := newScheduler(t)

	for i := 0; i < 50; i++ {
		s.Rearm(photo(string(rune('a' + i%26))))
		assert.LessOrEqual(t, s.Armed(), 1)
		assert.LessOrEqual(t, clock.Pending(), 1)
		clock.Advance(100 * time.Millisecond)
	}
}

func TestScheduler_NilItemDisarms(t *testing.T) {
	s, clock, rec := newScheduler(t)

	s.Rearm(photo("a"))
	s.Rearm(nil)
	assert.Equal(t, 0, s.Armed())

	clock.Advance(time.Minute)
	assert.Empty(t, rec.fired)
}

// Overlay opens 1s into a 4s video and closes 10s later: a fresh 4s
// countdown starts at close, not the 3s remainder.
func TestScheduler_OverlayResumesWithFullDuration(t *testing.T) {
	s, clock, rec := newScheduler(t)

	s.Rearm(video("v", 4))
	clock.Advance(time.Second)

	s.Suspend()
	assert.Equal(t, 0, s.Armed())
	assert.True(t, s.Suspended())

	clock.Advance(10 * time.Second)
	assert.Empty(t, rec.fired, "no firing while the overlay is open")

	s.Resume()
	require.Equal(t, 1, s.Armed())
	deadline, ok := s.Deadline()
	require.True(t, ok)
	assert.Equal(t, epoch.Add(15*time.Second), deadline)

	clock.Advance(3 * time.Second)
	assert.Empty(t, rec.fired, "the 3s remainder must not be used")

	clock.Advance(time.Second)
	assert.Equal(t, []deck.ItemID{"v"}, rec.fired)
}

func TestScheduler_RearmWhileSuspendedWaitsForResume(t *testing.T) {
	s, clock, rec := newScheduler(t)

	s.Rearm(photo("a"))
	s.Suspend()
	s.Rearm(photo("b"))
	assert.Equal(t, 0, s.Armed())

	clock.Advance(time.Minute)
	assert.Empty(t, rec.fired)

	s.Resume()
	clock.Advance(playback.DefaultDwell)
	assert.Equal(t, []deck.ItemID{"b"}, rec.fired)
}

func TestScheduler_SuspendResumeIdempotent(t *testing.T) {
	s, clock, _ := newScheduler(t)

	s.Resume()
	assert.Equal(t, 0, s.Armed(), "resume without suspend does nothing")

	s.Rearm(photo("a"))
	s.Suspend()
	s.Suspend()
	s.Resume()
	s.Resume()
	assert.Equal(t, 1, s.Armed())
	assert.Equal(t, 1, clock.Pending())
}

func TestScheduler_StaleFireRejected(t *testing.T) {
	s, _, _ := newScheduler(t)

	s.Rearm(photo("a"))
	s.Rearm(photo("b"))

	// A firing from the first arm that raced with Stop carries generation 1.
	assert.False(t, s.Accept(playback.Fire{Item: "a", Generation: 1}))
	assert.Equal(t, 1, s.Armed())

	assert.True(t, s.Accept(playback.Fire{Item: "b", Generation: 2}))
	assert.False(t, s.Accept(playback.Fire{Item: "b", Generation: 2}), "a firing is accepted at most once")
}

func TestScheduler_CancelForgetsItem(t *testing.T) {
	s, _, _ := newScheduler(t)

	s.Rearm(photo("a"))
	s.Cancel()
	s.Suspend()
	s.Resume()
	assert.Equal(t, 0, s.Armed(), "resume after cancel has nothing to arm")
}

func TestScheduler_RealClockNoLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	fired := make(chan deck.ItemID, 1)
	var s *playback.Scheduler
	s = playback.NewScheduler(playback.RealClock{}, func(f playback.Fire) {
		mu.Lock()
		defer mu.Unlock()
		if s.Accept(f) {
			fired <- f.Item
		}
	}, playback.WithDwell(10*time.Millisecond))

	mu.Lock()
	s.Rearm(photo("a"))
	mu.Unlock()

	select {
	case id := <-fired:
		assert.Equal(t, deck.ItemID("a"), id)
	case <-time.After(time.Second):
		t.Fatal("real clock countdown did not fire")
	}

	mu.Lock()
	s.Rearm(photo("b"))
	s.Cancel()
	mu.Unlock()
}
