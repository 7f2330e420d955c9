package playback

import (
	"log/slog"
	"time"

	"github.com/roach88/storydeck/internal/deck"
)

// DefaultDwell is how long a photo stays on screen.
const DefaultDwell = 5 * time.Second

// Fire identifies one countdown expiry.
type Fire struct {
	Item       deck.ItemID
	Generation uint64
}

// Duration returns how long item stays on screen before auto-advance.
func Duration(item *deck.Item, dwell time.Duration) time.Duration {
	if item.MediaKind == deck.MediaVideo && item.DurationHint > 0 {
		return time.Duration(item.DurationHint * float64(time.Second))
	}
	return dwell
}

// Scheduler arms one countdown per active item. It is not safe for
// concurrent use; all calls come from the event loop. Only the onFire
// callback runs on the clock's goroutine.
type Scheduler struct {
	clock  Clock
	dwell  time.Duration
	onFire func(Fire)
	logger *slog.Logger

	timer      Timer
	generation uint64
	item       deck.Item // copy of the active item
	active     bool      // false when nothing is displayed
	suspended  bool
	armedAt    time.Time
	armedFor   time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDwell sets the photo dwell time.
func WithDwell(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.dwell = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a disarmed scheduler. onFire is invoked from the
// clock's goroutine when a countdown expires.
func NewScheduler(clock Clock, onFire func(Fire), opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		dwell:  DefaultDwell,
		onFire: onFire,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rearm disarms any countdown and, unless an overlay is open, starts one for
// item. A nil item (feed start/end placeholder) leaves the scheduler disarmed.
func (s *Scheduler) Rearm(item *deck.Item) {
	s.disarm()
	s.active = item != nil
	if !s.active {
		s.item = deck.Item{}
		return
	}
	s.item = *item
	if s.suspended {
		return
	}
	s.arm()
}

// Suspend disarms the countdown while a full-attention overlay is open.
func (s *Scheduler) Suspend() {
	if s.suspended {
		return
	}
	s.suspended = true
	if s.timer != nil {
		s.logger.Debug("playback suspended", "item", s.item.ID, "elapsed", s.clock.Now().Sub(s.armedAt))
	}
	s.disarm()
}

// Resume restarts a full-length countdown for the active item after the
// overlay closes.
func (s *Scheduler) Resume() {
	if !s.suspended {
		return
	}
	s.suspended = false
	if s.active {
		s.arm()
	}
}

// Cancel disarms the countdown and forgets the active item.
func (s *Scheduler) Cancel() {
	s.disarm()
	s.item = deck.Item{}
	s.active = false
}

// Accept reports whether f belongs to the countdown currently armed, and if
// so marks it as spent. Firings for a disarmed or replaced countdown return
// false.
func (s *Scheduler) Accept(f Fire) bool {
	if s.timer == nil || f.Generation != s.generation {
		return false
	}
	s.timer = nil
	return true
}

// Armed returns the number of armed countdowns: 0 or 1.
func (s *Scheduler) Armed() int {
	if s.timer == nil {
		return 0
	}
	return 1
}

// Suspended reports whether an overlay is holding playback.
func (s *Scheduler) Suspended() bool {
	return s.suspended
}

// Deadline returns when the armed countdown expires.
func (s *Scheduler) Deadline() (time.Time, bool) {
	if s.timer == nil {
		return time.Time{}, false
	}
	return s.armedAt.Add(s.armedFor), true
}

func (s *Scheduler) arm() {
	s.generation++
	fire := Fire{Item: s.item.ID, Generation: s.generation}
	d := Duration(&s.item, s.dwell)

	s.armedAt = s.clock.Now()
	s.armedFor = d
	s.timer = s.clock.AfterFunc(d, func() { s.onFire(fire) })
	s.logger.Debug("playback armed", "item", fire.Item, "duration", d, "generation", fire.Generation)
}

func (s *Scheduler) disarm() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
}
