package playback

import "time"

// Timer is an armed countdown.
type Timer interface {
	// Stop disarms the timer. It returns false if the timer already fired.
	Stop() bool
}

// Clock is the time source for the Scheduler.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock uses the runtime timer wheel.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time {
	return time.Now()
}

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
