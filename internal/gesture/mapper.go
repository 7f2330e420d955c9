// Package gesture turns raw touch input into feed navigation commands.
package gesture

import "math"

// DefaultThreshold is the minimum swipe distance, in points, that counts as
// navigation. Shorter drags snap back.
const DefaultThreshold = 50.0

// Command is a navigation request produced from input.
type Command int

const (
	None Command = iota
	NextItem
	PreviousItem
	NextDeck
	PreviousDeck
	ShowProfile
)

func (c Command) String() string {
	switch c {
	case NextItem:
		return "next_item"
	case PreviousItem:
		return "previous_item"
	case NextDeck:
		return "next_deck"
	case PreviousDeck:
		return "previous_deck"
	case ShowProfile:
		return "show_profile"
	default:
		return "none"
	}
}

// ParseCommand is the inverse of Command.String.
func ParseCommand(s string) (Command, bool) {
	for c := None; c <= ShowProfile; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return None, false
}

// Vector is a swipe displacement in screen points. Positive X is rightwards,
// positive Y is downwards.
type Vector struct {
	DX float64
	DY float64
}

// Target is the on-screen affordance a tap landed on.
type Target string

const (
	TargetLeftZone  Target = "left"
	TargetRightZone Target = "right"
	TargetAuthor    Target = "author"
	TargetMedia     Target = "media"
)

// Mapper converts swipes and taps into commands.
type Mapper struct {
	threshold float64
}

// NewMapper creates a Mapper. A non-positive threshold uses DefaultThreshold.
func NewMapper(threshold float64) *Mapper {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Mapper{threshold: threshold}
}

// Threshold returns the configured swipe threshold.
func (m *Mapper) Threshold() float64 {
	return m.threshold
}

// Swipe maps a displacement to exactly one command. The dominant axis wins:
// horizontal swipes move within a deck, vertical swipes move between decks.
// Swiping left or up goes forward. A displacement shorter than the threshold
// is None, and so is a displacement that is not finite.
func (m *Mapper) Swipe(v Vector) Command {
	if !finite(v.DX) || !finite(v.DY) {
		return None
	}
	if math.Hypot(v.DX, v.DY) < m.threshold {
		return None
	}
	if math.Abs(v.DX) >= math.Abs(v.DY) {
		if v.DX < 0 {
			return NextItem
		}
		return PreviousItem
	}
	if v.DY < 0 {
		return NextDeck
	}
	return PreviousDeck
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Tap maps a tap. Taps on the author affordance open the profile and are
// never treated as navigation; the side zones step through the deck.
func (m *Mapper) Tap(t Target) Command {
	switch t {
	case TargetAuthor:
		return ShowProfile
	case TargetLeftZone:
		return PreviousItem
	case TargetRightZone:
		return NextItem
	default:
		return None
	}
}
