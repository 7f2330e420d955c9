package navigation

import "github.com/roach88/storydeck/internal/deck"

// View is the read-only pagination state transitions are computed against.
type View interface {
	PageCount() int
	PageLen(i int) int
	HasMore() bool
}

// Outcome classifies a transition.
type Outcome int

const (
	// Moved means the cursor changed.
	Moved Outcome = iota
	// Stayed means the transition was a no-op inside the feed.
	Stayed
	// FeedStart means a retreat hit the beginning of the feed.
	FeedStart
	// FeedEnd means an advance hit the end and the backend has no more pages.
	FeedEnd
	// NeedsFetch means an advance needs the page after the last loaded one.
	// The cursor is unchanged; re-apply AdvanceToNextPage once it arrives.
	NeedsFetch
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case Stayed:
		return "stayed"
	case FeedStart:
		return "feed_start"
	case FeedEnd:
		return "feed_end"
	case NeedsFetch:
		return "needs_fetch"
	default:
		return "unknown"
	}
}

// Step is the result of a transition.
type Step struct {
	Cursor  deck.Cursor
	Outcome Outcome
}

func stay(c deck.Cursor, o Outcome) Step {
	return Step{Cursor: c, Outcome: o}
}

// AdvanceWithinPage moves to the next item of the active deck, or on to the
// next deck when the active one is exhausted.
func AdvanceWithinPage(v View, c deck.Cursor) Step {
	if v.PageCount() == 0 {
		return AdvanceToNextPage(v, c)
	}
	if c.Item+1 < v.PageLen(c.Page) {
		return Step{Cursor: deck.Cursor{Page: c.Page, Item: c.Item + 1}, Outcome: Moved}
	}
	return AdvanceToNextPage(v, c)
}

// AdvanceToNextPage moves to the first item of the next non-empty deck.
func AdvanceToNextPage(v View, c deck.Cursor) Step {
	n := v.PageCount()
	next := c.Page + 1
	for next < n && v.PageLen(next) == 0 {
		next++
	}
	if next < n {
		return Step{Cursor: deck.Cursor{Page: next, Item: 0}, Outcome: Moved}
	}
	if v.HasMore() {
		return stay(c, NeedsFetch)
	}
	return stay(c, FeedEnd)
}

// RetreatWithinPage moves to the previous item. The first item of a deck is a
// floor: retreating from it is a no-op and never crosses into another deck.
func RetreatWithinPage(v View, c deck.Cursor) Step {
	if c.Item > 0 {
		return Step{Cursor: deck.Cursor{Page: c.Page, Item: c.Item - 1}, Outcome: Moved}
	}
	if c.Page == 0 {
		return stay(c, FeedStart)
	}
	return stay(c, Stayed)
}

// RetreatToPreviousPage moves to the first item of the previous non-empty
// deck.
func RetreatToPreviousPage(v View, c deck.Cursor) Step {
	prev := c.Page - 1
	for prev >= 0 && v.PageLen(prev) == 0 {
		prev--
	}
	if prev < 0 {
		return stay(c, FeedStart)
	}
	return Step{Cursor: deck.Cursor{Page: prev, Item: 0}, Outcome: Moved}
}

// Clamp repairs a cursor after the pages under it changed. An item index past
// the end of the active deck resets to 0; an empty active deck re-evaluates
// AdvanceToNextPage. A cursor that needs no repair comes back as Stayed.
func Clamp(v View, c deck.Cursor) Step {
	if v.PageCount() == 0 {
		return stay(deck.Cursor{}, Stayed)
	}
	if c.Page >= v.PageCount() {
		c = deck.Cursor{Page: v.PageCount() - 1, Item: 0}
	}
	if c.Page < 0 {
		c = deck.Cursor{}
	}

	n := v.PageLen(c.Page)
	if n == 0 {
		c.Item = 0
		step := AdvanceToNextPage(v, c)
		if step.Outcome != Moved {
			step.Cursor = c
		}
		return step
	}
	if c.Item >= n || c.Item < 0 {
		return Step{Cursor: deck.Cursor{Page: c.Page, Item: 0}, Outcome: Moved}
	}
	return stay(c, Stayed)
}

// AfterRemove keeps the cursor on the same item when an item in front of it
// on the active deck was removed. Removals elsewhere leave it unchanged; use
// Clamp afterwards to repair a removal at or past the cursor.
func AfterRemove(c deck.Cursor, page, index int) deck.Cursor {
	if page == c.Page && index < c.Item {
		c.Item--
	}
	return c
}

// AfterInsert keeps the cursor on the same item when an item is reinserted in
// front of it on the active deck. An item reinserted exactly at the cursor
// takes the cursor's slot, so a failed delete of the displayed item shows it
// again. pageLenBefore is the deck length before the insert.
func AfterInsert(c deck.Cursor, page, index, pageLenBefore int) deck.Cursor {
	if page == c.Page && pageLenBefore > 0 && index < c.Item {
		c.Item++
	}
	return c
}

// Valid reports whether c addresses an item, or the feed is empty and c is
// the origin. An empty active deck at feed end is valid at item 0.
func Valid(v View, c deck.Cursor) bool {
	if v.PageCount() == 0 {
		return c == deck.Cursor{}
	}
	if c.Page < 0 || c.Page >= v.PageCount() {
		return false
	}
	n := v.PageLen(c.Page)
	if n == 0 {
		return c.Item == 0
	}
	return c.Item >= 0 && c.Item < n
}
