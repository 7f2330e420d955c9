// Package navigation implements the viewer's cursor as a pure state machine.
//
// The cursor is one (page, item) value. Every transition is a function from
// (View, Cursor) to a Step holding the next cursor and an Outcome; nothing
// here mutates state or performs I/O. The engine applies Steps and reacts to
// the NeedsFetch outcome by asking the page store for more decks.
//
// Horizontal moves stay inside the active deck: the first item is a floor,
// and running off the last item continues to the next deck. Vertical moves
// jump between decks and always land on the first item.
//
// Feed start (nothing before the first deck) and feed end (nothing after the
// last deck and the backend has no more) are outcomes, not errors.
package navigation
