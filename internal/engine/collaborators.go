package engine

import (
	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engagement"
)

// ProfileRouter opens an author's profile.
type ProfileRouter interface {
	ShowProfile(author string, item deck.ItemID)
}

// Paywall presents the upgrade flow after an engagement limit.
type Paywall interface {
	Present(item deck.ItemID, kind engagement.Kind)
}

// NoticeKind classifies a user-visible notice.
type NoticeKind string

const (
	// NoticeFetchFailed is the retryable "couldn't load more" banner.
	NoticeFetchFailed NoticeKind = "fetch_failed"
	// NoticeMutationFailed reports a rolled back like, comment or delete.
	NoticeMutationFailed NoticeKind = "mutation_failed"
	// NoticeNotOwner reports a delete of someone else's item.
	NoticeNotOwner NoticeKind = "not_owner"
)

// Notice is a banner or toast for the viewer.
type Notice struct {
	Kind      NoticeKind
	Item      deck.ItemID
	Err       error
	Retryable bool
}

// Notifier shows notices.
type Notifier interface {
	Notify(Notice)
}

// Transition records what one processed event did.
type Transition struct {
	Seq     int64
	Session string
	Event   string
	From    deck.Cursor
	To      deck.Cursor
	Item    deck.ItemID // active item after the event
	Outcome string
	Detail  string
}

// Observer receives every transition, in seq order.
type Observer interface {
	Observe(Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

func (f ObserverFunc) Observe(t Transition) { f(t) }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type noopCollaborators struct{}

func (noopCollaborators) ShowProfile(string, deck.ItemID)      {}
func (noopCollaborators) Present(deck.ItemID, engagement.Kind) {}
func (noopCollaborators) Notify(Notice)                        {}
