package engagement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/pages"
)

// API is the authoritative engagement backend.
type API interface {
	// ToggleLike records the viewer's like state for an item. liked is the
	// state after the toggle.
	ToggleLike(ctx context.Context, id deck.ItemID, liked bool) error

	// PostComment adds a comment to an item's thread.
	PostComment(ctx context.Context, id deck.ItemID, body string) error

	// DeleteItem deletes one of the viewer's own items.
	DeleteItem(ctx context.Context, id deck.ItemID) error
}

// Items is the cache the patcher mutates. *pages.Store implements it.
type Items interface {
	Lookup(id deck.ItemID) (*deck.Item, pages.Location, bool)
	Remove(id deck.ItemID) (deck.Item, pages.Location, bool)
	Insert(loc pages.Location, item deck.Item) (int, bool)
	PageLen(i int) int
}

// Kind names the mutation an attempt performs.
type Kind string

const (
	KindLike    Kind = "like"
	KindComment Kind = "comment"
	KindDelete  Kind = "delete"
)

// AttemptID identifies one mutation attempt.
type AttemptID uint64

// Result carries a backend response back to the event loop.
type Result struct {
	Attempt AttemptID
	Item    deck.ItemID
	Kind    Kind
	Err     error
}

// Outcome describes how an attempt settled.
type Outcome int

const (
	// Ignored means the attempt was unknown or already settled.
	Ignored Outcome = iota
	// Committed means the backend accepted the change.
	Committed
	// RolledBack means the backend refused and the snapshot was restored.
	RolledBack
	// LimitReached means the backend refused on quota; state was kept.
	LimitReached
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	case LimitReached:
		return "limit_reached"
	default:
		return "ignored"
	}
}

// Settlement reports what Settle did.
type Settlement struct {
	Attempt AttemptID
	Item    deck.ItemID
	Kind    Kind
	Outcome Outcome
	Err     error

	// Restored is set when a failed delete put the item back. PageLenBefore
	// is the page length before the reinsert.
	Restored      *pages.Location
	PageLenBefore int
}

type status int

const (
	pending status = iota
	succeeded
	failed
)

// snapshot holds the fields one mutation kind may change.
type snapshot struct {
	liked        bool
	likeCount    int
	commentCount int
}

type attempt struct {
	id     AttemptID
	kind   Kind
	item   deck.ItemID
	snap   snapshot
	status status

	// like only: the like state this attempt asked the backend for
	liked bool

	// delete only
	removed  deck.Item
	location pages.Location
}

type windowKey struct {
	item deck.ItemID
	kind Kind
}

// window groups overlapping attempts on one item field.
type window struct {
	attempts []*attempt
}

// Patcher owns optimistic engagement state. Like the page store, it must only
// be used from the event loop goroutine.
type Patcher struct {
	items      Items
	api        API
	dispatcher deck.Dispatcher
	logger     *slog.Logger
	refresh    func(deck.ItemID)

	next    AttemptID
	pending map[AttemptID]*attempt
	windows map[windowKey]*window
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithDispatcher sets how backend calls are run. Default: deck.GoDispatcher.
func WithDispatcher(d deck.Dispatcher) Option {
	return func(p *Patcher) {
		p.dispatcher = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Patcher) {
		p.logger = l
	}
}

// WithRefresh registers a non-blocking hook run after a committed mutation,
// typically to re-read authoritative counters.
func WithRefresh(fn func(deck.ItemID)) Option {
	return func(p *Patcher) {
		p.refresh = fn
	}
}

// NewPatcher creates a Patcher over items.
func NewPatcher(items Items, api API, opts ...Option) *Patcher {
	p := &Patcher{
		items:      items,
		api:        api,
		dispatcher: deck.GoDispatcher{},
		logger:     slog.Default(),
		pending:    make(map[AttemptID]*attempt),
		windows:    make(map[windowKey]*window),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ToggleLike flips the viewer's like on an item, adjusting the count by one
// (never below zero), and dispatches the backend call.
func (p *Patcher) ToggleLike(ctx context.Context, id deck.ItemID, deliver func(Result)) (AttemptID, error) {
	item, _, ok := p.items.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("toggle like %s: %w", id, deck.ErrItemNotFound)
	}

	a := p.begin(KindLike, item)
	liked := !item.LikedByViewer
	a.liked = liked
	setLiked(item, liked)

	p.logger.Debug("like applied", "item", id, "liked", liked, "count", item.LikeCount, "attempt", a.id)
	p.dispatch(ctx, a, deliver, func(ctx context.Context) error {
		return p.api.ToggleLike(ctx, id, liked)
	})
	return a.id, nil
}

// BumpComments increments an item's comment count and posts the comment.
func (p *Patcher) BumpComments(ctx context.Context, id deck.ItemID, body string, deliver func(Result)) (AttemptID, error) {
	item, _, ok := p.items.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("post comment %s: %w", id, deck.ErrItemNotFound)
	}

	a := p.begin(KindComment, item)
	applyComment(item)

	p.dispatch(ctx, a, deliver, func(ctx context.Context) error {
		return p.api.PostComment(ctx, id, body)
	})
	return a.id, nil
}

// Delete removes one of the viewer's items from its page and dispatches the
// backend call. The returned location is where the item was.
func (p *Patcher) Delete(ctx context.Context, id deck.ItemID, deliver func(Result)) (AttemptID, pages.Location, error) {
	removed, loc, ok := p.items.Remove(id)
	if !ok {
		return 0, pages.Location{}, fmt.Errorf("delete %s: %w", id, deck.ErrItemNotFound)
	}

	p.next++
	a := &attempt{id: p.next, kind: KindDelete, item: id, removed: removed, location: loc}
	p.pending[a.id] = a

	p.logger.Debug("item removed", "item", id, "page", loc.Page, "index", loc.Index, "attempt", a.id)
	p.dispatch(ctx, a, deliver, func(ctx context.Context) error {
		return p.api.DeleteItem(ctx, id)
	})
	return a.id, loc, nil
}

// Pending returns how many attempts on an item are still awaiting the backend.
func (p *Patcher) Pending(id deck.ItemID) int {
	n := 0
	for _, a := range p.pending {
		if a.item == id {
			n++
		}
	}
	return n
}

// Settle applies a backend result.
func (p *Patcher) Settle(res Result) Settlement {
	a, ok := p.pending[res.Attempt]
	if !ok {
		return Settlement{Attempt: res.Attempt, Item: res.Item, Kind: res.Kind, Outcome: Ignored}
	}
	delete(p.pending, a.id)

	s := Settlement{Attempt: a.id, Item: a.item, Kind: a.kind}

	switch {
	case res.Err == nil:
		a.status = succeeded
		s.Outcome = Committed
		if p.refresh != nil {
			p.refresh(a.item)
		}

	case deck.IsLimitError(res.Err):
		a.status = succeeded
		s.Outcome = LimitReached
		s.Err = deck.NewMutationError(string(a.kind), a.item, res.Err)
		p.logger.Info("engagement limit reached", "item", a.item, "kind", a.kind)

	default:
		a.status = failed
		s.Outcome = RolledBack
		s.Err = deck.NewMutationError(string(a.kind), a.item, res.Err)
		p.logger.Warn("mutation failed, rolling back", "item", a.item, "kind", a.kind, "error", res.Err)
		if a.kind == KindDelete {
			p.restoreDeleted(a, &s)
		}
	}

	if a.kind != KindDelete {
		p.settleWindow(a)
	}
	return s
}

func (p *Patcher) begin(kind Kind, item *deck.Item) *attempt {
	p.next++
	a := &attempt{
		id:   p.next,
		kind: kind,
		item: item.ID,
		snap: snapshot{
			liked:        item.LikedByViewer,
			likeCount:    item.LikeCount,
			commentCount: item.CommentCount,
		},
	}
	p.pending[a.id] = a

	key := windowKey{item: item.ID, kind: kind}
	w, ok := p.windows[key]
	if !ok {
		w = &window{}
		p.windows[key] = w
	}
	w.attempts = append(w.attempts, a)
	return a
}

func (p *Patcher) dispatch(ctx context.Context, a *attempt, deliver func(Result), call func(context.Context) error) {
	id, item, kind := a.id, a.item, a.kind
	p.dispatcher.Go(func() {
		err := call(ctx)
		deliver(Result{Attempt: id, Item: item, Kind: kind, Err: err})
	})
}

// settleWindow recomputes the cached fields from the window base after an
// attempt settles, and closes the window once nothing in it is pending.
func (p *Patcher) settleWindow(a *attempt) {
	key := windowKey{item: a.item, kind: a.kind}
	w, ok := p.windows[key]
	if !ok {
		return
	}

	if item, found := p.cached(a.item); found {
		base := w.attempts[0].snap
		switch a.kind {
		case KindLike:
			item.LikedByViewer = base.liked
			item.LikeCount = base.likeCount
		case KindComment:
			item.CommentCount = base.commentCount
		}
		for _, at := range w.attempts {
			if at.status == failed {
				continue
			}
			switch at.kind {
			case KindLike:
				setLiked(item, at.liked)
			case KindComment:
				applyComment(item)
			}
		}
	}

	for _, at := range w.attempts {
		if at.status == pending {
			return
		}
	}
	delete(p.windows, key)
}

// cached returns the copy of an item the patcher must keep current: the
// live one, or the one a pending delete holds for reinsertion.
func (p *Patcher) cached(id deck.ItemID) (*deck.Item, bool) {
	if item, _, ok := p.items.Lookup(id); ok {
		return item, true
	}
	for _, a := range p.pending {
		if a.kind == KindDelete && a.item == id {
			return &a.removed, true
		}
	}
	return nil, false
}

func (p *Patcher) restoreDeleted(a *attempt, s *Settlement) {
	before := p.items.PageLen(a.location.Page)
	idx, ok := p.items.Insert(a.location, a.removed)
	if !ok {
		return
	}
	s.Restored = &pages.Location{Page: a.location.Page, Index: idx}
	s.PageLenBefore = before
}

// setLiked moves an item to the given like state, adjusting the count by one
// when the state changes. The count never drops below zero.
func setLiked(item *deck.Item, liked bool) {
	if item.LikedByViewer == liked {
		return
	}
	item.LikedByViewer = liked
	if liked {
		item.LikeCount++
		return
	}
	item.LikeCount = max(item.LikeCount-1, 0)
}

func applyComment(item *deck.Item) {
	item.CommentCount++
}
