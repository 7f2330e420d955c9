package pages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/storydeck/internal/deck"
)

// PageSource is the backend that serves decks by page number. A nil page or a
// page with no items means there are no more pages.
type PageSource interface {
	FetchPage(ctx context.Context, pageNumber int) (*deck.Page, error)
}

// FetchResult carries a backend response back to the event loop.
type FetchResult struct {
	PageNumber int
	Page       *deck.Page
	Err        error
}

// Outcome describes what Resolve did with a FetchResult.
type Outcome int

const (
	// OutcomeIgnored means the result did not match the fetch in flight.
	OutcomeIgnored Outcome = iota
	// OutcomeAppended means a new page was appended.
	OutcomeAppended
	// OutcomeEnd means the backend reported the end of the feed.
	OutcomeEnd
	// OutcomeFailed means the fetch failed and nothing was committed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAppended:
		return "appended"
	case OutcomeEnd:
		return "end"
	case OutcomeFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// Change is sent to listeners after Resolve commits a state change.
type Change struct {
	Outcome   Outcome
	PageIndex int // index of the appended page, -1 otherwise
	Err       error
}

// Listener observes committed pagination changes.
type Listener func(Change)

// Location addresses an item inside the loaded pages.
type Location struct {
	Page  int
	Index int
}

// Store owns the loaded pages. All methods must be called from the event
// loop goroutine; only the dispatched backend call runs elsewhere.
type Store struct {
	source     PageSource
	dispatcher deck.Dispatcher
	logger     *slog.Logger
	timeout    time.Duration

	pages     []deck.Page
	hasMore   bool
	inFlight  bool
	fetchPage int // page number of the fetch in flight
	nextPage  int
	lastErr   error
	listeners []Listener
}

// Option configures a Store.
type Option func(*Store)

// WithDispatcher sets how backend calls are run. Default: deck.GoDispatcher.
func WithDispatcher(d deck.Dispatcher) Option {
	return func(s *Store) {
		s.dispatcher = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithFetchTimeout bounds each backend call. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithFirstPage sets the page number of the first request. Default: 0.
func WithFirstPage(n int) Option {
	return func(s *Store) {
		s.nextPage = n
	}
}

// NewStore creates an empty store that will fetch from source.
func NewStore(source PageSource, opts ...Option) *Store {
	s := &Store{
		source:     source,
		dispatcher: deck.GoDispatcher{},
		logger:     slog.Default(),
		hasMore:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener for committed changes.
func (s *Store) Subscribe(l Listener) {
	s.listeners = append(s.listeners, l)
}

// FetchNextPage starts fetching the next page and returns true, or returns
// false without doing anything if a fetch is already in flight or the feed
// has ended. deliver is called exactly once, from the dispatched goroutine.
func (s *Store) FetchNextPage(ctx context.Context, deliver func(FetchResult)) bool {
	if s.inFlight || !s.hasMore {
		return false
	}

	s.inFlight = true
	s.fetchPage = s.nextPage
	n := s.nextPage
	source := s.source
	timeout := s.timeout

	s.logger.Debug("fetching page", "page", n)

	s.dispatcher.Go(func() {
		fctx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		page, err := source.FetchPage(fctx, n)
		deliver(FetchResult{PageNumber: n, Page: page, Err: err})
	})

	return true
}

// Resolve commits the result of the fetch in flight.
func (s *Store) Resolve(res FetchResult) Outcome {
	if !s.inFlight || res.PageNumber != s.fetchPage {
		s.logger.Debug("ignoring stale fetch result", "page", res.PageNumber)
		return OutcomeIgnored
	}
	s.inFlight = false

	if res.Err == nil && !res.Page.Empty() {
		res.Err = validatePage(res.Page)
	}

	if res.Err != nil {
		s.lastErr = deck.NewFetchError(res.PageNumber, res.Err)
		s.logger.Warn("page fetch failed", "page", res.PageNumber, "error", res.Err)
		s.notify(Change{Outcome: OutcomeFailed, PageIndex: -1, Err: s.lastErr})
		return OutcomeFailed
	}

	s.lastErr = nil

	if res.Page.Empty() {
		s.hasMore = false
		s.logger.Info("feed exhausted", "page", res.PageNumber, "pages_loaded", len(s.pages))
		s.notify(Change{Outcome: OutcomeEnd, PageIndex: -1})
		return OutcomeEnd
	}

	page := res.Page.Clone()
	for i := range page.Items {
		page.Items[i].Normalize()
	}
	s.pages = append(s.pages, page)
	s.nextPage++

	idx := len(s.pages) - 1
	s.logger.Debug("page appended", "page", res.PageNumber, "index", idx, "items", len(page.Items))
	s.notify(Change{Outcome: OutcomeAppended, PageIndex: idx})
	return OutcomeAppended
}

func (s *Store) notify(c Change) {
	for _, l := range s.listeners {
		l(c)
	}
}

func validatePage(p *deck.Page) error {
	seen := make(map[deck.ItemID]struct{}, len(p.Items))
	for i := range p.Items {
		if err := p.Items[i].Validate(); err != nil {
			return fmt.Errorf("invalid page: %w", err)
		}
		if _, dup := seen[p.Items[i].ID]; dup {
			return fmt.Errorf("invalid page: duplicate item %s", p.Items[i].ID)
		}
		seen[p.Items[i].ID] = struct{}{}
	}
	return nil
}

// PageCount returns the number of loaded pages.
func (s *Store) PageCount() int {
	return len(s.pages)
}

// PageLen returns the number of items on page i, or 0 if i is out of range.
func (s *Store) PageLen(i int) int {
	if i < 0 || i >= len(s.pages) {
		return 0
	}
	return len(s.pages[i].Items)
}

// HasMore reports whether the backend may still have pages.
func (s *Store) HasMore() bool {
	return s.hasMore
}

// InFlight reports whether a fetch is outstanding.
func (s *Store) InFlight() bool {
	return s.inFlight
}

// Err returns the retryable failure from the last fetch, or nil.
func (s *Store) Err() error {
	return s.lastErr
}

// Page returns page i. The returned pointer must be treated as read-only.
func (s *Store) Page(i int) (*deck.Page, bool) {
	if i < 0 || i >= len(s.pages) {
		return nil, false
	}
	return &s.pages[i], true
}

// At returns the item under cursor c.
func (s *Store) At(c deck.Cursor) (*deck.Item, bool) {
	if c.Page < 0 || c.Page >= len(s.pages) {
		return nil, false
	}
	items := s.pages[c.Page].Items
	if c.Item < 0 || c.Item >= len(items) {
		return nil, false
	}
	return &items[c.Item], true
}

// Lookup finds an item by id across all loaded pages, independent of where
// the viewer currently is.
func (s *Store) Lookup(id deck.ItemID) (*deck.Item, Location, bool) {
	for p := range s.pages {
		items := s.pages[p].Items
		for i := range items {
			if items[i].ID == id {
				return &items[i], Location{Page: p, Index: i}, true
			}
		}
	}
	return nil, Location{}, false
}

// Remove deletes an item from its page and returns it with its former
// location. Pages themselves are never removed, only emptied.
func (s *Store) Remove(id deck.ItemID) (deck.Item, Location, bool) {
	_, loc, ok := s.Lookup(id)
	if !ok {
		return deck.Item{}, Location{}, false
	}
	items := s.pages[loc.Page].Items
	removed := items[loc.Index]
	s.pages[loc.Page].Items = append(items[:loc.Index:loc.Index], items[loc.Index+1:]...)
	return removed, loc, true
}

// Insert puts an item back on page loc.Page at loc.Index, clamped to the
// page's current length. It returns the index actually used.
func (s *Store) Insert(loc Location, item deck.Item) (int, bool) {
	if loc.Page < 0 || loc.Page >= len(s.pages) {
		return 0, false
	}
	items := s.pages[loc.Page].Items
	idx := min(max(loc.Index, 0), len(items))

	out := make([]deck.Item, 0, len(items)+1)
	out = append(out, items[:idx]...)
	out = append(out, item)
	out = append(out, items[idx:]...)
	s.pages[loc.Page].Items = out
	return idx, true
}

// State is a read-only copy of the pagination state.
type State struct {
	Pages    []deck.Page `json:"pages"`
	HasMore  bool        `json:"has_more"`
	InFlight bool        `json:"fetch_in_flight"`
	Err      string      `json:"error,omitempty"`
}

// Snapshot returns a deep copy of the pagination state.
func (s *Store) Snapshot() State {
	pages := make([]deck.Page, len(s.pages))
	for i := range s.pages {
		pages[i] = s.pages[i].Clone()
	}
	st := State{Pages: pages, HasMore: s.hasMore, InFlight: s.inFlight}
	if s.lastErr != nil {
		st.Err = s.lastErr.Error()
	}
	return st
}
