package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engagement"
	"github.com/roach88/storydeck/internal/gesture"
	"github.com/roach88/storydeck/internal/navigation"
	"github.com/roach88/storydeck/internal/pages"
	"github.com/roach88/storydeck/internal/playback"
)

// Engine is the single-writer feed event loop.
//
// CRITICAL: All mutations happen in the goroutine running Run (or Pump).
// External callers use Enqueue() to submit events for processing.
//
// Thread-safety model:
//   - Enqueue(), State(), Session(): safe from any goroutine
//   - Run(), Pump(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - the cursor is valid for the loaded pages after every event
//   - at most one playback countdown is armed
//   - collaborators are called outside the state lock, in event order
type Engine struct {
	mu sync.Mutex

	pages     *pages.Store
	patcher   *engagement.Patcher
	scheduler *playback.Scheduler
	mapper    *gesture.Mapper
	queue     *eventQueue
	seq       *sessionSeq
	session   string
	logger    *slog.Logger

	// settings, applied by options before the components are built
	dispatcher   deck.Dispatcher
	timeClock    playback.Clock
	sessionGen   SessionTokenGenerator
	dwell        time.Duration
	threshold    float64
	fetchTimeout time.Duration
	firstPage    int
	viewer       string
	prefetch     bool
	refresh      func(deck.ItemID)

	profile   ProfileRouter
	paywall   Paywall
	notifier  Notifier
	observers []Observer

	cursor         deck.Cursor
	active         deck.ItemID
	pendingAdvance bool
	pendingFrom    deck.Cursor
	stalled        bool
	overlayOpen    bool

	outbox []func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatcher sets where backend calls run. Default: one goroutine per
// call.
func WithDispatcher(d deck.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithClock sets the wall clock driving playback. Default: RealClock.
func WithClock(c playback.Clock) Option {
	return func(e *Engine) { e.timeClock = c }
}

// WithLogger sets the logger shared by the engine and its components.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSessionGenerator sets how the session token is generated.
func WithSessionGenerator(g SessionTokenGenerator) Option {
	return func(e *Engine) { e.sessionGen = g }
}

// WithSeqStart continues the transition seq from a previous run.
func WithSeqStart(seq int64) Option {
	return func(e *Engine) { e.seq = newSessionSeq(seq) }
}

// WithDwell sets how long photos stay on screen.
func WithDwell(d time.Duration) Option {
	return func(e *Engine) { e.dwell = d }
}

// WithSwipeThreshold sets the minimum swipe distance.
func WithSwipeThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithFetchTimeout bounds each page fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.fetchTimeout = d }
}

// WithFirstPage sets the page number of the first fetch.
func WithFirstPage(n int) Option {
	return func(e *Engine) { e.firstPage = n }
}

// WithViewer sets the viewer's owner id. Deletes of items owned by anyone
// else are refused. An empty viewer allows every delete.
func WithViewer(id string) Option {
	return func(e *Engine) { e.viewer = id }
}

// WithPrefetch fetches the next deck as soon as the cursor reaches the last
// loaded one, instead of waiting for an advance past it.
func WithPrefetch(on bool) Option {
	return func(e *Engine) { e.prefetch = on }
}

// WithRefresh sets a hook called after a committed engagement change. It
// runs on the event loop and must not block.
func WithRefresh(fn func(deck.ItemID)) Option {
	return func(e *Engine) { e.refresh = fn }
}

// WithProfileRouter sets the author-tap collaborator.
func WithProfileRouter(r ProfileRouter) Option {
	return func(e *Engine) { e.profile = r }
}

// WithPaywall sets the limit-reached collaborator.
func WithPaywall(p Paywall) Option {
	return func(e *Engine) { e.paywall = p }
}

// WithNotifier sets the notice collaborator.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithObserver adds a transition observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// New creates an Engine reading decks from source and sending engagement
// changes to api. Nothing is fetched until an EventStart is processed.
func New(source pages.PageSource, api engagement.API, opts ...Option) *Engine {
	e := &Engine{
		queue:      newEventQueue(),
		seq:        newSessionSeq(0),
		logger:     slog.Default(),
		dispatcher: deck.GoDispatcher{},
		timeClock:  playback.RealClock{},
		sessionGen: UUIDv7Generator{},
		dwell:      playback.DefaultDwell,
		threshold:  gesture.DefaultThreshold,
		profile:    noopCollaborators{},
		paywall:    noopCollaborators{},
		notifier:   noopCollaborators{},
	}

	for _, opt := range opts {
		opt(e)
	}

	e.session = e.sessionGen.Generate()
	e.logger = e.logger.With("session", e.session)

	e.pages = pages.NewStore(source,
		pages.WithDispatcher(e.dispatcher),
		pages.WithLogger(e.logger),
		pages.WithFetchTimeout(e.fetchTimeout),
		pages.WithFirstPage(e.firstPage),
	)

	patcherOpts := []engagement.Option{
		engagement.WithDispatcher(e.dispatcher),
		engagement.WithLogger(e.logger),
	}
	if e.refresh != nil {
		patcherOpts = append(patcherOpts, engagement.WithRefresh(e.refresh))
	}
	e.patcher = engagement.NewPatcher(e.pages, api, patcherOpts...)

	e.scheduler = playback.NewScheduler(e.timeClock, func(f playback.Fire) {
		e.Enqueue(Event{Type: EventTimerFired, Fire: f})
	}, playback.WithDwell(e.dwell), playback.WithLogger(e.logger))

	e.mapper = gesture.NewMapper(e.threshold)

	return e
}

// Session returns the session token tagging this engine's transitions.
func (e *Engine) Session() string {
	return e.session
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: an event that cannot be applied is logged with its context
// and processing continues. Nothing in the feed is fatal.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			e.process(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.shutdown()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue, so this also fires on
			// Stop.
			if e.queue.closedAndEmpty() {
				e.logger.Info("engine stopping: queue closed")
				e.shutdown()
				return nil
			}
		}
	}
}

// Pump processes queued events synchronously until the queue is empty,
// including events enqueued while pumping. Returns the number processed.
// Used by tests and the scenario harness in place of Run.
func (e *Engine) Pump(ctx context.Context) int {
	n := 0
	for {
		event, ok := e.queue.TryDequeue()
		if !ok {
			return n
		}
		e.process(ctx, event)
		n++
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return, and disarms
// playback so no timer outlives a Pump-driven engine.
func (e *Engine) Stop() {
	e.shutdown()
}

func (e *Engine) shutdown() {
	e.queue.Close()
	e.mu.Lock()
	e.scheduler.Cancel()
	e.mu.Unlock()
}

// process applies one event under the state lock, then runs the
// collaborator calls it produced.
func (e *Engine) process(ctx context.Context, event Event) {
	e.mu.Lock()
	t, err := e.processEvent(ctx, event)
	if err != nil {
		e.logEventError(event, err)
	}
	e.record(t)
	outbox := e.outbox
	e.outbox = nil
	e.mu.Unlock()

	for _, fn := range outbox {
		fn()
	}
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only with e.mu held, from the loop goroutine.
func (e *Engine) processEvent(ctx context.Context, event Event) (Transition, error) {
	t := Transition{
		Seq:     e.seq.stamp(),
		Session: e.session,
		Event:   event.Type.String(),
		From:    e.cursor,
	}

	var err error
	switch event.Type {
	case EventStart:
		t.Outcome = e.start(ctx)

	case EventSwipe:
		cmd := e.mapper.Swipe(event.Vector)
		t.Detail = cmd.String()
		t.Outcome = e.apply(ctx, cmd)

	case EventTap:
		cmd := e.mapper.Tap(event.Target)
		t.Detail = cmd.String()
		t.Outcome = e.apply(ctx, cmd)

	case EventCommand:
		t.Detail = event.Command.String()
		t.Outcome = e.apply(ctx, event.Command)

	case EventTimerFired:
		t.Outcome = e.timerFired(ctx, event.Fire)

	case EventFetchResolved:
		t.Outcome = e.fetchResolved(ctx, event.Fetch)
		t.Detail = fmt.Sprintf("page %d", event.Fetch.PageNumber)

	case EventMutationResolved:
		t.Outcome = e.mutationResolved(event.Mutation)
		t.Detail = fmt.Sprintf("%s %s", event.Mutation.Kind, event.Mutation.Item)

	case EventOverlayOpened:
		e.overlayOpen = true
		e.scheduler.Suspend()
		t.Outcome = "suspended"

	case EventOverlayClosed:
		e.overlayOpen = false
		e.scheduler.Resume()
		t.Outcome = "resumed"

	case EventLike:
		t.Outcome, err = e.like(ctx, event.Item)

	case EventComment:
		t.Outcome, err = e.comment(ctx, event.Item, event.Body)

	case EventDelete:
		t.Outcome, err = e.remove(ctx, event.Item)

	case EventRetry:
		t.Outcome = e.retry(ctx)

	default:
		err = fmt.Errorf("unknown event type: %d", event.Type)
	}

	e.syncActive()
	t.To = e.cursor
	t.Item = e.active
	if err != nil && t.Outcome == "" {
		t.Outcome = "rejected"
	}
	return t, err
}

func (e *Engine) start(ctx context.Context) string {
	if e.pages.PageCount() > 0 || e.pages.InFlight() {
		return "ignored"
	}
	e.fetch(ctx)
	return "fetching"
}

// apply runs a mapped command.
func (e *Engine) apply(ctx context.Context, cmd gesture.Command) string {
	var step navigation.Step
	switch cmd {
	case gesture.NextItem:
		step = navigation.AdvanceWithinPage(e.pages, e.cursor)
	case gesture.PreviousItem:
		step = navigation.RetreatWithinPage(e.pages, e.cursor)
	case gesture.NextDeck:
		step = navigation.AdvanceToNextPage(e.pages, e.cursor)
	case gesture.PreviousDeck:
		step = navigation.RetreatToPreviousPage(e.pages, e.cursor)
	case gesture.ShowProfile:
		e.showProfile()
		return "profile"
	default:
		return "snapped_back"
	}
	e.applyStep(ctx, step)
	return step.Outcome.String()
}

func (e *Engine) showProfile() {
	item, ok := e.pages.At(e.cursor)
	if !ok {
		return
	}
	page, _ := e.pages.Page(e.cursor.Page)
	author, id := page.Author, item.ID
	e.logger.Debug("routing to profile", "author", author, "item", id)
	e.later(func() { e.profile.ShowProfile(author, id) })
}

// applyStep commits a navigation result.
func (e *Engine) applyStep(ctx context.Context, step navigation.Step) {
	switch step.Outcome {
	case navigation.Moved:
		e.moveTo(ctx, step.Cursor)
	case navigation.NeedsFetch:
		e.requestAdvance(ctx)
	}
}

// moveTo is the only place the cursor moves to a new position. Moving drops
// any pending advance and always restarts the countdown.
func (e *Engine) moveTo(ctx context.Context, c deck.Cursor) {
	e.cursor = c
	e.pendingAdvance = false
	e.stalled = false
	e.rearm()

	if e.prefetch && c.Page >= e.pages.PageCount()-1 {
		e.fetch(ctx)
	}
}

// requestAdvance records that the cursor wants the next deck and fetches it.
// A second request while the fetch is in flight is coalesced by the page
// store.
func (e *Engine) requestAdvance(ctx context.Context) {
	e.pendingAdvance = true
	e.pendingFrom = e.cursor
	e.stalled = false
	e.fetch(ctx)
}

func (e *Engine) fetch(ctx context.Context) {
	e.pages.FetchNextPage(ctx, func(res pages.FetchResult) {
		e.Enqueue(Event{Type: EventFetchResolved, Fetch: res})
	})
}

func (e *Engine) timerFired(ctx context.Context, f playback.Fire) string {
	if !e.scheduler.Accept(f) {
		return "stale"
	}
	if f.Item != e.active {
		return "stale"
	}
	step := navigation.AdvanceWithinPage(e.pages, e.cursor)
	e.applyStep(ctx, step)
	return step.Outcome.String()
}

func (e *Engine) fetchResolved(ctx context.Context, res pages.FetchResult) string {
	outcome := e.pages.Resolve(res)
	pending := e.pendingAdvance && e.cursor == e.pendingFrom

	switch outcome {
	case pages.OutcomeAppended:
		e.pendingAdvance = false
		_, hasActive := e.pages.At(e.cursor)
		switch {
		case !hasActive:
			e.applyStep(ctx, navigation.Clamp(e.pages, e.cursor))
		case pending:
			e.applyStep(ctx, navigation.AdvanceToNextPage(e.pages, e.cursor))
		}

	case pages.OutcomeEnd:
		e.pendingAdvance = false

	case pages.OutcomeFailed:
		if pending {
			e.stalled = true
		}
		e.pendingAdvance = false
		err := e.pages.Err()
		e.notify(Notice{Kind: NoticeFetchFailed, Err: err, Retryable: true})
	}
	return outcome.String()
}

// retry refetches after a failure. A stalled advance is re-armed so the
// cursor moves once the page arrives.
func (e *Engine) retry(ctx context.Context) string {
	if e.pages.Err() == nil || e.pages.InFlight() {
		return "ignored"
	}
	if e.stalled {
		e.requestAdvance(ctx)
	} else {
		e.fetch(ctx)
	}
	return "fetching"
}

func (e *Engine) target(id deck.ItemID) (deck.ItemID, error) {
	if id != "" {
		return id, nil
	}
	if e.active == "" {
		return "", fmt.Errorf("no active item: %w", deck.ErrItemNotFound)
	}
	return e.active, nil
}

func (e *Engine) deliverMutation(res engagement.Result) {
	e.Enqueue(Event{Type: EventMutationResolved, Mutation: res})
}

func (e *Engine) like(ctx context.Context, id deck.ItemID) (string, error) {
	id, err := e.target(id)
	if err != nil {
		return "", err
	}
	if _, err := e.patcher.ToggleLike(ctx, id, e.deliverMutation); err != nil {
		return "", err
	}
	return "applied", nil
}

func (e *Engine) comment(ctx context.Context, id deck.ItemID, body string) (string, error) {
	id, err := e.target(id)
	if err != nil {
		return "", err
	}
	if _, err := e.patcher.BumpComments(ctx, id, body, e.deliverMutation); err != nil {
		return "", err
	}
	return "applied", nil
}

// remove deletes an item optimistically. If that empties the active deck
// the cursor clamps forward, fetching when the next deck is not loaded yet.
func (e *Engine) remove(ctx context.Context, id deck.ItemID) (string, error) {
	id, err := e.target(id)
	if err != nil {
		return "", err
	}
	item, _, ok := e.pages.Lookup(id)
	if !ok {
		return "", fmt.Errorf("delete %s: %w", id, deck.ErrItemNotFound)
	}
	if e.viewer != "" && item.OwnerID != e.viewer {
		e.notify(Notice{Kind: NoticeNotOwner, Item: id})
		return "not_owner", nil
	}

	_, loc, err := e.patcher.Delete(ctx, id, e.deliverMutation)
	if err != nil {
		return "", err
	}

	e.cursor = navigation.AfterRemove(e.cursor, loc.Page, loc.Index)
	if e.pendingAdvance {
		e.pendingFrom = navigation.AfterRemove(e.pendingFrom, loc.Page, loc.Index)
	}
	step := navigation.Clamp(e.pages, e.cursor)
	e.applyStep(ctx, step)
	return "applied", nil
}

func (e *Engine) mutationResolved(res engagement.Result) string {
	s := e.patcher.Settle(res)

	switch s.Outcome {
	case engagement.RolledBack:
		if s.Restored != nil {
			// The delete emptied the active deck and asked for the next one.
			// The item is back, so the late page only appends.
			if s.Restored.Page == e.cursor.Page && s.PageLenBefore == 0 {
				e.pendingAdvance = false
				e.stalled = false
			}
			e.cursor = navigation.AfterInsert(e.cursor, s.Restored.Page, s.Restored.Index, s.PageLenBefore)
		}
		e.notify(Notice{Kind: NoticeMutationFailed, Item: s.Item, Err: s.Err})

	case engagement.LimitReached:
		item, kind := s.Item, s.Kind
		e.later(func() { e.paywall.Present(item, kind) })
	}
	return s.Outcome.String()
}

// syncActive re-derives the active item and rearms the countdown when its
// identity changed. Counter patches do not change identity.
func (e *Engine) syncActive() {
	var id deck.ItemID
	if item, ok := e.pages.At(e.cursor); ok {
		id = item.ID
	}
	if id != e.active {
		e.rearm()
	}
}

func (e *Engine) rearm() {
	item, ok := e.pages.At(e.cursor)
	if !ok {
		e.active = ""
		e.scheduler.Rearm(nil)
		return
	}
	e.active = item.ID
	e.scheduler.Rearm(item)
}

func (e *Engine) notify(n Notice) {
	e.logger.Info("notice", "kind", n.Kind, "item", n.Item, "error", n.Err)
	e.later(func() { e.notifier.Notify(n) })
}

// later queues a collaborator call to run after the state lock is
// released.
func (e *Engine) later(fn func()) {
	e.outbox = append(e.outbox, fn)
}

func (e *Engine) record(t Transition) {
	if len(e.observers) == 0 {
		return
	}
	observers := e.observers
	e.later(func() {
		for _, o := range observers {
			o.Observe(t)
		}
	})
}

// logEventError logs an event that could not be applied, with the fields
// needed to reproduce it.
func (e *Engine) logEventError(event Event, err error) {
	switch event.Type {
	case EventLike, EventComment, EventDelete:
		e.logger.Warn("engagement event rejected",
			"error", err,
			"event_type", event.Type,
			"item", event.Item,
			"cursor", e.cursor,
		)
	default:
		e.logger.Error("event processing failed",
			"error", err,
			"event_type", event.Type,
			"cursor", e.cursor,
		)
	}
}

// State is a read-only copy of the engine state.
type State struct {
	Session        string
	Seq            int64
	Cursor         deck.Cursor
	Active         *deck.Item
	Pages          []deck.Page
	HasMore        bool
	InFlight       bool
	FetchErr       error
	PendingAdvance bool
	Stalled        bool
	OverlayOpen    bool
	Armed          int
	Deadline       time.Time
}

// State returns a snapshot of the engine state.
// Thread-safe: may be called from any goroutine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.pages.Snapshot()
	s := State{
		Session:        e.session,
		Seq:            e.seq.current(),
		Cursor:         e.cursor,
		Pages:          snap.Pages,
		HasMore:        snap.HasMore,
		InFlight:       snap.InFlight,
		FetchErr:       e.pages.Err(),
		PendingAdvance: e.pendingAdvance,
		Stalled:        e.stalled,
		OverlayOpen:    e.overlayOpen,
		Armed:          e.scheduler.Armed(),
	}
	if item, ok := e.pages.At(e.cursor); ok {
		cp := *item
		s.Active = &cp
	}
	if d, ok := e.scheduler.Deadline(); ok {
		s.Deadline = d
	}
	return s
}
