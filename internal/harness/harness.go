package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engagement"
	"github.com/roach88/storydeck/internal/engine"
	"github.com/roach88/storydeck/internal/gesture"
	"github.com/roach88/storydeck/internal/pages"
	"github.com/roach88/storydeck/internal/store"
	"github.com/roach88/storydeck/internal/testutil"
)

// Epoch is the manual clock's start time in every scenario.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness drives one engine through a scenario. Backend calls go through a
// manual dispatcher and time through a manual clock, so a scenario replays
// the same transitions on every run.
type Harness struct {
	eng    *engine.Engine
	clock  *testutil.ManualClock
	calls  *testutil.ManualDispatcher
	store  *store.Store // sqlite backend only
	logger *slog.Logger
	result *Result
	trace  []engine.Transition
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh backend. Execution flow:
//  1. Build the backend (scripted, or a seeded in-memory SQLite store)
//  2. Build the engine with a manual clock and dispatcher
//  3. Execute steps, checking each step's expectations
//  4. Evaluate assertions against the trace and collaborator calls
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine logs sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	ctx := context.Background()
	h := &Harness{
		clock:  testutil.NewManualClock(Epoch),
		calls:  &testutil.ManualDispatcher{},
		logger: logger,
		result: NewResult(),
	}

	source, api, err := h.backend(ctx, scenario)
	if err != nil {
		return nil, err
	}
	if h.store != nil {
		defer h.store.Close()
	}

	observers := []engine.Option{
		engine.WithObserver(engine.ObserverFunc(func(t engine.Transition) {
			h.trace = append(h.trace, t)
		})),
	}
	if h.store != nil {
		observers = append(observers, engine.WithObserver(store.NewRecorder(ctx, h.store, logger)))
	}

	opts := []engine.Option{
		engine.WithClock(h.clock),
		engine.WithDispatcher(h.calls),
		engine.WithLogger(logger),
		engine.WithSessionGenerator(testutil.NewFixedSessionGenerator(scenario.Session)),
		engine.WithDwell(scenario.Settings.Dwell),
		engine.WithSwipeThreshold(scenario.Settings.SwipeThreshold),
		engine.WithViewer(scenario.Settings.Viewer),
		engine.WithPrefetch(scenario.Settings.Prefetch),
		engine.WithNotifier(engine.NotifierFunc(func(n engine.Notice) {
			h.result.Notices = append(h.result.Notices, n)
		})),
		engine.WithPaywall(h),
		engine.WithProfileRouter(h),
	}
	h.eng = engine.New(source, api, append(opts, observers...)...)
	h.result.Session = h.eng.Session()

	for i, step := range scenario.Steps {
		h.step(ctx, step)
		if step.Expect != nil {
			h.check(i, step.Expect)
		}
		logger.Debug("scenario step completed", "scenario", scenario.Name, "step", i, "do", step.Do)
	}

	h.result.Final = h.eng.State()
	h.result.Trace = h.trace
	if h.store != nil {
		stored, err := h.store.ReadTransitions(ctx, h.result.Session)
		if err != nil {
			return nil, fmt.Errorf("read recorded transitions: %w", err)
		}
		h.result.Trace = stored
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// backend builds the page source and engagement API for a scenario.
func (h *Harness) backend(ctx context.Context, s *Scenario) (pages.PageSource, engagement.API, error) {
	switch s.Backend {
	case BackendSQLite:
		st, err := store.OpenMemory()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		if _, err := st.Seed(ctx, store.Fixture{Viewer: s.Settings.Viewer, Decks: s.Decks}); err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("failed to seed store: %w", err)
		}
		h.store = st
		b := store.NewBackend(st, s.Settings.Viewer,
			store.WithDailyLikeLimit(s.Settings.LikeLimit),
			store.WithNow(h.clock.Now),
			store.WithBackendLogger(h.logger),
		)
		return &recordingSource{source: b, result: h.result}, b, nil

	default:
		decks := make([]*deck.Page, len(s.Decks))
		for i := range s.Decks {
			decks[i] = &s.Decks[i]
		}
		b := testutil.NewScriptedBackend(decks...)
		for page, times := range s.Failures.Fetch {
			b.FailFetch(page, times)
		}
		for _, id := range s.Failures.Mutations {
			b.FailMutations(id, testutil.ErrScripted)
		}
		for _, id := range s.Failures.Limited {
			b.FailMutations(id, deck.ErrLimitReached)
		}
		return &recordingSource{source: b, result: h.result}, b, nil
	}
}

// ShowProfile implements engine.ProfileRouter.
func (h *Harness) ShowProfile(_ string, item deck.ItemID) {
	h.result.Profiles = append(h.result.Profiles, item)
}

// Present implements engine.Paywall.
func (h *Harness) Present(item deck.ItemID, _ engagement.Kind) {
	h.result.Paywall = append(h.result.Paywall, item)
}

func (h *Harness) step(ctx context.Context, s Step) {
	switch s.Do {
	case DoStart:
		h.send(ctx, engine.Event{Type: engine.EventStart})
	case DoSwipe:
		h.send(ctx, engine.Event{Type: engine.EventSwipe, Vector: gesture.Vector{DX: s.DX, DY: s.DY}})
	case DoTap:
		h.send(ctx, engine.Event{Type: engine.EventTap, Target: gesture.Target(s.Target)})
	case DoCommand:
		cmd, _ := gesture.ParseCommand(s.Command)
		h.send(ctx, engine.Event{Type: engine.EventCommand, Command: cmd})
	case DoLike:
		h.send(ctx, engine.Event{Type: engine.EventLike, Item: s.Item})
	case DoComment:
		h.send(ctx, engine.Event{Type: engine.EventComment, Item: s.Item, Body: s.Body})
	case DoDelete:
		h.send(ctx, engine.Event{Type: engine.EventDelete, Item: s.Item})
	case DoRetry:
		h.send(ctx, engine.Event{Type: engine.EventRetry})
	case DoOverlayOpen:
		h.send(ctx, engine.Event{Type: engine.EventOverlayOpened})
	case DoOverlayClose:
		h.send(ctx, engine.Event{Type: engine.EventOverlayClosed})
	case DoWait:
		h.clock.Advance(s.For)
		h.eng.Pump(ctx)
	case DoRelease:
		h.calls.RunNext()
		h.eng.Pump(ctx)
	case DoSettle:
		h.settle(ctx)
	}
}

func (h *Harness) send(ctx context.Context, ev engine.Event) {
	h.eng.Enqueue(ev)
	h.eng.Pump(ctx)
}

// settle releases backend calls and processes their results until both
// are idle.
func (h *Harness) settle(ctx context.Context) {
	for {
		n := h.eng.Pump(ctx)
		r := h.calls.RunAll()
		if n == 0 && r == 0 {
			return
		}
	}
}

// check compares engine state against a step's expectations.
func (h *Harness) check(index int, want *Expect) {
	st := h.eng.State()
	fail := func(format string, args ...any) {
		h.result.AddError(fmt.Sprintf("steps[%d]: ", index) + fmt.Sprintf(format, args...))
	}

	if want.Cursor != nil && st.Cursor != *want.Cursor {
		fail("cursor = %s, want %s", st.Cursor, *want.Cursor)
	}
	if want.Active != nil {
		var got deck.ItemID
		if st.Active != nil {
			got = st.Active.ID
		}
		if got != *want.Active {
			fail("active = %q, want %q", got, *want.Active)
		}
	}
	if want.Pages != nil && len(st.Pages) != *want.Pages {
		fail("pages = %d, want %d", len(st.Pages), *want.Pages)
	}
	if want.HasMore != nil && st.HasMore != *want.HasMore {
		fail("has_more = %t, want %t", st.HasMore, *want.HasMore)
	}
	if want.InFlight != nil && st.InFlight != *want.InFlight {
		fail("in_flight = %t, want %t", st.InFlight, *want.InFlight)
	}
	if want.Stalled != nil && st.Stalled != *want.Stalled {
		fail("stalled = %t, want %t", st.Stalled, *want.Stalled)
	}
	if want.Armed != nil && st.Armed != *want.Armed {
		fail("armed = %d, want %d", st.Armed, *want.Armed)
	}
	if want.Remaining != nil {
		var got time.Duration
		if st.Armed > 0 {
			got = st.Deadline.Sub(h.clock.Now())
		}
		if got != *want.Remaining {
			fail("remaining = %s, want %s", got, *want.Remaining)
		}
	}
	if want.Outcome != "" {
		got := ""
		if len(h.trace) > 0 {
			got = h.trace[len(h.trace)-1].Outcome
		}
		if got != want.Outcome {
			fail("outcome = %q, want %q", got, want.Outcome)
		}
	}

	view := &Result{Final: st}
	for _, ie := range want.Items {
		item, ok := view.item(ie.ID)
		if ie.Absent {
			if ok {
				fail("item %s still cached", ie.ID)
			}
			continue
		}
		if !ok {
			fail("item %s not cached", ie.ID)
			continue
		}
		if ie.LikeCount != nil && item.LikeCount != *ie.LikeCount {
			fail("item %s like_count = %d, want %d", ie.ID, item.LikeCount, *ie.LikeCount)
		}
		if ie.LikedByViewer != nil && item.LikedByViewer != *ie.LikedByViewer {
			fail("item %s liked_by_viewer = %t, want %t", ie.ID, item.LikedByViewer, *ie.LikedByViewer)
		}
		if ie.CommentCount != nil && item.CommentCount != *ie.CommentCount {
			fail("item %s comment_count = %d, want %d", ie.ID, item.CommentCount, *ie.CommentCount)
		}
	}
}

// recordingSource notes every page number requested.
type recordingSource struct {
	source pages.PageSource

	mu     sync.Mutex
	result *Result
}

func (r *recordingSource) FetchPage(ctx context.Context, n int) (*deck.Page, error) {
	r.mu.Lock()
	r.result.Fetches = append(r.result.Fetches, n)
	r.mu.Unlock()
	return r.source.FetchPage(ctx, n)
}
