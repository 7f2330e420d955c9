package pages

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/testutil"
)

// scriptedSource serves a fixed set of pages, with optional per-page errors.
type scriptedSource struct {
	mu     sync.Mutex
	pages  map[int]*deck.Page
	errs   map[int]error
	called []int
}

func (s *scriptedSource) FetchPage(_ context.Context, n int) (*deck.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called = append(s.called, n)
	if err := s.errs[n]; err != nil {
		delete(s.errs, n)
		return nil, err
	}
	return s.pages[n], nil
}

func photoPage(author string, ids ...string) *deck.Page {
	p := &deck.Page{Author: author}
	for _, id := range ids {
		p.Items = append(p.Items, deck.Item{ID: deck.ItemID(id), MediaKind: deck.MediaPhoto, OwnerID: author})
	}
	return p
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector captures delivered results so the test can Resolve them.
type collector struct {
	results []FetchResult
}

func (c *collector) deliver(r FetchResult) {
	c.results = append(c.results, r)
}

func newTestStore(src PageSource, d deck.Dispatcher) *Store {
	return NewStore(src, WithDispatcher(d), WithLogger(quietLogger()))
}

func TestStore_FetchAppends(t *testing.T) {
	src := &scriptedSource{pages: map[int]*deck.Page{
		0: photoPage("ann", "a1", "a2", "a3"),
		1: photoPage("bob", "b1", "b2"),
	}}
	st := newTestStore(src, testutil.InlineDispatcher{})
	var col collector

	var changes []Change
	st.Subscribe(func(c Change) { changes = append(changes, c) })

	require.True(t, st.FetchNextPage(context.Background(), col.deliver))
	require.Len(t, col.results, 1)
	assert.True(t, st.InFlight(), "in flight until resolved")
	assert.Equal(t, OutcomeAppended, st.Resolve(col.results[0]))

	require.True(t, st.FetchNextPage(context.Background(), col.deliver))
	assert.Equal(t, OutcomeAppended, st.Resolve(col.results[1]))

	assert.Equal(t, 2, st.PageCount())
	assert.Equal(t, 3, st.PageLen(0))
	assert.Equal(t, 2, st.PageLen(1))
	assert.True(t, st.HasMore())
	assert.False(t, st.InFlight())
	assert.Equal(t, []int{0, 1}, src.called)

	require.Len(t, changes, 2)
	assert.Equal(t, Change{Outcome: OutcomeAppended, PageIndex: 1}, changes[1])
}

func TestStore_EmptyPageEndsFeed(t *testing.T) {
	src := &scriptedSource{pages: map[int]*deck.Page{0: photoPage("ann", "a1"), 1: {Author: "nobody"}}}
	st := newTestStore(src, testutil.InlineDispatcher{})
	var col collector

	st.FetchNextPage(context.Background(), col.deliver)
	st.Resolve(col.results[0])
	st.FetchNextPage(context.Background(), col.deliver)
	assert.Equal(t, OutcomeEnd, st.Resolve(col.results[1]))

	assert.False(t, st.HasMore())
	assert.NoError(t, st.Err(), "end of feed is not an error")
	assert.Equal(t, 1, st.PageCount())

	assert.False(t, st.FetchNextPage(context.Background(), col.deliver), "no fetch after the end marker")
	assert.Len(t, src.called, 2)
}

func TestStore_AbsentPageEndsFeed(t *testing.T) {
	st := newTestStore(&scriptedSource{}, testutil.InlineDispatcher{})
	var col collector

	st.FetchNextPage(context.Background(), col.deliver)
	assert.Equal(t, OutcomeEnd, st.Resolve(col.results[0]))
	assert.False(t, st.HasMore())
}

func TestStore_CoalescesWhileInFlight(t *testing.T) {
	src := &scriptedSource{pages: map[int]*deck.Page{0: photoPage("ann", "a1")}}
	var d testutil.ManualDispatcher
	st := newTestStore(src, &d)
	var col collector

	assert.True(t, st.FetchNextPage(context.Background(), col.deliver))
	for i := 0; i < 5; i++ {
		assert.False(t, st.FetchNextPage(context.Background(), col.deliver))
	}
	assert.Equal(t, 1, d.Pending(), "only one backend call issued")

	d.RunAll()
	require.Len(t, col.results, 1)
	assert.Equal(t, OutcomeAppended, st.Resolve(col.results[0]))
	assert.Equal(t, []int{0}, src.called)
}

func TestStore_FailureCommitsNothing(t *testing.T) {
	boom := errors.New("gateway timeout")
	src := &scriptedSource{
		pages: map[int]*deck.Page{0: photoPage("ann", "a1")},
		errs:  map[int]error{0: boom},
	}
	st := newTestStore(src, testutil.InlineDispatcher{})
	var col collector

	var changes []Change
	st.Subscribe(func(c Change) { changes = append(changes, c) })

	st.FetchNextPage(context.Background(), col.deliver)
	assert.Equal(t, OutcomeFailed, st.Resolve(col.results[0]))

	assert.Equal(t, 0, st.PageCount())
	assert.True(t, st.HasMore(), "failure keeps hasMore")
	assert.False(t, st.InFlight())
	require.Error(t, st.Err())
	assert.True(t, deck.IsFetchError(st.Err()))
	assert.ErrorIs(t, st.Err(), boom)
	require.Len(t, changes, 1)
	assert.Equal(t, OutcomeFailed, changes[0].Outcome)

	// Retry requests the same page number and clears the failure flag.
	require.True(t, st.FetchNextPage(context.Background(), col.deliver))
	assert.Equal(t, OutcomeAppended, st.Resolve(col.results[1]))
	assert.NoError(t, st.Err())
	assert.Equal(t, []int{0, 0}, src.called)
}

func TestStore_InvalidPageRejectedWhole(t *testing.T) {
	bad := photoPage("ann", "a1", "a1")
	st := newTestStore(&scriptedSource{pages: map[int]*deck.Page{0: bad}}, testutil.InlineDispatcher{})
	var col collector

	st.FetchNextPage(context.Background(), col.deliver)
	assert.Equal(t, OutcomeFailed, st.Resolve(col.results[0]))
	assert.Equal(t, 0, st.PageCount(), "no partial page is committed")
	assert.Contains(t, st.Err().Error(), "duplicate item")
}

func TestStore_StaleResultIgnored(t *testing.T) {
	st := newTestStore(&scriptedSource{}, testutil.InlineDispatcher{})

	assert.Equal(t, OutcomeIgnored, st.Resolve(FetchResult{PageNumber: 0, Page: photoPage("x", "x1")}))
	assert.Equal(t, 0, st.PageCount())
}

func TestStore_FirstPageOption(t *testing.T) {
	src := &scriptedSource{pages: map[int]*deck.Page{1: photoPage("ann", "a1")}}
	st := NewStore(src, WithDispatcher(testutil.InlineDispatcher{}), WithLogger(quietLogger()), WithFirstPage(1))
	var col collector

	st.FetchNextPage(context.Background(), col.deliver)
	assert.Equal(t, OutcomeAppended, st.Resolve(col.results[0]))
	assert.Equal(t, []int{1}, src.called)
}

func loadedStore(t *testing.T, pages ...*deck.Page) *Store {
	t.Helper()
	src := &scriptedSource{pages: map[int]*deck.Page{}}
	for i, p := range pages {
		src.pages[i] = p
	}
	st := newTestStore(src, testutil.InlineDispatcher{})
	var col collector
	for i := range pages {
		require.True(t, st.FetchNextPage(context.Background(), col.deliver))
		require.Equal(t, OutcomeAppended, st.Resolve(col.results[i]))
	}
	return st
}

func TestStore_LookupRemoveInsert(t *testing.T) {
	st := loadedStore(t, photoPage("ann", "a1", "a2"), photoPage("bob", "b1", "b2", "b3"))

	item, loc, ok := st.Lookup("b2")
	require.True(t, ok)
	assert.Equal(t, Location{Page: 1, Index: 1}, loc)
	assert.Equal(t, deck.ItemID("b2"), item.ID)

	_, _, ok = st.Lookup("zz")
	assert.False(t, ok)

	removed, loc, ok := st.Remove("b2")
	require.True(t, ok)
	assert.Equal(t, deck.ItemID("b2"), removed.ID)
	assert.Equal(t, 2, st.PageLen(1))
	_, _, ok = st.Lookup("b2")
	assert.False(t, ok)

	idx, ok := st.Insert(loc, removed)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	got, _ := st.At(deck.Cursor{Page: 1, Item: 1})
	assert.Equal(t, deck.ItemID("b2"), got.ID)

	// Insert position is clamped to the page length.
	idx, ok = st.Insert(Location{Page: 0, Index: 10}, deck.Item{ID: "a9", MediaKind: deck.MediaPhoto})
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = st.Insert(Location{Page: 7}, removed)
	assert.False(t, ok)
}

func TestStore_RemoveDoesNotAliasSnapshot(t *testing.T) {
	st := loadedStore(t, photoPage("ann", "a1", "a2", "a3"))
	snap := st.Snapshot()

	_, _, ok := st.Remove("a1")
	require.True(t, ok)

	assert.Len(t, snap.Pages[0].Items, 3)
	assert.Equal(t, deck.ItemID("a1"), snap.Pages[0].Items[0].ID)
}

func TestStore_RemovingEveryItemKeepsPage(t *testing.T) {
	st := loadedStore(t, photoPage("ann", "a1"), photoPage("bob", "b1"))

	_, _, ok := st.Remove("a1")
	require.True(t, ok)
	assert.Equal(t, 2, st.PageCount(), "pages are emptied, never removed")
	assert.Equal(t, 0, st.PageLen(0))
}

func TestStore_NormalizesCaptions(t *testing.T) {
	p := photoPage("ann", "a1")
	p.Items[0].Caption = "cafe\u0301"
	st := loadedStore(t, p)

	item, _ := st.At(deck.Cursor{})
	assert.Equal(t, "caf\u00e9", item.Caption)
	assert.Equal(t, "cafe\u0301", p.Items[0].Caption, "source page is not mutated")
}
