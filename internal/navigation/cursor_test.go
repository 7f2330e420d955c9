package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storydeck/internal/deck"
)

// fakeView is a page-length list plus a hasMore flag.
type fakeView struct {
	lens    []int
	hasMore bool
}

func (v fakeView) PageCount() int { return len(v.lens) }
func (v fakeView) HasMore() bool  { return v.hasMore }
func (v fakeView) PageLen(i int) int {
	if i < 0 || i >= len(v.lens) {
		return 0
	}
	return v.lens[i]
}

func cur(p, i int) deck.Cursor {
	return deck.Cursor{Page: p, Item: i}
}

func TestAdvanceWithinPage(t *testing.T) {
	tests := []struct {
		name string
		view fakeView
		from deck.Cursor
		want Step
	}{
		{"inside page", fakeView{lens: []int{3}}, cur(0, 0), Step{cur(0, 1), Moved}},
		{"last item crosses to next page", fakeView{lens: []int{3, 2}}, cur(0, 2), Step{cur(1, 0), Moved}},
		{"last item needs fetch", fakeView{lens: []int{3}, hasMore: true}, cur(0, 2), Step{cur(0, 2), NeedsFetch}},
		{"last item at feed end", fakeView{lens: []int{3}}, cur(0, 2), Step{cur(0, 2), FeedEnd}},
		{"empty feed needs fetch", fakeView{hasMore: true}, cur(0, 0), Step{cur(0, 0), NeedsFetch}},
		{"empty feed at end", fakeView{}, cur(0, 0), Step{cur(0, 0), FeedEnd}},
		{"skips empty next page", fakeView{lens: []int{1, 0, 2}}, cur(0, 0), Step{cur(2, 0), Moved}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdvanceWithinPage(tt.view, tt.from))
		})
	}
}

func TestAdvanceToNextPage(t *testing.T) {
	v := fakeView{lens: []int{3, 2}, hasMore: true}

	assert.Equal(t, Step{cur(1, 0), Moved}, AdvanceToNextPage(v, cur(0, 2)))
	assert.Equal(t, Step{cur(1, 0), Moved}, AdvanceToNextPage(v, cur(0, 0)), "always lands on the first item")
	assert.Equal(t, Step{cur(1, 1), NeedsFetch}, AdvanceToNextPage(v, cur(1, 1)))

	v.hasMore = false
	assert.Equal(t, Step{cur(1, 1), FeedEnd}, AdvanceToNextPage(v, cur(1, 1)))
}

func TestRetreatWithinPage(t *testing.T) {
	v := fakeView{lens: []int{3, 2}}

	assert.Equal(t, Step{cur(1, 0), Moved}, RetreatWithinPage(v, cur(1, 1)))
	assert.Equal(t, Step{cur(1, 0), Stayed}, RetreatWithinPage(v, cur(1, 0)), "first item is a floor")
	assert.Equal(t, Step{cur(0, 0), FeedStart}, RetreatWithinPage(v, cur(0, 0)))
}

func TestRetreatToPreviousPage(t *testing.T) {
	v := fakeView{lens: []int{3, 0, 2}}

	assert.Equal(t, Step{cur(0, 0), Moved}, RetreatToPreviousPage(v, cur(2, 1)), "skips empty page and lands on item 0")
	assert.Equal(t, Step{cur(0, 2), FeedStart}, RetreatToPreviousPage(v, cur(0, 2)))
}

func TestAdvanceThenRetreatRoundTrips(t *testing.T) {
	v := fakeView{lens: []int{4, 3, 5}, hasMore: true}

	for p, n := range v.lens {
		for i := 0; i < n-1; i++ {
			start := cur(p, i)
			fwd := AdvanceWithinPage(v, start)
			require.Equal(t, Moved, fwd.Outcome)
			require.Equal(t, p, fwd.Cursor.Page, "no page boundary crossed")

			back := RetreatWithinPage(v, fwd.Cursor)
			assert.Equal(t, start, back.Cursor)
		}
	}
}

func TestTransitionsPreserveValidity(t *testing.T) {
	views := []fakeView{
		{lens: []int{3, 2, 1}, hasMore: true},
		{lens: []int{1, 0, 4}},
		{lens: []int{2}},
	}
	transitions := []func(View, deck.Cursor) Step{
		AdvanceWithinPage, AdvanceToNextPage, RetreatWithinPage, RetreatToPreviousPage,
	}

	for _, v := range views {
		for p, n := range v.lens {
			for i := 0; i < max(n, 1); i++ {
				c := cur(p, i)
				if !Valid(v, c) {
					continue
				}
				for _, tr := range transitions {
					got := tr(v, c)
					assert.True(t, Valid(v, got.Cursor), "view %v from %v produced %v", v.lens, c, got)
				}
			}
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		view fakeView
		from deck.Cursor
		want Step
	}{
		{"valid cursor untouched", fakeView{lens: []int{3}}, cur(0, 1), Step{cur(0, 1), Stayed}},
		{"shrunk page resets to first item", fakeView{lens: []int{2}}, cur(0, 2), Step{cur(0, 0), Moved}},
		{"emptied page advances", fakeView{lens: []int{1, 1, 0, 2}}, cur(2, 0), Step{cur(3, 0), Moved}},
		{"emptied last page needs fetch", fakeView{lens: []int{1, 1, 0}, hasMore: true}, cur(2, 0), Step{cur(2, 0), NeedsFetch}},
		{"emptied last page at feed end stays", fakeView{lens: []int{1, 1, 0}}, cur(2, 0), Step{cur(2, 0), FeedEnd}},
		{"no pages resets to origin", fakeView{}, cur(1, 1), Step{cur(0, 0), Stayed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp(tt.view, tt.from))
		})
	}
}

func TestAfterRemoveAndInsert(t *testing.T) {
	c := cur(1, 2)

	assert.Equal(t, cur(1, 1), AfterRemove(c, 1, 0), "removal in front shifts back")
	assert.Equal(t, cur(1, 2), AfterRemove(c, 1, 2), "removal at cursor left to Clamp")
	assert.Equal(t, cur(1, 2), AfterRemove(c, 0, 0), "other pages ignored")

	assert.Equal(t, cur(1, 3), AfterInsert(c, 1, 0, 3), "insert in front shifts forward")
	assert.Equal(t, cur(1, 2), AfterInsert(c, 1, 2, 3), "insert at cursor takes its slot")
	assert.Equal(t, cur(1, 0), AfterInsert(cur(1, 0), 1, 0, 0), "insert into empty page")
}

func TestValid(t *testing.T) {
	v := fakeView{lens: []int{2, 0}}

	assert.True(t, Valid(v, cur(0, 1)))
	assert.False(t, Valid(v, cur(0, 2)))
	assert.True(t, Valid(v, cur(1, 0)), "empty page at item 0 is a placeholder")
	assert.False(t, Valid(v, cur(2, 0)))
	assert.True(t, Valid(fakeView{}, cur(0, 0)))
	assert.False(t, Valid(fakeView{}, cur(0, 1)))
}
