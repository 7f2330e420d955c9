package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engine"
)

func sampleTrace() []engine.Transition {
	return []engine.Transition{
		{Seq: 1, Event: "start", Outcome: "fetching"},
		{Seq: 2, Event: "fetch", Outcome: "appended", Detail: "page 0", Item: "a1"},
		{Seq: 3, Event: "command", Outcome: "needs_fetch", Detail: "next_item", Item: "a1"},
		{Seq: 4, Event: "fetch", Outcome: "appended", Detail: "page 1", Item: "b1"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Event: "fetch", Detail: "page 1"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Outcome: "needs_fetch"}))

	err := assertTraceContains(trace, Assertion{Event: "fetch", Outcome: "failed"})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Contains(t, err.Error(), "event=fetch outcome=failed")
	assert.Contains(t, err.Error(), "3 command (0,0)->(0,0) a1 needs_fetch [next_item]")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Sequence: []string{"start", "command:needs_fetch", "fetch:appended"}}))
	// The same entry twice needs two matches.
	assert.NoError(t, assertTraceOrder(trace, Assertion{Sequence: []string{"fetch", "fetch"}}))

	err := assertTraceOrder(trace, Assertion{Sequence: []string{"command", "start"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1 (start) not found")

	err = assertTraceOrder(trace, Assertion{Sequence: []string{"fetch", "fetch", "fetch"}})
	assert.Error(t, err)
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "fetch", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "timer", Count: 0}))

	err := assertTraceCount(trace, Assertion{Event: "fetch", Outcome: "appended", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 transitions")
}

func TestAssertFinalState(t *testing.T) {
	result := &Result{Final: engine.State{Pages: []deck.Page{{
		Author: "ann",
		Items:  []deck.Item{{ID: "a1", LikeCount: 5, CommentCount: 1}},
	}}}}

	assert.NoError(t, assertFinalState(result, Assertion{Item: "a1", Expect: map[string]any{
		"like_count": 5, "comment_count": 1, "liked_by_viewer": false, "present": true,
	}}))
	assert.NoError(t, assertFinalState(result, Assertion{Item: "gone", Expect: map[string]any{"present": false}}))

	err := assertFinalState(result, Assertion{Item: "a1", Expect: map[string]any{"like_count": 6}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "like_count = 5")

	err = assertFinalState(result, Assertion{Item: "gone", Expect: map[string]any{"like_count": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item not cached")

	err = assertFinalState(result, Assertion{Item: "a1", Expect: map[string]any{"shares": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown field "shares"`)
}

func TestEvaluateAssertions_Sequences(t *testing.T) {
	result := &Result{
		Notices:  []engine.Notice{{Kind: engine.NoticeFetchFailed}},
		Fetches:  []int{0, 1, 1},
		Paywall:  []deck.ItemID{"a2"},
		Profiles: nil,
	}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertNotices, Kinds: []engine.NoticeKind{engine.NoticeFetchFailed}},
		{Type: AssertFetches, Pages: []int{0, 1, 1}},
		{Type: AssertPaywall, Items: []deck.ItemID{"a2"}},
		{Type: AssertProfiles},
	})
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertFetches, Pages: []int{0, 1}},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertions[0]")
	assert.Contains(t, errs[0], "[0 1 1]")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestFormatTrace(t *testing.T) {
	got := FormatTrace("demo", "s-1", sampleTrace()[:3])
	want := "scenario: demo\n" +
		"session: s-1\n" +
		"1 start (0,0)->(0,0) - fetching\n" +
		"2 fetch (0,0)->(0,0) a1 appended [page 0]\n" +
		"3 command (0,0)->(0,0) a1 needs_fetch [next_item]\n"
	assert.Equal(t, want, string(got))
}
