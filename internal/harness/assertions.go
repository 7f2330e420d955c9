package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/storydeck/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string              // Assertion type for categorization
	Expected string              // Human-readable expected outcome
	Actual   string              // Human-readable actual outcome
	Trace    []engine.Transition // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, t := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", FormatTransition(t))
		}
	}
	return buf.String()
}

// matches reports whether t matches the non-empty fields of a.
func matches(t engine.Transition, a Assertion) bool {
	return (a.Event == "" || t.Event == a.Event) &&
		(a.Outcome == "" || t.Outcome == a.Outcome) &&
		(a.Detail == "" || t.Detail == a.Detail)
}

func describe(a Assertion) string {
	var parts []string
	if a.Event != "" {
		parts = append(parts, "event="+a.Event)
	}
	if a.Outcome != "" {
		parts = append(parts, "outcome="+a.Outcome)
	}
	if a.Detail != "" {
		parts = append(parts, fmt.Sprintf("detail=%q", a.Detail))
	}
	if len(parts) == 0 {
		return "any transition"
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that some transition matches.
func assertTraceContains(trace []engine.Transition, a Assertion) error {
	for _, t := range trace {
		if matches(t, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the sequence entries appear in order.
// Entries don't need to be consecutive (intervening transitions are allowed).
func assertTraceOrder(trace []engine.Transition, a Assertion) error {
	pos := 0
	for i, entry := range a.Sequence {
		event, outcome, _ := strings.Cut(entry, ":")
		want := Assertion{Event: event, Outcome: outcome}

		found := false
		for pos < len(trace) {
			t := trace[pos]
			pos++
			if matches(t, want) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("in order: %v", a.Sequence),
				Actual:   fmt.Sprintf("entry %d (%s) not found after the previous entries", i, entry),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the number of matching transitions.
func assertTraceCount(trace []engine.Transition, a Assertion) error {
	count := 0
	for _, t := range trace {
		if matches(t, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d transitions with %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d transitions", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks one cached item with subset semantics. Keys:
// like_count, comment_count, liked_by_viewer, present.
func assertFinalState(result *Result, a Assertion) error {
	item, ok := result.item(a.Item)
	actual := map[string]any{"present": ok}
	if ok {
		actual["like_count"] = item.LikeCount
		actual["comment_count"] = item.CommentCount
		actual["liked_by_viewer"] = item.LikedByViewer
	}

	for _, key := range sortedKeys(a.Expect) {
		want := a.Expect[key]
		got, exists := actual[key]
		if !exists {
			if !ok {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("item %s with %s = %v", a.Item, key, want),
					Actual:   "item not cached",
				}
			}
			return fmt.Errorf("final_state: unknown field %q", key)
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("item %s %s = %v", a.Item, key, want),
				Actual:   fmt.Sprintf("item %s %s = %v", a.Item, key, got),
			}
		}
	}
	return nil
}

// valuesEqual compares an actual value with a YAML-decoded expected one.
// YAML integers decode as int; compare numerically.
func valuesEqual(actual, expected any) bool {
	switch a := actual.(type) {
	case int:
		switch e := expected.(type) {
		case int:
			return a == e
		case int64:
			return int64(a) == e
		case float64:
			return float64(a) == e
		}
		return false
	default:
		return actual == expected
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func assertSequence[T comparable](kind string, want, got []T) error {
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		case AssertNotices:
			err = assertSequence(AssertNotices, a.Kinds, result.NoticeKinds())
		case AssertFetches:
			err = assertSequence(AssertFetches, a.Pages, result.Fetches)
		case AssertPaywall:
			err = assertSequence(AssertPaywall, a.Items, result.Paywall)
		case AssertProfiles:
			err = assertSequence(AssertProfiles, a.Items, result.Profiles)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return errors
}
