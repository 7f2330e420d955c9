package harness

import (
	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engine"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	Session string `json:"session"`

	// Trace holds every transition the engine recorded, in seq order.
	Trace []engine.Transition `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Collaborator calls, in order.
	Notices  []engine.Notice `json:"-"`
	Paywall  []deck.ItemID   `json:"paywall,omitempty"`
	Profiles []deck.ItemID   `json:"profiles,omitempty"`
	Fetches  []int           `json:"fetches,omitempty"`

	// Final is the engine state after the last step.
	Final engine.State `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []engine.Transition{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// NoticeKinds returns the kinds of the recorded notices.
func (r *Result) NoticeKinds() []engine.NoticeKind {
	kinds := make([]engine.NoticeKind, len(r.Notices))
	for i, n := range r.Notices {
		kinds[i] = n.Kind
	}
	return kinds
}

// item finds a cached item in the final state.
func (r *Result) item(id deck.ItemID) (deck.Item, bool) {
	for _, p := range r.Final.Pages {
		for _, it := range p.Items {
			if it.ID == id {
				return it, true
			}
		}
	}
	return deck.Item{}, false
}
