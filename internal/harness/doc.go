// Package harness runs scripted feed sessions against the real engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: advance_fetches_next_deck
//	description: "What this scenario validates"
//	session: advance
//	backend: scripted          # or sqlite
//	settings: {dwell: 5s, swipe_threshold: 50, viewer: me}
//	decks:
//	  - author: ann
//	    items:
//	      - {id: a1, media_kind: photo, owner_id: ann}
//	failures:
//	  fetch: {1: 1}            # page 1 fails once
//	  mutations: [a1]          # engagement calls on a1 fail
//	  limited: [a2]            # engagement calls on a2 hit the quota
//	steps:
//	  - do: start
//	  - do: settle
//	    expect: {cursor: {page: 0, item: 0}, active: a1}
//	  - do: command
//	    command: next_item
//	assertions:
//	  - type: fetches
//	    pages: [0]
//
// Inputs (start, swipe, tap, command, like, comment, delete, retry,
// overlay_open, overlay_close) are processed as soon as they are sent. The
// backend calls they start stay in flight until a settle step (release
// everything, repeatedly, until idle) or a release step (one call). A wait
// step moves the manual clock, firing the armed countdown if it expires.
//
// # Assertion Types
//
//   - trace_contains: some transition matches event/outcome/detail
//   - trace_order: "event" or "event:outcome" entries appear in order
//   - trace_count: exactly N transitions match
//   - final_state: a cached item's counters, or its absence
//   - notices, fetches, paywall, profiles: exact collaborator call sequences
//
// # Deterministic Testing
//
// Every scenario runs with a fixed session token, a manual clock starting
// at Epoch and a manual dispatcher, so the trace is byte-identical across
// runs and can be compared against a golden file (see RunWithGolden). With
// the sqlite backend the trace is read back from the store's transition log,
// which also checks that recording round-trips.
package harness
