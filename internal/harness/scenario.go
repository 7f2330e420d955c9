package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engine"
	"github.com/roach88/storydeck/internal/gesture"
)

// Scenario is one scripted feed session: the decks the backend serves, the
// failures it injects, the inputs the viewer makes and what must hold
// afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is the fixed session token. Defaults to "test-session-default".
	Session string `yaml:"session,omitempty"`

	// Backend selects the page source: "scripted" (default, in memory) or
	// "sqlite" (seeded in-memory store, transitions read back from its log).
	Backend string `yaml:"backend,omitempty"`

	Settings Settings `yaml:"settings,omitempty"`

	// Decks are served as pages 0, 1, ... in order.
	Decks []deck.Page `yaml:"decks"`

	Failures Failures `yaml:"failures,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Settings mirror the engine options a scenario may change.
type Settings struct {
	Dwell          time.Duration `yaml:"dwell,omitempty"`
	SwipeThreshold float64       `yaml:"swipe_threshold,omitempty"`
	Viewer         string        `yaml:"viewer,omitempty"`
	Prefetch       bool          `yaml:"prefetch,omitempty"`
	LikeLimit      int           `yaml:"like_limit,omitempty"`
}

// Failures script backend errors. Only the scripted backend supports
// fetch and mutation failures; the sqlite backend enforces like_limit.
type Failures struct {
	// Fetch maps a page number to how many times its fetch fails.
	Fetch map[int]int `yaml:"fetch,omitempty"`
	// Mutations lists items whose engagement calls fail.
	Mutations []deck.ItemID `yaml:"mutations,omitempty"`
	// Limited lists items whose engagement calls hit the quota.
	Limited []deck.ItemID `yaml:"limited,omitempty"`
}

// Step actions.
const (
	DoStart        = "start"
	DoSwipe        = "swipe"
	DoTap          = "tap"
	DoCommand      = "command"
	DoLike         = "like"
	DoComment      = "comment"
	DoDelete       = "delete"
	DoRetry        = "retry"
	DoOverlayOpen  = "overlay_open"
	DoOverlayClose = "overlay_close"
	DoWait         = "wait"
	DoSettle       = "settle"
	DoRelease      = "release"
)

// Step is one scripted input. Inputs are processed immediately; backend
// calls they start stay in flight until a settle or release step.
type Step struct {
	// Do is the action; see the Do* constants.
	Do string `yaml:"do"`

	DX      float64 `yaml:"dx,omitempty"`
	DY      float64 `yaml:"dy,omitempty"`
	Target  string  `yaml:"target,omitempty"`
	Command string  `yaml:"command,omitempty"`

	// Item targets like, comment and delete. Empty means the active item.
	Item deck.ItemID `yaml:"item,omitempty"`
	Body string      `yaml:"body,omitempty"`

	// For is how far a wait step moves the clock. A wait fires at most the
	// countdown armed when it starts.
	For time.Duration `yaml:"for,omitempty"`

	// Expect is checked after the step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a subset match on engine state; nil fields are not checked.
type Expect struct {
	Cursor    *deck.Cursor   `yaml:"cursor,omitempty"`
	Active    *deck.ItemID   `yaml:"active,omitempty"`
	Pages     *int           `yaml:"pages,omitempty"`
	HasMore   *bool          `yaml:"has_more,omitempty"`
	InFlight  *bool          `yaml:"in_flight,omitempty"`
	Stalled   *bool          `yaml:"stalled,omitempty"`
	Armed     *int           `yaml:"armed,omitempty"`
	Remaining *time.Duration `yaml:"remaining,omitempty"`
	// Outcome is the outcome of the last transition.
	Outcome string       `yaml:"outcome,omitempty"`
	Items   []ItemExpect `yaml:"items,omitempty"`
}

// ItemExpect checks one cached item. Absent: true expects it to be gone.
type ItemExpect struct {
	ID            deck.ItemID `yaml:"id"`
	LikeCount     *int        `yaml:"like_count,omitempty"`
	LikedByViewer *bool       `yaml:"liked_by_viewer,omitempty"`
	CommentCount  *int        `yaml:"comment_count,omitempty"`
	Absent        bool        `yaml:"absent,omitempty"`
}

// Assertion validates the trace or collaborator calls after the last step.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event, Outcome and Detail match transitions (trace_contains,
	// trace_count). Empty fields match anything.
	Event   string `yaml:"event,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
	Detail  string `yaml:"detail,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Sequence lists "event" or "event:outcome" entries that must appear in
	// order (trace_order).
	Sequence []string `yaml:"sequence,omitempty"`

	// Item and Expect check one cached item (final_state).
	Item   deck.ItemID    `yaml:"item,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Kinds is the exact notice sequence (notices).
	Kinds []engine.NoticeKind `yaml:"kinds,omitempty"`

	// Pages is the exact fetch sequence (fetches).
	Pages []int `yaml:"pages,omitempty"`

	// Items is the exact item sequence (paywall, profiles).
	Items []deck.ItemID `yaml:"items,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertNotices       = "notices"
	AssertFetches       = "fetches"
	AssertPaywall       = "paywall"
	AssertProfiles      = "profiles"
)

// Backend names.
const (
	BackendScripted = "scripted"
	BackendSQLite   = "sqlite"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// ScenarioFiles returns the .yaml and .yml files under dir, sorted.
func ScenarioFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scenarios in %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	switch s.Backend {
	case "", BackendScripted:
		if s.Settings.LikeLimit != 0 {
			return fmt.Errorf("settings.like_limit requires the sqlite backend")
		}
	case BackendSQLite:
		if len(s.Failures.Fetch) > 0 || len(s.Failures.Mutations) > 0 || len(s.Failures.Limited) > 0 {
			return fmt.Errorf("failures require the scripted backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}

	seen := make(map[deck.ItemID]bool)
	for i, d := range s.Decks {
		if d.Author == "" {
			return fmt.Errorf("decks[%d]: author is required", i)
		}
		for j, item := range d.Items {
			if err := item.Validate(); err != nil {
				return fmt.Errorf("decks[%d].items[%d]: %w", i, j, err)
			}
			if seen[item.ID] {
				return fmt.Errorf("decks[%d].items[%d]: duplicate id %s", i, j, item.ID)
			}
			seen[item.ID] = true
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Do {
	case DoStart, DoLike, DoDelete, DoRetry, DoOverlayOpen, DoOverlayClose, DoSettle, DoRelease:
	case DoSwipe:
		if s.DX == 0 && s.DY == 0 {
			return fmt.Errorf("steps[%d]: swipe needs dx or dy", index)
		}
	case DoTap:
		if s.Target == "" {
			return fmt.Errorf("steps[%d]: tap needs a target", index)
		}
	case DoCommand:
		if _, ok := gesture.ParseCommand(s.Command); !ok {
			return fmt.Errorf("steps[%d]: unknown command %q", index, s.Command)
		}
	case DoComment:
		if s.Body == "" {
			return fmt.Errorf("steps[%d]: comment needs a body", index)
		}
	case DoWait:
		if s.For <= 0 {
			return fmt.Errorf("steps[%d]: wait needs a positive duration", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, s.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Event == "" && a.Outcome == "" && a.Detail == "" {
			return fmt.Errorf("assertions[%d]: trace_contains needs event, outcome or detail", index)
		}
	case AssertTraceOrder:
		if len(a.Sequence) == 0 {
			return fmt.Errorf("assertions[%d]: sequence is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Item == "" {
			return fmt.Errorf("assertions[%d]: item is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertNotices, AssertFetches, AssertPaywall, AssertProfiles:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
