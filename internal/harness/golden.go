package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/storydeck/internal/engine"
)

// FormatTransition renders one transition as a single line:
//
//	<seq> <event> <from>-><to> <active item or -> <outcome> [<detail>]
func FormatTransition(t engine.Transition) string {
	item := string(t.Item)
	if item == "" {
		item = "-"
	}
	line := fmt.Sprintf("%d %s %s->%s %s %s", t.Seq, t.Event, t.From, t.To, item, t.Outcome)
	if t.Detail != "" {
		line += " [" + t.Detail + "]"
	}
	return line
}

// FormatTrace renders a scenario trace for golden comparison. The output is
// byte-identical across runs because the harness fixes the session token,
// the clock and the order in which backend calls complete.
func FormatTrace(name, session string, trace []engine.Transition) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "session: %s\n", session)
	for _, t := range trace {
		b.WriteString(FormatTransition(t))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	newGoldie(t).Assert(t, scenario.Name, FormatTrace(scenario.Name, result.Session, result.Trace))
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()
	newGoldie(t).Assert(t, scenarioName, FormatTrace(scenarioName, result.Session, result.Trace))
}
