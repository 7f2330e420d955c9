package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engine"
	"github.com/roach88/storydeck/internal/harness"
)

func executeReplay(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestReplayHarnessScenarios(t *testing.T) {
	out, err := executeReplay(t, "text", harnessScenarios, "--runs", "3")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ empty_fetch_is_feed_end (3 runs, 8 transitions)")
	assert.Contains(t, out, "All 9 scenario(s) replay deterministically")
}

func TestReplayJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "like_rollback.yaml")
	writeFile(t, path, likeRollbackScenario)

	out, err := executeReplay(t, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.AllDeterministic)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, ReplayScenarioResult{
		Name:          "like_rollback",
		Runs:          2,
		Transitions:   4,
		Fetches:       1,
		Deterministic: true,
	}, resp.Data.Scenarios[0])
}

func TestReplayRejectsSingleRun(t *testing.T) {
	_, err := executeReplay(t, "text", harnessScenarios, "--runs", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayLoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.yaml"), "name: broken\n")

	_, err := executeReplay(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompareRuns(t *testing.T) {
	trace := []engine.Transition{
		{Seq: 1, Session: "s", Event: "start", Outcome: "fetching"},
		{Seq: 2, Session: "s", Event: "fetch", Item: "a1", Outcome: "appended", Detail: "page 0"},
	}
	a := &harness.Result{Trace: trace, Fetches: []int{0}}

	same := &harness.Result{Trace: append([]engine.Transition(nil), trace...), Fetches: []int{0}}
	assert.Empty(t, compareRuns(a, same))

	moved := &harness.Result{Trace: append([]engine.Transition(nil), trace...), Fetches: []int{0}}
	moved.Trace[1].To = deck.Cursor{Item: 1}
	assert.Contains(t, compareRuns(a, moved), "transition 2")

	short := &harness.Result{Trace: trace[:1], Fetches: []int{0}}
	assert.Contains(t, compareRuns(a, short), "<missing>")

	refetched := &harness.Result{Trace: trace, Fetches: []int{0, 0}}
	assert.Equal(t, "fetches [0] vs [0 0]", compareRuns(a, refetched))

	notified := &harness.Result{Trace: trace, Fetches: []int{0}, Notices: []engine.Notice{{Kind: engine.NoticeFetchFailed}}}
	assert.Contains(t, compareRuns(a, notified), "notices")
}
