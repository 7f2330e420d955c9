package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/storydeck/internal/engine"
	"github.com/roach88/storydeck/internal/harness"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Runs int
}

// ReplayScenarioResult holds the replay verdict for one scenario.
type ReplayScenarioResult struct {
	Name          string `json:"name"`
	Runs          int    `json:"runs"`
	Transitions   int    `json:"transitions"`
	Fetches       int    `json:"fetches"`
	Deterministic bool   `json:"deterministic"`
	Difference    string `json:"difference,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Scenarios        []ReplayScenarioResult `json:"scenarios"`
	Total            int                    `json:"total"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <path>...",
		Short: "Replay scenarios and verify determinism",
		Long: `Run each scenario several times and verify that every run produces the
same transitions, notices and fetches.

Exit codes:
  0 - All scenarios are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (missing paths, unloadable scenario)

Examples:
  storydeck replay ./scenarios
  storydeck replay ./scenarios/feed_end.yaml --runs 5 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Runs, "runs", 2, "runs per scenario")

	return cmd
}

func runReplay(opts *ReplayOptions, paths []string, cmd *cobra.Command) error {
	if opts.Runs < 2 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--runs must be at least 2, got %d", opts.Runs))
	}
	files, err := collectYAML(paths)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	result := ReplayResult{
		Scenarios:        make([]ReplayScenarioResult, 0, len(files)),
		Total:            len(files),
		AllDeterministic: true,
	}

	for _, file := range files {
		scenario, err := harness.LoadScenario(file)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", file), err)
		}
		formatter.VerboseLog("replaying %s %d times", scenario.Name, opts.Runs)

		sr, err := replayScenario(scenario, opts.Runs)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay %s", scenario.Name), err)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if !sr.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.AllDeterministic {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeNondetermism, Message: "replay produced differing runs"}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
	} else {
		outputReplayText(cmd, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// replayScenario runs a scenario runs times and compares each run with the
// first.
func replayScenario(scenario *harness.Scenario, runs int) (ReplayScenarioResult, error) {
	first, err := harness.Run(scenario)
	if err != nil {
		return ReplayScenarioResult{}, err
	}
	sr := ReplayScenarioResult{
		Name:          scenario.Name,
		Runs:          runs,
		Transitions:   len(first.Trace),
		Fetches:       len(first.Fetches),
		Deterministic: true,
	}

	for run := 2; run <= runs; run++ {
		next, err := harness.Run(scenario)
		if err != nil {
			return sr, fmt.Errorf("run %d: %w", run, err)
		}
		if diff := compareRuns(first, next); diff != "" {
			sr.Deterministic = false
			sr.Difference = fmt.Sprintf("run %d: %s", run, diff)
			break
		}
	}
	return sr, nil
}

// compareRuns describes the first difference between two runs, or returns
// "" when they match.
func compareRuns(a, b *harness.Result) string {
	if i := firstDifference(a.Trace, b.Trace); i >= 0 {
		return fmt.Sprintf("transition %d: %s vs %s", i+1, transitionAt(a.Trace, i), transitionAt(b.Trace, i))
	}
	if !slices.Equal(a.NoticeKinds(), b.NoticeKinds()) {
		return fmt.Sprintf("notices %v vs %v", a.NoticeKinds(), b.NoticeKinds())
	}
	if !slices.Equal(a.Fetches, b.Fetches) {
		return fmt.Sprintf("fetches %v vs %v", a.Fetches, b.Fetches)
	}
	return ""
}

func firstDifference(a, b []engine.Transition) int {
	for i := range min(len(a), len(b)) {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) != len(b) {
		return min(len(a), len(b))
	}
	return -1
}

func transitionAt(trace []engine.Transition, i int) string {
	if i >= len(trace) {
		return "<missing>"
	}
	return fmt.Sprintf("%q", harness.FormatTransition(trace[i]))
}

func outputReplayText(cmd *cobra.Command, result ReplayResult) {
	w := cmd.OutOrStdout()

	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}

	for _, s := range result.Scenarios {
		if s.Deterministic {
			fmt.Fprintf(w, "✓ %s (%d runs, %d transitions)\n", s.Name, s.Runs, s.Transitions)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n  %s\n", s.Name, s.Difference)
	}

	fmt.Fprintln(w)
	if result.AllDeterministic {
		fmt.Fprintf(w, "✓ All %d scenario(s) replay deterministically\n", result.Total)
	} else {
		fmt.Fprintln(w, "✗ Determinism verification failed")
	}
}
