package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storydeck/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // overrides <scenario dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run feed scenarios",
		Long: `Run scenario files against the feed engine.

Each scenario drives a fresh engine with a manual clock, checks its step
expectations and assertions, and compares the transition trace with
<scenario dir>/golden/<name>.golden when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  storydeck test ./scenarios
  storydeck test ./scenarios --filter "delete_*"
  storydeck test ./scenarios --update
  storydeck test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(formatter, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		formatter.VerboseLog("running %s", file)
		sr := runScenario(file, opts)
		if opts.Format != "json" {
			printScenarioResult(cmd, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles lists scenario files whose base name matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	all, err := harness.ScenarioFiles(dir)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return all, nil
	}

	var files []string
	for _, path := range all {
		base := filepath.Base(path)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			files = append(files, path)
		}
	}
	return files, nil
}

// runScenario executes one scenario file and checks its golden trace.
func runScenario(file string, opts *TestOptions) ScenarioResult {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	fail := func(format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail("load: %v", err)
	}
	name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		return fail("execution failed: %v", err)
	}

	trace := harness.FormatTrace(scenario.Name, result.Session, result.Trace)
	goldenPath := goldenFilePath(file, opts.GoldenDir)

	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			return fail("create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, trace, 0o644); err != nil {
			return fail("write golden file: %v", err)
		}
	} else {
		want, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
			// Assertions alone decide.
		case err != nil:
			return fail("read golden file: %v", err)
		case !bytes.Equal(want, trace):
			result.AddError("trace does not match golden file (run with --update to regenerate)")
		}
	}

	return ScenarioResult{Name: name, Pass: result.Pass, Errors: result.Errors}
}

// goldenFilePath returns the golden file for a scenario file.
func goldenFilePath(scenarioFile, goldenDir string) string {
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(scenarioFile), "golden")
	}
	base := filepath.Base(scenarioFile)
	return filepath.Join(goldenDir, strings.TrimSuffix(base, filepath.Ext(base))+".golden")
}

func printScenarioResult(cmd *cobra.Command, sr ScenarioResult) {
	w := cmd.OutOrStdout()
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func outputTestJSON(f *OutputFormatter, result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := f.Respond(resp); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
