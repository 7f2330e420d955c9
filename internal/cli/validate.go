package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/storydeck/internal/harness"
	"github.com/roach88/storydeck/internal/store"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Fixture bool // validate seed fixtures instead of scenarios
}

// FileValidation is the verdict for one file.
type FileValidation struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate scenario or fixture files without running them",
		Long: `Validate scenario files, or seed fixtures with --fixture.

Each path is a YAML file or a directory searched recursively for .yaml and
.yml files. Unknown fields, missing required fields, invalid items and
unknown actions are reported per file.

Examples:
  storydeck validate ./scenarios
  storydeck validate --fixture ./fixtures/demo.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Fixture, "fixture", false, "validate seed fixtures")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	files, err := collectYAML(paths)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeNotFound, err)
	}
	if len(files) == 0 {
		_ = formatter.Error(ErrCodeNotFound, "no YAML files found", paths)
		return NewExitError(ExitCommandError, "no YAML files found")
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, path := range files {
		formatter.VerboseLog("validating %s", path)
		fv := FileValidation{Path: path, Valid: true}
		if err := validateFile(path, opts.Fixture); err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeInvalid, Message: "validation failed"}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, fv := range result.Files {
			if fv.Valid {
				formatter.VerboseLog("✓ %s", fv.Path)
				continue
			}
			fmt.Fprintf(w, "✗ %s\n  %s\n", fv.Path, fv.Error)
		}
		if result.Valid {
			fmt.Fprintf(w, "✓ All %d file(s) valid\n", len(result.Files))
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validateFile(path string, fixture bool) error {
	if !fixture {
		_, err := harness.LoadScenario(path)
		return err
	}
	f, err := store.LoadFixtureFile(path)
	if err != nil {
		return err
	}
	return f.Validate()
}

// collectYAML expands directories into their YAML files. A path given
// explicitly is kept whatever its extension.
func collectYAML(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("path not found: %s", p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := harness.ScenarioFiles(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}
