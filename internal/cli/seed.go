package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/storydeck/internal/store"
)

// SeedResult reports what seed wrote.
type SeedResult struct {
	Database string `json:"database"`
	Decks    int    `json:"decks"`
	Items    int    `json:"items"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load decks from a YAML fixture into the local database",
		Long: `Append the decks of a YAML fixture to the local SQLite database,
creating it if needed. Decks are added after any already stored.

Examples:
  storydeck seed ./fixtures/demo.yaml
  storydeck seed --db /tmp/feed.db ./fixtures/demo.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}

	cmd.Flags().String("db", "", "path to SQLite database (default from config)")

	return cmd
}

func runSeed(opts *RootOptions, fixturePath string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cfg.Database.Path == "" {
		return NewExitError(ExitCommandError, "seed needs database.path")
	}

	fixture, err := store.LoadFixtureFile(fixturePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixture", err)
	}
	if err := fixture.Validate(); err != nil {
		return WrapExitError(ExitFailure, "invalid fixture", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	items, err := st.Seed(cmd.Context(), fixture)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to seed database", err)
	}

	result := SeedResult{Database: cfg.Database.Path, Decks: len(fixture.Decks), Items: items}
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("Seeded %d deck(s), %d item(s) into %s", result.Decks, result.Items, result.Database))
}
