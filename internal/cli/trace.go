package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engine"
	"github.com/roach88/storydeck/internal/harness"
	"github.com/roach88/storydeck/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Event string // optional - filter to one event kind
}

// TransitionView is the JSON form of a recorded transition.
type TransitionView struct {
	Seq     int64       `json:"seq"`
	Event   string      `json:"event"`
	From    deck.Cursor `json:"from"`
	To      deck.Cursor `json:"to"`
	Item    deck.ItemID `json:"item,omitempty"`
	Outcome string      `json:"outcome"`
	Detail  string      `json:"detail,omitempty"`
}

func newTransitionView(t engine.Transition) TransitionView {
	return TransitionView{
		Seq:     t.Seq,
		Event:   t.Event,
		From:    t.From,
		To:      t.To,
		Item:    t.Item,
		Outcome: t.Outcome,
		Detail:  t.Detail,
	}
}

// SessionView summarizes one recorded session.
type SessionView struct {
	Session     string      `json:"session"`
	Transitions int         `json:"transitions"`
	FirstSeq    int64       `json:"first_seq"`
	LastSeq     int64       `json:"last_seq"`
	Final       deck.Cursor `json:"final"`
	FinalItem   deck.ItemID `json:"final_item,omitempty"`
}

// TraceResult holds one session's transitions.
type TraceResult struct {
	Session     string           `json:"session"`
	Transitions []TransitionView `json:"transitions"`
	Events      map[string]int   `json:"events"`
	Outcomes    map[string]int   `json:"outcomes"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [session]",
		Short: "Show recorded sessions and their transitions",
		Long: `Show the transition log recorded in the local database.

Without a session, lists every recorded session with its transition count
and final cursor. With a session, prints its transitions in seq order.

Examples:
  storydeck trace --db ./feed.db
  storydeck trace --db ./feed.db 0190f1c2-7d2a-7c3e-9a51-3b8f2a6d4e10
  storydeck trace --db ./feed.db 0190f1c2-... --event fetch --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args, cmd)
		},
	}

	cmd.Flags().String("db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Event, "event", "", "only show transitions of this event kind")

	return cmd
}

func runTrace(opts *TraceOptions, args []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if len(args) == 0 {
		return listSessions(ctx, st, formatter, cmd)
	}
	return showSession(ctx, st, args[0], opts, formatter, cmd)
}

func listSessions(ctx context.Context, st *store.Store, f *OutputFormatter, cmd *cobra.Command) error {
	sums, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	views := make([]SessionView, len(sums))
	for i, s := range sums {
		views[i] = SessionView(s)
	}

	if f.Format == "json" {
		return f.Success(views)
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	for _, v := range views {
		fmt.Fprintf(w, "%s  %d transitions  seq %d-%d  final %s %s\n",
			v.Session, v.Transitions, v.FirstSeq, v.LastSeq, v.Final, orDash(string(v.FinalItem)))
	}
	return nil
}

func showSession(ctx context.Context, st *store.Store, session string, opts *TraceOptions, f *OutputFormatter, cmd *cobra.Command) error {
	transitions, err := st.ReadTransitions(ctx, session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transitions", err)
	}
	if len(transitions) == 0 {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("no transitions for session %s", session), nil)
		return WrapExitError(ExitCommandError, "session not found", store.ErrSessionNotFound)
	}

	result := TraceResult{
		Session:     session,
		Transitions: []TransitionView{},
		Events:      map[string]int{},
		Outcomes:    map[string]int{},
	}
	var shown []engine.Transition
	for _, t := range transitions {
		if opts.Event != "" && t.Event != opts.Event {
			continue
		}
		shown = append(shown, t)
		result.Transitions = append(result.Transitions, newTransitionView(t))
		result.Events[t.Event]++
		result.Outcomes[t.Outcome]++
	}

	if f.Format == "json" {
		return f.Respond(CLIResponse{Status: "ok", Session: session, Data: result})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "session: %s\n", session)
	for _, t := range shown {
		fmt.Fprintln(w, harness.FormatTransition(t))
	}
	if opts.Verbose {
		fmt.Fprintln(w)
		for _, k := range sortedCounts(result.Outcomes) {
			fmt.Fprintf(w, "  %-14s %d\n", k, result.Outcomes[k])
		}
	}
	return nil
}

func sortedCounts(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

