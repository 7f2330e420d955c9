package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/storydeck/internal/config"
	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engagement"
	"github.com/roach88/storydeck/internal/engine"
	"github.com/roach88/storydeck/internal/gesture"
	"github.com/roach88/storydeck/internal/harness"
	"github.com/roach88/storydeck/internal/pages"
	"github.com/roach88/storydeck/internal/playback"
	"github.com/roach88/storydeck/internal/remote"
	"github.com/roach88/storydeck/internal/store"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Script string // "-" or empty reads stdin
	Resume string // session to continue
}

// PlayResult is the JSON payload of a play run.
type PlayResult struct {
	Session     string           `json:"session"`
	Backend     string           `json:"backend"`
	Transitions []TransitionView `json:"transitions"`
	Notices     []PlayNotice     `json:"notices"`
	Paywall     []deck.ItemID    `json:"paywall"`
	Profiles    []string         `json:"profiles"`
	Cursor      deck.Cursor      `json:"cursor"`
	Active      deck.ItemID      `json:"active,omitempty"`
	Pages       int              `json:"pages"`
	HasMore     bool             `json:"has_more"`
}

// PlayNotice is a notice as reported by play.
type PlayNotice struct {
	Kind      engine.NoticeKind `json:"kind"`
	Item      deck.ItemID       `json:"item,omitempty"`
	Error     string            `json:"error,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Drive the feed engine with an input script",
		Long: `Drive the feed engine against the configured backend with a script of
inputs, one per line. The backend is the remote feed server when
remote.base_url is set, otherwise the local SQLite database. Transitions
are recorded in the local database when one is configured.

Script lines:
  start
  swipe <dx> <dy>
  tap left|right|author|media
  command next_item|previous_item|next_deck|previous_deck|show_profile
  like [item]
  comment <item|-> <body>
  delete [item]
  retry
  overlay open|close
  wait <duration>

Blank lines and lines starting with # are ignored. An omitted item, or -,
targets the active item. Each input runs until its backend calls return;
wait sleeps in real time so playback countdowns can fire.

Examples:
  storydeck play --script ./session.txt
  echo "start" | storydeck play --db ./feed.db --format json
  storydeck play --resume 0190f1c2-... --script more.txt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "-", "input script path (- for stdin)")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "continue a recorded session")
	cmd.Flags().String("db", "", "path to SQLite database")
	cmd.Flags().String("viewer", "", "viewer id")
	cmd.Flags().Duration("dwell", 0, "photo dwell time")
	cmd.Flags().Float64("swipe-threshold", 0, "minimum swipe distance")
	cmd.Flags().Duration("fetch-timeout", 0, "page fetch timeout")
	cmd.Flags().Bool("prefetch", false, "fetch the next deck on entering the last one")
	cmd.Flags().Int("like-limit", 0, "daily like limit of the local backend")
	cmd.Flags().String("remote", "", "feed server base URL")

	return cmd
}

func runPlay(opts *PlayOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	script, err := readScript(opts.Script, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	var st *store.Store
	if cfg.Database.Path != "" {
		st, err = store.Open(cfg.Database.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	source, api, backendName, err := openBackend(cfg, st, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open backend", err)
	}

	p := &player{
		out:    cmd.OutOrStdout(),
		text:   opts.Format != "json",
		result: PlayResult{Backend: backendName},
	}
	engOpts := []engine.Option{
		engine.WithClock(playback.RealClock{}),
		engine.WithDispatcher(&p.calls),
		engine.WithLogger(logger),
		engine.WithDwell(cfg.Feed.Dwell),
		engine.WithSwipeThreshold(cfg.Feed.SwipeThreshold),
		engine.WithFetchTimeout(cfg.Feed.FetchTimeout),
		engine.WithViewer(cfg.Viewer),
		engine.WithPrefetch(cfg.Feed.Prefetch),
		engine.WithNotifier(p),
		engine.WithPaywall(p),
		engine.WithProfileRouter(p),
		engine.WithObserver(p),
	}
	if st != nil {
		engOpts = append(engOpts, engine.WithObserver(store.NewRecorder(ctx, st, logger)))
	}
	if opts.Resume != "" {
		if st == nil {
			return NewExitError(ExitCommandError, "--resume needs database.path")
		}
		sum, err := st.GetSession(ctx, opts.Resume)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to resume session", err)
		}
		engOpts = append(engOpts,
			engine.WithSessionGenerator(engine.NewFixedGenerator(sum.Session)),
			engine.WithSeqStart(sum.LastSeq),
		)
	}

	p.eng = engine.New(source, api, engOpts...)
	defer p.eng.Stop()
	p.result.Session = p.eng.Session()
	logger.Info("play starting", "session", p.result.Session, "backend", backendName, "inputs", len(script))

	if err := p.play(ctx, script); err != nil {
		return WrapExitError(ExitFailure, "play interrupted", err)
	}

	state := p.eng.State()
	p.result.Cursor = state.Cursor
	p.result.Pages = len(state.Pages)
	p.result.HasMore = state.HasMore
	if state.Active != nil {
		p.result.Active = state.Active.ID
	}

	if !p.text {
		return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).
			Respond(CLIResponse{Status: "ok", Session: p.result.Session, Data: p.result})
	}
	active := p.result.Active
	if active == "" {
		active = "-"
	}
	fmt.Fprintf(p.out, "session %s: %d transitions, cursor %s, active %s\n",
		p.result.Session, len(p.result.Transitions), p.result.Cursor, active)
	return nil
}

// openBackend picks the remote client or the local store backend.
func openBackend(cfg *config.Config, st *store.Store, logger *slog.Logger) (pages.PageSource, engagement.API, string, error) {
	if cfg.UseRemote() {
		client, err := remote.NewClient(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			Token:   cfg.Remote.Token,
			Timeout: cfg.Remote.Timeout,
			Retries: cfg.Remote.Retries,
		}, logger)
		if err != nil {
			return nil, nil, "", err
		}
		return client, client, "remote", nil
	}
	if st == nil {
		return nil, nil, "", errors.New("no backend configured")
	}
	b := store.NewBackend(st, cfg.Viewer,
		store.WithDailyLikeLimit(cfg.Database.LikeDailyLimit),
		store.WithBackendLogger(logger),
	)
	return b, b, "sqlite", nil
}

// scriptStep is one parsed script line: an input or a wait.
type scriptStep struct {
	Line  int
	Event engine.Event
	Wait  time.Duration
}

func readScript(path string, stdin io.Reader) ([]scriptStep, error) {
	if path == "" || path == "-" {
		return parseScript(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseScript(f)
}

// parseScript reads one input per line.
func parseScript(r io.Reader) ([]scriptStep, error) {
	var steps []scriptStep
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		step, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		step.Line = line
		steps = append(steps, step)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}

func parseLine(text string) (scriptStep, error) {
	fields := strings.Fields(text)
	verb, args := fields[0], fields[1:]
	event := func(t engine.EventType) (scriptStep, error) {
		return scriptStep{Event: engine.Event{Type: t}}, nil
	}

	switch verb {
	case "start":
		return event(engine.EventStart)
	case "retry":
		return event(engine.EventRetry)

	case "swipe":
		if len(args) != 2 {
			return scriptStep{}, errors.New("swipe needs dx and dy")
		}
		dx, err := parseOffset(args[0])
		if err != nil {
			return scriptStep{}, fmt.Errorf("swipe dx: %w", err)
		}
		dy, err := parseOffset(args[1])
		if err != nil {
			return scriptStep{}, fmt.Errorf("swipe dy: %w", err)
		}
		return scriptStep{Event: engine.Event{Type: engine.EventSwipe, Vector: gesture.Vector{DX: dx, DY: dy}}}, nil

	case "tap":
		if len(args) != 1 {
			return scriptStep{}, errors.New("tap needs a target")
		}
		switch t := gesture.Target(args[0]); t {
		case gesture.TargetLeftZone, gesture.TargetRightZone, gesture.TargetAuthor, gesture.TargetMedia:
			return scriptStep{Event: engine.Event{Type: engine.EventTap, Target: t}}, nil
		default:
			return scriptStep{}, fmt.Errorf("unknown tap target %q", args[0])
		}

	case "command":
		if len(args) != 1 {
			return scriptStep{}, errors.New("command needs a name")
		}
		c, ok := gesture.ParseCommand(args[0])
		if !ok {
			return scriptStep{}, fmt.Errorf("unknown command %q", args[0])
		}
		return scriptStep{Event: engine.Event{Type: engine.EventCommand, Command: c}}, nil

	case "like", "delete":
		if len(args) > 1 {
			return scriptStep{}, fmt.Errorf("%s takes at most one item", verb)
		}
		t := engine.EventLike
		if verb == "delete" {
			t = engine.EventDelete
		}
		var item deck.ItemID
		if len(args) == 1 {
			item = scriptItem(args[0])
		}
		return scriptStep{Event: engine.Event{Type: t, Item: item}}, nil

	case "comment":
		if len(args) < 2 {
			return scriptStep{}, errors.New("comment needs an item and a body")
		}
		return scriptStep{Event: engine.Event{
			Type: engine.EventComment,
			Item: scriptItem(args[0]),
			Body: strings.Join(args[1:], " "),
		}}, nil

	case "overlay":
		if len(args) == 1 && args[0] == "open" {
			return event(engine.EventOverlayOpened)
		}
		if len(args) == 1 && args[0] == "close" {
			return event(engine.EventOverlayClosed)
		}
		return scriptStep{}, errors.New("overlay needs open or close")

	case "wait":
		if len(args) != 1 {
			return scriptStep{}, errors.New("wait needs a duration")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return scriptStep{}, fmt.Errorf("wait: %w", err)
		}
		if d <= 0 {
			return scriptStep{}, errors.New("wait needs a positive duration")
		}
		return scriptStep{Wait: d}, nil

	default:
		return scriptStep{}, fmt.Errorf("unknown input %q", verb)
	}
}

func scriptItem(arg string) deck.ItemID {
	if arg == "-" {
		return ""
	}
	return deck.ItemID(arg)
}

// player drives an engine from a script on the calling goroutine and
// collects what it reports.
type player struct {
	eng   *engine.Engine
	calls deck.WaitDispatcher
	out   io.Writer
	text  bool

	mu     sync.Mutex
	result PlayResult
}

func (p *player) play(ctx context.Context, script []scriptStep) error {
	for _, step := range script {
		if step.Wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step.Wait):
			}
		} else {
			p.eng.Enqueue(step.Event)
		}
		p.settle(ctx)
	}
	return nil
}

// settle processes events until no backend call is outstanding.
func (p *player) settle(ctx context.Context) {
	for {
		p.eng.Pump(ctx)
		p.calls.Wait()
		if p.eng.Pump(ctx) == 0 {
			return
		}
	}
}

// Observe implements engine.Observer.
func (p *player) Observe(t engine.Transition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Transitions = append(p.result.Transitions, newTransitionView(t))
	if p.text {
		fmt.Fprintln(p.out, harness.FormatTransition(t))
	}
}

// Notify implements engine.Notifier.
func (p *player) Notify(n engine.Notice) {
	pn := PlayNotice{Kind: n.Kind, Item: n.Item, Retryable: n.Retryable}
	if n.Err != nil {
		pn.Error = n.Err.Error()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Notices = append(p.result.Notices, pn)
	if p.text {
		fmt.Fprintln(p.out, strings.TrimSpace(fmt.Sprintf("! %s %s %s", pn.Kind, orDash(string(pn.Item)), pn.Error)))
	}
}

// Present implements engine.Paywall.
func (p *player) Present(item deck.ItemID, kind engagement.Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Paywall = append(p.result.Paywall, item)
	if p.text {
		fmt.Fprintf(p.out, "$ paywall %s %s\n", kind, item)
	}
}

// ShowProfile implements engine.ProfileRouter.
func (p *player) ShowProfile(author string, item deck.ItemID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Profiles = append(p.result.Profiles, author)
	if p.text {
		fmt.Fprintf(p.out, "@ profile %s %s\n", author, item)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func parseOffset(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return f, nil
}
