package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/storydeck/internal/deck"
	"github.com/roach88/storydeck/internal/engine"
)

// WriteTransition appends one transition to the log.
// Uses ON CONFLICT DO NOTHING for idempotency - a (session, seq) pair is
// written once.
func (s *Store) WriteTransition(ctx context.Context, t engine.Transition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions
		(session, seq, event, from_page, from_item, to_page, to_item, item_id, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session, seq) DO NOTHING
	`,
		t.Session,
		t.Seq,
		t.Event,
		t.From.Page, t.From.Item,
		t.To.Page, t.To.Item,
		string(t.Item),
		t.Outcome,
		t.Detail,
	)
	if err != nil {
		return fmt.Errorf("write transition %s/%d: %w", t.Session, t.Seq, err)
	}
	return nil
}

// ReadTransitions returns a session's transitions ordered by seq.
// Returns an empty slice (not nil) if the session has none.
func (s *Store) ReadTransitions(ctx context.Context, session string) ([]engine.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, event, from_page, from_item, to_page, to_item, item_id, outcome, detail
		FROM transitions
		WHERE session = ?
		ORDER BY seq ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	transitions := []engine.Transition{}
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return transitions, nil
}

func scanTransition(rows *sql.Rows) (engine.Transition, error) {
	var (
		t    engine.Transition
		item string
	)
	if err := rows.Scan(
		&t.Session, &t.Seq, &t.Event,
		&t.From.Page, &t.From.Item,
		&t.To.Page, &t.To.Item,
		&item, &t.Outcome, &t.Detail,
	); err != nil {
		return t, fmt.Errorf("scan transition: %w", err)
	}
	t.Item = deck.ItemID(item)
	return t, nil
}

// SessionSummary describes one recorded session.
type SessionSummary struct {
	Session     string
	Transitions int
	FirstSeq    int64
	LastSeq     int64
	Final       deck.Cursor
	FinalItem   deck.ItemID
}

// ErrSessionNotFound is returned for a session with no transitions.
var ErrSessionNotFound = errors.New("session not found")

// GetSession summarizes one session. LastSeq lets a resumed engine continue
// the same seq range.
func (s *Store) GetSession(ctx context.Context, session string) (SessionSummary, error) {
	sum := SessionSummary{Session: session}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(seq), 0), COALESCE(MAX(seq), 0)
		FROM transitions WHERE session = ?
	`, session).Scan(&sum.Transitions, &sum.FirstSeq, &sum.LastSeq)
	if err != nil {
		return sum, fmt.Errorf("get session: %w", err)
	}
	if sum.Transitions == 0 {
		return sum, fmt.Errorf("get session %s: %w", session, ErrSessionNotFound)
	}

	var item string
	err = s.db.QueryRowContext(ctx, `
		SELECT to_page, to_item, item_id FROM transitions
		WHERE session = ? AND seq = ?
	`, session, sum.LastSeq).Scan(&sum.Final.Page, &sum.Final.Item, &item)
	if err != nil {
		return sum, fmt.Errorf("get session final cursor: %w", err)
	}
	sum.FinalItem = deck.ItemID(item)
	return sum, nil
}

// ListSessions summarizes every recorded session, ordered by session token.
// UUIDv7 tokens sort by start time.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT session FROM transitions ORDER BY session COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		tokens = append(tokens, token)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	sums := []SessionSummary{}
	for _, token := range tokens {
		sum, err := s.GetSession(ctx, token)
		if err != nil {
			return nil, err
		}
		sums = append(sums, sum)
	}
	return sums, nil
}

// Recorder appends engine transitions to the log. It implements
// engine.Observer; write failures are logged and never stop the feed.
type Recorder struct {
	ctx    context.Context
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a recorder writing to s.
func NewRecorder(ctx context.Context, s *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{ctx: ctx, store: s, logger: logger}
}

// Observe implements engine.Observer.
func (r *Recorder) Observe(t engine.Transition) {
	if err := r.store.WriteTransition(r.ctx, t); err != nil {
		r.logger.Error("transition not recorded",
			"error", err,
			"session", t.Session,
			"seq", t.Seq,
			"event", t.Event,
		)
	}
}
