package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/storydeck/internal/deck"
)

// ErrNotOwner is returned when a viewer deletes an item they do not own.
var ErrNotOwner = errors.New("item is owned by another user")

// Backend serves decks and applies engagement for one viewer. It implements
// pages.PageSource and engagement.API.
//
// Thread-safety: safe for concurrent use; the Store serializes writes.
type Backend struct {
	store     *Store
	viewer    string
	likeLimit int
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	served map[int]int // client page number -> deck page_number
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithDailyLikeLimit caps how many likes the viewer may add per UTC day.
// Zero means unlimited.
func WithDailyLikeLimit(n int) BackendOption {
	return func(b *Backend) { b.likeLimit = n }
}

// WithNow sets the wall clock used for like days and comment timestamps.
func WithNow(now func() time.Time) BackendOption {
	return func(b *Backend) { b.now = now }
}

// WithBackendLogger sets the logger.
func WithBackendLogger(l *slog.Logger) BackendOption {
	return func(b *Backend) { b.logger = l }
}

// NewBackend creates a backend for viewer over s.
func NewBackend(s *Store, viewer string, opts ...BackendOption) *Backend {
	b := &Backend{
		store:  s,
		viewer: viewer,
		now:    time.Now,
		logger: slog.Default(),
		served: make(map[int]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Viewer returns the viewer id the backend acts for.
func (b *Backend) Viewer() string {
	return b.viewer
}

// FetchPage returns page n, or nil past the last deck. Page n is the first
// deck with live items after the deck served as page n-1, so decks emptied
// during a session never shift the pages after them. Without a record of
// page n-1 it falls back to the n-th deck with live items.
func (b *Backend) FetchPage(ctx context.Context, n int) (*deck.Page, error) {
	if n < 0 {
		return nil, fmt.Errorf("fetch page %d: negative page number", n)
	}

	after, offset := -1, n
	b.mu.Lock()
	if prev, ok := b.served[n-1]; ok {
		after, offset = prev, 0
	}
	b.mu.Unlock()

	var pageNumber int
	page := &deck.Page{}
	err := b.store.db.QueryRowContext(ctx, `
		SELECT d.page_number, d.author
		FROM decks d
		WHERE d.page_number > ? AND EXISTS (
			SELECT 1 FROM items i WHERE i.page_number = d.page_number AND i.deleted = 0
		)
		ORDER BY d.page_number ASC
		LIMIT 1 OFFSET ?
	`, after, offset).Scan(&pageNumber, &page.Author)
	if errors.Is(err, sql.ErrNoRows) {
		b.logger.Debug("end of feed", "page", n)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", n, err)
	}

	b.mu.Lock()
	b.served[n] = pageNumber
	b.mu.Unlock()

	rows, err := b.store.db.QueryContext(ctx, `
		SELECT i.id, i.media_kind, i.duration_hint, i.caption, i.owner_id, i.expires_at,
			i.base_like_count + (SELECT COUNT(*) FROM likes l WHERE l.item_id = i.id),
			i.base_comment_count + (SELECT COUNT(*) FROM comments c WHERE c.item_id = i.id),
			EXISTS (SELECT 1 FROM likes l WHERE l.item_id = i.id AND l.viewer_id = ?)
		FROM items i
		WHERE i.page_number = ? AND i.deleted = 0
		ORDER BY i.position ASC, i.id COLLATE BINARY ASC
	`, b.viewer, pageNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d items: %w", n, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      deck.Item
			kind      string
			expiresAt int64
		)
		if err := rows.Scan(
			&item.ID, &kind, &item.DurationHint, &item.Caption, &item.OwnerID, &expiresAt,
			&item.LikeCount, &item.CommentCount, &item.LikedByViewer,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.MediaKind = deck.MediaKind(kind)
		if expiresAt != 0 {
			item.ExpiresAt = time.UnixMilli(expiresAt).UTC()
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return page, nil
}

// ToggleLike records the viewer's like state. Adding a like past the daily
// limit fails with deck.ErrLimitReached. Re-liking a liked item is a no-op.
func (b *Backend) ToggleLike(ctx context.Context, id deck.ItemID, liked bool) error {
	if _, err := b.liveOwner(ctx, id); err != nil {
		return fmt.Errorf("toggle like: %w", err)
	}

	if !liked {
		if _, err := b.store.db.ExecContext(ctx,
			`DELETE FROM likes WHERE item_id = ? AND viewer_id = ?`, id, b.viewer); err != nil {
			return fmt.Errorf("unlike %s: %w", id, err)
		}
		return nil
	}

	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("like %s: %w", id, err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM likes WHERE item_id = ? AND viewer_id = ?)`,
		id, b.viewer).Scan(&exists); err != nil {
		return fmt.Errorf("like %s: %w", id, err)
	}
	if exists {
		return nil
	}

	day := b.now().UTC().Format(time.DateOnly)
	if b.likeLimit > 0 {
		var today int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM likes WHERE viewer_id = ? AND liked_day = ?`,
			b.viewer, day).Scan(&today); err != nil {
			return fmt.Errorf("like %s: %w", id, err)
		}
		if today >= b.likeLimit {
			b.logger.Info("daily like limit reached", "viewer", b.viewer, "limit", b.likeLimit)
			return fmt.Errorf("like %s: %w", id, deck.ErrLimitReached)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO likes (item_id, viewer_id, liked_day) VALUES (?, ?, ?)`,
		id, b.viewer, day); err != nil {
		return fmt.Errorf("like %s: %w", id, err)
	}
	return tx.Commit()
}

// PostComment appends a comment by the viewer.
func (b *Backend) PostComment(ctx context.Context, id deck.ItemID, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("comment on %s: empty body", id)
	}
	if _, err := b.liveOwner(ctx, id); err != nil {
		return fmt.Errorf("comment: %w", err)
	}

	_, err := b.store.db.ExecContext(ctx, `
		INSERT INTO comments (id, item_id, author_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.Must(uuid.NewV7()).String(), id, b.viewer, body, b.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("comment on %s: %w", id, err)
	}
	return nil
}

// DeleteItem soft-deletes one of the viewer's items.
func (b *Backend) DeleteItem(ctx context.Context, id deck.ItemID) error {
	owner, err := b.liveOwner(ctx, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if owner != b.viewer {
		return fmt.Errorf("delete %s: %w", id, ErrNotOwner)
	}

	if _, err := b.store.db.ExecContext(ctx,
		`UPDATE items SET deleted = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Comment is one stored comment.
type Comment struct {
	ID     string
	Author string
	Body   string
}

// Comments returns an item's comments, oldest first.
func (b *Backend) Comments(ctx context.Context, id deck.ItemID) ([]Comment, error) {
	rows, err := b.store.db.QueryContext(ctx, `
		SELECT id, author_id, body FROM comments
		WHERE item_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Author, &c.Body); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

func (b *Backend) liveOwner(ctx context.Context, id deck.ItemID) (string, error) {
	var owner string
	err := b.store.db.QueryRowContext(ctx,
		`SELECT owner_id FROM items WHERE id = ? AND deleted = 0`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("item %s: %w", id, deck.ErrItemNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("item %s: %w", id, err)
	}
	return owner, nil
}
