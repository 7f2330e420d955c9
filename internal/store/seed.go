package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/roach88/storydeck/internal/deck"
)

// Fixture is a YAML seed file:
//
//	viewer: me
//	decks:
//	  - author: ann
//	    items:
//	      - id: a1
//	        media_kind: photo
//	        like_count: 5
//
// Items without an id get a generated UUIDv7. liked_by_viewer on an item
// seeds a like by the fixture viewer, already included in like_count.
type Fixture struct {
	Viewer string      `yaml:"viewer,omitempty"`
	Decks  []deck.Page `yaml:"decks"`
}

// LoadFixture decodes a fixture. Unknown fields are rejected.
func LoadFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		return f, fmt.Errorf("decode fixture: %w", err)
	}
	return f, nil
}

// LoadFixtureFile reads a fixture from path.
func LoadFixtureFile(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()
	return LoadFixture(file)
}

// Validate checks the fixture without touching a database. Items may omit
// their id; ids that are present must be unique.
func (f Fixture) Validate() error {
	seen := make(map[deck.ItemID]bool)
	for i, d := range f.Decks {
		if d.Author == "" {
			return fmt.Errorf("deck %d: author is required", i)
		}
		for j, item := range d.Items {
			if item.ID == "" {
				item.ID = deck.ItemID(fmt.Sprintf("decks[%d].items[%d]", i, j))
			} else if seen[item.ID] {
				return fmt.Errorf("deck %d: duplicate item id %s", i, item.ID)
			}
			seen[item.ID] = true
			if err := item.Validate(); err != nil {
				return fmt.Errorf("deck %d: %w", i, err)
			}
		}
	}
	return nil
}

// Seed appends the fixture's decks after any decks already stored, in one
// transaction. Returns the number of items written.
func (s *Store) Seed(ctx context.Context, f Fixture) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(page_number) + 1, 0) FROM decks`).Scan(&next); err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}

	written := 0
	for i, d := range f.Decks {
		if d.Author == "" {
			return 0, fmt.Errorf("seed deck %d: author is required", i)
		}
		pageNumber := next + i
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO decks (page_number, author) VALUES (?, ?)`,
			pageNumber, d.Author); err != nil {
			return 0, fmt.Errorf("seed deck %d: %w", i, err)
		}

		for pos, item := range d.Items {
			if item.ID == "" {
				item.ID = deck.ItemID(uuid.Must(uuid.NewV7()).String())
			}
			if item.OwnerID == "" {
				item.OwnerID = d.Author
			}
			item.Normalize()
			if err := item.Validate(); err != nil {
				return 0, fmt.Errorf("seed deck %d: %w", i, err)
			}
			if err := insertItem(ctx, tx, pageNumber, pos, item, f.Viewer); err != nil {
				return 0, fmt.Errorf("seed deck %d: %w", i, err)
			}
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	return written, nil
}

func insertItem(ctx context.Context, tx *sql.Tx, pageNumber, pos int, item deck.Item, viewer string) error {
	baseLikes := item.LikeCount
	seedLike := item.LikedByViewer && viewer != ""
	if seedLike {
		baseLikes = max(baseLikes-1, 0)
	}

	var expiresAt int64
	if !item.ExpiresAt.IsZero() {
		expiresAt = item.ExpiresAt.UnixMilli()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO items
		(id, page_number, position, media_kind, duration_hint, caption, owner_id,
		 expires_at, base_like_count, base_comment_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(item.ID), pageNumber, pos, string(item.MediaKind), item.DurationHint,
		item.Caption, item.OwnerID, expiresAt, baseLikes, item.CommentCount,
	); err != nil {
		return fmt.Errorf("insert item %s: %w", item.ID, err)
	}

	if seedLike {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO likes (item_id, viewer_id, liked_day) VALUES (?, ?, '')`,
			string(item.ID), viewer); err != nil {
			return fmt.Errorf("seed like %s: %w", item.ID, err)
		}
	}
	return nil
}
