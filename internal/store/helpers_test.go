package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/storydeck/internal/deck"
)

var testDay = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func photo(id string) deck.Item {
	return deck.Item{ID: deck.ItemID(id), MediaKind: deck.MediaPhoto}
}

// seededBackend seeds three decks and returns a backend for viewer "me".
func seededBackend(t *testing.T, opts ...BackendOption) (*Store, *Backend) {
	t.Helper()
	s := createTestStore(t)
	fixture := Fixture{
		Viewer: "me",
		Decks: []deck.Page{
			{Author: "ann", Items: []deck.Item{photo("a1"), photo("a2")}},
			{Author: "me", Items: []deck.Item{photo("m1")}},
			{Author: "bob", Items: []deck.Item{
				{ID: "b1", MediaKind: deck.MediaVideo, DurationHint: 4, LikeCount: 5, Caption: "hi"},
			}},
		},
	}
	if _, err := s.Seed(context.Background(), fixture); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	base := []BackendOption{WithNow(func() time.Time { return testDay })}
	return s, NewBackend(s, "me", append(base, opts...)...)
}
