package deck

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ItemID identifies a single story item.
type ItemID string

// MediaKind distinguishes photo from video content.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// Valid reports whether k is a known media kind.
func (k MediaKind) Valid() bool {
	return k == MediaPhoto || k == MediaVideo
}

// Item is one photo or video inside an author's deck.
type Item struct {
	ID        ItemID    `json:"id" yaml:"id"`
	MediaKind MediaKind `json:"media_kind" yaml:"media_kind"`

	// DurationHint is the video length in seconds. Zero or negative means
	// unknown, and playback falls back to the photo dwell time.
	DurationHint float64 `json:"duration_hint,omitempty" yaml:"duration_hint,omitempty"`

	Caption       string    `json:"caption,omitempty" yaml:"caption,omitempty"`
	LikeCount     int       `json:"like_count" yaml:"like_count"`
	CommentCount  int       `json:"comment_count" yaml:"comment_count"`
	LikedByViewer bool      `json:"liked_by_viewer" yaml:"liked_by_viewer"`
	OwnerID       string    `json:"owner_id" yaml:"owner_id"`
	ExpiresAt     time.Time `json:"expires_at" yaml:"expires_at"`
}

// Expired reports whether the item's expiry has passed. Expiry is enforced by
// the server; the client only uses this for display.
func (it *Item) Expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && !now.Before(it.ExpiresAt)
}

// Normalize puts the caption into Unicode NFC so that captions fetched from
// different backends compare and render identically.
func (it *Item) Normalize() {
	if it.Caption != "" && !norm.NFC.IsNormalString(it.Caption) {
		it.Caption = norm.NFC.String(it.Caption)
	}
}

// Validate checks the fields a backend must always supply.
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("item id is required")
	}
	if !it.MediaKind.Valid() {
		return fmt.Errorf("item %s: unknown media kind %q", it.ID, it.MediaKind)
	}
	if it.LikeCount < 0 || it.CommentCount < 0 {
		return fmt.Errorf("item %s: negative counters", it.ID)
	}
	return nil
}

// Page is one author's deck of items, the unit of vertical pagination.
type Page struct {
	Author string `json:"author" yaml:"author"`
	Items  []Item `json:"items" yaml:"items"`
}

// Empty reports whether the page carries no items. A nil page is empty.
func (p *Page) Empty() bool {
	return p == nil || len(p.Items) == 0
}

// Clone returns a deep copy of the page.
func (p *Page) Clone() Page {
	items := make([]Item, len(p.Items))
	copy(items, p.Items)
	return Page{Author: p.Author, Items: items}
}

// Cursor points at the currently displayed item.
type Cursor struct {
	Page int `json:"page" yaml:"page"`
	Item int `json:"item" yaml:"item"`
}

func (c Cursor) String() string {
	return fmt.Sprintf("(%d,%d)", c.Page, c.Item)
}
