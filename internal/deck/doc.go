// Package deck defines the data model shared by every part of the story feed.
//
// A feed is an append-only list of Pages. Each Page is one author's deck: an
// ordered batch of Items shown one after another. The viewer's position is a
// Cursor, a (page, item) pair that only the navigation package produces.
//
// Items are immutable except for their engagement counters (LikeCount,
// CommentCount, LikedByViewer). Those are written by the engagement package
// alone, so every other component can treat an Item as a read-only value.
package deck
