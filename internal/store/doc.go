// Package store provides the SQLite-backed local backend for storydeck.
//
// The store holds:
//   - Decks and items: the feed content, addressed by page number
//   - Likes and comments: engagement, with a per-viewer daily like limit
//   - Transitions: an append-only log of engine transitions per session
//
// Backend implements both pages.PageSource and engagement.API over a Store,
// so the engine can run against a local database with no server. Recorder
// implements engine.Observer and appends every transition to the log.
//
// # Ordering
//
// Decks are served in page_number order, items in position order, and
// transitions in seq order. Queries never order by wall time, so the same
// database always produces the same feed and the same trace.
//
// # Pagination
//
// FetchPage(n) continues after the deck it served as page n-1 (keyset
// pagination), so a deck emptied mid-session does not shift later pages.
// Soft-deleted items are never served, and a deck with no live items is
// skipped rather than returned empty, because an empty page is the
// end-of-feed marker.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
