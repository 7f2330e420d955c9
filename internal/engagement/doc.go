// Package engagement applies optimistic like, comment and delete mutations to
// cached feed items and rolls them back when the backend refuses.
//
// Every mutation goes through one primitive:
//
//  1. snapshot the fields the mutation touches,
//  2. apply the change to the cached item immediately,
//  3. dispatch the authoritative backend call,
//  4. on Settle: keep the change on success, restore on failure.
//
// Attempts are not serialized. Overlapping attempts on the same item and
// field share a window whose base is the snapshot taken by the first attempt.
// The cached value is always the base with every attempt that has not failed
// re-applied in invocation order. A like attempt re-applies the like state it
// asked the backend for; a comment attempt re-applies its increment. A lone
// failure therefore restores its own snapshot exactly, and any number of
// overlapping failures restore the state from before the first of them.
//
// A limit refusal (deck.ErrLimitReached) is not rolled back. The optimistic
// state stays as set and the caller routes the viewer to the upgrade flow.
package engagement
