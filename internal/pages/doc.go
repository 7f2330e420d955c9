// Package pages implements the deck page store: the single owner of the
// append-only list of fetched pages and of the pagination state around it.
//
// Fetching is split in two halves so the store never blocks and never needs a
// lock:
//
//  1. FetchNextPage marks a fetch in flight and hands the backend call to a
//     deck.Dispatcher. Further calls are no-ops until the fetch resolves,
//     which coalesces the bursts of requests a fast swiper produces.
//  2. The backend result comes back as a FetchResult, which the event loop
//     passes to Resolve. Only Resolve commits anything.
//
// An empty or absent page is the end marker: HasMore becomes false for the
// rest of the session. A failure commits nothing, keeps HasMore true and
// exposes the error through Err until the next successful fetch.
package pages
