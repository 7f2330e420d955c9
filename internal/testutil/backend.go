package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/storydeck/internal/deck"
)

// ErrScripted is returned by ScriptedBackend for scripted failures.
var ErrScripted = errors.New("scripted failure")

// LikeCall records one ToggleLike call.
type LikeCall struct {
	Item  deck.ItemID
	Liked bool
}

// ScriptedBackend is an in-memory page source and engagement API. Page
// numbers index Pages directly; any number past the end is the end marker.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedBackend struct {
	mu sync.Mutex

	pages         []*deck.Page
	fetchFailures map[int]int
	mutationErrs  map[deck.ItemID]error

	fetches  []int
	likes    []LikeCall
	comments []string
	deletes  []deck.ItemID
}

// NewScriptedBackend serves pages in order.
func NewScriptedBackend(pages ...*deck.Page) *ScriptedBackend {
	return &ScriptedBackend{
		pages:         pages,
		fetchFailures: make(map[int]int),
		mutationErrs:  make(map[deck.ItemID]error),
	}
}

// FailFetch makes the next times fetches of page n fail.
func (b *ScriptedBackend) FailFetch(n, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetchFailures[n] += times
}

// FailMutations makes every engagement call on id return err until cleared
// with a nil err.
func (b *ScriptedBackend) FailMutations(id deck.ItemID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.mutationErrs, id)
		return
	}
	b.mutationErrs[id] = err
}

// FetchPage implements pages.PageSource.
func (b *ScriptedBackend) FetchPage(ctx context.Context, n int) (*deck.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fetches = append(b.fetches, n)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.fetchFailures[n] > 0 {
		b.fetchFailures[n]--
		return nil, fmt.Errorf("fetch page %d: %w", n, ErrScripted)
	}
	if n < 0 || n >= len(b.pages) {
		return nil, nil
	}
	p := b.pages[n].Clone()
	return &p, nil
}

// ToggleLike implements engagement.API.
func (b *ScriptedBackend) ToggleLike(_ context.Context, id deck.ItemID, liked bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.mutationErrs[id]; err != nil {
		return err
	}
	b.likes = append(b.likes, LikeCall{Item: id, Liked: liked})
	return nil
}

// PostComment implements engagement.API.
func (b *ScriptedBackend) PostComment(_ context.Context, id deck.ItemID, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.mutationErrs[id]; err != nil {
		return err
	}
	b.comments = append(b.comments, body)
	return nil
}

// DeleteItem implements engagement.API.
func (b *ScriptedBackend) DeleteItem(_ context.Context, id deck.ItemID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.mutationErrs[id]; err != nil {
		return err
	}
	b.deletes = append(b.deletes, id)
	return nil
}

// Fetches returns the page numbers requested so far.
func (b *ScriptedBackend) Fetches() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.fetches...)
}

// Likes returns the accepted like calls.
func (b *ScriptedBackend) Likes() []LikeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LikeCall(nil), b.likes...)
}

// Comments returns the accepted comment bodies.
func (b *ScriptedBackend) Comments() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.comments...)
}

// Deletes returns the accepted deletes.
func (b *ScriptedBackend) Deletes() []deck.ItemID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]deck.ItemID(nil), b.deletes...)
}

// PhotoPage builds a deck of photos owned by author.
func PhotoPage(author string, ids ...string) *deck.Page {
	p := &deck.Page{Author: author}
	for _, id := range ids {
		p.Items = append(p.Items, deck.Item{
			ID:        deck.ItemID(id),
			MediaKind: deck.MediaPhoto,
			OwnerID:   author,
		})
	}
	return p
}
