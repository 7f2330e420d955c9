package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storydeck/internal/deck"
)

// fakeServer is a minimal feed server.
type fakeServer struct {
	mu        sync.Mutex
	pages     []deck.Page
	fail5xx   int // fail this many page requests with 503
	likes     map[deck.ItemID]bool
	comments  []string
	deleted   []deck.ItemID
	limited   bool
	pageHits  int
	lastToken string
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /feed/pages/{n}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pageHits++
		f.lastToken = r.Header.Get("Authorization")
		if f.fail5xx > 0 {
			f.fail5xx--
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "try later")
			return
		}
		n, err := strconv.Atoi(r.PathValue("n"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_PAGE", err.Error())
			return
		}
		if n >= len(f.pages) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, f.pages[n])
	})
	mux.HandleFunc("PUT /items/{id}/like", func(w http.ResponseWriter, r *http.Request) {
		var req likeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_BODY", err.Error())
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		id := deck.ItemID(r.PathValue("id"))
		switch {
		case id == "missing":
			writeError(w, http.StatusNotFound, "NOT_FOUND", "no such item")
		case f.limited:
			writeError(w, http.StatusTooManyRequests, "LIMIT_REACHED", "daily limit")
		default:
			f.likes[id] = req.Liked
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("POST /items/{id}/comments", func(w http.ResponseWriter, r *http.Request) {
		var req commentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_BODY", err.Error())
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.comments = append(f.comments, req.Body)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("DELETE /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := deck.ItemID(r.PathValue("id"))
		if id == "theirs" {
			writeError(w, http.StatusForbidden, "NOT_OWNER", "not your item")
			return
		}
		f.deleted = append(f.deleted, id)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Code: code, Message: msg})
}

func newTestClient(t *testing.T, f *fakeServer, retries int) *Client {
	t.Helper()
	if f.likes == nil {
		f.likes = make(map[deck.ItemID]bool)
	}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL: srv.URL,
		Token:   "secret",
		Timeout: 2 * time.Second,
		Retries: retries,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestClient_FetchPage(t *testing.T) {
	f := &fakeServer{pages: []deck.Page{{
		Author: "ann",
		Items: []deck.Item{{
			ID: "a1", MediaKind: deck.MediaVideo, DurationHint: 3.5,
			LikeCount: 2, LikedByViewer: true, OwnerID: "ann",
			ExpiresAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		}},
	}}}
	c := newTestClient(t, f, 0)

	p, err := c.FetchPage(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, f.pages[0], *p)
	assert.Equal(t, "Bearer secret", f.lastToken)

	end, err := c.FetchPage(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, end, "204 is the end marker")
}

func TestClient_FetchPageRetries5xx(t *testing.T) {
	f := &fakeServer{pages: []deck.Page{{Author: "ann", Items: []deck.Item{{ID: "a1", MediaKind: deck.MediaPhoto}}}}, fail5xx: 2}
	c := newTestClient(t, f, 2)

	p, err := c.FetchPage(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 3, f.pageHits)
}

func TestClient_FetchPageFailure(t *testing.T) {
	f := &fakeServer{fail5xx: 5}
	c := newTestClient(t, f, 0)

	_, err := c.FetchPage(context.Background(), 0)
	require.Error(t, err)

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.Status)
	assert.Equal(t, "UNAVAILABLE", serr.Code)
	assert.Equal(t, 1, f.pageHits)
}

func TestClient_ToggleLike(t *testing.T) {
	f := &fakeServer{}
	c := newTestClient(t, f, 3)
	ctx := context.Background()

	require.NoError(t, c.ToggleLike(ctx, "a1", true))
	assert.True(t, f.likes["a1"])

	assert.ErrorIs(t, c.ToggleLike(ctx, "missing", true), deck.ErrItemNotFound)

	f.limited = true
	err := c.ToggleLike(ctx, "a1", false)
	assert.ErrorIs(t, err, deck.ErrLimitReached)
	assert.True(t, deck.IsLimitError(err))
}

func TestClient_PostCommentAndDelete(t *testing.T) {
	f := &fakeServer{}
	c := newTestClient(t, f, 0)
	ctx := context.Background()

	require.NoError(t, c.PostComment(ctx, "a1", "hello"))
	assert.Equal(t, []string{"hello"}, f.comments)

	require.NoError(t, c.DeleteItem(ctx, "mine"))
	assert.Equal(t, []deck.ItemID{"mine"}, f.deleted)

	err := c.DeleteItem(ctx, "theirs")
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusForbidden, serr.Status)
	assert.Equal(t, "NOT_OWNER", serr.Code)
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, &fakeServer{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchPage(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}
