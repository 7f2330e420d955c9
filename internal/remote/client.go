// Package remote is the HTTP backend client. Client implements
// pages.PageSource and engagement.API against a storydeck feed server:
//
//	GET    /feed/pages/{n}        200 deck JSON, 204 or 404 end of feed
//	PUT    /items/{id}/like       {"liked": bool}
//	POST   /items/{id}/comments   {"body": string}
//	DELETE /items/{id}
//
// Error responses carry {"code": ..., "message": ...}. A 429 or a
// LIMIT_REACHED code maps to deck.ErrLimitReached; a 404 on an item maps to
// deck.ErrItemNotFound. Page fetches are retried on 5xx and transport
// errors; mutations are never retried.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/roach88/storydeck/internal/deck"
)

// Config holds client settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retries int
}

// StatusError is an unexpected HTTP status.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type likeRequest struct {
	Liked bool `json:"liked"`
}

type commentRequest struct {
	Body string `json:"body"`
}

// Client talks to a feed server.
type Client struct {
	client *resty.Client
	logger *slog.Logger
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote: base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("remote: invalid base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryFetches)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Client{client: client, logger: logger}, nil
}

// retryFetches retries GETs on transport errors and 5xx responses.
func retryFetches(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || r.StatusCode() >= http.StatusInternalServerError
}

// FetchPage implements pages.PageSource.
func (c *Client) FetchPage(ctx context.Context, n int) (*deck.Page, error) {
	var page deck.Page
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("n", strconv.Itoa(n)).
		SetResult(&page).
		SetError(&apiError{}).
		Get("/feed/pages/{n}")
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", n, err)
	}

	switch resp.StatusCode() {
	case http.StatusNoContent, http.StatusNotFound:
		c.logger.Debug("end of feed", "page", n, "status", resp.StatusCode())
		return nil, nil
	case http.StatusOK:
		return &page, nil
	default:
		return nil, fmt.Errorf("fetch page %d: %w", n, statusError(resp))
	}
}

// ToggleLike implements engagement.API.
func (c *Client) ToggleLike(ctx context.Context, id deck.ItemID, liked bool) error {
	resp, err := c.item(ctx, id).
		SetBody(likeRequest{Liked: liked}).
		Put("/items/{id}/like")
	return c.check("like", id, resp, err)
}

// PostComment implements engagement.API.
func (c *Client) PostComment(ctx context.Context, id deck.ItemID, body string) error {
	resp, err := c.item(ctx, id).
		SetBody(commentRequest{Body: body}).
		Post("/items/{id}/comments")
	return c.check("comment", id, resp, err)
}

// DeleteItem implements engagement.API.
func (c *Client) DeleteItem(ctx context.Context, id deck.ItemID) error {
	resp, err := c.item(ctx, id).Delete("/items/{id}")
	return c.check("delete", id, resp, err)
}

func (c *Client) item(ctx context.Context, id deck.ItemID) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetPathParam("id", string(id)).
		SetError(&apiError{})
}

func (c *Client) check(op string, id deck.ItemID, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if !resp.IsError() {
		return nil
	}

	serr := statusError(resp)
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests || serr.Code == string(deck.ErrCodeLimitReached):
		return fmt.Errorf("%s %s: %w", op, id, deck.ErrLimitReached)
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", op, id, deck.ErrItemNotFound)
	default:
		c.logger.Warn("engagement call failed", "op", op, "item", id, "status", resp.StatusCode())
		return fmt.Errorf("%s %s: %w", op, id, serr)
	}
}

func statusError(resp *resty.Response) *StatusError {
	serr := &StatusError{Status: resp.StatusCode()}
	if e, ok := resp.Error().(*apiError); ok && e != nil {
		serr.Code = e.Code
		serr.Message = e.Message
	}
	return serr
}
