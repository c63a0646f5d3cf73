// Package client is the reader-side HTTP client for the engagement API.
//
// Reads are idempotent and retried with exponential backoff. Writes are
// sent exactly once: the wire protocol carries intended actions, so the
// caller decides whether a retry is safe.
package client

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/marginaliapress/marginalia-server/internal/domain"
	domainerrors "github.com/marginaliapress/marginalia-server/internal/errors"
)

const (
	// requestTimeout bounds every single request attempt.
	requestTimeout = 10 * time.Second
	// maxReadRetries is how many times an idempotent read is retried
	// after the first failure.
	maxReadRetries = 2

	readerIDHeader   = "X-Reader-ID"
	adminTokenHeader = "X-Admin-Token"
)

// Client talks to the engagement API for one reader.
type Client struct {
	baseURL    string
	readerID   string
	adminToken string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAdminToken enables moderation calls.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// New creates a Client. readerID may be empty for anonymous read-only use.
func New(baseURL, readerID string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		readerID: readerID,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReaderID returns the identity this client writes as.
func (c *Client) ReaderID() string {
	return c.readerID
}

// Comment is the wire shape of a comment as the API returns it.
type Comment struct {
	ID               string     `json:"id"`
	ChapterID        string     `json:"chapter_id"`
	LineIndex        *int       `json:"line_index,omitempty"`
	AuthorName       string     `json:"author_name"`
	Body             string     `json:"body"`
	ParentCommentID  *string    `json:"parent_comment_id,omitempty"`
	AdminReply       string     `json:"admin_reply,omitempty"`
	AdminReplyAuthor string     `json:"admin_reply_author,omitempty"`
	AdminReplyAt     *time.Time `json:"admin_reply_at,omitempty"`
	Hidden           bool       `json:"hidden,omitempty"`
	Mine             bool       `json:"mine"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ChapterEngagement is the bulk like-state snapshot for one chapter.
type ChapterEngagement struct {
	Chapter likeStatusPayload   `json:"chapter"`
	Lines   []likeStatusPayload `json:"lines"`
}

type likeStatusPayload struct {
	TargetKey string `json:"target_key"`
	Total     int    `json:"total"`
	IsLiked   bool   `json:"is_liked"`
}

// apiError is the wire shape of an error response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetLikeStatus fetches the authoritative like status for one target.
// Retried with backoff; safe to call repeatedly.
func (c *Client) GetLikeStatus(ctx context.Context, target domain.Target) (*domain.LikeStatus, error) {
	var payload likeStatusPayload
	err := c.getWithRetry(ctx, "/api/v1/likes?target="+url.QueryEscape(target.Key()), &payload)
	if err != nil {
		return nil, err
	}
	return &domain.LikeStatus{Total: payload.Total, IsLiked: payload.IsLiked}, nil
}

// GetChapterEngagement fetches like status for a chapter and all its lines.
func (c *Client) GetChapterEngagement(ctx context.Context, chapterID string) (map[string]domain.LikeStatus, error) {
	var payload ChapterEngagement
	err := c.getWithRetry(ctx, "/api/v1/engagement?chapter="+url.QueryEscape(chapterID), &payload)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]domain.LikeStatus, len(payload.Lines)+1)
	statuses[payload.Chapter.TargetKey] = domain.LikeStatus{
		Total:   payload.Chapter.Total,
		IsLiked: payload.Chapter.IsLiked,
	}
	for _, line := range payload.Lines {
		statuses[line.TargetKey] = domain.LikeStatus{Total: line.Total, IsLiked: line.IsLiked}
	}
	return statuses, nil
}

// ToggleLike sends an intended like action. Not retried here: the caller's
// state machine owns retry decisions for writes.
func (c *Client) ToggleLike(ctx context.Context, target domain.Target, action domain.ToggleAction) (*domain.LikeStatus, error) {
	body := map[string]string{
		"target_key": target.Key(),
		"action":     string(action),
	}

	var payload likeStatusPayload
	if err := c.do(ctx, http.MethodPost, "/api/v1/likes/toggle", body, &payload); err != nil {
		return nil, err
	}
	return &domain.LikeStatus{Total: payload.Total, IsLiked: payload.IsLiked}, nil
}

// ListComments fetches a target's comments, newest first.
func (c *Client) ListComments(ctx context.Context, target domain.Target) ([]Comment, error) {
	var payload struct {
		Comments []Comment `json:"comments"`
	}
	err := c.getWithRetry(ctx, "/api/v1/comments?target="+url.QueryEscape(target.Key()), &payload)
	if err != nil {
		return nil, err
	}
	return payload.Comments, nil
}

// CreateCommentRequest carries the fields of a new comment or reply.
type CreateCommentRequest struct {
	ChapterID       string `json:"chapter_id"`
	LineIndex       *int   `json:"line_index,omitempty"`
	AuthorName      string `json:"author_name"`
	Body            string `json:"body"`
	ParentCommentID string `json:"parent_comment_id,omitempty"`
}

// CreateComment posts a new comment and returns the server's version.
func (c *Client) CreateComment(ctx context.Context, req CreateCommentRequest) (*Comment, error) {
	var comment Comment
	if err := c.do(ctx, http.MethodPost, "/api/v1/comments", req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// EditComment updates a comment's body.
func (c *Client) EditComment(ctx context.Context, commentID, body string) (*Comment, error) {
	var comment Comment
	err := c.do(ctx, http.MethodPatch, "/api/v1/comments/"+url.PathEscape(commentID),
		map[string]string{"body": body}, &comment)
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/comments/"+url.PathEscape(commentID), nil, nil)
}

// getWithRetry performs an idempotent GET with exponential backoff.
// Client-mistake responses (4xx) are permanent and never retried.
func (c *Client) getWithRetry(ctx context.Context, path string, dest any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	operation := func() error {
		err := c.do(ctx, http.MethodGet, path, nil, dest)
		if err == nil {
			return nil
		}

		var domainErr *domainerrors.Error
		if domainerrors.As(err, &domainErr) {
			status := domainErr.HTTPStatus()
			if status >= 400 && status < 500 {
				return backoff.Permanent(err)
			}
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying read",
			slog.String("path", path),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}

	return backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, maxReadRetries), ctx), notify)
}

// do performs one HTTP round trip and decodes the response or error.
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.readerID != "" {
		req.Header.Set(readerIDHeader, c.readerID)
	}
	if c.adminToken != "" {
		req.Header.Set(adminTokenHeader, c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeUnavailable, "engagement service unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeUnavailable, "failed to read response")
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "malformed response body")
	}
	return nil
}

// decodeError converts an error response into a coded domain error.
func decodeError(status int, data []byte) error {
	var payload apiError
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		code := domainerrors.Code(payload.Code)
		if code == "" {
			code = statusCode(status)
		}
		return &domainerrors.Error{Code: code, Message: payload.Message}
	}
	return &domainerrors.Error{
		Code:    statusCode(status),
		Message: fmt.Sprintf("engagement service returned status %d", status),
	}
}

// statusCode maps an HTTP status to a domain error code.
func statusCode(status int) domainerrors.Code {
	switch status {
	case http.StatusNotFound:
		return domainerrors.CodeNotFound
	case http.StatusForbidden:
		return domainerrors.CodeForbidden
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domainerrors.CodeValidation
	case http.StatusConflict:
		return domainerrors.CodeConflict
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return domainerrors.CodeUnavailable
	default:
		return domainerrors.CodeInternal
	}
}
