// Package deeplink resolves "open this comment" requests coming from a
// URL or from a cross-window message.
//
// Resolution is best-effort by contract: a deep link that cannot be
// honored (deleted comment, network failure, malformed payload) degrades
// to a no-op. Nothing in this package returns an error to the page.
package deeplink

import (
	"context"
	"encoding/json/v2"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/reader/comments"
	"github.com/marginaliapress/marginalia-server/internal/reader/panel"
	"github.com/marginaliapress/marginalia-server/internal/validation"
)

const (
	// highlightDuration is how long a deep-linked comment stays
	// highlighted.
	highlightDuration = 3 * time.Second
	// refetchDelay spaces the single retry when the comment is missing
	// after the first fetch.
	refetchDelay = 300 * time.Millisecond
)

// Request identifies the comment a deep link points at. LineIndex 0 means
// a chapter-level comment.
type Request struct {
	ChapterID string `json:"chapter_id" validate:"required"`
	LineIndex int    `json:"line_index,omitempty" validate:"gte=0"`
	CommentID string `json:"comment_id" validate:"required"`
}

// Resolver drives the panel and the comment engine to surface a deep-
// linked comment.
type Resolver struct {
	panel    *panel.Controller
	engine   *comments.Engine
	origin   string
	validate *validation.Validator
	logger   *slog.Logger

	highlightFor time.Duration

	mu               sync.Mutex
	highlightID      string
	highlightExpires time.Time
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithHighlightDuration overrides the highlight expiry (tests).
func WithHighlightDuration(d time.Duration) Option {
	return func(r *Resolver) { r.highlightFor = d }
}

// NewResolver creates a Resolver. origin is the page's own origin; cross-
// window messages from any other origin are dropped.
func NewResolver(panelCtrl *panel.Controller, engine *comments.Engine, origin string, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Resolver{
		panel:        panelCtrl,
		engine:       engine,
		origin:       origin,
		validate:     validation.New(),
		logger:       logger,
		highlightFor: highlightDuration,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve opens the panel on the requested line, loads its comments, and
// highlights the target comment. Returns whether the comment was found;
// a false return is silent degradation, never a page failure.
func (r *Resolver) Resolve(ctx context.Context, req Request) bool {
	if err := r.validate.Validate(req); err != nil {
		r.logger.Debug("rejecting malformed deep link request",
			slog.String("error", err.Error()))
		return false
	}

	target := domain.ChapterTarget(req.ChapterID)
	if req.LineIndex > 0 {
		target = domain.LineTarget(req.ChapterID, req.LineIndex)
		r.panel.Open(ctx, req.LineIndex)
	}

	// One fetch plus one spaced retry. A comment deleted between link
	// creation and link use simply fails to highlight.
	found := false
	locate := func() error {
		if _, err := r.engine.Load(ctx, target); err != nil {
			return err
		}
		if _, ok := r.engine.Find(req.CommentID); !ok {
			return errCommentMissing
		}
		found = true
		return nil
	}

	err := backoff.Retry(locate, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(refetchDelay), 1), ctx))
	if err != nil || !found {
		r.logger.Debug("deep link did not resolve",
			slog.String("chapter", req.ChapterID),
			slog.String("comment", req.CommentID))
		return false
	}

	r.mu.Lock()
	r.highlightID = req.CommentID
	r.highlightExpires = time.Now().Add(r.highlightFor)
	r.mu.Unlock()
	return true
}

// Highlighted returns the currently highlighted comment ID, if the
// highlight has not expired.
func (r *Resolver) Highlighted() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.highlightID == "" || time.Now().After(r.highlightExpires) {
		return "", false
	}
	return r.highlightID, true
}

// HandleMessage accepts a cross-window command carrying a Request.
// Messages from a foreign origin are ignored before the payload is even
// parsed. Returns whether the message led to a resolved comment.
func (r *Resolver) HandleMessage(ctx context.Context, origin string, payload []byte) bool {
	if origin != r.origin {
		return false
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		r.logger.Debug("ignoring malformed deep link message",
			slog.String("error", err.Error()))
		return false
	}
	return r.Resolve(ctx, req)
}

var errCommentMissing = errors.New("comment not present in fetched thread")
