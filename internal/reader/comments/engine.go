// Package comments maintains the reader-side view of comment threads.
//
// Unlike likes, comments are never inserted optimistically: a new comment
// joins the local list only after the server confirms it. Validation and
// ownership checks run before any network call, and a failed write leaves
// the local list untouched.
package comments

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	domainerrors "github.com/marginaliapress/marginalia-server/internal/errors"
	"github.com/marginaliapress/marginalia-server/internal/reader/client"
)

// ConfirmFunc asks the user to confirm a destructive action. Deleting a
// comment without a confirming gesture is not allowed.
type ConfirmFunc func(comment client.Comment) bool

// Engine holds per-target comment lists for one chapter view.
type Engine struct {
	client *client.Client
	logger *slog.Logger

	mu      sync.Mutex
	threads map[string][]client.Comment
}

// NewEngine creates an Engine over the API client.
func NewEngine(apiClient *client.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		client:  apiClient,
		logger:  logger,
		threads: make(map[string][]client.Comment),
	}
}

// Load fetches a target's comments from the server and replaces the local
// list. A read failure leaves the previous list in place and is reported
// so callers can decide whether to show stale content.
func (e *Engine) Load(ctx context.Context, target domain.Target) ([]client.Comment, error) {
	fetched, err := e.client.ListComments(ctx, target)
	if err != nil {
		e.logger.Debug("comment load failed",
			slog.String("target", target.Key()),
			slog.String("error", err.Error()))
		return e.List(target), err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.threads[target.Key()] = fetched
	return copyComments(fetched), nil
}

// List returns the local newest-first list for a target. No network.
func (e *Engine) List(target domain.Target) []client.Comment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyComments(e.threads[target.Key()])
}

// ListMine filters the local list down to the current reader's comments.
// Purely local; switching the filter never refetches.
func (e *Engine) ListMine(target domain.Target) []client.Comment {
	e.mu.Lock()
	defer e.mu.Unlock()

	var mine []client.Comment
	for _, c := range e.threads[target.Key()] {
		if c.Mine {
			mine = append(mine, c)
		}
	}
	return mine
}

// Add posts a new comment on a target and, once the server confirms it,
// prepends it to the local list.
func (e *Engine) Add(ctx context.Context, target domain.Target, authorName, body string) (*client.Comment, error) {
	return e.create(ctx, target, authorName, body, "")
}

// AddReply posts a reply to an existing comment on the same target. The
// reply lands in the flat per-target list alongside its parent.
func (e *Engine) AddReply(ctx context.Context, target domain.Target, parentID, authorName, body string) (*client.Comment, error) {
	if parentID == "" {
		return nil, domainerrors.Validation("a reply needs a parent comment")
	}
	if parent, ok := e.find(parentID); ok && parent.ParentCommentID != nil {
		return nil, domainerrors.Validation("replies cannot be nested further")
	}
	return e.create(ctx, target, authorName, body, parentID)
}

func (e *Engine) create(ctx context.Context, target domain.Target, authorName, body, parentID string) (*client.Comment, error) {
	if err := domain.ValidateNewComment(authorName, body); err != nil {
		return nil, err
	}

	req := client.CreateCommentRequest{
		ChapterID:       target.ChapterID,
		AuthorName:      strings.TrimSpace(authorName),
		Body:            strings.TrimSpace(body),
		ParentCommentID: parentID,
	}
	if target.Kind == domain.TargetLine {
		line := target.LineIndex
		req.LineIndex = &line
	}

	created, err := e.client.CreateComment(ctx, req)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	key := target.Key()
	e.threads[key] = append([]client.Comment{*created}, e.threads[key]...)
	return created, nil
}

// Edit updates a comment's body. Ownership and hidden state are checked
// locally before the network call; equal bodies short-circuit to a no-op.
func (e *Engine) Edit(ctx context.Context, commentID, newBody string) (*client.Comment, error) {
	current, ok := e.find(commentID)
	if !ok {
		return nil, domainerrors.NotFound("comment not found")
	}
	if !current.Mine {
		return nil, domainerrors.Forbidden("only the author can edit a comment")
	}
	if current.Hidden {
		return nil, domainerrors.Forbidden("hidden comments cannot be edited")
	}

	trimmed := strings.TrimSpace(newBody)
	if trimmed == current.Body {
		return &current, nil
	}
	if err := domain.ValidateNewComment(current.AuthorName, newBody); err != nil {
		return nil, err
	}

	updated, err := e.client.EditComment(ctx, commentID, trimmed)
	if err != nil {
		return nil, err
	}

	e.replace(*updated)
	return updated, nil
}

// Delete removes a comment after the confirm gesture approves it. A
// declined confirmation is not an error, just a no-op.
func (e *Engine) Delete(ctx context.Context, commentID string, confirm ConfirmFunc) error {
	current, ok := e.find(commentID)
	if !ok {
		return domainerrors.NotFound("comment not found")
	}
	if !current.Mine {
		return domainerrors.Forbidden("only the author can delete a comment")
	}
	if current.Hidden {
		return domainerrors.Forbidden("hidden comments cannot be deleted")
	}
	if confirm == nil || !confirm(current) {
		return nil
	}

	if err := e.client.DeleteComment(ctx, commentID); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for key, list := range e.threads {
		filtered := list[:0:0]
		for _, c := range list {
			if c.ID != commentID && (c.ParentCommentID == nil || *c.ParentCommentID != commentID) {
				filtered = append(filtered, c)
			}
		}
		e.threads[key] = filtered
	}
	return nil
}

// Find returns a comment by ID from any local list.
func (e *Engine) Find(commentID string) (client.Comment, bool) {
	return e.find(commentID)
}

func (e *Engine) find(commentID string) (client.Comment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, list := range e.threads {
		for _, c := range list {
			if c.ID == commentID {
				return c, true
			}
		}
	}
	return client.Comment{}, false
}

// replace swaps an updated comment into whichever list holds it.
func (e *Engine) replace(updated client.Comment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, list := range e.threads {
		for i, c := range list {
			if c.ID == updated.ID {
				list[i] = updated
				e.threads[key] = list
				return
			}
		}
	}
}

func copyComments(list []client.Comment) []client.Comment {
	if list == nil {
		return nil
	}
	out := make([]client.Comment, len(list))
	copy(out, list)
	return out
}
