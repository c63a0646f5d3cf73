package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/marginaliapress/marginalia-server/internal/content"
	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/errors"
	"github.com/marginaliapress/marginalia-server/internal/sse"
	"github.com/marginaliapress/marginalia-server/internal/store"
)

// CommentService orchestrates comment operations and enforces ownership
// and moderation rules. Hidden comments stay visible to their author
// (read-only) and to moderators; everyone else never sees them.
type CommentService struct {
	store   *store.Store
	library *content.Library
	emitter store.EventEmitter
	logger  *slog.Logger
}

// NewCommentService creates a new comment service.
func NewCommentService(st *store.Store, library *content.Library, emitter store.EventEmitter, logger *slog.Logger) *CommentService {
	return &CommentService{
		store:   st,
		library: library,
		emitter: emitter,
		logger:  logger,
	}
}

// CreateCommentParams carries the caller-supplied fields of a new comment.
type CreateCommentParams struct {
	ChapterID       string
	LineIndex       *int // nil for chapter-level comments
	ReaderID        string
	AuthorName      string
	Body            string
	ParentCommentID string // empty for top-level comments
}

// Create validates and persists a new comment or reply.
func (s *CommentService) Create(ctx context.Context, params CreateCommentParams) (*domain.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if params.ReaderID == "" {
		return nil, errors.Forbidden("a reader identity is required to comment")
	}
	if err := domain.ValidateNewComment(params.AuthorName, params.Body); err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		ChapterID:      params.ChapterID,
		LineIndex:      params.LineIndex,
		AuthorReaderID: params.ReaderID,
		AuthorName:     strings.TrimSpace(params.AuthorName),
		Body:           strings.TrimSpace(params.Body),
	}

	if err := s.library.ValidateTarget(comment.Target()); err != nil {
		return nil, err
	}

	if params.ParentCommentID != "" {
		parent, err := s.store.GetComment(ctx, params.ParentCommentID)
		if err != nil {
			return nil, err
		}
		if parent.IsReply() {
			return nil, errors.Validation("replies cannot be nested further")
		}
		if parent.Target().Key() != comment.Target().Key() {
			return nil, errors.Validation("a reply must stay on its parent's target")
		}
		comment.ParentCommentID = &params.ParentCommentID
	}

	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	s.logger.Info("comment created",
		"comment_id", comment.ID,
		"target", comment.Target().Key(),
		"is_reply", comment.IsReply(),
	)

	return comment, nil
}

// ListForTarget returns a target's comments, newest first. Hidden comments
// are filtered out unless the requesting reader authored them.
func (s *CommentService) ListForTarget(ctx context.Context, target domain.Target, readerID string) ([]*domain.Comment, error) {
	if err := s.library.ValidateTarget(target); err != nil {
		return nil, err
	}

	comments, err := s.store.ListCommentsForTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	return filterHidden(comments, readerID), nil
}

// ListForChapter returns every comment in a chapter (chapter-level plus all
// line-level), newest first, with the same hidden filtering as ListForTarget.
func (s *CommentService) ListForChapter(ctx context.Context, chapterID, readerID string) ([]*domain.Comment, error) {
	chapter, err := s.library.GetChapter(chapterID)
	if err != nil {
		return nil, err
	}

	comments, err := s.store.ListCommentsForChapter(ctx, chapterID, len(chapter.Lines))
	if err != nil {
		return nil, err
	}
	return filterHidden(comments, readerID), nil
}

// Get returns one comment, applying the hidden visibility rule.
func (s *CommentService) Get(ctx context.Context, commentID, readerID string) (*domain.Comment, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.Hidden && comment.AuthorReaderID != readerID {
		return nil, errors.ErrNotFound
	}
	return comment, nil
}

// Edit updates a comment's body. Only the author may edit, hidden comments
// are immutable, and the new body passes the same validation as creation.
func (s *CommentService) Edit(ctx context.Context, commentID, readerID, body string) (*domain.Comment, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}

	if err := comment.CanEdit(readerID); err != nil {
		return nil, err
	}
	if err := domain.ValidateNewComment(comment.AuthorName, body); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(body)
	if trimmed == comment.Body {
		return comment, nil
	}

	comment.Body = trimmed
	if err := s.store.UpdateComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// Delete removes a comment (and its replies). Only the author may delete,
// and hidden comments cannot be deleted by their author.
func (s *CommentService) Delete(ctx context.Context, commentID, readerID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}

	if err := comment.CanDelete(readerID); err != nil {
		return err
	}

	return s.store.DeleteComment(ctx, commentID)
}

// AdminReply appends a moderator reply to a comment. The reply is
// append-only: a second reply to the same comment is a conflict.
func (s *CommentService) AdminReply(ctx context.Context, commentID, author, body string) (*domain.Comment, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}

	if err := comment.AttachAdminReply(author, body, time.Now()); err != nil {
		return nil, err
	}

	if err := s.store.UpdateComment(ctx, comment); err != nil {
		return nil, err
	}

	s.logger.Info("admin reply attached", "comment_id", commentID)
	return comment, nil
}

// SetHidden marks a comment hidden or visible. This is a moderation
// operation; the comment's author is never consulted.
func (s *CommentService) SetHidden(ctx context.Context, commentID string, hidden bool) (*domain.Comment, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}

	if comment.Hidden == hidden {
		return comment, nil
	}

	comment.Hidden = hidden
	if err := s.store.UpdateComment(ctx, comment); err != nil {
		return nil, err
	}

	s.logger.Info("comment moderation changed",
		"comment_id", commentID,
		"hidden", hidden,
	)
	return comment, nil
}

// RequestFocus broadcasts a comment.focus event asking reading views to
// navigate to and open the given comment.
func (s *CommentService) RequestFocus(ctx context.Context, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}

	lineIndex := 0
	if comment.LineIndex != nil {
		lineIndex = *comment.LineIndex
	}

	s.emitter.Emit(sse.NewCommentFocusEvent(comment.ChapterID, lineIndex, comment.ID))

	s.logger.Info("comment focus requested",
		"comment_id", commentID,
		"chapter_id", comment.ChapterID,
	)
	return nil
}

// filterHidden drops hidden comments the reader did not author.
func filterHidden(comments []*domain.Comment, readerID string) []*domain.Comment {
	out := make([]*domain.Comment, 0, len(comments))
	for _, c := range comments {
		if c.Hidden && (readerID == "" || c.AuthorReaderID != readerID) {
			continue
		}
		out = append(out, c)
	}
	return out
}
