package store

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/id"
	"github.com/marginaliapress/marginalia-server/internal/sse"
)

// CreateComment persists a new comment and broadcasts comment.created.
// The comment's ID, CreatedAt and UpdatedAt are assigned here.
func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) error {
	commentID, err := id.Generate("cmt")
	if err != nil {
		return err
	}

	now := time.Now()
	comment.ID = commentID
	comment.CreatedAt = now
	comment.UpdatedAt = now

	if err := s.Comments.Create(ctx, comment.ID, comment); err != nil {
		return err
	}

	s.emit(sse.NewCommentCreatedEvent(comment))

	s.logger.Debug("comment created",
		slog.String("comment_id", comment.ID),
		slog.String("target", comment.Target().Key()))
	return nil
}

// GetComment retrieves a single comment by ID.
func (s *Store) GetComment(ctx context.Context, commentID string) (*domain.Comment, error) {
	return s.Comments.Get(ctx, commentID)
}

// UpdateComment persists a modified comment and broadcasts comment.updated.
// UpdatedAt is bumped; permission checks belong to the caller.
func (s *Store) UpdateComment(ctx context.Context, comment *domain.Comment) error {
	comment.UpdatedAt = time.Now()

	if err := s.Comments.Update(ctx, comment.ID, comment); err != nil {
		return err
	}

	s.emit(sse.NewCommentUpdatedEvent(comment))
	return nil
}

// DeleteComment removes a comment and broadcasts comment.deleted.
// Replies to the deleted comment are removed with it so the per-target
// list never contains orphans.
func (s *Store) DeleteComment(ctx context.Context, commentID string) error {
	comment, err := s.Comments.Get(ctx, commentID)
	if err != nil {
		return err
	}

	replies, err := s.Comments.ListByIndex(ctx, "parent", commentID)
	if err != nil {
		return err
	}

	targetKey := comment.Target().Key()
	deletedAt := time.Now()

	for _, reply := range replies {
		if err := s.Comments.Delete(ctx, reply.ID); err != nil {
			return err
		}
		s.emit(sse.NewCommentDeletedEvent(reply.ID, targetKey, deletedAt))
	}

	if err := s.Comments.Delete(ctx, commentID); err != nil {
		return err
	}

	s.emit(sse.NewCommentDeletedEvent(commentID, targetKey, deletedAt))

	s.logger.Debug("comment deleted",
		slog.String("comment_id", commentID),
		slog.Int("replies_removed", len(replies)))
	return nil
}

// ListCommentsForTarget returns every comment on one target, newest first.
// Ties on creation time keep a stable order by comment ID.
func (s *Store) ListCommentsForTarget(ctx context.Context, target domain.Target) ([]*domain.Comment, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	comments, err := s.Comments.ListByIndex(ctx, "target", target.Key())
	if err != nil {
		return nil, err
	}

	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.After(comments[j].CreatedAt)
		}
		return comments[i].ID > comments[j].ID
	})

	return comments, nil
}

// ListCommentsForChapter returns every comment in a chapter (the chapter
// target plus all of its line targets), newest first. LineCount bounds the
// per-line scans.
func (s *Store) ListCommentsForChapter(ctx context.Context, chapterID string, lineCount int) ([]*domain.Comment, error) {
	comments, err := s.Comments.ListByIndex(ctx, "target", domain.ChapterTarget(chapterID).Key())
	if err != nil {
		return nil, err
	}

	for line := domain.FirstLineIndex; line <= lineCount; line++ {
		lineComments, err := s.Comments.ListByIndex(ctx, "target", domain.LineTarget(chapterID, line).Key())
		if err != nil {
			return nil, err
		}
		comments = append(comments, lineComments...)
	}

	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.After(comments[j].CreatedAt)
		}
		return comments[i].ID > comments[j].ID
	})

	return comments, nil
}
