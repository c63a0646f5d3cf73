package store

import (
	"context"
	"testing"
	"time"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineComment(chapterID string, line int, readerID, author, body string) *domain.Comment {
	return &domain.Comment{
		ChapterID:      chapterID,
		LineIndex:      &line,
		AuthorReaderID: readerID,
		AuthorName:     author,
		Body:           body,
	}
}

func TestCreateComment_AssignsIdentity(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	comment := lineComment("ch_01", 3, "rdr_alice", "Alice", "Lovely paragraph.")

	err := s.CreateComment(ctx, comment)
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID)
	assert.False(t, comment.CreatedAt.IsZero())

	retrieved, err := s.GetComment(ctx, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", retrieved.AuthorName)
	assert.Equal(t, "Lovely paragraph.", retrieved.Body)
	require.NotNil(t, retrieved.LineIndex)
	assert.Equal(t, 3, *retrieved.LineIndex)
}

func TestListCommentsForTarget_NewestFirst(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	bodies := []string{"first", "second", "third"}
	for _, body := range bodies {
		require.NoError(t, s.CreateComment(ctx, lineComment("ch_01", 7, "rdr_alice", "Alice", body)))
		time.Sleep(2 * time.Millisecond)
	}

	comments, err := s.ListCommentsForTarget(ctx, domain.LineTarget("ch_01", 7))
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "third", comments[0].Body)
	assert.Equal(t, "second", comments[1].Body)
	assert.Equal(t, "first", comments[2].Body)
}

func TestListCommentsForTarget_ScopedToTarget(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, s.CreateComment(ctx, lineComment("ch_01", 1, "rdr_alice", "Alice", "line one")))
	require.NoError(t, s.CreateComment(ctx, lineComment("ch_01", 2, "rdr_alice", "Alice", "line two")))
	require.NoError(t, s.CreateComment(ctx, &domain.Comment{
		ChapterID:      "ch_01",
		AuthorReaderID: "rdr_bob",
		AuthorName:     "Bob",
		Body:           "chapter level",
	}))

	lineOne, err := s.ListCommentsForTarget(ctx, domain.LineTarget("ch_01", 1))
	require.NoError(t, err)
	require.Len(t, lineOne, 1)
	assert.Equal(t, "line one", lineOne[0].Body)

	chapterLevel, err := s.ListCommentsForTarget(ctx, domain.ChapterTarget("ch_01"))
	require.NoError(t, err)
	require.Len(t, chapterLevel, 1)
	assert.Equal(t, "chapter level", chapterLevel[0].Body)
}

func TestListCommentsForChapter_MergesLineAndChapterComments(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, s.CreateComment(ctx, &domain.Comment{
		ChapterID:      "ch_01",
		AuthorReaderID: "rdr_alice",
		AuthorName:     "Alice",
		Body:           "on the chapter",
	}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.CreateComment(ctx, lineComment("ch_01", 4, "rdr_bob", "Bob", "on line four")))

	comments, err := s.ListCommentsForChapter(ctx, "ch_01", 10)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "on line four", comments[0].Body)
	assert.Equal(t, "on the chapter", comments[1].Body)
}

func TestUpdateComment_PersistsEdit(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	comment := lineComment("ch_01", 9, "rdr_alice", "Alice", "orignal")
	require.NoError(t, s.CreateComment(ctx, comment))

	created := comment.UpdatedAt
	time.Sleep(2 * time.Millisecond)

	comment.Body = "original"
	require.NoError(t, s.UpdateComment(ctx, comment))

	retrieved, err := s.GetComment(ctx, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", retrieved.Body)
	assert.True(t, retrieved.UpdatedAt.After(created))
}

func TestDeleteComment_RemovesReplies(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	parent := lineComment("ch_01", 2, "rdr_alice", "Alice", "parent")
	require.NoError(t, s.CreateComment(ctx, parent))

	reply := lineComment("ch_01", 2, "rdr_bob", "Bob", "reply")
	reply.ParentCommentID = &parent.ID
	require.NoError(t, s.CreateComment(ctx, reply))

	require.NoError(t, s.DeleteComment(ctx, parent.ID))

	comments, err := s.ListCommentsForTarget(ctx, domain.LineTarget("ch_01", 2))
	require.NoError(t, err)
	assert.Empty(t, comments)

	_, err = s.GetComment(ctx, reply.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteComment_NotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	err := s.DeleteComment(context.Background(), "cmt-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
