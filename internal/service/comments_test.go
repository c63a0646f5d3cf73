package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/errors"
	"github.com/marginaliapress/marginalia-server/internal/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureEmitter records emitted events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []any
}

func (c *captureEmitter) Emit(event any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureEmitter) all() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.events...)
}

func newCommentService(t *testing.T) (*CommentService, *captureEmitter) {
	t.Helper()
	st, library := setupTestEnv(t)
	emitter := &captureEmitter{}
	return NewCommentService(st, library, emitter, testLogger()), emitter
}

func lineParams(line int, readerID, author, body string) CreateCommentParams {
	return CreateCommentParams{
		ChapterID:  testChapterID,
		LineIndex:  &line,
		ReaderID:   readerID,
		AuthorName: author,
		Body:       body,
	}
}

func TestCommentCreate_Success(t *testing.T) {
	svc, _ := newCommentService(t)

	comment, err := svc.Create(context.Background(), lineParams(3, "rdr_ayse", "Ayşe", "Güzel bölüm"))
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID)
	assert.Equal(t, "Ayşe", comment.AuthorName)
	assert.Equal(t, "Güzel bölüm", comment.Body)
}

func TestCommentCreate_Validation(t *testing.T) {
	svc, _ := newCommentService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, lineParams(1, "rdr_alice", "", "body"))
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.Create(ctx, lineParams(1, "rdr_alice", "Alice", "   "))
	assert.ErrorIs(t, err, errors.ErrValidation)

	long := strings.Repeat("x", domain.CommentMaxBodyLength+1)
	_, err = svc.Create(ctx, lineParams(1, "rdr_alice", "Alice", long))
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.Create(ctx, lineParams(1, "", "Alice", "body"))
	assert.ErrorIs(t, err, errors.ErrForbidden)

	_, err = svc.Create(ctx, lineParams(99, "rdr_alice", "Alice", "body"))
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestCommentCreate_Reply(t *testing.T) {
	svc, _ := newCommentService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, lineParams(3, "rdr_alice", "Alice", "parent"))
	require.NoError(t, err)

	replyParams := lineParams(3, "rdr_bob", "Bob", "reply")
	replyParams.ParentCommentID = parent.ID
	reply, err := svc.Create(ctx, replyParams)
	require.NoError(t, err)
	assert.True(t, reply.IsReply())

	// No nesting beyond one level.
	nested := lineParams(3, "rdr_carol", "Carol", "nested")
	nested.ParentCommentID = reply.ID
	_, err = svc.Create(ctx, nested)
	assert.ErrorIs(t, err, errors.ErrValidation)

	// A reply cannot jump to a different line.
	strayParams := lineParams(4, "rdr_bob", "Bob", "stray")
	strayParams.ParentCommentID = parent.ID
	_, err = svc.Create(ctx, strayParams)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestCommentEdit_OwnershipAndValidation(t *testing.T) {
	svc, _ := newCommentService(t)
	ctx := context.Background()

	comment, err := svc.Create(ctx, lineParams(1, "rdr_alice", "Alice", "draft"))
	require.NoError(t, err)

	_, err = svc.Edit(ctx, comment.ID, "rdr_bob", "hijacked")
	assert.ErrorIs(t, err, errors.ErrForbidden)

	_, err = svc.Edit(ctx, comment.ID, "rdr_alice", "  ")
	assert.ErrorIs(t, err, errors.ErrValidation)

	edited, err := svc.Edit(ctx, comment.ID, "rdr_alice", "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Body)
}

func TestCommentDelete_OwnershipEnforced(t *testing.T) {
	svc, _ := newCommentService(t)
	ctx := context.Background()

	comment, err := svc.Create(ctx, lineParams(1, "rdr_alice", "Alice", "mine"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, comment.ID, "rdr_bob"), errors.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, comment.ID, "rdr_alice"))

	_, err = svc.Get(ctx, comment.ID, "rdr_alice")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCommentHidden_ImmutableToAuthor(t *testing.T) {
	svc, _ := newCommentService(t)
	ctx := context.Background()

	comment, err := svc.Create(ctx, lineParams(1, "rdr_alice", "Alice", "controversial"))
	require.NoError(t, err)

	_, err = svc.SetHidden(ctx, comment.ID, true)
	require.NoError(t, err)

	_, err = svc.Edit(ctx, comment.ID, "rdr_alice", "softened")
	assert.ErrorIs(t, err, errors.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, comment.ID, "rdr_alice"), errors.ErrForbidden)
}

func TestCommentHidden_VisibilityFilter(t *testing.T) {
	svc, _ := newCommentService(t)
	ctx := context.Background()

	comment, err := svc.Create(ctx, lineParams(2, "rdr_alice", "Alice", "hidden soon"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, lineParams(2, "rdr_bob", "Bob", "stays visible"))
	require.NoError(t, err)

	_, err = svc.SetHidden(ctx, comment.ID, true)
	require.NoError(t, err)

	// The author still sees their hidden comment.
	mine, err := svc.ListForTarget(ctx, domain.LineTarget(testChapterID, 2), "rdr_alice")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	// Everyone else sees only the visible one.
	theirs, err := svc.ListForTarget(ctx, domain.LineTarget(testChapterID, 2), "rdr_bob")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "stays visible", theirs[0].Body)

	anon, err := svc.ListForTarget(ctx, domain.LineTarget(testChapterID, 2), "")
	require.NoError(t, err)
	assert.Len(t, anon, 1)

	_, err = svc.Get(ctx, comment.ID, "rdr_bob")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCommentAdminReply_AppendOnly(t *testing.T) {
	svc, _ := newCommentService(t)
	ctx := context.Background()

	comment, err := svc.Create(ctx, lineParams(1, "rdr_alice", "Alice", "question"))
	require.NoError(t, err)

	replied, err := svc.AdminReply(ctx, comment.ID, "Editor", "answer")
	require.NoError(t, err)
	assert.Equal(t, "answer", replied.AdminReply)
	require.NotNil(t, replied.AdminReplyAt)

	_, err = svc.AdminReply(ctx, comment.ID, "Editor", "second answer")
	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestCommentListForChapter_MergesLevels(t *testing.T) {
	svc, _ := newCommentService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCommentParams{
		ChapterID:  testChapterID,
		ReaderID:   "rdr_alice",
		AuthorName: "Alice",
		Body:       "chapter note",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, lineParams(4, "rdr_bob", "Bob", "line note"))
	require.NoError(t, err)

	comments, err := svc.ListForChapter(ctx, testChapterID, "")
	require.NoError(t, err)
	assert.Len(t, comments, 2)
}

func TestCommentRequestFocus_EmitsEvent(t *testing.T) {
	svc, emitter := newCommentService(t)
	ctx := context.Background()

	comment, err := svc.Create(ctx, lineParams(3, "rdr_alice", "Alice", "find me"))
	require.NoError(t, err)

	require.NoError(t, svc.RequestFocus(ctx, comment.ID))

	var focus *sse.CommentFocusEventData
	for _, raw := range emitter.all() {
		if evt, ok := raw.(sse.Event); ok && evt.Type == sse.EventCommentFocus {
			data := evt.Data.(sse.CommentFocusEventData)
			focus = &data
		}
	}
	require.NotNil(t, focus)
	assert.Equal(t, comment.ID, focus.CommentID)
	assert.Equal(t, testChapterID, focus.ChapterID)
	assert.Equal(t, 3, focus.LineIndex)
}
