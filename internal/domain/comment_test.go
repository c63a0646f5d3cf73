package domain_test

import (
	"testing"
	"time"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentOwnership(t *testing.T) {
	c := &domain.Comment{
		ID:             "cmt-1",
		ChapterID:      "ch-1",
		AuthorReaderID: "rdr-owner",
		Body:           "nice",
	}

	assert.NoError(t, c.CanEdit("rdr-owner"))
	assert.NoError(t, c.CanDelete("rdr-owner"))

	assert.ErrorIs(t, c.CanEdit("rdr-other"), errors.ErrForbidden)
	assert.ErrorIs(t, c.CanDelete("rdr-other"), errors.ErrForbidden)
	assert.ErrorIs(t, c.CanEdit(""), errors.ErrForbidden)
}

func TestHiddenCommentIsImmutableToAuthor(t *testing.T) {
	c := &domain.Comment{
		ID:             "cmt-1",
		ChapterID:      "ch-1",
		AuthorReaderID: "rdr-owner",
		Hidden:         true,
	}

	assert.ErrorIs(t, c.CanEdit("rdr-owner"), errors.ErrForbidden)
	assert.ErrorIs(t, c.CanDelete("rdr-owner"), errors.ErrForbidden)
}

func TestAttachAdminReplyAppendOnly(t *testing.T) {
	c := &domain.Comment{ID: "cmt-1", ChapterID: "ch-1"}

	now := time.Now()
	require.NoError(t, c.AttachAdminReply("Editor", "thanks for reading", now))
	assert.True(t, c.HasAdminReply())
	assert.Equal(t, "thanks for reading", c.AdminReply)
	require.NotNil(t, c.AdminReplyAt)

	// Second attach is rejected.
	err := c.AttachAdminReply("Editor", "changed my mind", now)
	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.Equal(t, "thanks for reading", c.AdminReply)
}

func TestCommentTarget(t *testing.T) {
	chapterLevel := &domain.Comment{ChapterID: "ch-1"}
	assert.Equal(t, domain.ChapterTarget("ch-1"), chapterLevel.Target())

	idx := 12
	lineLevel := &domain.Comment{ChapterID: "ch-1", LineIndex: &idx}
	assert.Equal(t, domain.LineTarget("ch-1", 12), lineLevel.Target())
}

func TestValidateNewComment(t *testing.T) {
	long := make([]rune, domain.CommentMaxBodyLength+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name    string
		author  string
		body    string
		wantErr bool
	}{
		{"valid", "Ayşe", "Güzel bölüm", false},
		{"empty author", "", "body", true},
		{"whitespace author", "   ", "body", true},
		{"empty body", "Ayşe", "", true},
		{"whitespace body", "Ayşe", "  \n ", true},
		{"too long", "Ayşe", string(long), true},
		{"exactly max", "Ayşe", string(long[:domain.CommentMaxBodyLength]), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidateNewComment(tt.author, tt.body)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
