package domain

import (
	"strings"
	"time"

	"github.com/marginaliapress/marginalia-server/internal/errors"
)

// CommentMaxBodyLength is the maximum length of a comment body in characters.
const CommentMaxBodyLength = 500

// Comment is a reader comment attached to a chapter or to a single line.
//
// A comment with ParentCommentID set is a reply. Replies live in the same
// flat per-target list as their parent; threading is reconstructed by the
// client. An admin reply is append-only metadata on the comment itself,
// never a separate Comment.
type Comment struct {
	ID        string `json:"id"`
	ChapterID string `json:"chapter_id"`
	// LineIndex is nil for chapter-level comments and the 1-based line
	// number for line-level comments.
	LineIndex       *int    `json:"line_index,omitempty"`
	AuthorName      string  `json:"author_name"`
	AuthorReaderID  string  `json:"author_reader_id"`
	Body            string  `json:"body"`
	ParentCommentID *string `json:"parent_comment_id,omitempty"`

	AdminReply       string     `json:"admin_reply,omitempty"`
	AdminReplyAuthor string     `json:"admin_reply_author,omitempty"`
	AdminReplyAt     *time.Time `json:"admin_reply_at,omitempty"`

	// Hidden marks a moderated comment. Hidden comments stay visible to
	// their author as read-only evidence of moderation.
	Hidden bool `json:"hidden,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Target returns the engagement target this comment belongs to.
func (c *Comment) Target() Target {
	if c.LineIndex != nil {
		return LineTarget(c.ChapterID, *c.LineIndex)
	}
	return ChapterTarget(c.ChapterID)
}

// IsReply reports whether the comment is a reply to another comment.
func (c *Comment) IsReply() bool {
	return c.ParentCommentID != nil && *c.ParentCommentID != ""
}

// HasAdminReply reports whether a moderator annotation is attached.
func (c *Comment) HasAdminReply() bool {
	return c.AdminReply != ""
}

// CanEdit checks whether the given reader may edit this comment.
// Only the author may edit, and hidden comments are immutable to everyone
// but moderation.
func (c *Comment) CanEdit(readerID string) error {
	if readerID == "" || readerID != c.AuthorReaderID {
		return errors.Forbidden("only the comment author can edit it")
	}
	if c.Hidden {
		return errors.Forbidden("hidden comments cannot be edited")
	}
	return nil
}

// CanDelete checks whether the given reader may delete this comment.
// Same rules as editing.
func (c *Comment) CanDelete(readerID string) error {
	if readerID == "" || readerID != c.AuthorReaderID {
		return errors.Forbidden("only the comment author can delete it")
	}
	if c.Hidden {
		return errors.Forbidden("hidden comments cannot be deleted")
	}
	return nil
}

// AttachAdminReply appends a moderator reply. The reply is append-only:
// once set it cannot be replaced or removed.
func (c *Comment) AttachAdminReply(author, body string, at time.Time) error {
	if c.HasAdminReply() {
		return errors.Conflict("comment already has an admin reply")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return errors.Validation("admin reply body must not be empty")
	}
	c.AdminReply = body
	c.AdminReplyAuthor = strings.TrimSpace(author)
	c.AdminReplyAt = &at
	return nil
}

// ValidateNewComment checks author name and body for a new comment or reply.
// Validation happens before any persistence or network traffic.
func ValidateNewComment(authorName, body string) error {
	if strings.TrimSpace(authorName) == "" {
		return errors.Validation("author name must not be empty")
	}
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return errors.Validation("comment body must not be empty")
	}
	if len([]rune(trimmed)) > CommentMaxBodyLength {
		return errors.Validationf("comment body must not exceed %d characters", CommentMaxBodyLength)
	}
	return nil
}
