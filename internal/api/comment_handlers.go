package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/service"
)

func (s *Server) registerCommentRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listComments",
		Method:      http.MethodGet,
		Path:        "/api/v1/comments",
		Summary:     "List comments",
		Description: "Returns comments for a target or a whole chapter, newest first",
		Tags:        []string{"Comments"},
	}, s.handleListComments)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createComment",
		Method:        http.MethodPost,
		Path:          "/api/v1/comments",
		Summary:       "Create comment",
		Description:   "Creates a new comment or reply",
		Tags:          []string{"Comments"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateComment)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateComment",
		Method:      http.MethodPatch,
		Path:        "/api/v1/comments/{id}",
		Summary:     "Edit comment",
		Description: "Edits a comment's body (author only)",
		Tags:        []string{"Comments"},
	}, s.handleUpdateComment)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteComment",
		Method:      http.MethodDelete,
		Path:        "/api/v1/comments/{id}",
		Summary:     "Delete comment",
		Description: "Deletes a comment and its replies (author only)",
		Tags:        []string{"Comments"},
	}, s.handleDeleteComment)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminReplyComment",
		Method:      http.MethodPost,
		Path:        "/api/v1/comments/{id}/admin-reply",
		Summary:     "Attach admin reply",
		Description: "Appends a moderator reply to a comment (append-only)",
		Tags:        []string{"Comments", "Moderation"},
		Security:    []map[string][]string{{"adminToken": {}}},
	}, s.handleAdminReply)

	huma.Register(s.api, huma.Operation{
		OperationID: "moderateComment",
		Method:      http.MethodPost,
		Path:        "/api/v1/comments/{id}/moderate",
		Summary:     "Hide or unhide comment",
		Description: "Sets a comment's hidden flag",
		Tags:        []string{"Comments", "Moderation"},
		Security:    []map[string][]string{{"adminToken": {}}},
	}, s.handleModerateComment)

	huma.Register(s.api, huma.Operation{
		OperationID: "focusComment",
		Method:      http.MethodPost,
		Path:        "/api/v1/comments/{id}/focus",
		Summary:     "Request comment focus",
		Description: "Broadcasts a focus event asking reading views to navigate to a comment",
		Tags:        []string{"Comments", "Moderation"},
		Security:    []map[string][]string{{"adminToken": {}}},
	}, s.handleFocusComment)
}

// === DTOs ===

// CommentResponse contains comment data in API responses.
type CommentResponse struct {
	ID               string     `json:"id" doc:"Comment ID"`
	ChapterID        string     `json:"chapter_id" doc:"Owning chapter ID"`
	LineIndex        *int       `json:"line_index,omitempty" doc:"1-based line number, absent for chapter comments"`
	AuthorName       string     `json:"author_name" doc:"Display name"`
	Body             string     `json:"body" doc:"Comment text"`
	ParentCommentID  *string    `json:"parent_comment_id,omitempty" doc:"Parent comment for replies"`
	AdminReply       string     `json:"admin_reply,omitempty" doc:"Moderator reply text"`
	AdminReplyAuthor string     `json:"admin_reply_author,omitempty" doc:"Moderator display name"`
	AdminReplyAt     *time.Time `json:"admin_reply_at,omitempty" doc:"When the moderator replied"`
	Hidden           bool       `json:"hidden,omitempty" doc:"True when moderated out of public view"`
	Mine             bool       `json:"mine" doc:"True when the calling reader authored it"`
	CreatedAt        time.Time  `json:"created_at" doc:"Creation time"`
	UpdatedAt        time.Time  `json:"updated_at" doc:"Last edit time"`
}

// ListCommentsInput contains parameters for listing comments.
// Exactly one of target or chapter is used; target wins when both are set.
type ListCommentsInput struct {
	ReaderID string `header:"X-Reader-ID" doc:"Anonymous reader identity"`
	Target   string `query:"target" doc:"Canonical target key"`
	Chapter  string `query:"chapter" doc:"Chapter ID for a chapter-wide listing"`
}

// ListCommentsOutput wraps the comment list for Huma.
type ListCommentsOutput struct {
	Body struct {
		Comments []CommentResponse `json:"comments" doc:"Comments, newest first"`
	}
}

// CreateCommentRequest is the request body for creating a comment.
type CreateCommentRequest struct {
	ChapterID       string `json:"chapter_id" validate:"required" doc:"Chapter ID"`
	LineIndex       *int   `json:"line_index,omitempty" doc:"1-based line number, omit for chapter comments"`
	AuthorName      string `json:"author_name" validate:"required,max=80" doc:"Display name"`
	Body            string `json:"body" validate:"required,max=500" doc:"Comment text"`
	ParentCommentID string `json:"parent_comment_id,omitempty" doc:"Parent comment for replies"`
}

// CreateCommentInput wraps the create request for Huma.
type CreateCommentInput struct {
	ReaderID string `header:"X-Reader-ID" doc:"Anonymous reader identity"`
	Body     CreateCommentRequest
}

// CommentOutput wraps a single comment for Huma.
type CommentOutput struct {
	Body CommentResponse
}

// UpdateCommentRequest is the request body for editing a comment.
type UpdateCommentRequest struct {
	Body string `json:"body" validate:"required,max=500" doc:"New comment text"`
}

// UpdateCommentInput wraps the edit request for Huma.
type UpdateCommentInput struct {
	ReaderID string `header:"X-Reader-ID" doc:"Anonymous reader identity"`
	ID       string `path:"id" doc:"Comment ID"`
	Body     UpdateCommentRequest
}

// DeleteCommentInput contains parameters for deleting a comment.
type DeleteCommentInput struct {
	ReaderID string `header:"X-Reader-ID" doc:"Anonymous reader identity"`
	ID       string `path:"id" doc:"Comment ID"`
}

// DeleteCommentOutput wraps the delete acknowledgement for Huma.
type DeleteCommentOutput struct {
	Body struct {
		Deleted bool `json:"deleted" doc:"Always true on success"`
	}
}

// AdminReplyRequest is the request body for a moderator reply.
type AdminReplyRequest struct {
	Author string `json:"author" validate:"required,max=80" doc:"Moderator display name"`
	Body   string `json:"body" validate:"required,max=500" doc:"Reply text"`
}

// AdminReplyInput wraps the moderator reply for Huma.
type AdminReplyInput struct {
	AdminToken string `header:"X-Admin-Token" doc:"Moderation token"`
	ID         string `path:"id" doc:"Comment ID"`
	Body       AdminReplyRequest
}

// ModerateCommentRequest is the request body for hiding or unhiding.
type ModerateCommentRequest struct {
	Hidden bool `json:"hidden" doc:"True hides the comment from public view"`
}

// ModerateCommentInput wraps the moderation request for Huma.
type ModerateCommentInput struct {
	AdminToken string `header:"X-Admin-Token" doc:"Moderation token"`
	ID         string `path:"id" doc:"Comment ID"`
	Body       ModerateCommentRequest
}

// FocusCommentInput contains parameters for a focus broadcast.
type FocusCommentInput struct {
	AdminToken string `header:"X-Admin-Token" doc:"Moderation token"`
	ID         string `path:"id" doc:"Comment ID"`
}

// FocusCommentOutput wraps the focus acknowledgement for Huma.
type FocusCommentOutput struct {
	Body struct {
		Requested bool `json:"requested" doc:"Always true on success"`
	}
}

// === Handlers ===

func (s *Server) handleListComments(ctx context.Context, input *ListCommentsInput) (*ListCommentsOutput, error) {
	readerID := normalizeReaderID(input.ReaderID)

	var comments []*domain.Comment
	var err error
	switch {
	case input.Target != "":
		var target domain.Target
		target, err = s.parseTarget(input.Target)
		if err != nil {
			return nil, err
		}
		comments, err = s.services.Comment.ListForTarget(ctx, target, readerID)
	case input.Chapter != "":
		comments, err = s.services.Comment.ListForChapter(ctx, input.Chapter, readerID)
	default:
		return nil, huma.Error400BadRequest("either target or chapter is required")
	}
	if err != nil {
		return nil, err
	}

	out := &ListCommentsOutput{}
	out.Body.Comments = make([]CommentResponse, len(comments))
	for i, c := range comments {
		out.Body.Comments[i] = commentResponse(c, readerID)
	}
	return out, nil
}

func (s *Server) handleCreateComment(ctx context.Context, input *CreateCommentInput) (*CommentOutput, error) {
	readerID, err := requireReader(input.ReaderID)
	if err != nil {
		return nil, err
	}
	if err := s.allowWrite(readerID); err != nil {
		return nil, err
	}

	comment, err := s.services.Comment.Create(ctx, service.CreateCommentParams{
		ChapterID:       input.Body.ChapterID,
		LineIndex:       input.Body.LineIndex,
		ReaderID:        readerID,
		AuthorName:      input.Body.AuthorName,
		Body:            input.Body.Body,
		ParentCommentID: input.Body.ParentCommentID,
	})
	if err != nil {
		return nil, err
	}

	return &CommentOutput{Body: commentResponse(comment, readerID)}, nil
}

func (s *Server) handleUpdateComment(ctx context.Context, input *UpdateCommentInput) (*CommentOutput, error) {
	readerID, err := requireReader(input.ReaderID)
	if err != nil {
		return nil, err
	}
	if err := s.allowWrite(readerID); err != nil {
		return nil, err
	}

	comment, err := s.services.Comment.Edit(ctx, input.ID, readerID, input.Body.Body)
	if err != nil {
		return nil, err
	}
	return &CommentOutput{Body: commentResponse(comment, readerID)}, nil
}

func (s *Server) handleDeleteComment(ctx context.Context, input *DeleteCommentInput) (*DeleteCommentOutput, error) {
	readerID, err := requireReader(input.ReaderID)
	if err != nil {
		return nil, err
	}
	if err := s.allowWrite(readerID); err != nil {
		return nil, err
	}

	if err := s.services.Comment.Delete(ctx, input.ID, readerID); err != nil {
		return nil, err
	}

	out := &DeleteCommentOutput{}
	out.Body.Deleted = true
	return out, nil
}

func (s *Server) handleAdminReply(ctx context.Context, input *AdminReplyInput) (*CommentOutput, error) {
	if err := s.requireAdmin(input.AdminToken); err != nil {
		return nil, err
	}

	comment, err := s.services.Comment.AdminReply(ctx, input.ID, input.Body.Author, input.Body.Body)
	if err != nil {
		return nil, err
	}
	return &CommentOutput{Body: commentResponse(comment, "")}, nil
}

func (s *Server) handleModerateComment(ctx context.Context, input *ModerateCommentInput) (*CommentOutput, error) {
	if err := s.requireAdmin(input.AdminToken); err != nil {
		return nil, err
	}

	comment, err := s.services.Comment.SetHidden(ctx, input.ID, input.Body.Hidden)
	if err != nil {
		return nil, err
	}
	return &CommentOutput{Body: commentResponse(comment, "")}, nil
}

func (s *Server) handleFocusComment(ctx context.Context, input *FocusCommentInput) (*FocusCommentOutput, error) {
	if err := s.requireAdmin(input.AdminToken); err != nil {
		return nil, err
	}

	if err := s.services.Comment.RequestFocus(ctx, input.ID); err != nil {
		return nil, err
	}

	out := &FocusCommentOutput{}
	out.Body.Requested = true
	return out, nil
}

// commentResponse maps a domain comment to its API shape. The author's
// reader identity never leaves the server; ownership surfaces as Mine.
func commentResponse(c *domain.Comment, readerID string) CommentResponse {
	return CommentResponse{
		ID:               c.ID,
		ChapterID:        c.ChapterID,
		LineIndex:        c.LineIndex,
		AuthorName:       c.AuthorName,
		Body:             c.Body,
		ParentCommentID:  c.ParentCommentID,
		AdminReply:       c.AdminReply,
		AdminReplyAuthor: c.AdminReplyAuthor,
		AdminReplyAt:     c.AdminReplyAt,
		Hidden:           c.Hidden,
		Mine:             readerID != "" && c.AuthorReaderID == readerID,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
