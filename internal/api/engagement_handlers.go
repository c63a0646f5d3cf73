package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/marginaliapress/marginalia-server/internal/domain"
)

func (s *Server) registerEngagementRoutes() {
	// Target keys contain slashes and colons (chapter IDs embed the book
	// directory), so they travel as a query or body field, never a path
	// segment.
	huma.Register(s.api, huma.Operation{
		OperationID: "getLikeStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/likes",
		Summary:     "Get like status",
		Description: "Returns the like total for a target and whether the calling reader liked it",
		Tags:        []string{"Likes"},
	}, s.handleGetLikeStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleLike",
		Method:      http.MethodPost,
		Path:        "/api/v1/likes/toggle",
		Summary:     "Toggle like",
		Description: "Applies an intended like or unlike action for the calling reader",
		Tags:        []string{"Likes"},
	}, s.handleToggleLike)

	huma.Register(s.api, huma.Operation{
		OperationID: "getChapterEngagement",
		Method:      http.MethodGet,
		Path:        "/api/v1/engagement",
		Summary:     "Get chapter engagement",
		Description: "Returns like status for a chapter and all of its lines in one call",
		Tags:        []string{"Likes"},
	}, s.handleGetChapterEngagement)
}

// === DTOs ===

// LikeStatusResponse is the authoritative like state for one target.
type LikeStatusResponse struct {
	TargetKey string `json:"target_key" doc:"Canonical target key"`
	Total     int    `json:"total" doc:"Total likes on the target"`
	IsLiked   bool   `json:"is_liked" doc:"Whether the calling reader has liked it"`
}

// GetLikeStatusInput contains parameters for reading like status.
type GetLikeStatusInput struct {
	ReaderID string `header:"X-Reader-ID" doc:"Anonymous reader identity"`
	Target   string `query:"target" doc:"Canonical target key, e.g. line:north-wind/01-the-harbor:5"`
}

// LikeStatusOutput wraps the like status for Huma.
type LikeStatusOutput struct {
	Body LikeStatusResponse
}

// ToggleLikeRequest is the request body for a like toggle.
type ToggleLikeRequest struct {
	TargetKey string `json:"target_key" validate:"required" doc:"Canonical target key"`
	Action    string `json:"action" enum:"like,unlike" doc:"Intended action"`
}

// ToggleLikeInput wraps the toggle request for Huma.
type ToggleLikeInput struct {
	ReaderID string `header:"X-Reader-ID" doc:"Anonymous reader identity"`
	Body     ToggleLikeRequest
}

// GetChapterEngagementInput contains parameters for the bulk engagement read.
type GetChapterEngagementInput struct {
	ReaderID  string `header:"X-Reader-ID" doc:"Anonymous reader identity"`
	ChapterID string `query:"chapter" doc:"Chapter ID, e.g. north-wind/01-the-harbor"`
}

// ChapterEngagementOutput wraps the bulk engagement response for Huma.
type ChapterEngagementOutput struct {
	Body struct {
		Chapter LikeStatusResponse   `json:"chapter" doc:"Chapter-level like status"`
		Lines   []LikeStatusResponse `json:"lines" doc:"Per-line like status, only lines with likes"`
	}
}

// === Handlers ===

func (s *Server) handleGetLikeStatus(ctx context.Context, input *GetLikeStatusInput) (*LikeStatusOutput, error) {
	target, err := s.parseTarget(input.Target)
	if err != nil {
		return nil, err
	}

	readerID := normalizeReaderID(input.ReaderID)
	status, err := s.services.Engagement.GetLikeStatus(ctx, target, readerID)
	if err != nil {
		return nil, err
	}

	return &LikeStatusOutput{Body: LikeStatusResponse{
		TargetKey: target.Key(),
		Total:     status.Total,
		IsLiked:   status.IsLiked,
	}}, nil
}

func (s *Server) handleToggleLike(ctx context.Context, input *ToggleLikeInput) (*LikeStatusOutput, error) {
	readerID, err := requireReader(input.ReaderID)
	if err != nil {
		return nil, err
	}
	if err := s.allowWrite(readerID); err != nil {
		return nil, err
	}

	target, err := s.parseTarget(input.Body.TargetKey)
	if err != nil {
		return nil, err
	}

	status, err := s.services.Engagement.Toggle(ctx, target, readerID, domain.ToggleAction(input.Body.Action))
	if err != nil {
		return nil, err
	}

	return &LikeStatusOutput{Body: LikeStatusResponse{
		TargetKey: target.Key(),
		Total:     status.Total,
		IsLiked:   status.IsLiked,
	}}, nil
}

func (s *Server) handleGetChapterEngagement(ctx context.Context, input *GetChapterEngagementInput) (*ChapterEngagementOutput, error) {
	chapter, err := s.library.GetChapter(input.ChapterID)
	if err != nil {
		return nil, err
	}

	readerID := normalizeReaderID(input.ReaderID)

	chapterTarget := domain.ChapterTarget(chapter.ID)
	chapterStatus, err := s.services.Engagement.GetLikeStatus(ctx, chapterTarget, readerID)
	if err != nil {
		return nil, err
	}

	out := &ChapterEngagementOutput{}
	out.Body.Chapter = LikeStatusResponse{
		TargetKey: chapterTarget.Key(),
		Total:     chapterStatus.Total,
		IsLiked:   chapterStatus.IsLiked,
	}

	out.Body.Lines = make([]LikeStatusResponse, 0)
	for _, line := range chapter.Lines {
		if line.Blank {
			continue
		}
		target := domain.LineTarget(chapter.ID, line.Index)
		status, err := s.services.Engagement.GetLikeStatus(ctx, target, readerID)
		if err != nil {
			return nil, err
		}
		if status.Total == 0 && !status.IsLiked {
			continue
		}
		out.Body.Lines = append(out.Body.Lines, LikeStatusResponse{
			TargetKey: target.Key(),
			Total:     status.Total,
			IsLiked:   status.IsLiked,
		})
	}

	return out, nil
}
