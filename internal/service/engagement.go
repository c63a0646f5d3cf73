// Package service provides the business logic layer for reader engagement.
package service

import (
	"context"
	"log/slog"

	"github.com/marginaliapress/marginalia-server/internal/content"
	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/errors"
	"github.com/marginaliapress/marginalia-server/internal/store"
)

// EngagementService orchestrates like reads and toggles.
type EngagementService struct {
	store   *store.Store
	library *content.Library
	logger  *slog.Logger
}

// NewEngagementService creates a new engagement service.
func NewEngagementService(store *store.Store, library *content.Library, logger *slog.Logger) *EngagementService {
	return &EngagementService{
		store:   store,
		library: library,
		logger:  logger,
	}
}

// GetLikeStatus returns the like total for a target plus the reader's own
// liked flag. Works for anonymous readers (empty readerID), who only see
// the total.
func (s *EngagementService) GetLikeStatus(ctx context.Context, target domain.Target, readerID string) (*domain.LikeStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.library.ValidateTarget(target); err != nil {
		return nil, err
	}

	return s.store.GetLikeStatus(ctx, target, readerID)
}

// Toggle applies an intended like action for one reader. The target must
// refer to loaded content; a reader identity is required to write.
func (s *EngagementService) Toggle(ctx context.Context, target domain.Target, readerID string, action domain.ToggleAction) (*domain.LikeStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if readerID == "" {
		return nil, errors.Forbidden("a reader identity is required to like")
	}
	if !action.Valid() {
		return nil, errors.Validationf("unknown toggle action %q", action)
	}
	if err := s.library.ValidateTarget(target); err != nil {
		return nil, err
	}

	status, err := s.store.ToggleLike(ctx, target, readerID, action)
	if err != nil {
		return nil, err
	}

	s.logger.Info("like toggled",
		"target", target.Key(),
		"action", string(action),
		"total", status.Total,
	)

	return status, nil
}
