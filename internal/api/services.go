package api

import (
	"github.com/marginaliapress/marginalia-server/internal/service"
)

// Services groups all business logic services used by the API server.
type Services struct {
	Engagement *service.EngagementService
	Comment    *service.CommentService
}
