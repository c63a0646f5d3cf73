package providers

import (
	"github.com/samber/do/v2"

	"github.com/marginaliapress/marginalia-server/internal/logger"
	"github.com/marginaliapress/marginalia-server/internal/service"
)

// ProvideEngagementService provides the like read/toggle service.
func ProvideEngagementService(i do.Injector) (*service.EngagementService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	libraryHandle := do.MustInvoke[*LibraryHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewEngagementService(storeHandle.Store, libraryHandle.Library, log.Logger), nil
}

// ProvideCommentService provides the comment thread service.
func ProvideCommentService(i do.Injector) (*service.CommentService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	libraryHandle := do.MustInvoke[*LibraryHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCommentService(storeHandle.Store, libraryHandle.Library, sseHandle.Manager, log.Logger), nil
}
