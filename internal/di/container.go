// Package di provides dependency injection configuration for the Marginalia server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/marginaliapress/marginalia-server/internal/config"
	"github.com/marginaliapress/marginalia-server/internal/di/providers"
	"github.com/marginaliapress/marginalia-server/internal/logger"
	"github.com/marginaliapress/marginalia-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	// Events and storage
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Content
	do.Provide(injector, providers.ProvideLibrary)

	// Business services
	do.Provide(injector, providers.ProvideEngagementService)
	do.Provide(injector, providers.ProvideCommentService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns once the server is up.
// Invoking each provider triggers lazy initialization in dependency order.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.LibraryHandle](injector)
	_ = do.MustInvoke[*service.EngagementService](injector)
	_ = do.MustInvoke[*service.CommentService](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	return nil
}
