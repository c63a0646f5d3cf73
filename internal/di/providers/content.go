package providers

import (
	"context"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/marginaliapress/marginalia-server/internal/config"
	"github.com/marginaliapress/marginalia-server/internal/content"
	"github.com/marginaliapress/marginalia-server/internal/logger"
)

// LibraryHandle wraps the content library with its watcher lifecycle.
type LibraryHandle struct {
	*content.Library
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *LibraryHandle) Shutdown() error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// ProvideLibrary provides the chapter content library. Without a
// configured content path the library starts empty under the data
// directory, ready for books to be dropped in later.
func ProvideLibrary(i do.Injector) (*LibraryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	root := cfg.Content.Path
	if root == "" {
		root = filepath.Join(cfg.Storage.DataPath, "content")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	library, err := content.NewLibrary(root, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Content library loaded",
		"path", root,
		"books", len(library.ListBooks()),
	)

	handle := &LibraryHandle{Library: library}
	if cfg.Content.Watch {
		ctx, cancel := context.WithCancel(context.Background())
		handle.cancel = cancel
		go func() {
			if err := library.Watch(ctx); err != nil {
				log.Warn("Content watcher stopped", "error", err)
			}
		}()
	}

	return handle, nil
}
