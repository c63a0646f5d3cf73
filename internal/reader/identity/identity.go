// Package identity mints and persists the anonymous reader identity.
//
// A reader ID is self-issued on the device, never verified by the server,
// and survives restarts through a durable scope. When the scope is
// unavailable the identity degrades to ephemeral: engagement still works
// for the session, it just won't be recognized as the same reader later.
package identity

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/marginaliapress/marginalia-server/internal/id"
)

// readerIDKey is the scope key the identity persists under.
const readerIDKey = "reader_id"

// Scope is durable device-local string storage.
type Scope interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
}

// Provider hands out the device's reader identity.
type Provider struct {
	scope  Scope
	logger *slog.Logger

	mu     sync.Mutex
	cached string
}

// NewProvider creates a Provider backed by the given scope. A nil scope
// means identity is ephemeral for the whole session.
func NewProvider(scope Scope, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		scope:  scope,
		logger: logger,
	}
}

// GetOrCreateReaderID returns the persisted reader identity, minting and
// persisting a new one on first use. Persistence failures fall back to an
// ephemeral identity that stays stable for this Provider's lifetime.
func (p *Provider) GetOrCreateReaderID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached
	}

	if p.scope != nil {
		stored, ok, err := p.scope.Get(readerIDKey)
		if err != nil {
			p.logger.Warn("reader identity read failed, using ephemeral identity",
				slog.String("error", err.Error()))
		} else if ok && stored != "" {
			p.cached = stored
			return stored
		}
	}

	minted := mintReaderID()

	if p.scope != nil {
		if err := p.scope.Put(readerIDKey, minted); err != nil {
			p.logger.Warn("reader identity persist failed, identity is ephemeral",
				slog.String("error", err.Error()))
		}
	}

	p.cached = minted
	return minted
}

// mintReaderID composes "rdr-<base36 unix ms>-<nanoid>". The timestamp
// component makes IDs roughly sortable by first-seen time, which helps
// when eyeballing engagement data.
func mintReaderID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return id.MustGenerate("rdr-" + ts)
}
