package store

import "github.com/marginaliapress/marginalia-server/internal/errors"

// Sentinel errors returned by store operations. These are the shared domain
// sentinels so callers can errors.Is against one vocabulary.
var (
	ErrNotFound      = errors.ErrNotFound
	ErrAlreadyExists = errors.ErrAlreadyExists
)
