package api

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/marginaliapress/marginalia-server/internal/domain"
)

// normalizeReaderID trims the reader identity from the header. Identities
// are opaque strings; the server never mints or verifies them beyond shape.
func normalizeReaderID(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) > 128 {
		return ""
	}
	return id
}

// requireReader returns the reader identity or a 403 if the caller sent none.
func requireReader(raw string) (string, error) {
	id := normalizeReaderID(raw)
	if id == "" {
		return "", huma.Error403Forbidden("a reader identity is required for this operation")
	}
	return id, nil
}

// requireAdmin checks the moderation token. A server configured without a
// token has moderation disabled entirely.
func (s *Server) requireAdmin(token string) error {
	if s.adminToken == "" {
		return huma.Error403Forbidden("moderation is not enabled on this server")
	}
	if token != s.adminToken {
		return huma.Error403Forbidden("invalid moderation token")
	}
	return nil
}

// allowWrite applies the per-reader write rate limit.
func (s *Server) allowWrite(readerID string) error {
	if !s.writeLimiter.Allow(readerID) {
		s.logger.Warn("engagement write rate limited", "reader_id", readerID)
		return huma.Error429TooManyRequests("too many engagement writes, slow down")
	}
	return nil
}

// parseTarget decodes a canonical target key from a request and checks it
// against loaded content.
func (s *Server) parseTarget(key string) (domain.Target, error) {
	target, err := domain.ParseTargetKey(key)
	if err != nil {
		return domain.Target{}, err
	}
	if err := s.library.ValidateTarget(target); err != nil {
		return domain.Target{}, err
	}
	return target, nil
}
