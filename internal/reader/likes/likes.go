// Package likes drives like interactions on engagement targets.
//
// Interaction is two-phase: the first click on a target reveals its
// authoritative count (lazy fetch, nothing is loaded eagerly for a whole
// chapter), and only subsequent clicks toggle. Toggles apply optimistically
// and reconcile against the server response; on failure the state rolls
// back to exactly what was shown before the optimistic flip.
package likes

import (
	"context"
	"log/slog"
	"sync"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/reader/cache"
	"github.com/marginaliapress/marginalia-server/internal/reader/client"
)

// phase is the per-target lifecycle.
type phase int

const (
	// phaseIdle: nothing known and nothing in flight.
	phaseIdle phase = iota
	// phaseRevealing: the first authoritative fetch is in flight.
	phaseRevealing
	// phaseSettled: an authoritative (or cached) state is held.
	phaseSettled
	// phasePending: an optimistic toggle awaits server confirmation.
	phasePending
)

// targetState tracks one target. prev is only meaningful in phasePending;
// rollback restores it and nothing else.
type targetState struct {
	phase  phase
	status domain.LikeStatus
	prev   domain.LikeStatus
}

// Controller serializes like interactions per target.
type Controller struct {
	client *client.Client
	cache  *cache.EngagementCache
	logger *slog.Logger

	mu      sync.Mutex
	targets map[string]*targetState
}

// NewController creates a Controller over the API client and the device
// cache. The cache may be nil for memory-only operation.
func NewController(apiClient *client.Client, engagementCache *cache.EngagementCache, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		client:  apiClient,
		cache:   engagementCache,
		logger:  logger,
		targets: make(map[string]*targetState),
	}
}

// Status returns the current state for a target without any network
// activity. The second return is false when the target is still unknown;
// callers must not render an unknown target as zero likes.
func (c *Controller) Status(target domain.Target) (domain.LikeStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.lookup(target)
	if ts.phase == phaseSettled || ts.phase == phasePending {
		return ts.status, true
	}
	return domain.LikeStatus{}, false
}

// Reveal resolves a target's like status on first interaction. A cached
// entry from an earlier session answers immediately; otherwise the status
// is fetched. The second return is false when the status could not be
// resolved (fetch failed or already in flight): display stays neutral and
// the next interaction retries.
func (c *Controller) Reveal(ctx context.Context, target domain.Target) (domain.LikeStatus, bool) {
	c.mu.Lock()

	ts := c.lookup(target)
	switch ts.phase {
	case phaseSettled, phasePending:
		status := ts.status
		c.mu.Unlock()
		return status, true
	case phaseRevealing:
		c.mu.Unlock()
		return domain.LikeStatus{}, false
	}

	if cached, ok := c.cacheGet(target); ok {
		ts.phase = phaseSettled
		ts.status = cached
		c.mu.Unlock()
		return cached, true
	}

	ts.phase = phaseRevealing
	c.mu.Unlock()

	status, err := c.client.GetLikeStatus(ctx, target)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// Reads fail to a neutral state; the target stays unknown so the
		// next interaction fetches again.
		ts.phase = phaseIdle
		c.logger.Debug("like status fetch failed",
			slog.String("target", target.Key()),
			slog.String("error", err.Error()))
		return domain.LikeStatus{}, false
	}

	ts.phase = phaseSettled
	ts.status = *status
	c.cachePut(target, *status)
	return *status, true
}

// Toggle flips the reader's like on a target.
//
// On an unknown target it performs the reveal step instead of toggling,
// so a like is never submitted before the current state is known. While a
// fetch or toggle for the same target is in flight, further calls are
// suppressed. Without a reader identity the call is a no-op.
//
// The returned status is what the UI should display: the server's
// authoritative answer on success, the exact pre-optimistic state after a
// rollback. The error is non-nil only for a failed write.
func (c *Controller) Toggle(ctx context.Context, target domain.Target) (domain.LikeStatus, error) {
	if c.client.ReaderID() == "" {
		status, _ := c.Status(target)
		return status, nil
	}

	c.mu.Lock()
	ts := c.lookup(target)

	switch ts.phase {
	case phaseRevealing, phasePending:
		status := ts.status
		c.mu.Unlock()
		return status, nil
	case phaseIdle:
		c.mu.Unlock()
		status, _ := c.Reveal(ctx, target)
		return status, nil
	}

	prev := ts.status
	optimistic := flip(prev)
	ts.phase = phasePending
	ts.prev = prev
	ts.status = optimistic
	c.cachePut(target, optimistic)
	c.mu.Unlock()

	action := domain.ActionUnlike
	if optimistic.IsLiked {
		action = domain.ActionLike
	}

	confirmed, err := c.client.ToggleLike(ctx, target, action)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// Rollback only ever happens out of the pending phase, and it
		// restores exactly the pre-optimistic state.
		ts.phase = phaseSettled
		ts.status = ts.prev
		c.cachePut(target, ts.prev)
		c.logger.Warn("like toggle failed, rolled back",
			slog.String("target", target.Key()),
			slog.String("error", err.Error()))
		return ts.status, err
	}

	ts.phase = phaseSettled
	ts.status = *confirmed
	c.cachePut(target, *confirmed)
	return *confirmed, nil
}

// lookup returns the target's state, creating it idle. Caller holds c.mu.
func (c *Controller) lookup(target domain.Target) *targetState {
	ts, ok := c.targets[target.Key()]
	if !ok {
		ts = &targetState{}
		c.targets[target.Key()] = ts
	}
	return ts
}

func (c *Controller) cacheGet(target domain.Target) (domain.LikeStatus, bool) {
	if c.cache == nil {
		return domain.LikeStatus{}, false
	}
	return c.cache.Get(target)
}

// cachePut mirrors line-target state to the durable cache. Book and
// chapter targets are cheap to refetch and are not persisted here.
func (c *Controller) cachePut(target domain.Target, status domain.LikeStatus) {
	if c.cache == nil || target.Kind != domain.TargetLine {
		return
	}
	c.cache.Put(target, status)
}

// flip computes the optimistic next state, count floored at 0.
func flip(s domain.LikeStatus) domain.LikeStatus {
	if s.IsLiked {
		total := s.Total - 1
		if total < 0 {
			total = 0
		}
		return domain.LikeStatus{Total: total, IsLiked: false}
	}
	return domain.LikeStatus{Total: s.Total + 1, IsLiked: true}
}
