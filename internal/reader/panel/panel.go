// Package panel is the annotation panel state machine.
//
// The panel is either Closed or open for exactly one line. Opening a line
// while another is open retargets in place; re-clicking the open line's
// affordance closes, as does an explicit close or a backdrop click.
package panel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/marginaliapress/marginalia-server/internal/domain"
)

// FetchFunc loads a line's comments when the panel lands on it. Errors are
// the fetcher's to surface; the panel only tracks whether a fetch happened.
type FetchFunc func(ctx context.Context, target domain.Target) error

// State is the panel's externally visible state.
type State struct {
	Open      bool
	LineIndex int
}

// Closed is the resting state.
var Closed = State{}

// OpenForLine is the state with one active line.
func OpenForLine(lineIndex int) State {
	return State{Open: true, LineIndex: lineIndex}
}

// Controller drives the panel for one chapter view.
type Controller struct {
	chapterID string
	fetch     FetchFunc
	logger    *slog.Logger

	mu      sync.Mutex
	state   State
	fetched map[int]bool
}

// NewController creates a closed panel for a chapter. fetch may be nil
// when the caller wires comment loading elsewhere.
func NewController(chapterID string, fetch FetchFunc, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		chapterID: chapterID,
		fetch:     fetch,
		logger:    logger,
		fetched:   make(map[int]bool),
	}
}

// State returns the current panel state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ToggleLine handles a click on a line's comment affordance: opens the
// panel for that line, retargets when a different line is open, and
// closes when the line is already the active one.
func (c *Controller) ToggleLine(ctx context.Context, lineIndex int) State {
	c.mu.Lock()
	if c.state.Open && c.state.LineIndex == lineIndex {
		c.state = Closed
		c.mu.Unlock()
		return Closed
	}
	c.state = OpenForLine(lineIndex)
	needsFetch := !c.fetched[lineIndex]
	c.fetched[lineIndex] = true
	c.mu.Unlock()

	if needsFetch {
		c.runFetch(ctx, lineIndex)
	}
	return OpenForLine(lineIndex)
}

// Open forces the panel onto a line regardless of the current state. Used
// by deep links, where a second click semantics would be wrong.
func (c *Controller) Open(ctx context.Context, lineIndex int) State {
	c.mu.Lock()
	c.state = OpenForLine(lineIndex)
	needsFetch := !c.fetched[lineIndex]
	c.fetched[lineIndex] = true
	c.mu.Unlock()

	if needsFetch {
		c.runFetch(ctx, lineIndex)
	}
	return OpenForLine(lineIndex)
}

// Close closes the panel. Explicit close button and backdrop click both
// land here.
func (c *Controller) Close() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Closed
	return Closed
}

// Refetch reloads a line's comments if the panel is showing it, and
// otherwise marks the line stale so the next open loads fresh. Called
// after writes that change the line's thread.
func (c *Controller) Refetch(ctx context.Context, lineIndex int) {
	c.mu.Lock()
	open := c.state.Open && c.state.LineIndex == lineIndex
	if open {
		c.fetched[lineIndex] = true
	} else {
		delete(c.fetched, lineIndex)
	}
	c.mu.Unlock()

	if open {
		c.runFetch(ctx, lineIndex)
	}
}

// ResetNavigation forgets which lines were fetched. Called when the
// reader navigates to a new rendering of the chapter.
func (c *Controller) ResetNavigation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched = make(map[int]bool)
	c.state = Closed
}

func (c *Controller) runFetch(ctx context.Context, lineIndex int) {
	if c.fetch == nil {
		return
	}
	if err := c.fetch(ctx, domain.LineTarget(c.chapterID, lineIndex)); err != nil {
		// A failed load must not wedge the line: allow a retry on the
		// next open.
		c.mu.Lock()
		delete(c.fetched, lineIndex)
		c.mu.Unlock()
		c.logger.Debug("panel comment fetch failed",
			slog.Int("line", lineIndex),
			slog.String("error", err.Error()))
	}
}
