// Package sse implements Server-Sent Events for near-real-time engagement updates.
package sse

import (
	"time"

	"github.com/marginaliapress/marginalia-server/internal/domain"
)

// Engagement counts change constantly while readers interact, so the wire
// protocol is one-way server push. Request/response covers everything else.

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventLikeUpdated carries the authoritative like status after a toggle.
	EventLikeUpdated EventType = "like.updated"

	// EventCommentCreated represents a comment creation event.
	EventCommentCreated EventType = "comment.created"
	// EventCommentUpdated represents a comment edit or admin-reply event.
	EventCommentUpdated EventType = "comment.updated"
	// EventCommentDeleted represents a comment deletion event.
	EventCommentDeleted EventType = "comment.deleted"

	// EventCommentFocus instructs reading views to open a specific comment.
	// Sent when a privileged window requests cross-window navigation.
	EventCommentFocus EventType = "comment.focus"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// LikeUpdatedEventData is the data payload for like.updated events.
type LikeUpdatedEventData struct {
	TargetKey string `json:"target_key"`
	Total     int    `json:"total"`
}

// CommentEventData is the data payload for comment create/update events.
type CommentEventData struct {
	Comment *domain.Comment `json:"comment"`
}

// CommentDeletedEventData is the data payload for comment delete events.
type CommentDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	CommentID string    `json:"comment_id"`
	TargetKey string    `json:"target_key"`
}

// CommentFocusEventData is the data payload for comment.focus events.
// LineIndex is zero for chapter-level comments.
type CommentFocusEventData struct {
	ChapterID string `json:"chapter_id"`
	LineIndex int    `json:"line_index,omitempty"`
	CommentID string `json:"comment_id"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewLikeUpdatedEvent creates a like.updated event.
// Only the aggregate total is broadcast; per-reader liked state is private.
func NewLikeUpdatedEvent(targetKey string, total int) Event {
	return Event{
		Type: EventLikeUpdated,
		Data: LikeUpdatedEventData{
			TargetKey: targetKey,
			Total:     total,
		},
		Timestamp: time.Now(),
	}
}

// NewCommentCreatedEvent creates a comment.created event.
func NewCommentCreatedEvent(comment *domain.Comment) Event {
	return Event{
		Type:      EventCommentCreated,
		Data:      CommentEventData{Comment: comment},
		Timestamp: time.Now(),
	}
}

// NewCommentUpdatedEvent creates a comment.updated event.
func NewCommentUpdatedEvent(comment *domain.Comment) Event {
	return Event{
		Type:      EventCommentUpdated,
		Data:      CommentEventData{Comment: comment},
		Timestamp: time.Now(),
	}
}

// NewCommentDeletedEvent creates a comment.deleted event.
func NewCommentDeletedEvent(commentID, targetKey string, deletedAt time.Time) Event {
	return Event{
		Type: EventCommentDeleted,
		Data: CommentDeletedEventData{
			CommentID: commentID,
			TargetKey: targetKey,
			DeletedAt: deletedAt,
		},
		Timestamp: time.Now(),
	}
}

// NewCommentFocusEvent creates a comment.focus event.
func NewCommentFocusEvent(chapterID string, lineIndex int, commentID string) Event {
	return Event{
		Type: EventCommentFocus,
		Data: CommentFocusEventData{
			ChapterID: chapterID,
			LineIndex: lineIndex,
			CommentID: commentID,
		},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type: EventHeartbeat,
		Data: HeartbeatEventData{
			ServerTime: time.Now(),
		},
		Timestamp: time.Now(),
	}
}
