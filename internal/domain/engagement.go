package domain

// ToggleAction is the intended like mutation carried on the wire.
// Sending the intent (rather than a bare toggle flag) makes retries
// idempotent: repeating "like" when already liked must not double-count.
type ToggleAction string

const (
	// ActionLike sets the reader's like on the target.
	ActionLike ToggleAction = "like"
	// ActionUnlike clears the reader's like on the target.
	ActionUnlike ToggleAction = "unlike"
)

// Valid checks if the action is valid.
func (a ToggleAction) Valid() bool {
	return a == ActionLike || a == ActionUnlike
}

// LikeStatus is the derived projection of like state for one target as
// seen by one reader. Clients cache this, never the raw record set.
type LikeStatus struct {
	Total   int  `json:"total"`
	IsLiked bool `json:"is_liked"`
}

// LikeRecord is the server-owned record of a single reader's like.
type LikeRecord struct {
	TargetKey string `json:"target_key"`
	ReaderID  string `json:"reader_id"`
	CreatedAt int64  `json:"created_at"` // unix milliseconds
}
