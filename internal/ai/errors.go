package ai

import "errors"

// Gateway failures collapse into a small set of categories so callers can
// choose a user message without inspecting provider details.
var (
	ErrAuth        = errors.New("ai provider rejected credentials")
	ErrRateLimited = errors.New("ai provider rate limit reached")
	ErrTimeout     = errors.New("ai request timed out")
	ErrUpstream    = errors.New("ai provider error")
	ErrEmptyText   = errors.New("no text to process")
	ErrEmptyReply  = errors.New("ai provider returned an empty reply")
)
