package models

import "time"

// User is a chat user seen by the bot. Identity comes from the transport.
type User struct {
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// AILog is one recorded AI request, kept for auditing and stats.
type AILog struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	GroupID     int64     `json:"group_id"`
	PromptKind  string    `json:"prompt_kind"`
	TextSnippet string    `json:"text_snippet"`
	CreatedAt   time.Time `json:"created_at"`
}
