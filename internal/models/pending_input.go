package models

import "time"

// PendingInputKind names the multi-step interaction awaiting user input.
type PendingInputKind string

const (
	// PendingTags marks a "reply to this message with your tags" prompt.
	PendingTags PendingInputKind = "tags"
)

// PendingInput records that a user owes a reply to a specific prompt message.
// It follows the same expiry mechanism as SearchSession.
type PendingInput struct {
	UserID          int64            `json:"user_id"`
	ChatID          int64            `json:"chat_id"`
	AnchorMessageID int64            `json:"anchor_message_id"`
	Kind            PendingInputKind `json:"kind"`
	Payload         string           `json:"payload"`
	CreatedAt       time.Time        `json:"created_at"`
	ExpiresAt       time.Time        `json:"expires_at"`
}
