package models

import "time"

// GroupSettings holds the per-group feature configuration with named, typed
// fields. DefaultGroupSettings supplies the value applied when a group is
// first registered.
type GroupSettings struct {
	AIEnabled            bool    `json:"ai_enabled"`
	SummarizationEnabled bool    `json:"summarization_enabled"`
	ExplanationEnabled   bool    `json:"explanation_enabled"`
	QuizEnabled          bool    `json:"quiz_enabled"`
	AutoTagEnabled       bool    `json:"auto_tag_enabled"`
	AdminOnlyIndexing    bool    `json:"admin_only_indexing"`
	MaxSearchResults     int     `json:"max_search_results"`
	BlockedUsers         []int64 `json:"blocked_users"`
}

// DefaultGroupSettings returns the settings applied to newly registered groups.
func DefaultGroupSettings() GroupSettings {
	return GroupSettings{
		AIEnabled:            true,
		SummarizationEnabled: true,
		ExplanationEnabled:   true,
		QuizEnabled:          true,
		AutoTagEnabled:       true,
		AdminOnlyIndexing:    false,
		MaxSearchResults:     10,
		BlockedUsers:         nil,
	}
}

// IsBlocked reports whether the user appears on the group's block list.
func (s GroupSettings) IsBlocked(userID int64) bool {
	for _, id := range s.BlockedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// GroupStats carries the per-group counters maintained by the settings store.
type GroupStats struct {
	TotalFiles      int64 `json:"total_files"`
	TotalAIRequests int64 `json:"total_ai_requests"`
}

// Group is one registered study-room chat.
type Group struct {
	ChatID     int64         `json:"chat_id"`
	Title      string        `json:"title"`
	Settings   GroupSettings `json:"settings"`
	Stats      GroupStats    `json:"stats"`
	CreatedAt  time.Time     `json:"created_at"`
	LastSeenAt time.Time     `json:"last_seen_at"`
}
