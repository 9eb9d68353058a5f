package models

import "time"

// SearchSession is a short-lived, owner-restricted record of one search's
// results. Results are ordered file IDs, fixed at creation.
type SearchSession struct {
	SessionID   string    `json:"session_id"`
	RequesterID int64     `json:"requester_id"`
	GroupID     int64     `json:"group_id"`
	Results     []string  `json:"results"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
