package domain

import "time"

// Presence is the Redis mirror entry for a registered user
type Presence struct {
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	Online   bool      `json:"online"`
	Since    time.Time `json:"since,omitempty"`
}
