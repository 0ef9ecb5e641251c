package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is a room-scoped chat message.
// Maps to Cassandra chat_messages table, partitioned by (room_name, bucket).
type ChatMessage struct {
	MessageID   uuid.UUID `json:"message_id"`
	RoomName    string    `json:"room_name"`
	Bucket      int       `json:"-"`
	SenderName  string    `json:"sender_name"`
	SenderID    string    `json:"sender_id,omitempty"` // external user id, may be empty
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// CalculateBucket returns the monthly partition bucket (yyyymm) for t
func CalculateBucket(t time.Time) int {
	t = t.UTC()
	return t.Year()*100 + int(t.Month())
}

// PreviousBuckets returns n buckets ending at t's bucket, newest first
func PreviousBuckets(t time.Time, n int) []int {
	buckets := make([]int, 0, n)
	current := time.Date(t.UTC().Year(), t.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		buckets = append(buckets, CalculateBucket(current))
		current = current.AddDate(0, -1, 0)
	}
	return buckets
}
