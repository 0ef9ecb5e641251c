package cassandra

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"friendclub-backend/internal/domain"
	"friendclub-backend/pkg/resilience"
)

// historyBuckets is how many monthly partitions a history read walks back
const historyBuckets = 3

// MessageRepository stores room chat messages in Cassandra.
// Rows are partitioned by (room_name, bucket) with a monthly bucket.
type MessageRepository struct {
	session *gocql.Session
	breaker *resilience.Breaker
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// WithBreaker guards Save with b
func (r *MessageRepository) WithBreaker(b *resilience.Breaker) *MessageRepository {
	r.breaker = b
	return r
}

// Save inserts a new message
func (r *MessageRepository) Save(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Bucket == 0 {
		msg.Bucket = domain.CalculateBucket(msg.CreatedAt)
	}
	if msg.MessageID == uuid.Nil {
		msg.MessageID = uuid.New()
	}

	query := `
		INSERT INTO chat_messages (
			room_name, bucket, created_at, message_id, sender_name,
			sender_id, message, message_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	insert := func(ctx context.Context) error {
		return r.session.Query(query,
			msg.RoomName,
			msg.Bucket,
			msg.CreatedAt,
			gocql.UUID(msg.MessageID),
			msg.SenderName,
			msg.SenderID,
			msg.Message,
			msg.MessageType,
		).WithContext(ctx).Exec()
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(ctx, "save", insert)
	} else {
		err = insert(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetByRoom returns up to limit messages from one bucket, newest first
func (r *MessageRepository) GetByRoom(ctx context.Context, roomName string, bucket, limit int) ([]*domain.ChatMessage, error) {
	query := `
		SELECT room_name, bucket, created_at, message_id, sender_name,
		       sender_id, message, message_type
		FROM chat_messages
		WHERE room_name = ? AND bucket = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	iter := r.session.Query(query, roomName, bucket, limit).WithContext(ctx).Iter()

	var messages []*domain.ChatMessage
	for {
		msg := &domain.ChatMessage{}
		var id gocql.UUID
		if !iter.Scan(
			&msg.RoomName,
			&msg.Bucket,
			&msg.CreatedAt,
			&id,
			&msg.SenderName,
			&msg.SenderID,
			&msg.Message,
			&msg.MessageType,
		) {
			break
		}
		msg.MessageID = uuid.UUID(id)
		messages = append(messages, msg)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

// GetRecent returns the latest limit messages of a room, oldest first,
// walking back across monthly buckets from now
func (r *MessageRepository) GetRecent(ctx context.Context, roomName string, limit int, now time.Time) ([]*domain.ChatMessage, error) {
	var all []*domain.ChatMessage
	for _, bucket := range domain.PreviousBuckets(now, historyBuckets) {
		messages, err := r.GetByRoom(ctx, roomName, bucket, limit-len(all))
		if err != nil {
			return nil, err
		}
		all = append(all, messages...)
		if len(all) >= limit {
			break
		}
	}
	return oldestFirst(all), nil
}

func oldestFirst(messages []*domain.ChatMessage) []*domain.ChatMessage {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages
}
