package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"friendclub-backend/internal/database"
	"friendclub-backend/internal/domain"
)

const onlineSetKey = "presence:online"

// PresenceRepository mirrors signaling presence into Redis for other services
type PresenceRepository struct {
	client *database.RedisClient
	ttl    time.Duration
	now    func() time.Time
}

// NewPresenceRepository creates a new PresenceRepository.
// Entries expire after ttl unless refreshed.
func NewPresenceRepository(client *database.RedisClient, ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{client: client, ttl: ttl, now: time.Now}
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

// SetUserOnline marks user as online
func (r *PresenceRepository) SetUserOnline(ctx context.Context, userID, userName string) error {
	entry, err := json.Marshal(domain.Presence{
		UserID:   userID,
		UserName: userName,
		Online:   true,
		Since:    r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode presence: %w", err)
	}

	if err := r.client.SafeSet(ctx, presenceKey(userID), entry, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	if err := r.client.SafeSAdd(ctx, onlineSetKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}
	return nil
}

// SetUserOffline marks user as offline
func (r *PresenceRepository) SetUserOffline(ctx context.Context, userID string) error {
	if err := r.client.SafeDel(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	if err := r.client.SafeSRem(ctx, onlineSetKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}
	return nil
}

// RefreshPresence keeps user online (heartbeat)
func (r *PresenceRepository) RefreshPresence(ctx context.Context, userID string) error {
	if err := r.client.SafeExpire(ctx, presenceKey(userID), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

// GetPresence returns the mirrored entry; an unknown user is reported offline
func (r *PresenceRepository) GetPresence(ctx context.Context, userID string) (*domain.Presence, error) {
	raw, err := r.client.SafeGet(ctx, presenceKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return &domain.Presence{UserID: userID, Online: false}, nil
		}
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	var p domain.Presence
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode presence: %w", err)
	}
	return &p, nil
}

// GetOnlineCount returns number of online users
func (r *PresenceRepository) GetOnlineCount(ctx context.Context) (int64, error) {
	count, err := r.client.SafeSCard(ctx, onlineSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count online users: %w", err)
	}
	return count, nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *PresenceRepository) IsDegraded() bool {
	return r.client.IsDegraded()
}
