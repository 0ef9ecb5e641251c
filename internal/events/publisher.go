// Package events fans call lifecycle transitions out to other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"friendclub-backend/internal/database"
	"friendclub-backend/internal/domain"
)

// CallEvent is published on every call status transition
type CallEvent struct {
	Type            string            `json:"type"`
	CallID          uuid.UUID         `json:"call_id"`
	Status          domain.CallStatus `json:"status"`
	CallType        domain.CallType   `json:"call_type"`
	CallerName      string            `json:"caller_name"`
	CalleeName      string            `json:"callee_name"`
	CallerID        string            `json:"caller_id,omitempty"`
	CalleeID        string            `json:"callee_id,omitempty"`
	RoomName        string            `json:"room_name"`
	DurationSeconds int               `json:"duration_seconds,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

// NewCallEvent builds the event for the call's current status
func NewCallEvent(call *domain.Call, at time.Time) CallEvent {
	return CallEvent{
		Type:            "call." + string(call.Status),
		CallID:          call.CallID,
		Status:          call.Status,
		CallType:        call.CallType,
		CallerName:      call.CallerName,
		CalleeName:      call.CalleeName,
		CallerID:        call.CallerID,
		CalleeID:        call.CalleeID,
		RoomName:        call.RoomName,
		DurationSeconds: call.DurationSeconds,
		OccurredAt:      at,
	}
}

// Publisher delivers call events. Failures are reported but never retried.
type Publisher interface {
	Publish(ctx context.Context, event CallEvent) error
}

// NoopPublisher discards all events. Used when Redis is not configured.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that silently discards events
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (p *NoopPublisher) Publish(ctx context.Context, event CallEvent) error {
	return nil
}

// RedisPublisher publishes JSON call events on a Redis Pub/Sub channel
type RedisPublisher struct {
	client  *database.RedisClient
	channel string
}

// NewRedisPublisher creates a publisher bound to channel
func NewRedisPublisher(client *database.RedisClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish serializes the event and publishes it; degraded Redis yields an error
func (p *RedisPublisher) Publish(ctx context.Context, event CallEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal call event: %w", err)
	}
	if err := p.client.SafePublish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish call event: %w", err)
	}
	return nil
}
