package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendclub-backend/internal/domain"
)

func TestNewCallEvent(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	call := &domain.Call{
		CallID:          uuid.New(),
		CallerName:      "alice",
		CalleeName:      "bob",
		CallerID:        "7",
		RoomName:        "room_7_9",
		CallType:        domain.CallTypeAudio,
		Status:          domain.CallStatusEnded,
		DurationSeconds: 42,
	}

	event := NewCallEvent(call, at)

	assert.Equal(t, "call.ended", event.Type)
	assert.Equal(t, call.CallID, event.CallID)
	assert.Equal(t, 42, event.DurationSeconds)
	assert.Equal(t, at, event.OccurredAt)

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"room_name":"room_7_9"`)
	assert.NotContains(t, string(raw), "callee_id")
}

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher()
	assert.NoError(t, p.Publish(context.Background(), CallEvent{Type: "call.ringing"}))
}
