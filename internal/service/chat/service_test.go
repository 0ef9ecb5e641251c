package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"friendclub-backend/internal/domain"
	apperrors "friendclub-backend/pkg/errors"
)

// Mocks
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) GetRecent(ctx context.Context, roomName string, limit int, now time.Time) ([]*domain.ChatMessage, error) {
	args := m.Called(ctx, roomName, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatMessage), args.Error(1)
}

func TestGetRoomHistory(t *testing.T) {
	mockRepo := new(MockMessageRepository)
	service := NewService(mockRepo)
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	messages := []*domain.ChatMessage{
		{MessageID: uuid.New(), RoomName: "room_1_2", SenderName: "alice", Message: "hi", CreatedAt: now},
	}
	mockRepo.On("GetRecent", mock.Anything, "room_1_2", 50, now).Return(messages, nil)

	out, err := service.GetRoomHistory(context.Background(), &HistoryInput{
		RoomName: "room_1_2",
		UserID:   "2",
	})

	require.NoError(t, err)
	assert.Equal(t, "room_1_2", out.RoomName)
	assert.Equal(t, messages, out.Messages)
	mockRepo.AssertExpectations(t)
}

func TestGetRoomHistory_Access(t *testing.T) {
	tests := []struct {
		name    string
		room    string
		userID  string
		userNm  string
		allowed bool
	}{
		{"direct room by id", "room_1_2", "1", "", true},
		{"direct room by name", "named_alice_bob", "", "bob", true},
		{"direct room outsider", "room_1_2", "3", "carol", false},
		{"id room ignores a matching name", "room_1_2", "3", "1", false},
		{"name room ignores a matching id", "named_alice_bob", "alice", "carol", false},
		{"escaped underscore party", "named_a%5Fb_c", "", "a_b", true},
		{"prefix of escaped party", "named_a%5Fb_c", "", "a", false},
		{"suffix of escaped party", "named_a%5Fb_c", "", "b_c", false},
		{"named room", "standup", "3", "carol", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockMessageRepository)
			mockRepo.On("GetRecent", mock.Anything, tt.room, mock.Anything, mock.Anything).Return(nil, nil)

			out, err := NewService(mockRepo).GetRoomHistory(context.Background(), &HistoryInput{
				RoomName: tt.room,
				UserID:   tt.userID,
				UserName: tt.userNm,
			})
			if tt.allowed {
				require.NoError(t, err)
				assert.NotNil(t, out.Messages)
			} else {
				assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
				mockRepo.AssertNotCalled(t, "GetRecent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestGetRoomHistory_Limit(t *testing.T) {
	mockRepo := new(MockMessageRepository)
	mockRepo.On("GetRecent", mock.Anything, "standup", 100, mock.Anything).Return([]*domain.ChatMessage{}, nil)

	_, err := NewService(mockRepo).GetRoomHistory(context.Background(), &HistoryInput{RoomName: "standup", Limit: 500})
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestGetRoomHistory_Errors(t *testing.T) {
	mockRepo := new(MockMessageRepository)
	service := NewService(mockRepo)

	_, err := service.GetRoomHistory(context.Background(), &HistoryInput{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMissingField))

	mockRepo.On("GetRecent", mock.Anything, "standup", mock.Anything, mock.Anything).Return(nil, errors.New("cassandra down"))
	_, err = service.GetRoomHistory(context.Background(), &HistoryInput{RoomName: "standup"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabase))
}
