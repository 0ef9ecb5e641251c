package chat

import (
	"context"
	"time"

	"friendclub-backend/internal/domain"
	"friendclub-backend/internal/signaling"
	"friendclub-backend/pkg/constants"
	apperrors "friendclub-backend/pkg/errors"
)

// MessageRepository is the read side of the chat message store
type MessageRepository interface {
	GetRecent(ctx context.Context, roomName string, limit int, now time.Time) ([]*domain.ChatMessage, error)
}

// Service serves persisted chat history
type Service struct {
	messageRepo MessageRepository
	now         func() time.Time
}

// NewService creates a new chat history service
func NewService(messageRepo MessageRepository) *Service {
	return &Service{
		messageRepo: messageRepo,
		now:         time.Now,
	}
}

// HistoryInput contains chat history query parameters
type HistoryInput struct {
	RoomName string
	Limit    int
	UserID   string
	UserName string
}

// HistoryOutput is the recent history of one room, oldest first
type HistoryOutput struct {
	RoomName string                `json:"roomName"`
	Messages []*domain.ChatMessage `json:"messages"`
}

// GetRoomHistory returns recent room messages. Direct rooms are readable
// only by the two identities their name is derived from: external ids for
// id-based rooms, user names for name-based ones.
func (s *Service) GetRoomHistory(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
	if input.RoomName == "" {
		return nil, apperrors.MissingFieldError("roomName")
	}

	if room, ok := signaling.ParseDirectRoomName(input.RoomName); ok {
		identity := input.UserID
		if room.ByName {
			identity = input.UserName
		}
		if !room.Includes(identity) {
			return nil, apperrors.ForbiddenError("Not a participant of this room")
		}
	}

	limit := input.Limit
	if limit <= 0 {
		limit = constants.DefaultChatHistoryLimit
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}

	messages, err := s.messageRepo.GetRecent(ctx, input.RoomName, limit, s.now())
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if messages == nil {
		messages = []*domain.ChatMessage{}
	}

	return &HistoryOutput{
		RoomName: input.RoomName,
		Messages: messages,
	}, nil
}
