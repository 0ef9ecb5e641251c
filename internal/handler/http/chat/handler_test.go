package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"friendclub-backend/internal/domain"
	"friendclub-backend/internal/service/chat"
)

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) GetRecent(ctx context.Context, roomName string, limit int, now time.Time) ([]*domain.ChatMessage, error) {
	args := m.Called(ctx, roomName, limit, now)
	return args.Get(0).([]*domain.ChatMessage), args.Error(1)
}

func setupRouter(repo *MockMessageRepository, userID uuid.UUID, userName string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(chat.NewService(repo))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("username", userName)
		c.Next()
	})
	r.GET("/v1/chat/history/:roomName", h.GetRoomHistory)
	return r
}

func TestGetRoomHistory(t *testing.T) {
	repo := new(MockMessageRepository)
	repo.On("GetRecent", mock.Anything, "named_alice_bob", 10, mock.Anything).Return([]*domain.ChatMessage{
		{MessageID: uuid.New(), RoomName: "named_alice_bob", SenderName: "alice", Message: "hey"},
	}, nil)

	w := httptest.NewRecorder()
	setupRouter(repo, uuid.New(), "bob").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/chat/history/named_alice_bob?limit=10", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"hey"`)
	repo.AssertExpectations(t)
}

func TestGetRoomHistory_Forbidden(t *testing.T) {
	w := httptest.NewRecorder()
	setupRouter(new(MockMessageRepository), uuid.New(), "mallory").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/chat/history/named_alice_bob", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetRoomHistory_BadLimit(t *testing.T) {
	w := httptest.NewRecorder()
	setupRouter(new(MockMessageRepository), uuid.New(), "bob").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/chat/history/standup?limit=lots", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
