package chat

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"friendclub-backend/internal/middleware"
	"friendclub-backend/internal/service/chat"
	"friendclub-backend/pkg/response"
)

// Handler handles chat history HTTP requests
type Handler struct {
	chatService *chat.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service) *Handler {
	return &Handler{
		chatService: chatService,
	}
}

// GetRoomHistory returns recent messages of a room, oldest first
// GET /v1/chat/history/:roomName?limit=
func (h *Handler) GetRoomHistory(c *gin.Context) {
	userID, userName, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil {
			response.ValidationError(c, "limit must be a number")
			return
		}
		limit = l
	}

	output, err := h.chatService.GetRoomHistory(c.Request.Context(), &chat.HistoryInput{
		RoomName: c.Param("roomName"),
		Limit:    limit,
		UserID:   userID.String(),
		UserName: userName,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}
