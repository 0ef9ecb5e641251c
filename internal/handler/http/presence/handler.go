package presence

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"friendclub-backend/internal/domain"
	"friendclub-backend/pkg/logger"
	"friendclub-backend/pkg/response"
)

// OnlineLister reads the live presence registry
type OnlineLister interface {
	OnlineUsers(ctx context.Context) ([]string, error)
}

// PresenceReader reads the Redis presence mirror
type PresenceReader interface {
	GetPresence(ctx context.Context, userID string) (*domain.Presence, error)
	GetOnlineCount(ctx context.Context) (int64, error)
	IsDegraded() bool
}

// Handler handles presence HTTP requests
type Handler struct {
	live   OnlineLister
	mirror PresenceReader
}

// NewHandler creates a new presence handler
func NewHandler(live OnlineLister, mirror PresenceReader) *Handler {
	return &Handler{
		live:   live,
		mirror: mirror,
	}
}

// GetOnline lists user names registered on this instance
// GET /v1/presence/online
func (h *Handler) GetOnline(c *gin.Context) {
	users, err := h.live.OnlineUsers(c.Request.Context())
	if err != nil {
		logger.Warn("Failed to read online users", zap.Error(err))
		response.ServiceUnavailable(c, "Signaling hub unavailable")
		return
	}

	body := gin.H{
		"users": users,
		"count": len(users),
	}
	// Users with an external id, as mirrored to Redis; omitted while degraded
	if !h.mirror.IsDegraded() {
		if mirrored, err := h.mirror.GetOnlineCount(c.Request.Context()); err == nil {
			body["mirrored_count"] = mirrored
		}
	}
	response.Success(c, http.StatusOK, body)
}

// GetPresence looks a user up in the presence mirror
// GET /v1/presence/:userId
func (h *Handler) GetPresence(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		response.ValidationError(c, "userId is required")
		return
	}
	if h.mirror.IsDegraded() {
		response.ServiceUnavailable(c, "Presence store unavailable")
		return
	}

	p, err := h.mirror.GetPresence(c.Request.Context(), userID)
	if err != nil {
		logger.Warn("Presence lookup failed", zap.String("user_id", userID), zap.Error(err))
		response.ServiceUnavailable(c, "Presence store unavailable")
		return
	}

	response.Success(c, http.StatusOK, p)
}
