package call

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"friendclub-backend/internal/middleware"
	"friendclub-backend/internal/service/call"
	"friendclub-backend/pkg/pagination"
	"friendclub-backend/pkg/response"
)

// Handler handles call history HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// GetHistory lists the caller's call records
// GET /v1/calls/history?page=&limit=&status=&callType=
func (h *Handler) GetHistory(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	page, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	output, err := h.callService.GetHistory(c.Request.Context(), &call.HistoryInput{
		UserID:   userID.String(),
		Page:     page,
		Status:   c.Query("status"),
		CallType: c.Query("callType"),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}

// GetStats aggregates the caller's calls
// GET /v1/calls/stats?period=30
func (h *Handler) GetStats(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	period := 0
	if raw := c.Query("period"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			response.ValidationError(c, "period must be a number of days")
			return
		}
		period = p
	}

	output, err := h.callService.GetStats(c.Request.Context(), userID.String(), period)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}

// GetCall returns one call record
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	record, err := h.callService.GetCall(c.Request.Context(), callID, userID.String())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, record)
}
