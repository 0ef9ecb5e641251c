package call

import (
	"context"
	"time"

	"github.com/google/uuid"

	"friendclub-backend/internal/domain"
	"friendclub-backend/pkg/constants"
	apperrors "friendclub-backend/pkg/errors"
	"friendclub-backend/pkg/pagination"
)

// maxStatsPeriodDays bounds the statistics window
const maxStatsPeriodDays = 365

// CallRepository is the read side of the call_logs store
type CallRepository interface {
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	ListByUser(ctx context.Context, filter domain.CallFilter) ([]*domain.Call, int64, error)
	Stats(ctx context.Context, userID string, since time.Time) ([]domain.CallStat, error)
}

// Service serves call history and statistics. It never changes call status.
type Service struct {
	callRepo CallRepository
	now      func() time.Time
}

// NewService creates a new call history service
func NewService(callRepo CallRepository) *Service {
	return &Service{
		callRepo: callRepo,
		now:      time.Now,
	}
}

// HistoryInput contains call history query parameters
type HistoryInput struct {
	UserID   string
	Page     *pagination.Params
	Status   string
	CallType string
}

// HistoryOutput is one page of call history
type HistoryOutput struct {
	Calls      []*domain.Call  `json:"calls"`
	Pagination pagination.Info `json:"pagination"`
}

// GetHistory returns the user's calls, newest first
func (s *Service) GetHistory(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
	filter := domain.CallFilter{
		UserID: input.UserID,
		Limit:  input.Page.Limit,
		Offset: input.Page.Offset,
	}

	if input.Status != "" {
		status := domain.CallStatus(input.Status)
		if !status.Valid() {
			return nil, apperrors.ValidationError("Invalid status filter")
		}
		filter.Status = status
	}
	if input.CallType != "" {
		callType := domain.CallType(input.CallType)
		if !callType.Valid() {
			return nil, apperrors.ValidationError("callType must be audio or video")
		}
		filter.CallType = callType
	}

	calls, total, err := s.callRepo.ListByUser(ctx, filter)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return &HistoryOutput{
		Calls:      calls,
		Pagination: pagination.BuildInfo(input.Page, total),
	}, nil
}

// StatsOutput groups call counts over a period
type StatsOutput struct {
	PeriodDays int               `json:"periodDays"`
	Since      time.Time         `json:"since"`
	Stats      []domain.CallStat `json:"stats"`
	TotalCalls int64             `json:"totalCalls"`
}

// GetStats aggregates the user's calls over the last periodDays days.
// A non-positive period falls back to the default.
func (s *Service) GetStats(ctx context.Context, userID string, periodDays int) (*StatsOutput, error) {
	if periodDays <= 0 {
		periodDays = constants.DefaultStatsPeriodDays
	}
	if periodDays > maxStatsPeriodDays {
		periodDays = maxStatsPeriodDays
	}

	since := s.now().UTC().AddDate(0, 0, -periodDays)
	stats, err := s.callRepo.Stats(ctx, userID, since)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if stats == nil {
		stats = []domain.CallStat{}
	}

	var total int64
	for _, st := range stats {
		total += st.Count
	}

	return &StatsOutput{
		PeriodDays: periodDays,
		Since:      since,
		Stats:      stats,
		TotalCalls: total,
	}, nil
}

// GetCall returns one call record visible to a participant only
func (s *Service) GetCall(ctx context.Context, callID uuid.UUID, userID string) (*domain.Call, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeCallNotFound) {
			return nil, err
		}
		return nil, apperrors.DatabaseError(err)
	}

	if !call.InvolvesExternal(userID) {
		return nil, apperrors.ForbiddenError("Not a participant of this call")
	}
	return call, nil
}
