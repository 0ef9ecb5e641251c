package call

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
	"friendclub-backend/pkg/pagination"
)

// Mocks
type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) ListByUser(ctx context.Context, filter domain.CallFilter) ([]*domain.Call, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Call), args.Get(1).(int64), args.Error(2)
}

func (m *MockCallRepository) Stats(ctx context.Context, userID string, since time.Time) ([]domain.CallStat, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CallStat), args.Error(1)
}

func TestGetHistory(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo)
	ctx := context.Background()

	page, err := pagination.Parse("2", "10")
	require.NoError(t, err)

	calls := []*domain.Call{{CallID: uuid.New(), CallerID: "u1", Status: domain.CallStatusMissed}}
	mockRepo.On("ListByUser", ctx, domain.CallFilter{
		UserID:   "u1",
		Status:   domain.CallStatusMissed,
		CallType: domain.CallTypeVideo,
		Limit:    10,
		Offset:   10,
	}).Return(calls, int64(11), nil)

	out, err := service.GetHistory(ctx, &HistoryInput{
		UserID:   "u1",
		Page:     page,
		Status:   "missed",
		CallType: "video",
	})

	require.NoError(t, err)
	assert.Equal(t, calls, out.Calls)
	assert.Equal(t, 2, out.Pagination.CurrentPage)
	assert.Equal(t, 2, out.Pagination.TotalPages)
	assert.Equal(t, int64(11), out.Pagination.TotalItems)
	mockRepo.AssertExpectations(t)
}

func TestGetHistory_InvalidFilters(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo)
	page, _ := pagination.Parse("", "")

	_, err := service.GetHistory(context.Background(), &HistoryInput{UserID: "u1", Page: page, Status: "dialing"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	_, err = service.GetHistory(context.Background(), &HistoryInput{UserID: "u1", Page: page, CallType: "fax"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	mockRepo.AssertNotCalled(t, "ListByUser", mock.Anything, mock.Anything)
}

func TestGetHistory_RepositoryError(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo)
	page, _ := pagination.Parse("", "")

	mockRepo.On("ListByUser", mock.Anything, mock.Anything).Return(nil, int64(0), errors.New("db down"))

	_, err := service.GetHistory(context.Background(), &HistoryInput{UserID: "u1", Page: page})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabase))
}

func TestGetStats(t *testing.T) {
	now := time.Date(2026, 5, 31, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		period     int
		wantPeriod int
	}{
		{"default period", 0, 30},
		{"explicit period", 7, 7},
		{"clamped period", 1000, 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockCallRepository)
			service := NewService(mockRepo)
			service.now = func() time.Time { return now }

			since := now.AddDate(0, 0, -tt.wantPeriod)
			mockRepo.On("Stats", mock.Anything, "u1", since).Return([]domain.CallStat{
				{Status: domain.CallStatusEnded, CallType: domain.CallTypeVideo, Count: 3, TotalDuration: 600},
				{Status: domain.CallStatusMissed, CallType: domain.CallTypeAudio, Count: 2},
			}, nil)

			out, err := service.GetStats(context.Background(), "u1", tt.period)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPeriod, out.PeriodDays)
			assert.Equal(t, since, out.Since)
			assert.Equal(t, int64(5), out.TotalCalls)
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestGetStats_EmptyIsNotNull(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo)
	mockRepo.On("Stats", mock.Anything, "u1", mock.Anything).Return(nil, nil)

	out, err := service.GetStats(context.Background(), "u1", 30)
	require.NoError(t, err)
	assert.NotNil(t, out.Stats)
	assert.Zero(t, out.TotalCalls)
}

func TestGetCall(t *testing.T) {
	callID := uuid.New()
	record := &domain.Call{CallID: callID, CallerID: "u1", CalleeID: "u2"}

	t.Run("participant", func(t *testing.T) {
		mockRepo := new(MockCallRepository)
		mockRepo.On("GetByID", mock.Anything, callID).Return(record, nil)

		got, err := NewService(mockRepo).GetCall(context.Background(), callID, "u2")
		require.NoError(t, err)
		assert.Equal(t, record, got)
	})

	t.Run("outsider", func(t *testing.T) {
		mockRepo := new(MockCallRepository)
		mockRepo.On("GetByID", mock.Anything, callID).Return(record, nil)

		_, err := NewService(mockRepo).GetCall(context.Background(), callID, "u3")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
	})

	t.Run("not found", func(t *testing.T) {
		mockRepo := new(MockCallRepository)
		mockRepo.On("GetByID", mock.Anything, callID).Return(nil, apperrors.CallNotFoundError())

		_, err := NewService(mockRepo).GetCall(context.Background(), callID, "u1")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCallNotFound))
	})
}
