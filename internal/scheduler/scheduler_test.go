package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-intent-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockTradeRunner is a mock implementation of the TradeRunner interface.
type MockTradeRunner struct {
	mock.Mock
}

func (m *MockTradeRunner) RunTrade(ctx context.Context, userID, asset string, amount float64) (string, error) {
	args := m.Called(ctx, userID, asset, amount)
	return args.String(0), args.Error(1)
}

// setupTest creates a scheduler backed by a fresh in-memory database.
func setupTest(t *testing.T) (*Scheduler, *MockTradeRunner, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TradeSchedule{}))

	mockRunner := new(MockTradeRunner)
	s := NewScheduler(db, mockRunner, time.Second, zap.NewNop())
	return s, mockRunner, db
}

func TestCalculateNextExecution(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		schedule models.TradeSchedule
		want     time.Time
	}{
		{"Hourly", models.TradeSchedule{Frequency: models.FrequencyHourly, StartTime: start}, start.Add(time.Hour)},
		{"Daily", models.TradeSchedule{Frequency: models.FrequencyDaily, StartTime: start}, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"Weekly", models.TradeSchedule{Frequency: models.FrequencyWeekly, StartTime: start}, start.Add(7 * 24 * time.Hour)},
		{"Monthly", models.TradeSchedule{Frequency: models.FrequencyMonthly, StartTime: start}, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"Custom90Minutes", models.TradeSchedule{Frequency: models.FrequencyCustom, CustomIntervalMinutes: 90, StartTime: start}, start.Add(90 * time.Minute)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateNextExecution(&tc.schedule)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCalculateNextExecution_BasesOnLaterOfLastExecutedAndStart(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

	schedule := models.TradeSchedule{
		Frequency:    models.FrequencyDaily,
		StartTime:    start,
		LastExecuted: &last,
	}

	got, err := CalculateNextExecution(&schedule)
	require.NoError(t, err)
	assert.Equal(t, last.Add(24*time.Hour), got)
}

func TestCalculateNextExecution_UnknownFrequency(t *testing.T) {
	schedule := models.TradeSchedule{Frequency: "fortnightly"}

	_, err := CalculateNextExecution(&schedule)
	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestCalculateNextExecution_CustomRequiresInterval(t *testing.T) {
	schedule := models.TradeSchedule{Frequency: models.FrequencyCustom}

	_, err := CalculateNextExecution(&schedule)
	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestCreateSchedule(t *testing.T) {
	s, _, _ := setupTest(t)
	start := time.Now().Add(time.Hour)

	schedule, err := s.CreateSchedule(context.Background(), CreateScheduleParams{
		UserID:    "user-1",
		Asset:     "SOL",
		Amount:    0.5,
		Frequency: models.FrequencyDaily,
		StartTime: start,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, schedule.ID)
	assert.True(t, schedule.IsActive)
	assert.Equal(t, 0, schedule.ExecutionCount)
	assert.True(t, schedule.NextExecution.Equal(start))
}

func TestCreateSchedule_RejectsUnknownFrequency(t *testing.T) {
	s, _, _ := setupTest(t)

	_, err := s.CreateSchedule(context.Background(), CreateScheduleParams{
		UserID:    "user-1",
		Asset:     "SOL",
		Amount:    0.5,
		Frequency: "fortnightly",
		StartTime: time.Now(),
	})

	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestExecuteScheduledTrade_SuccessAdvancesCounters(t *testing.T) {
	s, mockRunner, _ := setupTest(t)
	ctx := context.Background()

	schedule, err := s.CreateSchedule(ctx, CreateScheduleParams{
		UserID:    "user-1",
		Asset:     "SOL",
		Amount:    0.5,
		Frequency: models.FrequencyDaily,
		StartTime: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	mockRunner.On("RunTrade", mock.Anything, "user-1", "SOL", 0.5).Return("exec-1", nil)

	result := s.ExecuteScheduledTrade(ctx, schedule)

	assert.True(t, result.Success)
	assert.Equal(t, "exec-1", result.TradeID)
	assert.Equal(t, 1, schedule.ExecutionCount)
	require.NotNil(t, schedule.LastExecuted)
	assert.True(t, schedule.NextExecution.After(*schedule.LastExecuted))
	assert.True(t, schedule.IsActive)
}

func TestExecuteScheduledTrade_FailureLeavesScheduleUntouched(t *testing.T) {
	s, mockRunner, db := setupTest(t)
	ctx := context.Background()

	schedule, err := s.CreateSchedule(ctx, CreateScheduleParams{
		UserID:    "user-1",
		Asset:     "SOL",
		Amount:    0.5,
		Frequency: models.FrequencyDaily,
		StartTime: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	originalNext := schedule.NextExecution

	mockRunner.On("RunTrade", mock.Anything, "user-1", "SOL", 0.5).Return(
		"", errors.New("venue rejected order")).Once()

	result := s.ExecuteScheduledTrade(ctx, schedule)

	assert.False(t, result.Success)
	assert.Error(t, result.Err)
	assert.Empty(t, result.TradeID)

	var stored models.TradeSchedule
	require.NoError(t, db.First(&stored, "id = ?", schedule.ID).Error)
	assert.Equal(t, 0, stored.ExecutionCount)
	assert.Nil(t, stored.LastExecuted)
	assert.True(t, stored.NextExecution.Equal(originalNext))
	assert.True(t, stored.IsActive)

	// A second firing attempt is still possible.
	mockRunner.On("RunTrade", mock.Anything, "user-1", "SOL", 0.5).Return("exec-2", nil).Once()
	retry := s.ExecuteScheduledTrade(ctx, schedule)
	assert.True(t, retry.Success)
	assert.Equal(t, "exec-2", retry.TradeID)
}

func TestExecuteScheduledTrade_MaxExecutionsDeactivates(t *testing.T) {
	s, mockRunner, db := setupTest(t)
	ctx := context.Background()

	maxExecutions := 1
	schedule, err := s.CreateSchedule(ctx, CreateScheduleParams{
		UserID:        "user-1",
		Asset:         "SOL",
		Amount:        0.5,
		Frequency:     models.FrequencyDaily,
		StartTime:     time.Now().Add(-time.Minute),
		MaxExecutions: &maxExecutions,
	})
	require.NoError(t, err)

	mockRunner.On("RunTrade", mock.Anything, "user-1", "SOL", 0.5).Return("exec-1", nil)

	result := s.ExecuteScheduledTrade(ctx, schedule)
	assert.True(t, result.Success)

	var stored models.TradeSchedule
	require.NoError(t, db.First(&stored, "id = ?", schedule.ID).Error)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 1, stored.ExecutionCount)
}

func TestGetActiveSchedules_OrderedByNextExecution(t *testing.T) {
	s, _, _ := setupTest(t)
	ctx := context.Background()

	later, err := s.CreateSchedule(ctx, CreateScheduleParams{
		UserID:    "user-1",
		Asset:     "ETH",
		Amount:    1,
		Frequency: models.FrequencyDaily,
		StartTime: time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)

	sooner, err := s.CreateSchedule(ctx, CreateScheduleParams{
		UserID:    "user-1",
		Asset:     "SOL",
		Amount:    0.5,
		Frequency: models.FrequencyHourly,
		StartTime: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	cancelled, err := s.CreateSchedule(ctx, CreateScheduleParams{
		UserID:    "user-1",
		Asset:     "BTC",
		Amount:    0.01,
		Frequency: models.FrequencyWeekly,
		StartTime: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, s.CancelSchedule(ctx, cancelled.ID))

	schedules, err := s.GetActiveSchedules(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, sooner.ID, schedules[0].ID)
	assert.Equal(t, later.ID, schedules[1].ID)
}

func TestCancelSchedule_Idempotent(t *testing.T) {
	s, _, db := setupTest(t)
	ctx := context.Background()

	schedule, err := s.CreateSchedule(ctx, CreateScheduleParams{
		UserID:    "user-1",
		Asset:     "SOL",
		Amount:    0.5,
		Frequency: models.FrequencyDaily,
		StartTime: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, s.CancelSchedule(ctx, schedule.ID))
	require.NoError(t, s.CancelSchedule(ctx, schedule.ID))

	var stored models.TradeSchedule
	require.NoError(t, db.First(&stored, "id = ?", schedule.ID).Error)
	assert.False(t, stored.IsActive)
}

func TestFireDue_SkipsInFlightSchedule(t *testing.T) {
	s, mockRunner, _ := setupTest(t)
	ctx := context.Background()

	schedule, err := s.CreateSchedule(ctx, CreateScheduleParams{
		UserID:    "user-1",
		Asset:     "SOL",
		Amount:    0.5,
		Frequency: models.FrequencyHourly,
		StartTime: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	// Simulate a previous firing still in flight.
	require.True(t, s.tryAcquire(schedule.ID))

	require.NoError(t, s.fireDue(ctx))
	mockRunner.AssertNotCalled(t, "RunTrade", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	s.release(schedule.ID)

	mockRunner.On("RunTrade", mock.Anything, "user-1", "SOL", 0.5).Return("exec-1", nil)
	require.NoError(t, s.fireDue(ctx))
	mockRunner.AssertExpectations(t)
}
