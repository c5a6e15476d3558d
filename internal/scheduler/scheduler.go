package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"solana-intent-bot/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrUnknownFrequency is a fatal configuration error: a schedule carries a
// frequency the scheduler cannot compute a next fire for.
var ErrUnknownFrequency = errors.New("unknown schedule frequency")

// TradeRunner executes one trade attempt end to end and returns the
// execution id. The scheduler stays ignorant of parsing and validation.
type TradeRunner interface {
	RunTrade(ctx context.Context, userID, asset string, amount float64) (string, error)
}

// CreateScheduleParams are the caller-supplied fields of a new schedule.
type CreateScheduleParams struct {
	UserID                string
	Asset                 string
	Amount                float64
	Frequency             models.Frequency
	CustomIntervalMinutes int
	StartTime             time.Time
	EndTime               *time.Time
	MaxExecutions         *int
}

// ScheduleExecutionResult is the outcome of one schedule firing.
type ScheduleExecutionResult struct {
	Success       bool      `json:"success"`
	TradeID       string    `json:"trade_id,omitempty"`
	Err           error     `json:"-"`
	ExecutionTime time.Time `json:"execution_time"`
}

// Scheduler owns recurring trade schedules: creation, next-fire computation,
// firing and deactivation. Firings of different schedules run concurrently;
// firings of the same schedule never overlap.
type Scheduler struct {
	db           *gorm.DB
	runner       TradeRunner
	logger       *zap.Logger
	tickInterval time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewScheduler creates a new scheduler.
func NewScheduler(db *gorm.DB, runner TradeRunner, tickInterval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		db:           db,
		runner:       runner,
		logger:       logger.Named("scheduler"),
		tickInterval: tickInterval,
		inFlight:     make(map[string]bool),
	}
}

// CreateSchedule persists a new active schedule with its first fire at StartTime.
func (s *Scheduler) CreateSchedule(ctx context.Context, params CreateScheduleParams) (*models.TradeSchedule, error) {
	schedule := models.TradeSchedule{
		ID:                    uuid.NewString(),
		UserID:                params.UserID,
		Asset:                 params.Asset,
		Amount:                params.Amount,
		Frequency:             params.Frequency,
		CustomIntervalMinutes: params.CustomIntervalMinutes,
		StartTime:             params.StartTime,
		EndTime:               params.EndTime,
		IsActive:              true,
		NextExecution:         params.StartTime,
		ExecutionCount:        0,
		MaxExecutions:         params.MaxExecutions,
	}

	// Reject unfireable schedules up front rather than at the first tick.
	if _, err := CalculateNextExecution(&schedule); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&schedule).Error; err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.Info("Schedule created",
		zap.String("schedule_id", schedule.ID),
		zap.String("asset", schedule.Asset),
		zap.String("frequency", string(schedule.Frequency)),
		zap.Time("next_execution", schedule.NextExecution),
	)

	return &schedule, nil
}

// CalculateNextExecution is a pure function of the schedule's frequency and
// the later of LastExecuted and StartTime.
func CalculateNextExecution(schedule *models.TradeSchedule) (time.Time, error) {
	base := schedule.StartTime
	if schedule.LastExecuted != nil && schedule.LastExecuted.After(base) {
		base = *schedule.LastExecuted
	}

	switch schedule.Frequency {
	case models.FrequencyHourly:
		return base.Add(time.Hour), nil
	case models.FrequencyDaily:
		return base.Add(24 * time.Hour), nil
	case models.FrequencyWeekly:
		return base.Add(7 * 24 * time.Hour), nil
	case models.FrequencyMonthly:
		return base.AddDate(0, 1, 0), nil
	case models.FrequencyCustom:
		if schedule.CustomIntervalMinutes <= 0 {
			return time.Time{}, fmt.Errorf("%w: custom frequency requires a positive interval", ErrUnknownFrequency)
		}
		return base.Add(time.Duration(schedule.CustomIntervalMinutes) * time.Minute), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, schedule.Frequency)
	}
}

// ExecuteScheduledTrade fires one schedule. On success the schedule's
// counters advance and the next fire is computed; on failure the schedule is
// left untouched so the next natural fire retries it.
func (s *Scheduler) ExecuteScheduledTrade(ctx context.Context, schedule *models.TradeSchedule) ScheduleExecutionResult {
	result := ScheduleExecutionResult{ExecutionTime: time.Now()}

	tradeID, err := s.runner.RunTrade(ctx, schedule.UserID, schedule.Asset, schedule.Amount)
	if err != nil {
		s.logger.Error("Scheduled trade failed",
			zap.String("schedule_id", schedule.ID),
			zap.Error(err),
		)
		result.Err = err
		return result
	}

	now := time.Now()
	schedule.LastExecuted = &now
	schedule.ExecutionCount++

	next, err := CalculateNextExecution(schedule)
	if err != nil {
		// Frequency was validated at creation; this only happens after a bad
		// manual edit. Deactivate rather than fire in a tight loop.
		s.logger.Error("Cannot compute next fire, deactivating schedule",
			zap.String("schedule_id", schedule.ID),
			zap.Error(err),
		)
		schedule.IsActive = false
	} else {
		schedule.NextExecution = next
		schedule.IsActive = schedule.MaxExecutions == nil || schedule.ExecutionCount < *schedule.MaxExecutions
		if schedule.EndTime != nil && next.After(*schedule.EndTime) {
			schedule.IsActive = false
		}
	}

	if err := s.db.WithContext(ctx).Save(schedule).Error; err != nil {
		result.Err = fmt.Errorf("trade executed but schedule update failed: %w", err)
		return result
	}

	result.Success = true
	result.TradeID = tradeID

	s.logger.Info("Scheduled trade executed",
		zap.String("schedule_id", schedule.ID),
		zap.String("trade_id", tradeID),
		zap.Int("execution_count", schedule.ExecutionCount),
		zap.Bool("is_active", schedule.IsActive),
	)

	return result
}

// GetActiveSchedules returns a user's active schedules, soonest due first.
// Fire loops must process in this order so earlier-due schedules never starve.
func (s *Scheduler) GetActiveSchedules(ctx context.Context, userID string) ([]models.TradeSchedule, error) {
	var schedules []models.TradeSchedule
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("next_execution asc").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active schedules: %w", err)
	}
	return schedules, nil
}

// CancelSchedule deactivates a schedule. Idempotent: cancelling an already
// inactive or unknown schedule is not an error.
func (s *Scheduler) CancelSchedule(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).
		Model(&models.TradeSchedule{}).
		Where("id = ?", id).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("failed to cancel schedule: %w", err)
	}
	s.logger.Info("Schedule cancelled", zap.String("schedule_id", id))
	return nil
}

// Run starts the fire loop and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("Starting schedule fire loop", zap.Duration("interval", s.tickInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping schedule fire loop")
			return
		case <-ticker.C:
			if err := s.fireDue(ctx); err != nil {
				s.logger.Error("Fire cycle failed", zap.Error(err))
			}
		}
	}
}

// fireDue loads all due active schedules ordered soonest first and fires
// them concurrently. A schedule whose previous firing is still in flight is
// skipped; its next attempt comes on a later tick.
func (s *Scheduler) fireDue(ctx context.Context) error {
	var due []models.TradeSchedule
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND next_execution <= ?", true, time.Now()).
		Order("next_execution asc").
		Find(&due).Error
	if err != nil {
		return fmt.Errorf("failed to load due schedules: %w", err)
	}

	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range due {
		schedule := due[i]
		if !s.tryAcquire(schedule.ID) {
			s.logger.Debug("Previous firing still in flight, skipping",
				zap.String("schedule_id", schedule.ID))
			continue
		}
		g.Go(func() error {
			defer s.release(schedule.ID)
			result := s.ExecuteScheduledTrade(gctx, &schedule)
			if !result.Success {
				s.logger.Warn("Schedule firing did not succeed",
					zap.String("schedule_id", schedule.ID),
					zap.Error(result.Err),
				)
			}
			// A failed firing is transient for the schedule; never abort the
			// whole cycle over it.
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) tryAcquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}
