package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"solana-intent-bot/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrExecutionNotFound is returned when no execution exists for an id.
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrInvalidTransition is returned for an illegal lifecycle transition.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// legalSuccessors encodes the lifecycle state machine:
// pending -> executing -> {completed | failed}. Terminal states have no
// successors. A pending execution may fail directly when validation
// rejects it before dispatch.
var legalSuccessors = map[models.ExecutionStatus][]models.ExecutionStatus{
	models.ExecutionPending:   {models.ExecutionExecuting, models.ExecutionFailed},
	models.ExecutionExecuting: {models.ExecutionCompleted, models.ExecutionFailed},
	models.ExecutionCompleted: {},
	models.ExecutionFailed:    {},
}

// Subscription registers a real-time observer on one execution id.
// Callbacks are invoked synchronously while the tracker lock is held, so
// they must return quickly and must not call back into the tracker.
type Subscription struct {
	ExecutionID string
	OnUpdate    func(models.TradeStatusUpdate)
	OnComplete  func(models.TradeExecution)
	OnError     func(models.TradeExecution)
}

// Tracker owns the lifecycle state machine for trade executions, their
// append-only status logs and the fan-out to subscribers. It is the single
// writer of lifecycle transitions; all other components only append
// diagnostic updates or read snapshots.
type Tracker struct {
	db     *gorm.DB
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[string]map[int]Subscription
	nextSubID   int
}

// NewTracker creates a new execution status tracker.
func NewTracker(db *gorm.DB, logger *zap.Logger) *Tracker {
	return &Tracker{
		db:          db,
		logger:      logger.Named("tracker"),
		subscribers: make(map[string]map[int]Subscription),
	}
}

// CreateExecution records a new execution in the pending state.
func (t *Tracker) CreateExecution(ctx context.Context, userID, asset string, amount float64) (*models.TradeExecution, error) {
	execution := models.TradeExecution{
		ID:     uuid.NewString(),
		UserID: userID,
		Asset:  asset,
		Amount: amount,
		Status: models.ExecutionPending,
	}

	if err := t.db.WithContext(ctx).Create(&execution).Error; err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	t.logger.Info("Execution created",
		zap.String("execution_id", execution.ID),
		zap.String("asset", asset),
		zap.Float64("amount", amount),
	)

	if _, err := t.AddStatusUpdate(ctx, execution.ID, models.UpdateInfo, "Execution created", nil); err != nil {
		t.logger.Warn("Failed to append initial status update", zap.Error(err))
	}

	return &execution, nil
}

// GetExecutionStatus returns the current snapshot of one execution.
func (t *Tracker) GetExecutionStatus(ctx context.Context, id string) (*models.TradeExecution, error) {
	var execution models.TradeExecution
	err := t.db.WithContext(ctx).First(&execution, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
	}
	return &execution, nil
}

// GetStatusUpdates returns the full status log for one execution, oldest first.
func (t *Tracker) GetStatusUpdates(ctx context.Context, id string) ([]models.TradeStatusUpdate, error) {
	var updates []models.TradeStatusUpdate
	err := t.db.WithContext(ctx).
		Where("execution_id = ?", id).
		Order("id asc").
		Find(&updates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load status updates for %s: %w", id, err)
	}
	return updates, nil
}

// AddStatusUpdate appends one entry to an execution's status log and fans it
// out to subscribers. Diagnostic updates are accepted even after a terminal
// state; only lifecycle transitions are restricted.
func (t *Tracker) AddStatusUpdate(ctx context.Context, id string, level models.UpdateLevel, message string, details map[string]any) (*models.TradeStatusUpdate, error) {
	if _, err := t.GetExecutionStatus(ctx, id); err != nil {
		return nil, err
	}

	var encoded string
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to encode update details: %w", err)
		}
		encoded = string(raw)
	}

	update := models.TradeStatusUpdate{
		ExecutionID: id,
		Level:       level,
		Message:     message,
		Details:     encoded,
	}

	// Insert and fan out under the lock so subscribers observe updates in
	// exactly the append order.
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.db.WithContext(ctx).Create(&update).Error; err != nil {
		return nil, fmt.Errorf("failed to append status update: %w", err)
	}

	for _, sub := range t.subscribers[id] {
		if sub.OnUpdate != nil {
			sub.OnUpdate(update)
		}
	}

	return &update, nil
}

// UpdateExecutionStatus applies a lifecycle transition. An illegal successor
// fails loudly with ErrInvalidTransition; nothing is coerced.
func (t *Tracker) UpdateExecutionStatus(ctx context.Context, id string, newStatus models.ExecutionStatus, details map[string]any) error {
	execution, err := t.GetExecutionStatus(ctx, id)
	if err != nil {
		return err
	}

	if !isLegalSuccessor(execution.Status, newStatus) {
		return fmt.Errorf("%w: %s -> %s for execution %s",
			ErrInvalidTransition, execution.Status, newStatus, id)
	}

	if err := t.db.WithContext(ctx).Model(execution).Update("status", newStatus).Error; err != nil {
		return fmt.Errorf("failed to update execution status: %w", err)
	}
	execution.Status = newStatus

	level := models.UpdateInfo
	switch newStatus {
	case models.ExecutionCompleted:
		level = models.UpdateSuccess
	case models.ExecutionFailed:
		level = models.UpdateError
	}

	if _, err := t.AddStatusUpdate(ctx, id, level, fmt.Sprintf("Status changed to %s", newStatus), details); err != nil {
		t.logger.Warn("Failed to append transition status update", zap.Error(err))
	}

	t.logger.Info("Execution status updated",
		zap.String("execution_id", id),
		zap.String("status", string(newStatus)),
	)

	if newStatus.IsTerminal() {
		t.notifyTerminal(*execution)
	}

	return nil
}

// SetExecutionResult stores the dispatch outcome fields on the execution row.
func (t *Tracker) SetExecutionResult(ctx context.Context, id, signature string, price, priceImpact float64, feeLamports uint64) error {
	updates := map[string]any{
		"tx_signature": signature,
		"price":        price,
		"price_impact": priceImpact,
		"fee_lamports": feeLamports,
	}
	err := t.db.WithContext(ctx).
		Model(&models.TradeExecution{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to store execution result: %w", err)
	}
	return nil
}

// Subscribe registers an observer for one execution id and returns an
// unsubscribe function. Cancellation is synchronous: once unsubscribe
// returns, no further callback fires for that observer.
func (t *Tracker) Subscribe(sub Subscription) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.subscribers[sub.ExecutionID] == nil {
		t.subscribers[sub.ExecutionID] = make(map[int]Subscription)
	}
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[sub.ExecutionID][id] = sub

	executionID := sub.ExecutionID
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subscribers[executionID], id)
	}
}

// notifyTerminal invokes OnComplete or OnError for every subscriber.
// A terminal state is entered at most once per execution, so each callback
// fires at most once per subscriber.
func (t *Tracker) notifyTerminal(execution models.TradeExecution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, sub := range t.subscribers[execution.ID] {
		switch execution.Status {
		case models.ExecutionCompleted:
			if sub.OnComplete != nil {
				sub.OnComplete(execution)
			}
		case models.ExecutionFailed:
			if sub.OnError != nil {
				sub.OnError(execution)
			}
		}
	}
}

func isLegalSuccessor(from, to models.ExecutionStatus) bool {
	for _, s := range legalSuccessors[from] {
		if s == to {
			return true
		}
	}
	return false
}
