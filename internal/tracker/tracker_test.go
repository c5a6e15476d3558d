package tracker

import (
	"context"
	"testing"

	"solana-intent-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTest creates a tracker backed by a fresh in-memory database.
func setupTest(t *testing.T) *Tracker {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.TradeExecution{}, &models.TradeStatusUpdate{})
	require.NoError(t, err)

	return NewTracker(db, zap.NewNop())
}

func TestCreateExecution(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)
	assert.NotEmpty(t, execution.ID)
	assert.Equal(t, models.ExecutionPending, execution.Status)

	// Creation appends an initial status log entry.
	updates, err := tr.GetStatusUpdates(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, models.UpdateInfo, updates[0].Level)
}

func TestGetExecutionStatus_NotFound(t *testing.T) {
	tr := setupTest(t)

	_, err := tr.GetExecutionStatus(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestUpdateExecutionStatus_LegalSequence(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)

	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionExecuting, nil))
	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionCompleted, nil))

	current, err := tr.GetExecutionStatus(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, current.Status)
}

func TestUpdateExecutionStatus_IllegalTransition(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)

	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionExecuting, nil))
	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionCompleted, nil))

	// Terminal states admit no further lifecycle transition.
	err = tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionExecuting, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionPending, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateExecutionStatus_SkippingExecutingIsIllegal(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)

	err = tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionCompleted, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAddStatusUpdate_AfterTerminalState(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)
	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionExecuting, nil))
	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionFailed, nil))

	// Diagnostic updates are still accepted after a terminal state.
	update, err := tr.AddStatusUpdate(ctx, execution.ID, models.UpdateInfo, "post-mortem detail", nil)
	require.NoError(t, err)
	assert.Equal(t, "post-mortem detail", update.Message)

	updates, err := tr.GetStatusUpdates(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "post-mortem detail", updates[len(updates)-1].Message)
}

func TestAddStatusUpdate_UnknownExecution(t *testing.T) {
	tr := setupTest(t)

	_, err := tr.AddStatusUpdate(context.Background(), "no-such-id", models.UpdateInfo, "hello", nil)
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestGetStatusUpdates_OldestFirst(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)

	_, err = tr.AddStatusUpdate(ctx, execution.ID, models.UpdateInfo, "first", nil)
	require.NoError(t, err)
	_, err = tr.AddStatusUpdate(ctx, execution.ID, models.UpdateWarning, "second", nil)
	require.NoError(t, err)

	updates, err := tr.GetStatusUpdates(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, updates, 3) // creation entry + two appends
	assert.Equal(t, "first", updates[1].Message)
	assert.Equal(t, "second", updates[2].Message)
}

func TestSubscribe_FanOutInOrder(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)

	var first, second []string
	var firstCompleted, secondCompleted int

	unsub1 := tr.Subscribe(Subscription{
		ExecutionID: execution.ID,
		OnUpdate:    func(u models.TradeStatusUpdate) { first = append(first, u.Message) },
		OnComplete:  func(models.TradeExecution) { firstCompleted++ },
	})
	defer unsub1()
	unsub2 := tr.Subscribe(Subscription{
		ExecutionID: execution.ID,
		OnUpdate:    func(u models.TradeStatusUpdate) { second = append(second, u.Message) },
		OnComplete:  func(models.TradeExecution) { secondCompleted++ },
	})
	defer unsub2()

	_, err = tr.AddStatusUpdate(ctx, execution.ID, models.UpdateInfo, "a", nil)
	require.NoError(t, err)
	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionExecuting, nil))
	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionCompleted, nil))

	// Both observers see every update in identical causal order.
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a", "Status changed to executing", "Status changed to completed"}, first)
	assert.Equal(t, 1, firstCompleted)
	assert.Equal(t, 1, secondCompleted)
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)

	var gone, stays int
	unsubGone := tr.Subscribe(Subscription{
		ExecutionID: execution.ID,
		OnUpdate:    func(models.TradeStatusUpdate) { gone++ },
	})
	unsubStays := tr.Subscribe(Subscription{
		ExecutionID: execution.ID,
		OnUpdate:    func(models.TradeStatusUpdate) { stays++ },
	})
	defer unsubStays()

	_, err = tr.AddStatusUpdate(ctx, execution.ID, models.UpdateInfo, "before", nil)
	require.NoError(t, err)

	unsubGone()

	_, err = tr.AddStatusUpdate(ctx, execution.ID, models.UpdateInfo, "after", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, gone)
	assert.Equal(t, 2, stays)
}

func TestSubscribe_OnErrorFiresOnceOnFailure(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)

	var failures int
	unsub := tr.Subscribe(Subscription{
		ExecutionID: execution.ID,
		OnError:     func(e models.TradeExecution) { failures++ },
	})
	defer unsub()

	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionExecuting, nil))
	require.NoError(t, tr.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionFailed,
		map[string]any{"error": "insufficient liquidity"}))

	assert.Equal(t, 1, failures)

	// Further diagnostics never re-fire the terminal callback.
	_, err = tr.AddStatusUpdate(ctx, execution.ID, models.UpdateInfo, "cleanup", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
}

func TestSetExecutionResult(t *testing.T) {
	tr := setupTest(t)
	ctx := context.Background()

	execution, err := tr.CreateExecution(ctx, "user-1", "SOL", 2.0)
	require.NoError(t, err)

	require.NoError(t, tr.SetExecutionResult(ctx, execution.ID, "5xAbCsig", 148.2, 0.02, 5000))

	current, err := tr.GetExecutionStatus(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "5xAbCsig", current.TxSignature)
	assert.Equal(t, 148.2, current.Price)
	assert.Equal(t, uint64(5000), current.FeeLamports)
}
