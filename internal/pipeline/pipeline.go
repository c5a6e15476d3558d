package pipeline

import (
	"context"
	"fmt"

	"solana-intent-bot/internal/completion"
	"solana-intent-bot/internal/config"
	"solana-intent-bot/internal/executor"
	"solana-intent-bot/internal/models"
	"solana-intent-bot/internal/parser"
	"solana-intent-bot/internal/tracker"
	"solana-intent-bot/internal/validator"

	"go.uber.org/zap"
)

// scheduledStrategy tags executions fired by the recurring-trade loop.
const scheduledStrategy = "scheduled_recurring_buy"

// MessageOutcome is the result of pushing one free-text instruction through
// the full pipeline.
type MessageOutcome struct {
	Parsed       parser.ParsedTradeMessage `json:"parsed"`
	Validation   validator.Result          `json:"validation"`
	AnalysisOnly bool                      `json:"analysis_only"`
	ExecutionID  string                    `json:"execution_id,omitempty"`
	Result       *executor.TradeResult     `json:"result,omitempty"`
}

// Pipeline wires the parser, validator, executor and tracker into the
// message-to-trade flow. The scheduler reuses the same execution path.
type Pipeline struct {
	completions completion.ClientInterface
	validator   *validator.Validator
	executor    *executor.Executor
	tracker     *tracker.Tracker
	cfg         *config.Trading
	logger      *zap.Logger
}

// NewPipeline creates the trade-intent pipeline.
func NewPipeline(
	completions completion.ClientInterface,
	paramValidator *validator.Validator,
	exec *executor.Executor,
	statusTracker *tracker.Tracker,
	cfg *config.Trading,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		completions: completions,
		validator:   paramValidator,
		executor:    exec,
		tracker:     statusTracker,
		cfg:         cfg,
		logger:      logger.Named("pipeline"),
	}
}

// NewConversation creates a parser with its own isolated conversation
// context. One parser per conversation; contexts are never shared.
func (p *Pipeline) NewConversation() *parser.Parser {
	return parser.NewParser(p.completions, p.logger)
}

// HandleMessage runs one instruction through parse, validate and execute.
// Low-confidence or non-actionable intents stop after parsing and are
// presented as analysis only; validation failures stop before dispatch.
// An execution failure is recorded in the status log and returned.
func (p *Pipeline) HandleMessage(ctx context.Context, conv *parser.Parser, userID, message string) (*MessageOutcome, error) {
	parsed := conv.Parse(ctx, message)
	outcome := &MessageOutcome{Parsed: parsed}

	if parsed.Confidence < p.cfg.MinActionableScore || !parsed.Intent.IsActionable() {
		outcome.AnalysisOnly = true
		return outcome, nil
	}

	outcome.Validation = p.validator.Validate(parsed.Parameters)
	if !outcome.Validation.IsValid {
		return outcome, nil
	}

	executionID, result, err := p.execute(ctx, userID, parsed.Parameters.Strategy, parsed.Intent.Side(), parsed.Parameters)
	outcome.ExecutionID = executionID
	if err != nil {
		return outcome, err
	}
	outcome.Result = result
	return outcome, nil
}

// RunTrade is the scheduler's entry into the execution path: a market buy
// of the scheduled asset and amount. It returns the execution id on success.
func (p *Pipeline) RunTrade(ctx context.Context, userID, asset string, amount float64) (string, error) {
	params := models.TradeParameters{
		Asset:    asset,
		Amount:   &amount,
		Strategy: scheduledStrategy,
	}
	executionID, _, err := p.execute(ctx, userID, scheduledStrategy, "BUY", params)
	if err != nil {
		return "", err
	}
	return executionID, nil
}

// execute runs one tracked execution: create, transition to executing,
// dispatch, then settle into completed or failed.
func (p *Pipeline) execute(ctx context.Context, userID, strategy, side string, params models.TradeParameters) (string, *executor.TradeResult, error) {
	amount := 0.0
	if params.Amount != nil {
		amount = *params.Amount
	}

	execution, err := p.tracker.CreateExecution(ctx, userID, params.Asset, amount)
	if err != nil {
		return "", nil, err
	}

	if err := p.tracker.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionExecuting, nil); err != nil {
		return execution.ID, nil, err
	}

	result, err := p.executor.Execute(ctx, strategy, side, params)
	if err != nil {
		p.recordFailure(ctx, execution.ID, err)
		return execution.ID, nil, fmt.Errorf("trade execution %s failed: %w", execution.ID, err)
	}

	if err := p.tracker.SetExecutionResult(ctx, execution.ID, result.Signature,
		result.Metrics.Price, result.Metrics.PriceImpact, result.Metrics.FeeLamports); err != nil {
		p.logger.Warn("Failed to store execution result", zap.Error(err))
	}

	details := map[string]any{
		"signature":      result.Signature,
		"execution_time": result.Metrics.ExecutionTime.String(),
	}
	if err := p.tracker.UpdateExecutionStatus(ctx, execution.ID, models.ExecutionCompleted, details); err != nil {
		return execution.ID, result, err
	}

	return execution.ID, result, nil
}

// recordFailure settles the execution into failed with the original error
// message attached to the status log.
func (p *Pipeline) recordFailure(ctx context.Context, executionID string, cause error) {
	details := map[string]any{"error": cause.Error()}
	if err := p.tracker.UpdateExecutionStatus(ctx, executionID, models.ExecutionFailed, details); err != nil {
		p.logger.Error("Failed to record execution failure",
			zap.String("execution_id", executionID),
			zap.Error(err),
		)
	}
}
