package executor

import (
	"context"
	"fmt"
	"time"

	"solana-intent-bot/internal/completion"
	"solana-intent-bot/internal/config"
	"solana-intent-bot/internal/models"
	"solana-intent-bot/internal/validator"
	"solana-intent-bot/internal/venue"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const planSystemPrompt = `You are a trade execution planner. Given a strategy and trade
parameters, reply with a single JSON object describing how to work the order:
{"order_type": "market"|"limit", "urgency": "low"|"medium"|"high",
"split_order": true|false, "max_price_impact": percentage}. No prose outside the JSON.`

// TradeMetrics are post-trade measurements. Fees and price impact are
// best-effort lookups and may be zero when the follow-up calls fail.
type TradeMetrics struct {
	ExecutionTime time.Duration `json:"execution_time"`
	PriceImpact   float64       `json:"price_impact"`
	FeeLamports   uint64        `json:"fee_lamports"`
	Price         float64       `json:"price"`
}

// TradeResult is the outcome of one dispatched order.
type TradeResult struct {
	Status    string       `json:"status"`
	Signature string       `json:"signature,omitempty"`
	Metrics   TradeMetrics `json:"metrics"`
}

// orderPlan is the internal execution plan derived from the strategy.
// It is never user-visible.
type orderPlan struct {
	OrderType      string
	Urgency        string
	SplitOrder     bool
	MaxPriceImpact float64
}

// Executor converts a strategy plus validated parameters into a single
// dispatched venue order.
type Executor struct {
	completions   completion.ClientInterface
	venue         venue.RestClientInterface
	execValidator *validator.ExecutionValidator
	cfg           *config.Trading
	logger        *zap.Logger
}

// NewExecutor creates a new trade executor.
func NewExecutor(
	completions completion.ClientInterface,
	venueClient venue.RestClientInterface,
	execValidator *validator.ExecutionValidator,
	cfg *config.Trading,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		completions:   completions,
		venue:         venueClient,
		execValidator: execValidator,
		cfg:           cfg,
		logger:        logger.Named("executor"),
	}
}

// Execute validates, plans and dispatches exactly one buy-or-sell order.
// side is "BUY" or "SELL"; the quoted asset is always the configured
// reference stable asset. Dispatch failures are fatal to the attempt and
// returned wrapped; metric lookups are best-effort.
func (e *Executor) Execute(ctx context.Context, strategy, side string, params models.TradeParameters) (*TradeResult, error) {
	if err := e.execValidator.ValidateForExecution(ctx, params); err != nil {
		return nil, fmt.Errorf("execution validation failed: %w", err)
	}
	if params.Amount == nil || *params.Amount <= 0 {
		return nil, fmt.Errorf("execution validation failed: %w",
			&validator.ValidationError{Reason: "amount is required for execution"})
	}

	plan := e.deriveOrderPlan(ctx, strategy, params)

	slippage := e.cfg.DefaultSlippage
	if params.Slippage != nil {
		slippage = *params.Slippage
	}
	maxSlippageBps := int(slippage * 100)

	var fromAsset, toAsset string
	switch side {
	case "BUY":
		fromAsset, toAsset = e.cfg.QuoteAsset, params.Asset
	case "SELL":
		fromAsset, toAsset = params.Asset, e.cfg.QuoteAsset
	default:
		return nil, fmt.Errorf("unknown order side %q", side)
	}

	l := e.logger.With(
		zap.String("asset", params.Asset),
		zap.String("side", side),
		zap.Float64("amount", *params.Amount),
		zap.String("order_type", plan.OrderType),
		zap.String("urgency", plan.Urgency),
	)
	l.Info("Dispatching order")

	start := time.Now()
	signature, err := e.venue.SubmitOrder(ctx, fromAsset, toAsset, *params.Amount, maxSlippageBps)
	if err != nil {
		l.Error("Order dispatch failed", zap.Error(err))
		return nil, fmt.Errorf("failed to execute %s order for %s: %w", side, params.Asset, err)
	}
	executionTime := time.Since(start)

	metrics := TradeMetrics{ExecutionTime: executionTime}
	details, err := e.venue.GetTransactionDetails(ctx, signature)
	if err != nil {
		// Metric lookups never fail an otherwise-successful trade.
		l.Warn("Post-trade metrics lookup failed, reporting defaults", zap.Error(err))
	} else {
		metrics.PriceImpact = details.PriceImpact
		metrics.FeeLamports = details.FeeLamports
		metrics.Price = details.Price
	}

	l.Info("Order executed",
		zap.String("signature", signature),
		zap.Duration("execution_time", executionTime),
	)

	return &TradeResult{
		Status:    "success",
		Signature: signature,
		Metrics:   metrics,
	}, nil
}

// deriveOrderPlan asks the completion service how to work the order. The
// derivation is advisory: any failure falls back to a plain market order.
func (e *Executor) deriveOrderPlan(ctx context.Context, strategy string, params models.TradeParameters) orderPlan {
	plan := orderPlan{
		OrderType:      "market",
		Urgency:        "medium",
		SplitOrder:     false,
		MaxPriceImpact: e.cfg.MaxPriceImpact,
	}

	amount := 0.0
	if params.Amount != nil {
		amount = *params.Amount
	}
	prompt := fmt.Sprintf("Strategy: %s\nAsset: %s\nAmount: %g\nTimeframe: %s",
		strategy, params.Asset, amount, params.Timeframe)

	reply, err := e.completions.Complete(ctx, planSystemPrompt, prompt)
	if err != nil {
		e.logger.Warn("Order plan derivation failed, using market order defaults", zap.Error(err))
		return plan
	}

	if v := gjson.Get(reply, "order_type"); v.Exists() && (v.String() == "market" || v.String() == "limit") {
		plan.OrderType = v.String()
	}
	if v := gjson.Get(reply, "urgency"); v.Exists() {
		plan.Urgency = v.String()
	}
	if v := gjson.Get(reply, "split_order"); v.Exists() {
		plan.SplitOrder = v.Bool()
	}
	if v := gjson.Get(reply, "max_price_impact"); v.Exists() && v.Float() > 0 {
		plan.MaxPriceImpact = v.Float()
	}

	return plan
}
