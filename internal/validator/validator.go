package validator

import (
	"context"
	"errors"
	"fmt"

	"solana-intent-bot/internal/models"
	"solana-intent-bot/internal/venue"
)

// Result is the outcome of a synchronous parameter check.
type Result struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// ValidationError carries a human-readable reason for an execution-time
// rejection. The executor must propagate it, never swallow it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validator performs pure, synchronous rule checks over trade parameters.
type Validator struct {
	supported map[string]bool
}

// NewValidator creates a validator with the configured asset allow-list.
func NewValidator(supportedAssets []string) *Validator {
	supported := make(map[string]bool, len(supportedAssets))
	for _, asset := range supportedAssets {
		supported[asset] = true
	}
	return &Validator{supported: supported}
}

// Validate checks all rules independently and collects every violation.
// It has no I/O and no side effects.
func (v *Validator) Validate(params models.TradeParameters) Result {
	var errs []string

	if params.Amount != nil && *params.Amount <= 0 {
		errs = append(errs, "amount must be greater than 0")
	}
	if params.Price != nil && *params.Price <= 0 {
		errs = append(errs, "price must be greater than 0")
	}
	if params.StopLoss != nil && params.TakeProfit != nil && *params.StopLoss >= *params.TakeProfit {
		errs = append(errs, "stop loss must be less than take profit")
	}
	if params.Asset != "" && !v.supported[params.Asset] {
		errs = append(errs, fmt.Sprintf("unsupported asset: %s", params.Asset))
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}

// ExecutionValidator performs the additional checks required at execution
// time: the asset must resolve to a real venue account and slippage must be
// a sane percentage.
type ExecutionValidator struct {
	venue venue.RestClientInterface
}

// NewExecutionValidator creates an execution-time validator.
func NewExecutionValidator(venueClient venue.RestClientInterface) *ExecutionValidator {
	return &ExecutionValidator{venue: venueClient}
}

// ValidateForExecution returns a *ValidationError when the parameters cannot
// be executed as-is.
func (v *ExecutionValidator) ValidateForExecution(ctx context.Context, params models.TradeParameters) error {
	if params.Asset == "" {
		return &ValidationError{Reason: "no asset specified for execution"}
	}

	if _, err := v.venue.GetAccountInfo(ctx, params.Asset); err != nil {
		if errors.Is(err, venue.ErrAssetNotFound) {
			return &ValidationError{Reason: fmt.Sprintf("asset %s does not resolve to a venue account", params.Asset)}
		}
		return &ValidationError{Reason: fmt.Sprintf("could not verify asset %s: %v", params.Asset, err)}
	}

	if params.Slippage != nil && (*params.Slippage < 0 || *params.Slippage > 100) {
		return &ValidationError{Reason: fmt.Sprintf("slippage %.2f%% is outside the allowed range [0, 100]", *params.Slippage)}
	}

	return nil
}
