package models

import "time"

// ExecutionStatus is the lifecycle state of a single trade execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionExecuting ExecutionStatus = "executing"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further lifecycle transition may leave s.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// TradeExecution is one attempted trade, manual or scheduled.
// Lifecycle transitions are owned exclusively by the status tracker.
type TradeExecution struct {
	ID          string          `gorm:"primaryKey" json:"id"`
	UserID      string          `gorm:"index" json:"user_id"`
	Asset       string          `json:"asset"`
	Amount      float64         `json:"amount"`
	Status      ExecutionStatus `gorm:"index" json:"status"`
	TxSignature string          `json:"tx_signature,omitempty"`
	Price       float64         `json:"price,omitempty"`
	FeeLamports uint64          `json:"fee_lamports,omitempty"`
	PriceImpact float64         `json:"price_impact,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
