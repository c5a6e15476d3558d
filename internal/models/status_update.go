package models

import "time"

// UpdateLevel tags a status update entry.
type UpdateLevel string

const (
	UpdateInfo    UpdateLevel = "info"
	UpdateWarning UpdateLevel = "warning"
	UpdateError   UpdateLevel = "error"
	UpdateSuccess UpdateLevel = "success"
)

// TradeStatusUpdate is one entry in an execution's append-only status log.
// Entries are never mutated or deleted; insertion order is causal order
// for a given execution id.
type TradeStatusUpdate struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	ExecutionID string      `gorm:"index;not null" json:"execution_id"`
	Level       UpdateLevel `json:"level"`
	Message     string      `json:"message"`
	Details     string      `json:"details,omitempty"` // JSON-encoded, optional
	CreatedAt   time.Time   `json:"created_at"`
}
