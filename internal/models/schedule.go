package models

import "time"

// Frequency is how often a recurring trade schedule fires.
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// TradeSchedule is a recurring trade definition. It is mutated only by the
// scheduler (on fire, cancel, or update) and logically deleted by setting
// IsActive=false; rows are never removed while history references them.
type TradeSchedule struct {
	ID                    string     `gorm:"primaryKey" json:"id"`
	UserID                string     `gorm:"index" json:"user_id"`
	Asset                 string     `json:"asset"`
	Amount                float64    `json:"amount"`
	Frequency             Frequency  `json:"frequency"`
	CustomIntervalMinutes int        `json:"custom_interval_minutes,omitempty"`
	StartTime             time.Time  `json:"start_time"`
	EndTime               *time.Time `json:"end_time,omitempty"`
	IsActive              bool       `gorm:"index" json:"is_active"`
	LastExecuted          *time.Time `json:"last_executed,omitempty"`
	NextExecution         time.Time  `gorm:"index" json:"next_execution"`
	ExecutionCount        int        `json:"execution_count"`
	MaxExecutions         *int       `json:"max_executions,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
