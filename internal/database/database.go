package database

import (
	"fmt"

	"solana-intent-bot/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all persisted records.
// Existing rows are kept: executions and status updates are append-only
// history and schedules are only ever soft-deactivated.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.TradeSchedule{},
		&models.TradeExecution{},
		&models.TradeStatusUpdate{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
