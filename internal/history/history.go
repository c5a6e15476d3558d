package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"solana-intent-bot/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSearchLimit = 10

// Filters narrow a transaction query. All set filters compose conjunctively.
type Filters struct {
	Statuses  []models.ExecutionStatus
	Asset     string
	From      *time.Time // inclusive
	To        *time.Time // inclusive
	MinAmount *float64
	MaxAmount *float64
}

// Page is one page of transaction results with offset-based pagination.
type Page struct {
	Data       []models.TradeExecution `json:"data"`
	Total      int64                   `json:"total"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"page_size"`
	TotalPages int                     `json:"total_pages"`
}

// Service is the read side over execution records. It is stateless relative
// to the write path and never fabricates partial results: datastore errors
// surface to the caller.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new transaction history service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger.Named("history")}
}

// GetTransactions returns one page of a user's executions, newest first.
func (s *Service) GetTransactions(ctx context.Context, userID string, filters Filters, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).
		Model(&models.TradeExecution{}).
		Where("user_id = ?", userID)
	query = applyFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var executions []models.TradeExecution
	err := query.
		Order("created_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&executions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	return &Page{
		Data:       executions,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func applyFilters(query *gorm.DB, filters Filters) *gorm.DB {
	if len(filters.Statuses) > 0 {
		query = query.Where("status IN ?", filters.Statuses)
	}
	if filters.Asset != "" {
		query = query.Where("asset = ?", filters.Asset)
	}
	if filters.From != nil {
		query = query.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("created_at <= ?", *filters.To)
	}
	if filters.MinAmount != nil {
		query = query.Where("amount >= ?", *filters.MinAmount)
	}
	if filters.MaxAmount != nil {
		query = query.Where("amount <= ?", *filters.MaxAmount)
	}
	return query
}

// GetTransactionsByAsset sums completed execution amounts per asset.
func (s *Service) GetTransactionsByAsset(ctx context.Context, userID string) (map[string]float64, error) {
	type assetRow struct {
		Asset string
		Total float64
	}

	var rows []assetRow
	err := s.db.WithContext(ctx).
		Model(&models.TradeExecution{}).
		Select("asset, SUM(amount) AS total").
		Where("user_id = ? AND status = ?", userID, models.ExecutionCompleted).
		Group("asset").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions by asset: %w", err)
	}

	totals := make(map[string]float64, len(rows))
	for _, row := range rows {
		totals[row.Asset] = row.Total
	}
	return totals, nil
}

// GetSuccessRate returns the percentage of a user's executions that
// completed. A user with no executions has a rate of 0.
func (s *Service) GetSuccessRate(ctx context.Context, userID string) (float64, error) {
	var total, completed int64

	err := s.db.WithContext(ctx).
		Model(&models.TradeExecution{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).
		Model(&models.TradeExecution{}).
		Where("user_id = ? AND status = ?", userID, models.ExecutionCompleted).
		Count(&completed).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count completed executions: %w", err)
	}

	return float64(completed) / float64(total) * 100, nil
}

// SearchTransactions matches the term case-insensitively against asset
// symbols and transaction signatures, most recent first.
func (s *Service) SearchTransactions(ctx context.Context, userID, term string, limit int) ([]models.TradeExecution, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	pattern := "%" + strings.ToLower(term) + "%"

	var executions []models.TradeExecution
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND (LOWER(asset) LIKE ? OR LOWER(tx_signature) LIKE ?)", userID, pattern, pattern).
		Order("created_at desc").
		Limit(limit).
		Find(&executions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search transactions: %w", err)
	}
	return executions, nil
}
