package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sadar/internal/model"
)

// MaxHistoryPage bounds how many entries one history read returns.
const MaxHistoryPage = 100

// HistoryRepository is the append-only history ledger.
type HistoryRepository interface {
	Create(ctx context.Context, entry *model.History) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.History, error)
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// Create appends a history entry.
func (r *historyRepository) Create(ctx context.Context, entry *model.History) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(entry).Error; err != nil {
		return fmt.Errorf("create history: %w", err)
	}
	return nil
}

// ListByUser returns the user's newest entries first. limit is clamped to [1, MaxHistoryPage].
func (r *historyRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.History, error) {
	if limit <= 0 || limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}
	var entries []model.History
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}
