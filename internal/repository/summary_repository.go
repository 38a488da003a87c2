package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"tynles/internal/model"
)

// SummaryRepository stores weekly snapshots.
type SummaryRepository struct {
	db *gorm.DB
}

func NewSummaryRepository(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Latest returns the newest snapshot for the pair, or nil.
func (r *SummaryRepository) Latest(ctx context.Context, spaceID, userID uint) (*model.WeeklySummary, error) {
	var summary model.WeeklySummary
	err := r.db.WithContext(ctx).
		Where("space_id = ? AND user_id = ?", spaceID, userID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&summary).Error
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	if summary.ID == 0 {
		return nil, nil
	}
	return &summary, nil
}

func (r *SummaryRepository) Exists(ctx context.Context, spaceID, userID uint, weekKey string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.WeeklySummary{}).
		Where("space_id = ? AND user_id = ? AND week_key = ?", spaceID, userID, weekKey).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("find summary: %w", err)
	}
	return count > 0, nil
}

func (r *SummaryRepository) Create(ctx context.Context, summary *model.WeeklySummary) error {
	if err := r.db.WithContext(ctx).Create(summary).Error; err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	return nil
}
