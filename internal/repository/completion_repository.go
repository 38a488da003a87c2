package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tynles/internal/model"
)

// MemberKey identifies a user inside a space.
type MemberKey struct {
	SpaceID uint
	UserID  uint
}

// CompletionRepository reads the append-only completion history.
type CompletionRepository struct {
	db *gorm.DB
}

func NewCompletionRepository(db *gorm.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// LastCompletedAt returns the user's most recent completion in the space, or nil.
func (r *CompletionRepository) LastCompletedAt(ctx context.Context, spaceID, userID uint) (*time.Time, error) {
	var rec model.TaskCompletion
	err := r.db.WithContext(ctx).
		Where("space_id = ? AND user_id = ?", spaceID, userID).
		Order("completed_at DESC").
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("last completion: %w", err)
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec.CompletedAt, nil
}

func (r *CompletionRepository) CountSince(ctx context.Context, spaceID, userID uint, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.TaskCompletion{}).
		Where("space_id = ? AND user_id = ? AND completed_at >= ?", spaceID, userID, since.UTC()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}
	return count, nil
}

func (r *CompletionRepository) CountAll(ctx context.Context, spaceID, userID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.TaskCompletion{}).
		Where("space_id = ? AND user_id = ?", spaceID, userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}
	return count, nil
}

// CountsSince groups completions after since by space and user.
func (r *CompletionRepository) CountsSince(ctx context.Context, since time.Time) (map[MemberKey]int64, error) {
	var rows []struct {
		SpaceID uint
		UserID  uint
		Total   int64
	}
	if err := r.db.WithContext(ctx).Model(&model.TaskCompletion{}).
		Select("space_id, user_id, COUNT(*) AS total").
		Where("completed_at >= ?", since.UTC()).
		Group("space_id, user_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("group completions: %w", err)
	}
	out := make(map[MemberKey]int64, len(rows))
	for _, row := range rows {
		out[MemberKey{SpaceID: row.SpaceID, UserID: row.UserID}] = row.Total
	}
	return out, nil
}

func (r *CompletionRepository) ListByTask(ctx context.Context, taskID uint) ([]model.TaskCompletion, error) {
	var rows []model.TaskCompletion
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("user_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return rows, nil
}
