package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tynles/internal/model"
)

// XPChange is the before/after picture of one XP adjustment.
type XPChange struct {
	OldTotal int
	NewTotal int
	OldLevel int
	NewLevel int
}

// LeveledUp reports whether the adjustment crossed at least one level.
func (c XPChange) LeveledUp() bool {
	return c.NewLevel > c.OldLevel
}

// StatsRepository persists per-space XP and level.
type StatsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Find returns the stats row, or a fresh level-1 row when none exists yet.
func (r *StatsRepository) Find(ctx context.Context, spaceID, userID uint) (*model.UserSpaceStats, error) {
	var stats model.UserSpaceStats
	err := r.db.WithContext(ctx).Where("space_id = ? AND user_id = ?", spaceID, userID).Limit(1).Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("find stats: %w", err)
	}
	if stats.ID == 0 {
		return &model.UserSpaceStats{SpaceID: spaceID, UserID: userID, Level: 1}, nil
	}
	return &stats, nil
}

// ListAll returns every stats row, ordered by space then user.
func (r *StatsRepository) ListAll(ctx context.Context) ([]model.UserSpaceStats, error) {
	var rows []model.UserSpaceStats
	if err := r.db.WithContext(ctx).Order("space_id ASC, user_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	return rows, nil
}

// Leaderboard returns the space's rows, highest XP first.
func (r *StatsRepository) Leaderboard(ctx context.Context, spaceID uint) ([]model.UserSpaceStats, error) {
	var rows []model.UserSpaceStats
	if err := r.db.WithContext(ctx).Where("space_id = ?", spaceID).
		Order("total_xp DESC, user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return rows, nil
}

// AdjustXP adds delta (which may be negative) to the user's total, clamped at
// zero, and rewrites the level computed by levelOf. The increment happens in
// the database so concurrent awards cannot overwrite each other. When record
// is non-nil it is appended in the same transaction.
func (r *StatsRepository) AdjustXP(ctx context.Context, spaceID, userID uint, delta int, levelOf func(totalXP int) int, record *model.TaskCompletion) (XPChange, error) {
	var change XPChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := model.UserSpaceStats{SpaceID: spaceID, UserID: userID, TotalXP: 0, Level: 1}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return fmt.Errorf("ensure stats: %w", err)
		}

		var before model.UserSpaceStats
		if err := tx.Where("space_id = ? AND user_id = ?", spaceID, userID).First(&before).Error; err != nil {
			return fmt.Errorf("load stats: %w", err)
		}

		if err := tx.Model(&model.UserSpaceStats{}).
			Where("id = ?", before.ID).
			Update("total_xp", gorm.Expr("MAX(total_xp + ?, 0)", delta)).Error; err != nil {
			return fmt.Errorf("add xp: %w", err)
		}

		var after model.UserSpaceStats
		if err := tx.First(&after, before.ID).Error; err != nil {
			return fmt.Errorf("reload xp: %w", err)
		}
		total := after.TotalXP
		level := levelOf(total)
		if err := tx.Model(&model.UserSpaceStats{}).Where("id = ?", before.ID).
			Update("level", level).Error; err != nil {
			return fmt.Errorf("set level: %w", err)
		}

		if record != nil {
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("record completion: %w", err)
			}
		}

		change = XPChange{
			OldTotal: before.TotalXP,
			NewTotal: total,
			OldLevel: before.Level,
			NewLevel: level,
		}
		return nil
	})
	return change, err
}
