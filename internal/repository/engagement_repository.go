package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tynles/internal/model"
)

// EngagementRepository stores nudge cooldown state.
type EngagementRepository struct {
	db *gorm.DB
}

func NewEngagementRepository(db *gorm.DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// Find returns the stored state or an empty one for the pair.
func (r *EngagementRepository) Find(ctx context.Context, spaceID, userID uint) (model.EngagementState, error) {
	var state model.EngagementState
	err := r.db.WithContext(ctx).Where("space_id = ? AND user_id = ?", spaceID, userID).Limit(1).Find(&state).Error
	if err != nil {
		return model.EngagementState{}, fmt.Errorf("find engagement: %w", err)
	}
	if state.ID == 0 {
		return model.EngagementState{SpaceID: spaceID, UserID: userID}, nil
	}
	return state, nil
}

func (r *EngagementRepository) Save(ctx context.Context, state *model.EngagementState) error {
	if state.ID != 0 {
		if err := r.db.WithContext(ctx).Save(state).Error; err != nil {
			return fmt.Errorf("save engagement: %w", err)
		}
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "space_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_nudge_at", "last_beg_at", "last_reengage_at", "last_streak_bonus_at", "updated_at",
		}),
	}).Create(state).Error
	if err != nil {
		return fmt.Errorf("save engagement: %w", err)
	}
	return nil
}
