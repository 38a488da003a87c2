package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tynles/internal/leveling"
	"tynles/internal/model"
)

// SpaceRepository manages spaces, membership and the per-space level curve.
type SpaceRepository struct {
	db *gorm.DB
}

func NewSpaceRepository(db *gorm.DB) *SpaceRepository {
	return &SpaceRepository{db: db}
}

func (r *SpaceRepository) Create(ctx context.Context, space *model.Space) error {
	if err := r.db.WithContext(ctx).Create(space).Error; err != nil {
		return fmt.Errorf("create space: %w", err)
	}
	return nil
}

func (r *SpaceRepository) FindByID(ctx context.Context, spaceID uint) (*model.Space, error) {
	var space model.Space
	if err := r.db.WithContext(ctx).First(&space, spaceID).Error; err != nil {
		return nil, notFound(err)
	}
	return &space, nil
}

// AddMember joins userID to spaceID and creates the member's stats row.
// Joining twice is a no-op.
func (r *SpaceRepository) AddMember(ctx context.Context, spaceID, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member := model.SpaceMember{SpaceID: spaceID, UserID: userID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		stats := model.UserSpaceStats{SpaceID: spaceID, UserID: userID, TotalXP: 0, Level: 1}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&stats).Error; err != nil {
			return fmt.Errorf("create stats: %w", err)
		}
		return nil
	})
}

func (r *SpaceRepository) ListMemberIDs(ctx context.Context, spaceID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&model.SpaceMember{}).
		Where("space_id = ?", spaceID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return ids, nil
}

func (r *SpaceRepository) ListForUser(ctx context.Context, userID uint) ([]model.Space, error) {
	var spaces []model.Space
	if err := r.db.WithContext(ctx).
		Joins("JOIN space_members ON space_members.space_id = spaces.id").
		Where("space_members.user_id = ?", userID).
		Order("spaces.name ASC").
		Find(&spaces).Error; err != nil {
		return nil, err
	}
	return spaces, nil
}

func (r *SpaceRepository) IsMember(ctx context.Context, spaceID, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.SpaceMember{}).
		Where("space_id = ? AND user_id = ?", spaceID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// LevelTable loads the space's requirement overrides.
func (r *SpaceRepository) LevelTable(ctx context.Context, spaceID uint) (leveling.Table, error) {
	var rows []model.LevelRequirement
	if err := r.db.WithContext(ctx).Where("space_id = ?", spaceID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load level requirements: %w", err)
	}
	table := make(leveling.Table, len(rows))
	for _, row := range rows {
		table[row.Level] = row.XPRequired
	}
	return table, nil
}

func (r *SpaceRepository) SetRequirement(ctx context.Context, spaceID uint, level, xp int) error {
	row := model.LevelRequirement{SpaceID: spaceID, Level: level, XPRequired: xp}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "space_id"}, {Name: "level"}},
		DoUpdates: clause.AssignmentColumns([]string{"xp_required"}),
	}).Create(&row).Error
}

// RewardText returns the reward configured for level, or "" when none is.
func (r *SpaceRepository) RewardText(ctx context.Context, spaceID uint, level int) (string, error) {
	var reward model.LevelReward
	err := r.db.WithContext(ctx).Where("space_id = ? AND level = ?", spaceID, level).Limit(1).Find(&reward).Error
	if err != nil {
		return "", fmt.Errorf("find reward: %w", err)
	}
	return reward.Text, nil
}

func (r *SpaceRepository) SetReward(ctx context.Context, spaceID uint, level int, text string) error {
	row := model.LevelReward{SpaceID: spaceID, Level: level, Text: text}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "space_id"}, {Name: "level"}},
		DoUpdates: clause.AssignmentColumns([]string{"text"}),
	}).Create(&row).Error
}
