package model

import (
	"time"

	"gorm.io/datatypes"
)

// Space is the tenant boundary for tasks, members and stats.
type Space struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SpaceMember links a user to a space.
type SpaceMember struct {
	ID        uint `gorm:"primaryKey"`
	SpaceID   uint `gorm:"uniqueIndex:idx_member_space_user"`
	UserID    uint `gorm:"uniqueIndex:idx_member_space_user"`
	CreatedAt time.Time
}

// UserSpaceStats is the XP and level of a user inside a space. Both fields
// are always written together.
type UserSpaceStats struct {
	ID        uint `gorm:"primaryKey"`
	SpaceID   uint `gorm:"uniqueIndex:idx_stats_space_user"`
	UserID    uint `gorm:"uniqueIndex:idx_stats_space_user"`
	TotalXP   int
	Level     int `gorm:"default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LevelRequirement overrides the XP needed to advance from Level in a space.
type LevelRequirement struct {
	ID         uint `gorm:"primaryKey"`
	SpaceID    uint `gorm:"uniqueIndex:idx_requirement_space_level"`
	Level      int  `gorm:"uniqueIndex:idx_requirement_space_level"`
	XPRequired int
}

// LevelReward is the text shown when a member reaches Level.
type LevelReward struct {
	ID      uint `gorm:"primaryKey"`
	SpaceID uint `gorm:"uniqueIndex:idx_reward_space_level"`
	Level   int  `gorm:"uniqueIndex:idx_reward_space_level"`
	Text    string
}

// EngagementState remembers when each nudge tier last fired.
type EngagementState struct {
	ID                uint `gorm:"primaryKey"`
	SpaceID           uint `gorm:"uniqueIndex:idx_engagement_space_user"`
	UserID            uint `gorm:"uniqueIndex:idx_engagement_space_user"`
	LastNudgeAt       *time.Time
	LastBegAt         *time.Time
	LastReengageAt    *time.Time
	LastStreakBonusAt *time.Time
	UpdatedAt         time.Time
}

// WeeklySummary is the per-user snapshot taken once a week.
type WeeklySummary struct {
	ID             uint   `gorm:"primaryKey"`
	SpaceID        uint   `gorm:"uniqueIndex:idx_summary_space_user_week"`
	UserID         uint   `gorm:"uniqueIndex:idx_summary_space_user_week"`
	WeekKey        string `gorm:"uniqueIndex:idx_summary_space_user_week"` // e.g. 2024-W19
	TasksTotal     int64
	Level          int
	Position       int
	TasksCompleted int64
	LevelsGained   int
	PositionChange int
	Payload        datatypes.JSON
	CreatedAt      time.Time
}
