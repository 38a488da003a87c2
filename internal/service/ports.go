package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"tynles/internal/leveling"
	"tynles/internal/model"
	"tynles/internal/repository"
)

// Sender delivers a text message to a user. A non-nil error means the
// message was not delivered.
type Sender interface {
	Send(ctx context.Context, userID uint, text string) error
}

// Clock returns the current instant.
type Clock func() time.Time

type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	FindByID(ctx context.Context, taskID uint) (*model.Task, error)
	ListBySpace(ctx context.Context, spaceID uint) ([]model.Task, error)
	ListReminderCandidates(ctx context.Context, cutoff time.Time) ([]model.Task, error)
	ListExpiredRecurring(ctx context.Context, now time.Time) ([]model.Task, error)
	Reschedule(ctx context.Context, taskID uint, due time.Time) error
	MarkReminded(ctx context.Context, taskID uint, due time.Time) (bool, error)
	SetPaused(ctx context.Context, taskID uint, paused bool) error
	Delete(ctx context.Context, taskID uint) error
}

type SpaceStore interface {
	Create(ctx context.Context, space *model.Space) error
	FindByID(ctx context.Context, spaceID uint) (*model.Space, error)
	AddMember(ctx context.Context, spaceID, userID uint) error
	ListMemberIDs(ctx context.Context, spaceID uint) ([]uint, error)
	ListForUser(ctx context.Context, userID uint) ([]model.Space, error)
	IsMember(ctx context.Context, spaceID, userID uint) (bool, error)
	LevelTable(ctx context.Context, spaceID uint) (leveling.Table, error)
	RewardText(ctx context.Context, spaceID uint, level int) (string, error)
}

type StatsStore interface {
	Find(ctx context.Context, spaceID, userID uint) (*model.UserSpaceStats, error)
	ListAll(ctx context.Context) ([]model.UserSpaceStats, error)
	Leaderboard(ctx context.Context, spaceID uint) ([]model.UserSpaceStats, error)
	AdjustXP(ctx context.Context, spaceID, userID uint, delta int, levelOf func(int) int, record *model.TaskCompletion) (repository.XPChange, error)
}

type CompletionStore interface {
	LastCompletedAt(ctx context.Context, spaceID, userID uint) (*time.Time, error)
	CountSince(ctx context.Context, spaceID, userID uint, since time.Time) (int64, error)
	CountAll(ctx context.Context, spaceID, userID uint) (int64, error)
	CountsSince(ctx context.Context, since time.Time) (map[repository.MemberKey]int64, error)
}

type SettingsStore interface {
	Find(ctx context.Context, userID uint) (model.NotificationSettings, error)
	MaxLeadHours(ctx context.Context) (int, error)
}

type EngagementStore interface {
	Find(ctx context.Context, spaceID, userID uint) (model.EngagementState, error)
	Save(ctx context.Context, state *model.EngagementState) error
}

type SummaryStore interface {
	Latest(ctx context.Context, spaceID, userID uint) (*model.WeeklySummary, error)
	Exists(ctx context.Context, spaceID, userID uint, weekKey string) (bool, error)
	Create(ctx context.Context, summary *model.WeeklySummary) error
}

// Stores bundles the persistence collaborators.
type Stores struct {
	Tasks       TaskStore
	Spaces      SpaceStore
	Stats       StatsStore
	Completions CompletionStore
	Settings    SettingsStore
	Engagement  EngagementStore
	Summaries   SummaryStore
}

// NewGormStores wires the gorm repositories into Stores.
func NewGormStores(db *gorm.DB) Stores {
	return Stores{
		Tasks:       repository.NewTaskRepository(db),
		Spaces:      repository.NewSpaceRepository(db),
		Stats:       repository.NewStatsRepository(db),
		Completions: repository.NewCompletionRepository(db),
		Settings:    repository.NewSettingsRepository(db),
		Engagement:  repository.NewEngagementRepository(db),
		Summaries:   repository.NewSummaryRepository(db),
	}
}
