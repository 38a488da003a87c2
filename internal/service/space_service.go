package service

import (
	"context"
	"fmt"
	"strings"

	"tynles/internal/leveling"
	"tynles/internal/model"
	"tynles/internal/recurrence"
)

// Standing is one leaderboard line.
type Standing struct {
	Position int
	UserID   uint
	TotalXP  int
	Level    int
}

// SpaceService manages spaces, membership and level progress.
type SpaceService struct {
	stores Stores
}

func NewSpaceService(stores Stores) *SpaceService {
	return &SpaceService{stores: stores}
}

// CreateSpace stores a space and makes the owner its first member.
func (s *SpaceService) CreateSpace(ctx context.Context, name, tz string, ownerID uint) (*model.Space, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: space name is required", ErrValidation)
	}
	if _, err := recurrence.LoadZone(tz); err != nil {
		return nil, classify(err)
	}
	space := model.Space{Name: name, Timezone: strings.TrimSpace(tz)}
	if err := s.stores.Spaces.Create(ctx, &space); err != nil {
		return nil, err
	}
	if ownerID != 0 {
		if err := s.stores.Spaces.AddMember(ctx, space.ID, ownerID); err != nil {
			return nil, err
		}
	}
	return &space, nil
}

func (s *SpaceService) Get(ctx context.Context, spaceID uint) (*model.Space, error) {
	space, err := s.stores.Spaces.FindByID(ctx, spaceID)
	if err != nil {
		return nil, classify(err)
	}
	return space, nil
}

func (s *SpaceService) AddMember(ctx context.Context, spaceID, userID uint) error {
	if _, err := s.stores.Spaces.FindByID(ctx, spaceID); err != nil {
		return classify(err)
	}
	return s.stores.Spaces.AddMember(ctx, spaceID, userID)
}

func (s *SpaceService) ListForUser(ctx context.Context, userID uint) ([]model.Space, error) {
	return s.stores.Spaces.ListForUser(ctx, userID)
}

func (s *SpaceService) IsMember(ctx context.Context, spaceID, userID uint) (bool, error) {
	return s.stores.Spaces.IsMember(ctx, spaceID, userID)
}

// Progress reports where the member stands on the space's level curve.
func (s *SpaceService) Progress(ctx context.Context, spaceID, userID uint) (leveling.Progress, error) {
	stats, err := s.stores.Stats.Find(ctx, spaceID, userID)
	if err != nil {
		return leveling.Progress{}, err
	}
	table, err := s.stores.Spaces.LevelTable(ctx, spaceID)
	if err != nil {
		return leveling.Progress{}, err
	}
	return leveling.ProgressFor(stats.TotalXP, table), nil
}

// Leaderboard ranks members by total XP; equal totals share a position.
func (s *SpaceService) Leaderboard(ctx context.Context, spaceID uint) ([]Standing, error) {
	rows, err := s.stores.Stats.Leaderboard(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return rank(rows), nil
}

func rank(rows []model.UserSpaceStats) []Standing {
	out := make([]Standing, 0, len(rows))
	for i, row := range rows {
		pos := i + 1
		if i > 0 && row.TotalXP == rows[i-1].TotalXP {
			pos = out[i-1].Position
		}
		out = append(out, Standing{Position: pos, UserID: row.UserID, TotalXP: row.TotalXP, Level: row.Level})
	}
	return out
}
