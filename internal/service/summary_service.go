package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"tynles/internal/model"
)

// SummaryService writes the weekly per-member delta records.
type SummaryService struct {
	stores Stores
	sender Sender
	log    zerolog.Logger
	now    Clock
	loc    *time.Location
}

func NewSummaryService(stores Stores, sender Sender, loc *time.Location, log zerolog.Logger, now Clock) *SummaryService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &SummaryService{
		stores: stores,
		sender: sender,
		log:    log.With().Str("component", "summary").Logger(),
		now:    now,
		loc:    loc,
	}
}

// InWindow reports whether t (server time) is inside one of the weekly
// summary windows: Sunday 23:00-23:59 or Monday 01:00-01:59.
func (s *SummaryService) InWindow(t time.Time) bool {
	local := t.In(s.loc)
	switch {
	case local.Weekday() == time.Sunday && local.Hour() == 23:
		return true
	case local.Weekday() == time.Monday && local.Hour() == 1:
		return true
	default:
		return false
	}
}

// WeekKey names the week a summary run at t belongs to. Both windows of the
// same weekend map to the week that just ended.
func (s *SummaryService) WeekKey(t time.Time) string {
	year, week := t.In(s.loc).Add(-2 * time.Hour).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

type summaryPayload struct {
	Week           string `json:"week"`
	TasksCompleted int64  `json:"tasks_completed"`
	LevelsGained   int    `json:"levels_gained"`
	PositionChange int    `json:"position_change"`
	Level          int    `json:"level"`
	Position       int    `json:"position"`
}

// Generate stores one summary per member for the current week. Members that
// already have one are skipped, so running twice in a weekend is harmless.
func (s *SummaryService) Generate(ctx context.Context) (int, error) {
	now := s.now()
	weekKey := s.WeekKey(now)
	rows, err := s.stores.Stats.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	positions := make(map[uint]map[uint]int)
	created := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		ranks, ok := positions[row.SpaceID]
		if !ok {
			ranks, err = s.positions(ctx, row.SpaceID)
			if err != nil {
				s.log.Warn().Err(err).Uint("space_id", row.SpaceID).Msg("leaderboard failed")
				continue
			}
			positions[row.SpaceID] = ranks
		}
		ok, err = s.summarize(ctx, row, ranks[row.UserID], weekKey, now)
		if err != nil {
			s.log.Warn().Err(err).Uint("space_id", row.SpaceID).Uint("user_id", row.UserID).Msg("weekly summary failed")
			continue
		}
		if ok {
			created++
		}
	}
	s.log.Info().Str("week", weekKey).Int("created", created).Msg("weekly summaries generated")
	return created, nil
}

func (s *SummaryService) summarize(ctx context.Context, row model.UserSpaceStats, position int, weekKey string, now time.Time) (bool, error) {
	exists, err := s.stores.Summaries.Exists(ctx, row.SpaceID, row.UserID, weekKey)
	if err != nil || exists {
		return false, err
	}
	total, err := s.stores.Completions.CountAll(ctx, row.SpaceID, row.UserID)
	if err != nil {
		return false, err
	}
	prior, err := s.stores.Summaries.Latest(ctx, row.SpaceID, row.UserID)
	if err != nil {
		return false, err
	}

	summary := model.WeeklySummary{
		SpaceID:    row.SpaceID,
		UserID:     row.UserID,
		WeekKey:    weekKey,
		TasksTotal: total,
		Level:      row.Level,
		Position:   position,
	}
	if prior == nil {
		// No history: the baseline is the current state, only the week's
		// completions count.
		summary.TasksCompleted, err = s.stores.Completions.CountSince(ctx, row.SpaceID, row.UserID, now.Add(-7*day))
		if err != nil {
			return false, err
		}
	} else {
		summary.TasksCompleted = total - prior.TasksTotal
		summary.LevelsGained = row.Level - prior.Level
		summary.PositionChange = prior.Position - position
	}

	payload, err := json.Marshal(summaryPayload{
		Week:           weekKey,
		TasksCompleted: summary.TasksCompleted,
		LevelsGained:   summary.LevelsGained,
		PositionChange: summary.PositionChange,
		Level:          summary.Level,
		Position:       summary.Position,
	})
	if err != nil {
		return false, err
	}
	summary.Payload = datatypes.JSON(payload)

	if err := s.stores.Summaries.Create(ctx, &summary); err != nil {
		return false, err
	}

	settings, err := s.stores.Settings.Find(ctx, row.UserID)
	if err == nil && settings.RemindersEnabled && s.sender != nil {
		if err := s.sender.Send(ctx, row.UserID, summaryText(summary)); err != nil {
			s.log.Warn().Err(err).Uint("user_id", row.UserID).Msg("summary not delivered")
		}
	}
	return true, nil
}

func (s *SummaryService) positions(ctx context.Context, spaceID uint) (map[uint]int, error) {
	rows, err := s.stores.Stats.Leaderboard(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int, len(rows))
	for _, st := range rank(rows) {
		out[st.UserID] = st.Position
	}
	return out, nil
}

func summaryText(s model.WeeklySummary) string {
	move := "held your place"
	switch {
	case s.PositionChange > 0:
		move = fmt.Sprintf("climbed %d place(s)", s.PositionChange)
	case s.PositionChange < 0:
		move = fmt.Sprintf("dropped %d place(s)", -s.PositionChange)
	}
	return fmt.Sprintf("📊 <b>Week %s</b>\n• Tasks completed: %d\n• Levels gained: %d (now %d)\n• Leaderboard: #%d, %s",
		s.WeekKey, s.TasksCompleted, s.LevelsGained, s.Level, s.Position, move)
}
