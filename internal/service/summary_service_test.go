package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var sundayNight = time.Date(2024, 5, 12, 23, 30, 0, 0, time.UTC)

func (e *testEnv) summaries() *SummaryService {
	return NewSummaryService(e.stores, e.sender, time.UTC, e.log, e.clock.Now)
}

func TestSummaryWindow(t *testing.T) {
	t.Parallel()
	s := NewSummaryService(Stores{}, nil, time.UTC, zerolog.Nop(), nil)
	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2024, 5, 12, 23, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 5, 12, 23, 59, 0, 0, time.UTC), true},
		{time.Date(2024, 5, 13, 1, 15, 0, 0, time.UTC), true},
		{time.Date(2024, 5, 12, 22, 59, 0, 0, time.UTC), false},
		{time.Date(2024, 5, 13, 0, 30, 0, 0, time.UTC), false},
		{time.Date(2024, 5, 13, 2, 0, 0, 0, time.UTC), false},
		{time.Date(2024, 5, 11, 23, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		if got := s.InWindow(tt.at); got != tt.want {
			t.Fatalf("InWindow(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestSummaryWindowUsesServerZone(t *testing.T) {
	t.Parallel()
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := NewSummaryService(Stores{}, nil, berlin, zerolog.Nop(), nil)
	// 21:30 UTC is 23:30 in Berlin summer time.
	if !s.InWindow(time.Date(2024, 5, 12, 21, 30, 0, 0, time.UTC)) {
		t.Fatalf("InWindow = false, want true for Sunday 23:30 local")
	}
}

func TestWeekKeyIsSharedByBothWindows(t *testing.T) {
	t.Parallel()
	s := NewSummaryService(Stores{}, nil, time.UTC, zerolog.Nop(), nil)
	sunday := s.WeekKey(sundayNight)
	monday := s.WeekKey(time.Date(2024, 5, 13, 1, 10, 0, 0, time.UTC))
	if sunday != "2024-W19" || monday != sunday {
		t.Fatalf("week keys = %q and %q, want both 2024-W19", sunday, monday)
	}
}

func TestGenerateWeeklySummaries(t *testing.T) {
	env := newTestEnv(t, sundayNight)
	ctx := context.Background()
	space := env.space(t, "UTC", 1, 2)
	for i := 1; i <= 3; i++ {
		env.giveXP(t, space.ID, 1, 10, ptr(sundayNight.Add(-time.Duration(i)*day)))
	}
	// Older than a week: counts towards the total but not the first summary.
	env.giveXP(t, space.ID, 2, 5, ptr(sundayNight.Add(-10*day)))

	created, err := env.summaries().Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}
	first, err := env.stores.Summaries.Latest(ctx, space.ID, 1)
	if err != nil || first == nil {
		t.Fatalf("Latest = %v, %v", first, err)
	}
	if first.WeekKey != "2024-W19" || first.TasksCompleted != 3 || first.Position != 1 || first.LevelsGained != 0 || first.PositionChange != 0 {
		t.Fatalf("user 1 summary = %+v", first)
	}
	var payload summaryPayload
	if err := json.Unmarshal(first.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Week != "2024-W19" || payload.TasksCompleted != 3 {
		t.Fatalf("payload = %+v", payload)
	}
	second, _ := env.stores.Summaries.Latest(ctx, space.ID, 2)
	if second == nil || second.TasksCompleted != 0 || second.Position != 2 || second.TasksTotal != 1 {
		t.Fatalf("user 2 summary = %+v", second)
	}
	if env.sender.count() != 2 {
		t.Fatalf("messages = %d, want 2", env.sender.count())
	}

	// The Monday window of the same weekend must not duplicate.
	env.clock.Set(time.Date(2024, 5, 13, 1, 5, 0, 0, time.UTC))
	created, err = env.summaries().Generate(ctx)
	if err != nil || created != 0 {
		t.Fatalf("Generate again = %d, %v, want 0", created, err)
	}

	// Next week user 2 overtakes user 1.
	env.clock.Set(sundayNight.Add(7 * day))
	for i := 1; i <= 5; i++ {
		env.giveXP(t, space.ID, 2, 10, ptr(sundayNight.Add(7*day-time.Duration(i)*time.Hour)))
	}
	created, err = env.summaries().Generate(ctx)
	if err != nil || created != 2 {
		t.Fatalf("Generate next week = %d, %v, want 2", created, err)
	}
	one, _ := env.stores.Summaries.Latest(ctx, space.ID, 1)
	two, _ := env.stores.Summaries.Latest(ctx, space.ID, 2)
	if one.WeekKey != "2024-W20" || one.TasksCompleted != 0 || one.PositionChange != -1 {
		t.Fatalf("user 1 week 20 = %+v", one)
	}
	if two.TasksCompleted != 5 || two.PositionChange != 1 || two.Position != 1 {
		t.Fatalf("user 2 week 20 = %+v", two)
	}
}
