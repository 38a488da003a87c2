package service

import (
	"context"
	"testing"
	"time"

	"tynles/internal/model"
	"tynles/internal/repository"
)

func (e *testEnv) engagement() *EngagementService {
	return NewEngagementService(e.stores, e.lifecycle(), e.sender, 10, e.log, e.clock.Now)
}

func TestClassifyInactivity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		inactive time.Duration
		want     Tier
	}{
		{0, TierNone},
		{2*day + 23*time.Hour, TierNone},
		{3 * day, TierNudge},
		{6 * day, TierNudge},
		{7 * day, TierBeg},
		{13 * day, TierBeg},
		{14 * day, TierReengage},
		{60 * day, TierReengage},
	}
	for _, tt := range tests {
		if got := ClassifyInactivity(tt.inactive); got != tt.want {
			t.Fatalf("ClassifyInactivity(%v) = %v, want %v", tt.inactive, got, tt.want)
		}
	}
}

func TestEngagementNudgesRespectCooldowns(t *testing.T) {
	env := newTestEnv(t, friday)
	ctx := context.Background()
	space := env.space(t, "UTC", 1)
	env.giveXP(t, space.ID, 1, 10, ptr(friday.Add(-4*day)))

	res, err := env.engagement().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Nudges[TierNudge] != 1 {
		t.Fatalf("nudges = %v, want one nudge", res.Nudges)
	}

	env.clock.Advance(6 * time.Hour)
	res, err = env.engagement().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Nudges) != 0 {
		t.Fatalf("nudges within cooldown = %v, want none", res.Nudges)
	}

	env.clock.Advance(18 * time.Hour)
	res, err = env.engagement().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Nudges[TierNudge] != 1 {
		t.Fatalf("nudges after cooldown = %v, want one nudge", res.Nudges)
	}

	// Day 8 of inactivity escalates; the beg tier has its own cooldown.
	env.clock.Advance(3 * day)
	res, err = env.engagement().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Nudges[TierBeg] != 1 || res.Nudges[TierNudge] != 0 {
		t.Fatalf("nudges = %v, want exactly one beg", res.Nudges)
	}
	if got := len(env.sender.to(1)); got != 3 {
		t.Fatalf("messages = %d, want 3", got)
	}
}

func TestEngagementSkipsMutedMembers(t *testing.T) {
	env := newTestEnv(t, friday)
	ctx := context.Background()
	space := env.space(t, "UTC", 1)
	env.giveXP(t, space.ID, 1, 10, ptr(friday.Add(-20*day)))
	if err := repository.NewSettingsRepository(env.db).Upsert(ctx, model.NotificationSettings{UserID: 1, RemindersEnabled: false}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	res, err := env.engagement().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Nudges) != 0 || env.sender.count() != 0 {
		t.Fatalf("muted member nudged: %v", res.Nudges)
	}
}

func TestEngagementStreakBonus(t *testing.T) {
	env := newTestEnv(t, friday)
	ctx := context.Background()
	space := env.space(t, "UTC", 1, 2)
	for i := 1; i <= 5; i++ {
		env.giveXP(t, space.ID, 1, 10, ptr(friday.Add(-time.Duration(i)*time.Hour)))
	}
	for i := 1; i <= 4; i++ {
		env.giveXP(t, space.ID, 2, 10, ptr(friday.Add(-time.Duration(i)*time.Hour)))
	}

	res, err := env.engagement().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bonuses != 1 {
		t.Fatalf("Bonuses = %d, want 1", res.Bonuses)
	}
	if got := env.totalXP(t, space.ID, 1); got != 60 {
		t.Fatalf("user 1 TotalXP = %d, want 60", got)
	}
	if got := env.totalXP(t, space.ID, 2); got != 40 {
		t.Fatalf("user 2 TotalXP = %d, want 40", got)
	}

	env.clock.Advance(time.Hour)
	res, err = env.engagement().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bonuses != 0 {
		t.Fatalf("Bonuses within cooldown = %d, want 0", res.Bonuses)
	}
}
