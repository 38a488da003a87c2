package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tynles/internal/model"
	"tynles/internal/repository"
)

const day = 24 * time.Hour

// Tier is an inactivity nudge level.
type Tier int

const (
	TierNone Tier = iota
	TierNudge
	TierBeg
	TierReengage
)

func (t Tier) String() string {
	switch t {
	case TierNudge:
		return "nudge"
	case TierBeg:
		return "beg"
	case TierReengage:
		return "reengage"
	default:
		return "none"
	}
}

type tierRule struct {
	tier     Tier
	inactive time.Duration
	cooldown time.Duration
}

// Most severe first.
var tierRules = []tierRule{
	{tier: TierReengage, inactive: 14 * day, cooldown: 7 * day},
	{tier: TierBeg, inactive: 7 * day, cooldown: 3 * day},
	{tier: TierNudge, inactive: 3 * day, cooldown: day},
}

const (
	streakThreshold = 5
	streakWindow    = day
	streakCooldown  = day
)

// EngagementResult counts what one engagement pass sent.
type EngagementResult struct {
	Nudges  map[Tier]int
	Bonuses int
}

// EngagementService nudges inactive members and rewards busy ones.
type EngagementService struct {
	stores    Stores
	lifecycle *Lifecycle
	sender    Sender
	log       zerolog.Logger
	now       Clock
	bonusXP   int
}

func NewEngagementService(stores Stores, lifecycle *Lifecycle, sender Sender, bonusXP int, log zerolog.Logger, now Clock) *EngagementService {
	if now == nil {
		now = time.Now
	}
	if bonusXP <= 0 {
		bonusXP = 10
	}
	return &EngagementService{
		stores:    stores,
		lifecycle: lifecycle,
		sender:    sender,
		log:       log.With().Str("component", "engagement").Logger(),
		now:       now,
		bonusXP:   bonusXP,
	}
}

// ClassifyInactivity returns the most severe tier whose threshold inactive meets.
func ClassifyInactivity(inactive time.Duration) Tier {
	for _, r := range tierRules {
		if inactive >= r.inactive {
			return r.tier
		}
	}
	return TierNone
}

// Run evaluates every member of every space once.
func (s *EngagementService) Run(ctx context.Context) (EngagementResult, error) {
	now := s.now()
	rows, err := s.stores.Stats.ListAll(ctx)
	if err != nil {
		return EngagementResult{}, err
	}
	recent, err := s.stores.Completions.CountsSince(ctx, now.Add(-streakWindow))
	if err != nil {
		return EngagementResult{}, err
	}

	result := EngagementResult{Nudges: make(map[Tier]int)}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		key := repository.MemberKey{SpaceID: row.SpaceID, UserID: row.UserID}
		tier, bonus, err := s.evaluate(ctx, row, recent[key], now)
		if err != nil {
			s.log.Warn().Err(err).Uint("space_id", row.SpaceID).Uint("user_id", row.UserID).Msg("engagement failed")
			continue
		}
		if tier != TierNone {
			result.Nudges[tier]++
		}
		if bonus {
			result.Bonuses++
		}
	}
	return result, nil
}

func (s *EngagementService) evaluate(ctx context.Context, row model.UserSpaceStats, recentCount int64, now time.Time) (Tier, bool, error) {
	settings, err := s.stores.Settings.Find(ctx, row.UserID)
	if err != nil {
		return TierNone, false, err
	}
	state, err := s.stores.Engagement.Find(ctx, row.SpaceID, row.UserID)
	if err != nil {
		return TierNone, false, err
	}
	changed := false

	bonus := false
	if recentCount >= streakThreshold && cooledDown(state.LastStreakBonusAt, streakCooldown, now) {
		change, err := s.lifecycle.AwardXP(ctx, row.SpaceID, row.UserID, s.bonusXP)
		if err != nil {
			return TierNone, false, fmt.Errorf("streak bonus: %w", err)
		}
		bonus = true
		state.LastStreakBonusAt = timePtr(now)
		changed = true
		if settings.RemindersEnabled {
			s.send(ctx, row.UserID, fmt.Sprintf("🔥 %d tasks in a day! Bonus +%d XP (total %d).", recentCount, s.bonusXP, change.NewTotal))
		}
	}

	fired := TierNone
	if settings.RemindersEnabled {
		last, err := s.stores.Completions.LastCompletedAt(ctx, row.SpaceID, row.UserID)
		if err != nil {
			return TierNone, bonus, err
		}
		since := row.CreatedAt
		if last != nil {
			since = *last
		}
		tier := ClassifyInactivity(now.Sub(since))
		if tier != TierNone {
			rule := ruleFor(tier)
			lastSent := lastSentFor(&state, tier)
			if cooledDown(*lastSent, rule.cooldown, now) && s.send(ctx, row.UserID, nudgeText(tier, now.Sub(since))) {
				*lastSent = timePtr(now)
				fired = tier
				changed = true
			}
		}
	}

	if changed {
		if err := s.stores.Engagement.Save(ctx, &state); err != nil {
			return fired, bonus, err
		}
	}
	return fired, bonus, nil
}

func (s *EngagementService) send(ctx context.Context, userID uint, text string) bool {
	if err := s.sender.Send(ctx, userID, text); err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("engagement message not delivered")
		return false
	}
	return true
}

func ruleFor(tier Tier) tierRule {
	for _, r := range tierRules {
		if r.tier == tier {
			return r
		}
	}
	return tierRule{}
}

func lastSentFor(state *model.EngagementState, tier Tier) **time.Time {
	switch tier {
	case TierReengage:
		return &state.LastReengageAt
	case TierBeg:
		return &state.LastBegAt
	default:
		return &state.LastNudgeAt
	}
}

func cooledDown(last *time.Time, cooldown time.Duration, now time.Time) bool {
	return last == nil || now.Sub(*last) >= cooldown
}

func nudgeText(tier Tier, inactive time.Duration) string {
	days := int(inactive / day)
	switch tier {
	case TierReengage:
		return fmt.Sprintf("🌱 It has been %d days. Your space misses you, a small task is a great restart.", days)
	case TierBeg:
		return fmt.Sprintf("🥺 A whole week without a completed task (%d days). Pick one and keep your streak alive?", days)
	default:
		return fmt.Sprintf("👋 Nothing completed in %d days. There are tasks waiting for you.", days)
	}
}

func timePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
