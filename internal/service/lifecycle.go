package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog"

	"tynles/internal/leveling"
	"tynles/internal/model"
	"tynles/internal/recurrence"
	"tynles/internal/repository"
)

// CompletionResult is what the completing user gets back.
type CompletionResult struct {
	LevelUp     bool
	NewLevel    int
	XPAwarded   int
	Recipients  int
	Rescheduled bool
	NextDue     *time.Time
}

// ExpirationResult counts what one sweep did.
type ExpirationResult struct {
	Expired     int
	Rescheduled int
	Deleted     int
}

// Lifecycle completes, expires and reschedules tasks and awards XP.
type Lifecycle struct {
	stores Stores
	sender Sender
	log    zerolog.Logger
	now    Clock
}

func NewLifecycle(stores Stores, sender Sender, log zerolog.Logger, now Clock) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		stores: stores,
		sender: sender,
		log:    log.With().Str("component", "lifecycle").Logger(),
		now:    now,
	}
}

// CompleteTask awards XP to every recipient of the task, records the
// completion, and then reschedules a recurring task or deletes a one-shot one.
func (l *Lifecycle) CompleteTask(ctx context.Context, taskID, requestingUserID uint) (CompletionResult, error) {
	task, err := l.stores.Tasks.FindByID(ctx, taskID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("complete task %d: %w", taskID, classify(err))
	}
	space, err := l.stores.Spaces.FindByID(ctx, task.SpaceID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("complete task %d: space: %w", taskID, classify(err))
	}

	now := l.now()
	rule := task.Rule()
	var next time.Time
	if rule.Recurring() {
		// Resolve the next due instant up front so a bad rule or timezone
		// fails before anyone is awarded.
		next, err = nextDueFor(rule, space.Timezone, now)
		if err != nil {
			return CompletionResult{}, fmt.Errorf("complete task %d: %w", taskID, classify(err))
		}
	}

	recipients, err := l.recipients(ctx, task, requestingUserID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("complete task %d: %w", taskID, err)
	}
	table, err := l.stores.Spaces.LevelTable(ctx, task.SpaceID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("complete task %d: %w", taskID, err)
	}

	xp := task.XP()
	result := CompletionResult{XPAwarded: xp}
	requesterAwarded := false
	for _, userID := range recipients {
		record := &model.TaskCompletion{
			TaskID:      task.ID,
			SpaceID:     task.SpaceID,
			UserID:      userID,
			XPAwarded:   xp,
			CompletedAt: now.UTC(),
		}
		change, err := l.stores.Stats.AdjustXP(ctx, task.SpaceID, userID, xp, levelFunc(table), record)
		if err != nil {
			l.log.Warn().Err(err).Uint("task_id", task.ID).Uint("user_id", userID).Msg("award xp failed")
			continue
		}
		result.Recipients++
		if userID == requestingUserID {
			requesterAwarded = true
			result.LevelUp = change.LeveledUp()
			result.NewLevel = change.NewLevel
		}
		l.notifyCompletion(ctx, task, userID, xp, change)
	}
	if result.Recipients == 0 {
		return CompletionResult{}, fmt.Errorf("complete task %d: no recipient could be awarded", taskID)
	}
	if !requesterAwarded {
		result.XPAwarded = 0
		if stats, err := l.stores.Stats.Find(ctx, task.SpaceID, requestingUserID); err == nil {
			result.NewLevel = stats.Level
		}
	}

	if !rule.Recurring() {
		if err := l.stores.Tasks.Delete(ctx, task.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return result, fmt.Errorf("complete task %d: already completed: %w", taskID, ErrInvalidState)
			}
			return result, fmt.Errorf("complete task %d: %w", taskID, err)
		}
		l.log.Info().Uint("task_id", task.ID).Int("recipients", result.Recipients).Msg("one-shot task completed")
		return result, nil
	}

	if err := l.stores.Tasks.Reschedule(ctx, task.ID, next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return result, fmt.Errorf("complete task %d: removed while completing: %w", taskID, ErrInvalidState)
		}
		return result, fmt.Errorf("complete task %d: %w", taskID, err)
	}
	result.Rescheduled = true
	result.NextDue = &next
	l.log.Info().Uint("task_id", task.ID).Int("recipients", result.Recipients).Time("next_due", next).Msg("recurring task completed")
	return result, nil
}

// ProcessExpiredRecurringTasks penalizes creators of missed recurring tasks
// and moves each task to its next due instant. One task failing does not stop
// the sweep.
func (l *Lifecycle) ProcessExpiredRecurringTasks(ctx context.Context) (ExpirationResult, error) {
	now := l.now()
	tasks, err := l.stores.Tasks.ListExpiredRecurring(ctx, now)
	if err != nil {
		return ExpirationResult{}, err
	}

	var result ExpirationResult
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Expired++
		rescheduled, err := l.expireOne(ctx, task, now)
		if err != nil {
			l.log.Warn().Err(err).Uint("task_id", task.ID).Msg("expire task failed")
			continue
		}
		if rescheduled {
			result.Rescheduled++
		} else {
			result.Deleted++
		}
	}
	if result.Expired > 0 {
		l.log.Info().Int("expired", result.Expired).Int("rescheduled", result.Rescheduled).Int("deleted", result.Deleted).Msg("expiration sweep done")
	}
	return result, nil
}

func (l *Lifecycle) expireOne(ctx context.Context, task model.Task, now time.Time) (bool, error) {
	penalty := task.XP() / 2
	if penalty > 0 {
		table, err := l.stores.Spaces.LevelTable(ctx, task.SpaceID)
		if err != nil {
			return false, err
		}
		change, err := l.stores.Stats.AdjustXP(ctx, task.SpaceID, task.CreatorID, -penalty, levelFunc(table), nil)
		if err != nil {
			return false, fmt.Errorf("apply penalty: %w", err)
		}
		l.notify(ctx, task.CreatorID, fmt.Sprintf("⌛ Missed <b>%s</b>: −%d XP (now %d XP).",
			html.EscapeString(task.Title), change.OldTotal-change.NewTotal, change.NewTotal))
	}

	tz := ""
	if space, err := l.stores.Spaces.FindByID(ctx, task.SpaceID); err == nil {
		tz = space.Timezone
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	next, err := nextDueFor(task.Rule(), tz, now)
	if err != nil {
		l.log.Warn().Err(err).Uint("task_id", task.ID).Msg("cannot compute next due, deleting task")
		if err := l.stores.Tasks.Delete(ctx, task.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return false, err
		}
		return false, nil
	}
	if err := l.stores.Tasks.Reschedule(ctx, task.ID, next); err != nil {
		return false, err
	}
	return true, nil
}

// AwardXP adjusts a member's XP outside of a task completion and reports the change.
func (l *Lifecycle) AwardXP(ctx context.Context, spaceID, userID uint, delta int) (repository.XPChange, error) {
	table, err := l.stores.Spaces.LevelTable(ctx, spaceID)
	if err != nil {
		return repository.XPChange{}, err
	}
	return l.stores.Stats.AdjustXP(ctx, spaceID, userID, delta, levelFunc(table), nil)
}

func (l *Lifecycle) recipients(ctx context.Context, task *model.Task, requestingUserID uint) ([]uint, error) {
	if task.Scope != model.ScopeWholeSpace {
		return []uint{task.Recipient()}, nil
	}
	members, err := l.stores.Spaces.ListMemberIDs(ctx, task.SpaceID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []uint{requestingUserID}, nil
	}
	return members, nil
}

func (l *Lifecycle) notifyCompletion(ctx context.Context, task *model.Task, userID uint, xp int, change repository.XPChange) {
	l.notify(ctx, userID, fmt.Sprintf("✅ <b>%s</b> done: +%d XP (total %d).",
		html.EscapeString(task.Title), xp, change.NewTotal))
	if !change.LeveledUp() {
		return
	}
	text := fmt.Sprintf("🎉 Level up! You reached level <b>%d</b>.", change.NewLevel)
	reward, err := l.stores.Spaces.RewardText(ctx, task.SpaceID, change.NewLevel)
	if err != nil {
		l.log.Warn().Err(err).Uint("space_id", task.SpaceID).Int("level", change.NewLevel).Msg("load reward failed")
	}
	if reward != "" {
		text += "\n🎁 " + html.EscapeString(reward)
	}
	l.notify(ctx, userID, text)
}

func (l *Lifecycle) notify(ctx context.Context, userID uint, text string) {
	if l.sender == nil {
		return
	}
	if err := l.sender.Send(ctx, userID, text); err != nil {
		l.log.Warn().Err(err).Uint("user_id", userID).Msg("notification not delivered")
	}
}

// nextDueFor is the rescheduling rule shared by completion and expiration:
// without a time of day the task is due at the end of the target local day.
func nextDueFor(rule recurrence.Rule, tz string, from time.Time) (time.Time, error) {
	rule = rule.Normalize()
	if err := rule.Validate(); err != nil {
		return time.Time{}, err
	}
	loc, err := recurrence.LoadZone(tz)
	if err != nil {
		return time.Time{}, err
	}
	next := recurrence.Next(rule, loc, from)
	if rule.At == nil {
		next = recurrence.EndOfDay(next, loc)
	}
	return next.UTC(), nil
}

func levelFunc(table leveling.Table) func(int) int {
	return func(total int) int { return leveling.Level(total, table) }
}
