package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tynles/internal/model"
	"tynles/internal/recurrence"
)

// ReminderResult summarizes one reminder pass.
type ReminderResult struct {
	RemindersSent   int
	ConsideredTasks int
	HorizonHours    int
}

// ReminderService sends due-soon reminders and builds task digests.
type ReminderService struct {
	stores Stores
	sender Sender
	log    zerolog.Logger
	now    Clock
}

func NewReminderService(stores Stores, sender Sender, log zerolog.Logger, now Clock) *ReminderService {
	if now == nil {
		now = time.Now
	}
	return &ReminderService{
		stores: stores,
		sender: sender,
		log:    log.With().Str("component", "reminders").Logger(),
		now:    now,
	}
}

// SendTaskReminders reminds the owner of every task that is overdue or due
// within the owner's lead time. A task is reminded at most once per due cycle.
func (s *ReminderService) SendTaskReminders(ctx context.Context) (ReminderResult, error) {
	now := s.now()
	horizon, err := s.stores.Settings.MaxLeadHours(ctx)
	if err != nil {
		return ReminderResult{}, err
	}
	result := ReminderResult{HorizonHours: horizon}

	tasks, err := s.stores.Tasks.ListReminderCandidates(ctx, now.Add(time.Duration(horizon)*time.Hour))
	if err != nil {
		return result, err
	}
	result.ConsideredTasks = len(tasks)

	zones := make(map[uint]*time.Location)
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sent, err := s.remindOne(ctx, task, now, zones)
		if err != nil {
			s.log.Warn().Err(err).Uint("task_id", task.ID).Msg("reminder failed")
			continue
		}
		if sent {
			result.RemindersSent++
		}
	}
	if result.RemindersSent > 0 {
		s.log.Info().Int("sent", result.RemindersSent).Int("considered", result.ConsideredTasks).Msg("reminders sent")
	}
	return result, nil
}

func (s *ReminderService) remindOne(ctx context.Context, task model.Task, now time.Time, zones map[uint]*time.Location) (bool, error) {
	if task.DueAt == nil {
		return false, nil
	}
	recipient := task.Recipient()
	settings, err := s.stores.Settings.Find(ctx, recipient)
	if err != nil {
		return false, err
	}
	if !settings.RemindersEnabled {
		return false, nil
	}

	due := *task.DueAt
	untilDue := due.Sub(now)
	overdue := untilDue <= 0
	if !overdue && untilDue > settings.LeadTime() {
		return false, nil
	}

	loc := s.zone(ctx, task.SpaceID, zones)
	if err := s.sender.Send(ctx, recipient, reminderText(task, due, now, loc)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := s.stores.Tasks.MarkReminded(ctx, task.ID, due); err != nil {
		return true, err
	}
	return true, nil
}

func (s *ReminderService) zone(ctx context.Context, spaceID uint, cache map[uint]*time.Location) *time.Location {
	if loc, ok := cache[spaceID]; ok {
		return loc
	}
	loc := time.UTC
	space, err := s.stores.Spaces.FindByID(ctx, spaceID)
	if err == nil {
		if l, err := recurrence.LoadZone(space.Timezone); err == nil {
			loc = l
		} else {
			s.log.Warn().Err(err).Uint("space_id", spaceID).Msg("space timezone invalid, formatting in UTC")
		}
	}
	cache[spaceID] = loc
	return loc
}

func reminderText(task model.Task, due, now time.Time, loc *time.Location) string {
	title := html.EscapeString(strings.TrimSpace(task.Title))
	local := due.In(loc).Format("Mon 02 Jan 15:04")
	if !due.After(now) {
		return fmt.Sprintf("⚠️ <b>%s</b> is overdue (was due %s).", title, local)
	}
	return fmt.Sprintf("⏳ <b>%s</b> is due %s (in %s).", title, local, humanDuration(due.Sub(now)))
}

// SpaceDigest renders the space's open tasks for a chat reply.
func (s *ReminderService) SpaceDigest(ctx context.Context, space model.Space) (string, error) {
	tasks, err := s.stores.Tasks.ListBySpace(ctx, space.ID)
	if err != nil {
		return "", err
	}
	loc, err := recurrence.LoadZone(space.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := s.now()

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>%s</b>\n", html.EscapeString(space.Name)))
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.In(loc).Format("02.01.2006")))
	if len(tasks) == 0 {
		builder.WriteString("— no open tasks\n")
	}
	for _, task := range tasks {
		builder.WriteString(formatTask(task, now, loc))
	}
	return strings.TrimSpace(builder.String()), nil
}

func formatTask(task model.Task, now time.Time, loc *time.Location) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case task.Paused:
		icon = "⏸"
	case task.DueAt != nil && now.After(*task.DueAt):
		icon = "⚠️"
	case task.DueAt != nil && task.DueAt.Sub(now) <= 48*time.Hour:
		icon = "⏳"
	}

	sb.WriteString(fmt.Sprintf("%s #%d %s · %d XP", icon, task.ID, html.EscapeString(strings.TrimSpace(task.Title)), task.XP()))
	if rule := task.Rule(); rule.Recurring() {
		sb.WriteString(fmt.Sprintf("\n   ♻️ %s", rule))
	}
	if task.DueAt != nil {
		d := task.DueAt.In(loc)
		if now.After(*task.DueAt) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s — <b>overdue</b>", d.Format("2006-01-02 15:04")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s", d.Format("2006-01-02 15:04")))
		}
	}
	if task.Scope == model.ScopeWholeSpace {
		sb.WriteString("\n   👥 whole space")
	}

	sb.WriteByte('\n')
	return sb.String()
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%02dm", h, m)
	}
}
