package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tynles/internal/model"
	"tynles/internal/recurrence"
	"tynles/internal/service"
	"tynles/internal/session"
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	spaces, err := b.spaces.ListForUser(ctx, user.ID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👋 Hi, %s!\n<b>I keep your shared tasks, XP and levels.</b>\n\n", escape(user.DisplayName())))
	if len(spaces) == 0 {
		sb.WriteString("You are not in a space yet. Create one with /newspace &lt;name&gt; [timezone] or join with /join &lt;id&gt;.\n\n")
	}
	sb.WriteString(helpText)
	return b.sendText(msg.Chat.ID, sb.String())
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /newspace &lt;name&gt; [timezone] — create a space\n" +
	"• /join &lt;id&gt; — join a space\n" +
	"• /space [id] — list spaces or switch the current one\n" +
	"• /add &lt;1-5&gt; &lt;title&gt; [@daily 09:00 | @weekly mon,thu 18:00 | @monthly 1 | @due 2024-06-01 18:00] [@all]\n" +
	"• /tasks — open tasks of the current space\n" +
	"• /done &lt;id&gt; — complete a task\n" +
	"• /pause &lt;id&gt;, /resume &lt;id&gt;, /delete &lt;id&gt;\n" +
	"• /stats — your level and the leaderboard\n" +
	"• /reminders on|off [hours before]\n" +
	"• /cancel — cancel the current input"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, helpText)
}

func (b *Bot) handleNewSpace(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.setPending(msg.From.ID, session.PendingSpaceName)
		return b.sendText(msg.Chat.ID, "🏠 Send the space name, optionally followed by an IANA timezone (e.g. <code>Flat Europe/Berlin</code>).")
	}
	return b.createSpace(ctx, msg, args)
}

func (b *Bot) createSpace(ctx context.Context, msg *tgbotapi.Message, args string) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	name, tz := splitNameAndZone(args)
	space, err := b.spaces.CreateSpace(ctx, name, tz, user.ID)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Cannot create the space: %s", escape(err.Error())))
		}
		return err
	}
	b.sessions.Update(msg.From.ID, func(st *session.State) { st.SpaceID = space.ID })
	b.log.Info().Uint("space_id", space.ID).Uint("owner", user.ID).Msg("space created")
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🏠 Space <b>%s</b> created (id %d). Others can join with /join %d.", escape(space.Name), space.ID, space.ID))
}

func (b *Bot) handleJoin(ctx context.Context, msg *tgbotapi.Message) error {
	spaceID, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the space id: /join 3")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if err := b.spaces.AddMember(ctx, spaceID, user.ID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return b.sendText(msg.Chat.ID, "Space not found.")
		}
		return err
	}
	b.sessions.Update(msg.From.ID, func(st *session.State) { st.SpaceID = spaceID })
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👥 You joined space %d.", spaceID))
}

func (b *Bot) handleSpace(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	args := strings.TrimSpace(msg.CommandArguments())
	if args != "" {
		spaceID, err := parseTaskID(args)
		if err != nil {
			return b.sendText(msg.Chat.ID, "Space id must be a number.")
		}
		ok, err := b.spaces.IsMember(ctx, spaceID, user.ID)
		if err != nil {
			return err
		}
		if !ok {
			return b.sendText(msg.Chat.ID, "You are not a member of that space.")
		}
		b.sessions.Update(msg.From.ID, func(st *session.State) { st.SpaceID = spaceID })
		return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Current space is now %d.", spaceID))
	}

	spaces, err := b.spaces.ListForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(spaces) == 0 {
		return b.sendText(msg.Chat.ID, "No spaces yet. Create one with /newspace.")
	}
	current, _ := b.currentSpace(ctx, msg.From.ID, user)
	var sb strings.Builder
	sb.WriteString("🏠 <b>Your spaces</b>\n")
	for _, sp := range spaces {
		marker := "•"
		if current != nil && current.ID == sp.ID {
			marker = "▶"
		}
		sb.WriteString(fmt.Sprintf("%s %d · %s (%s)\n", marker, sp.ID, escape(sp.Name), escape(zoneName(sp.Timezone))))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

// currentSpace resolves the session's space, falling back to the user's first
// space. It returns nil when the user has none.
func (b *Bot) currentSpace(ctx context.Context, telegramID int64, user *model.User) (*model.Space, error) {
	spaces, err := b.spaces.ListForUser(ctx, user.ID)
	if err != nil || len(spaces) == 0 {
		return nil, err
	}
	st, _ := b.sessions.Get(telegramID)
	for i := range spaces {
		if spaces[i].ID == st.SpaceID {
			return &spaces[i], nil
		}
	}
	b.sessions.Update(telegramID, func(s *session.State) { s.SpaceID = spaces[0].ID })
	return &spaces[0], nil
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, msg.From.ID, user)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID, telegramID int64, user *model.User) error {
	space, err := b.currentSpace(ctx, telegramID, user)
	if err != nil {
		return err
	}
	if space == nil {
		return b.sendText(chatID, "No spaces yet. Create one with /newspace.")
	}
	text, err := b.reminders.SpaceDigest(ctx, *space)
	if err != nil {
		return err
	}
	tasks, err := b.tasks.ListBySpace(ctx, space.ID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, text)
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tasks))
	for _, task := range tasks {
		if task.Paused {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 24)), fmt.Sprintf("%s%d", cbCompletePrefix, task.ID)),
			tgbotapi.NewInlineKeyboardButtonData("⏸", fmt.Sprintf("%s%d", cbPausePrefix, task.ID)),
		))
	}
	if len(rows) == 0 {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.setPending(msg.From.ID, session.PendingTaskTitle)
		return b.sendText(msg.Chat.ID, "✍️ Send the task as <code>difficulty title [@daily 09:00]</code>, e.g. <code>3 Clean the kitchen @weekly sat</code>.")
	}
	return b.addTask(ctx, msg, args)
}

func (b *Bot) addTask(ctx context.Context, msg *tgbotapi.Message, args string) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	space, err := b.currentSpace(ctx, msg.From.ID, user)
	if err != nil {
		return err
	}
	if space == nil {
		return b.sendText(msg.Chat.ID, "Create or join a space first: /newspace or /join.")
	}
	loc, err := recurrence.LoadZone(space.Timezone)
	if err != nil {
		loc = time.UTC
	}

	req, err := parseAdd(args, loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Cannot read the task: %s", escape(err.Error())))
	}
	input := service.TaskInput{
		SpaceID:    space.ID,
		CreatorID:  user.ID,
		Title:      req.Title,
		Difficulty: req.Difficulty,
		DueAt:      req.Due,
		Scope:      model.ScopeSingleUser,
		Rule:       req.Rule,
	}
	if req.WholeSpace {
		input.Scope = model.ScopeWholeSpace
	}
	task, err := b.tasks.CreateTask(ctx, input)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Cannot create the task: %s", escape(err.Error())))
		}
		return err
	}

	b.log.Info().Uint("task_id", task.ID).Uint("space_id", space.ID).Str("rule", task.Rule().String()).Msg("task created")
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Task #%d <b>%s</b> added · %d XP", task.ID, escape(task.Title), task.XP()))
	if rule := task.Rule(); rule.Recurring() {
		sb.WriteString(fmt.Sprintf("\n♻️ %s", escape(rule.String())))
	}
	if task.DueAt != nil {
		sb.WriteString(fmt.Sprintf("\n⏰ %s", task.DueAt.In(loc).Format("Mon 02 Jan 15:04")))
	}
	return b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the task id: /done 12")
	}
	return b.completeTask(ctx, msg.Chat.ID, msg.From, taskID)
}

func (b *Bot) completeTask(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	task, ok, err := b.authorizedTask(ctx, chatID, user, taskID)
	if err != nil || !ok {
		return err
	}

	res, err := b.lifecycle.CompleteTask(ctx, task.ID, user.ID)
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrInvalidState):
		return b.sendText(chatID, "Task not found or already completed.")
	case errors.Is(err, service.ErrValidation):
		return b.sendText(chatID, fmt.Sprintf("Cannot complete the task: %s", escape(err.Error())))
	case err != nil:
		return b.sendText(chatID, errorText(err))
	}

	b.log.Info().Uint("task_id", task.ID).Uint("user_id", user.ID).Int("recipients", res.Recipients).Bool("level_up", res.LevelUp).Msg("task completed")
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👍 <b>%s</b> completed", escape(task.Title)))
	if res.Recipients > 1 {
		sb.WriteString(fmt.Sprintf(" for %d members", res.Recipients))
	}
	sb.WriteString(fmt.Sprintf(". You are level %d.", res.NewLevel))
	if res.Rescheduled && res.NextDue != nil {
		loc := time.UTC
		if space, err := b.spaces.Get(ctx, task.SpaceID); err == nil {
			if l, err := recurrence.LoadZone(space.Timezone); err == nil {
				loc = l
			}
		}
		sb.WriteString(fmt.Sprintf("\n♻️ Next: %s", res.NextDue.In(loc).Format("Mon 02 Jan 15:04")))
	}
	return b.sendText(chatID, sb.String())
}

func (b *Bot) handlePause(ctx context.Context, msg *tgbotapi.Message, paused bool) error {
	taskID, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Give the task id: /%s 12", msg.Command()))
	}
	return b.pauseTask(ctx, msg.Chat.ID, msg.From, taskID, paused)
}

func (b *Bot) pauseTask(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint, paused bool) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	task, ok, err := b.authorizedTask(ctx, chatID, user, taskID)
	if err != nil || !ok {
		return err
	}
	if paused {
		err = b.tasks.Pause(ctx, task.ID)
	} else {
		err = b.tasks.Resume(ctx, task.ID)
	}
	if err != nil {
		return b.sendText(chatID, errorText(err))
	}
	if paused {
		return b.sendText(chatID, fmt.Sprintf("⏸ <b>%s</b> paused. /resume %d to continue.", escape(task.Title), task.ID))
	}
	return b.sendText(chatID, fmt.Sprintf("▶️ <b>%s</b> resumed.", escape(task.Title)))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the task id: /delete 12")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, ok, err := b.authorizedTask(ctx, msg.Chat.ID, user, taskID)
	if err != nil || !ok {
		return err
	}
	if err := b.tasks.DeleteTask(ctx, task.ID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return b.sendText(msg.Chat.ID, "Task not found.")
		}
		return b.sendText(msg.Chat.ID, errorText(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Task \"%s\" deleted.", escape(task.Title)))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	space, err := b.currentSpace(ctx, msg.From.ID, user)
	if err != nil {
		return err
	}
	if space == nil {
		return b.sendText(msg.Chat.ID, "No spaces yet. Create one with /newspace.")
	}
	progress, err := b.spaces.Progress(ctx, space.ID, user.ID)
	if err != nil {
		return err
	}
	board, err := b.spaces.Leaderboard(ctx, space.ID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🏆 <b>%s</b>\n", escape(space.Name)))
	sb.WriteString(fmt.Sprintf("Level <b>%d</b> · %d XP into the level", progress.Level, progress.XPIntoLevel))
	if progress.XPToNextLevel > 0 {
		sb.WriteString(fmt.Sprintf(" · %d to next (%.0f%%)", progress.XPToNextLevel, progress.Percent))
	}
	sb.WriteString("\n\n")
	for _, row := range board {
		name := fmt.Sprintf("user %d", row.UserID)
		if u, err := b.users.FindByID(ctx, row.UserID); err == nil {
			name = u.DisplayName()
		}
		marker := ""
		if row.UserID == user.ID {
			marker = " ◀"
		}
		sb.WriteString(fmt.Sprintf("%d. %s · L%d · %d XP%s\n", row.Position, escape(name), row.Level, row.TotalXP, marker))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleReminders(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	settings, err := b.settings.Find(ctx, user.ID)
	if err != nil {
		return err
	}

	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		state := "off"
		if settings.RemindersEnabled {
			state = "on"
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🔔 Reminders are %s, %d h before the deadline.", state, settings.ReminderHoursBefore))
	}
	switch strings.ToLower(fields[0]) {
	case "on":
		settings.RemindersEnabled = true
	case "off":
		settings.RemindersEnabled = false
	default:
		return b.sendText(msg.Chat.ID, "Use /reminders on|off [hours before].")
	}
	if len(fields) > 1 {
		hours, err := strconv.Atoi(fields[1])
		if err != nil || hours < 1 || hours > 168 {
			return b.sendText(msg.Chat.ID, "Hours must be a number between 1 and 168.")
		}
		settings.ReminderHoursBefore = hours
	}
	if err := b.settings.Upsert(ctx, settings); err != nil {
		return err
	}
	return b.handleReminders(ctx, &tgbotapi.Message{Chat: msg.Chat, From: msg.From})
}

// authorizedTask loads a task the user may act on and answers the chat itself
// when they may not.
func (b *Bot) authorizedTask(ctx context.Context, chatID int64, user *model.User, taskID uint) (*model.Task, bool, error) {
	task, err := b.tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil, false, b.sendText(chatID, "Task not found or already completed.")
		}
		return nil, false, err
	}
	member, err := b.spaces.IsMember(ctx, task.SpaceID, user.ID)
	if err != nil {
		return nil, false, err
	}
	if !member {
		return nil, false, b.sendText(chatID, "That task belongs to a space you are not in.")
	}
	return task, true, nil
}
