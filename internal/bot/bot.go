package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tynles/internal/model"
	"tynles/internal/repository"
	"tynles/internal/service"
	"tynles/internal/session"
)

const (
	cbCompletePrefix = "complete:"
	cbPausePrefix    = "pause:"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Deps are the collaborators behind the chat commands.
type Deps struct {
	Users     *repository.UserRepository
	Settings  *repository.SettingsRepository
	Tasks     *service.TaskService
	Spaces    *service.SpaceService
	Lifecycle *service.Lifecycle
	Reminders *service.ReminderService
	Sessions  *session.Store
	Now       func() time.Time
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api       API
	users     *repository.UserRepository
	settings  *repository.SettingsRepository
	tasks     *service.TaskService
	spaces    *service.SpaceService
	lifecycle *service.Lifecycle
	reminders *service.ReminderService
	sessions  *session.Store
	now       func() time.Time
	log       zerolog.Logger
}

func New(api API, deps Deps, log zerolog.Logger) *Bot {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.New(session.DefaultTTL, now)
	}
	return &Bot{
		api:       api,
		users:     deps.Users,
		settings:  deps.Settings,
		tasks:     deps.Tasks,
		spaces:    deps.Spaces,
		lifecycle: deps.Lifecycle,
		reminders: deps.Reminders,
		sessions:  sessions,
		now:       now,
		log:       log.With().Str("component", "bot").Logger(),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.HandleUpdate(ctx, update)
	}
	return nil
}

// HandleUpdate routes one Telegram update. Errors are logged, never returned:
// a bad update must not stop polling.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.Error().Err(err).Int64("from", update.CallbackQuery.From.ID).Msg("handle callback")
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Int64("chat", update.Message.Chat.ID).Msg("handle message")
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		b.log.Info().Int64("from", msg.From.ID).Str("command", msg.Command()).Str("args", msg.CommandArguments()).Msg("command")
		return b.handleCommand(ctx, msg)
	}

	st, _ := b.sessions.Get(msg.From.ID)
	switch st.Pending {
	case session.PendingTaskTitle:
		b.setPending(msg.From.ID, session.PendingNone)
		return b.addTask(ctx, msg, msg.Text)
	case session.PendingSpaceName:
		b.setPending(msg.From.ID, session.PendingNone)
		return b.createSpace(ctx, msg, msg.Text)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Try /add to create a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "newspace":
		return b.handleNewSpace(ctx, msg)
	case "join":
		return b.handleJoin(ctx, msg)
	case "space":
		return b.handleSpace(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "add":
		return b.handleAdd(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "pause":
		return b.handlePause(ctx, msg, true)
	case "resume":
		return b.handlePause(ctx, msg, false)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "reminders":
		return b.handleReminders(ctx, msg)
	case "cancel":
		b.setPending(msg.From.ID, session.PendingNone)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("callback ack")
	}

	switch {
	case strings.HasPrefix(cb.Data, cbCompletePrefix):
		taskID, err := parseTaskID(strings.TrimPrefix(cb.Data, cbCompletePrefix))
		if err != nil {
			return nil
		}
		return b.completeTask(ctx, cb.Message.Chat.ID, cb.From, taskID)
	case strings.HasPrefix(cb.Data, cbPausePrefix):
		taskID, err := parseTaskID(strings.TrimPrefix(cb.Data, cbPausePrefix))
		if err != nil {
			return nil
		}
		return b.pauseTask(ctx, cb.Message.Chat.ID, cb.From, taskID, true)
	default:
		return nil
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) setPending(telegramID int64, pending session.Pending) {
	b.sessions.Update(telegramID, func(st *session.State) { st.Pending = pending })
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func escape(s string) string {
	return html.EscapeString(s)
}

func errorText(err error) string {
	return fmt.Sprintf("Error: %s", escape(err.Error()))
}
