package main

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tynles/internal/config"
	"tynles/internal/logging"
	"tynles/internal/notify"
	"tynles/internal/repository"
	"tynles/internal/service"
)

// app holds the wired engine shared by every command.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	db     *gorm.DB
	stores service.Stores
	users  *repository.UserRepository
	api    *tgbotapi.BotAPI
	sender service.Sender

	lifecycle  *service.Lifecycle
	tasks      *service.TaskService
	spaces     *service.SpaceService
	reminders  *service.ReminderService
	engagement *service.EngagementService
	summaries  *service.SummaryService
}

// newApp loads config, opens the database and wires the services. With
// needBot set a Telegram token is mandatory; otherwise messages go to the
// Telegram API when a token is present and to the log when it is not.
func newApp(configPath string, needBot bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogConsole)
	if needBot {
		if err := cfg.RequireToken(); err != nil {
			return nil, err
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		stores: service.NewGormStores(db),
		users:  repository.NewUserRepository(db),
	}

	if cfg.TelegramToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create bot api: %w", err)
		}
		log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
		a.api = api
		a.sender = notify.NewTelegramSender(api, a.users, cfg.SendRatePerSec, log)
	} else {
		a.sender = notify.LogSender{Log: log.With().Str("component", "log-sender").Logger()}
	}

	a.lifecycle = service.NewLifecycle(a.stores, a.sender, log, time.Now)
	a.tasks = service.NewTaskService(a.stores, time.Now)
	a.spaces = service.NewSpaceService(a.stores)
	a.reminders = service.NewReminderService(a.stores, a.sender, log, time.Now)
	a.engagement = service.NewEngagementService(a.stores, a.lifecycle, a.sender, cfg.StreakBonusXP, log, time.Now)
	a.summaries = service.NewSummaryService(a.stores, a.sender, loc, log, time.Now)
	return a, nil
}

func (a *app) schedulerConfig() service.SchedulerConfig {
	loc, err := a.cfg.Location()
	if err != nil {
		loc = time.Local
	}
	return service.SchedulerConfig{
		ReminderInterval:   a.cfg.ReminderInterval,
		ReminderTimeout:    a.cfg.ReminderTimeout,
		EngagementEvery:    a.cfg.EngagementEvery,
		ExpirationInterval: a.cfg.ExpirationInterval,
		ExpirationEvery:    a.cfg.ExpirationEvery,
		SummaryInterval:    a.cfg.SummaryInterval,
		JobTimeout:         a.cfg.JobTimeout,
		Location:           loc,
	}
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
