package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SchedulerConfig sets the cadence of the background jobs.
type SchedulerConfig struct {
	ReminderInterval   time.Duration
	ReminderTimeout    time.Duration
	EngagementEvery    time.Duration
	ExpirationInterval time.Duration
	ExpirationEvery    time.Duration
	SummaryInterval    time.Duration
	JobTimeout         time.Duration
	Location           *time.Location
}

// DefaultSchedulerConfig returns the production cadence.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ReminderInterval:   time.Minute,
		ReminderTimeout:    25 * time.Second,
		EngagementEvery:    6 * time.Hour,
		ExpirationInterval: time.Minute,
		ExpirationEvery:    time.Hour,
		SummaryInterval:    time.Hour,
		JobTimeout:         25 * time.Second,
		Location:           time.Local,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = d.ReminderInterval
	}
	if c.ReminderTimeout <= 0 {
		c.ReminderTimeout = d.ReminderTimeout
	}
	if c.EngagementEvery <= 0 {
		c.EngagementEvery = d.EngagementEvery
	}
	if c.ExpirationInterval <= 0 {
		c.ExpirationInterval = d.ExpirationInterval
	}
	if c.ExpirationEvery <= 0 {
		c.ExpirationEvery = d.ExpirationEvery
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = d.SummaryInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	return c
}

// Jobs are the services the scheduler drives.
type Jobs struct {
	Reminders  *ReminderService
	Engagement *EngagementService
	Lifecycle  *Lifecycle
	Summaries  *SummaryService
}

// Scheduler runs the reminder, engagement, expiration and weekly summary jobs
// on independent cadences. Guards are per process only.
type Scheduler struct {
	svc  *SchedulerService
	jobs Jobs
	cfg  SchedulerConfig
	log  zerolog.Logger
	now  Clock

	engagement *throttle
	expiration *throttle
	summary    *dailyOnce
}

// NewScheduler builds the job set without starting it.
func NewScheduler(cfg SchedulerConfig, jobs Jobs, log zerolog.Logger, now Clock) *Scheduler {
	cfg = cfg.withDefaults()
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		svc:        NewSchedulerService(cfg.Location, log),
		jobs:       jobs,
		cfg:        cfg,
		log:        log.With().Str("component", "scheduler").Logger(),
		now:        now,
		engagement: &throttle{every: cfg.EngagementEvery},
		expiration: &throttle{every: cfg.ExpirationEvery},
		summary:    &dailyOnce{loc: cfg.Location},
	}
}

// StartScheduler registers every job and starts ticking. Stop the returned
// handle to shut down.
func StartScheduler(cfg SchedulerConfig, jobs Jobs, log zerolog.Logger) (*Scheduler, error) {
	s := NewScheduler(cfg, jobs, log, nil)
	if err := s.register(); err != nil {
		return nil, err
	}
	s.svc.Start()
	s.log.Info().
		Dur("reminders", s.cfg.ReminderInterval).
		Dur("expiration", s.cfg.ExpirationInterval).
		Dur("summary", s.cfg.SummaryInterval).
		Str("tz", s.cfg.Location.String()).
		Msg("scheduler started")
	return s, nil
}

// Service exposes the underlying cron wrapper for auxiliary jobs.
func (s *Scheduler) Service() *SchedulerService {
	return s.svc
}

func (s *Scheduler) Stop() {
	s.svc.Stop()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) register() error {
	if s.jobs.Reminders != nil {
		if _, err := s.svc.ScheduleJob("reminders", s.cfg.ReminderInterval, s.cfg.ReminderTimeout, s.reminderTick); err != nil {
			return err
		}
	}
	if s.jobs.Lifecycle != nil {
		if _, err := s.svc.ScheduleJob("expiration", s.cfg.ExpirationInterval, s.cfg.JobTimeout, s.expirationTick); err != nil {
			return err
		}
	}
	if s.jobs.Summaries != nil {
		if _, err := s.svc.ScheduleJob("weekly-summary", s.cfg.SummaryInterval, s.cfg.JobTimeout, s.summaryTick); err != nil {
			return err
		}
	}
	return nil
}

// reminderTick sends reminders and, at most once per EngagementEvery, runs
// the engagement pass in the same tick.
func (s *Scheduler) reminderTick(ctx context.Context) error {
	var errs []error
	res, err := s.jobs.Reminders.SendTaskReminders(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		s.log.Debug().Int("sent", res.RemindersSent).Int("considered", res.ConsideredTasks).Int("horizon_hours", res.HorizonHours).Msg("reminder tick")
	}

	if s.jobs.Engagement != nil && s.engagement.allow(s.now()) {
		eng, err := s.jobs.Engagement.Run(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.log.Info().
				Int("nudges", eng.Nudges[TierNudge]).
				Int("begs", eng.Nudges[TierBeg]).
				Int("reengages", eng.Nudges[TierReengage]).
				Int("bonuses", eng.Bonuses).
				Msg("engagement pass done")
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) expirationTick(ctx context.Context) error {
	if !s.expiration.allow(s.now()) {
		return nil
	}
	_, err := s.jobs.Lifecycle.ProcessExpiredRecurringTasks(ctx)
	return err
}

func (s *Scheduler) summaryTick(ctx context.Context) error {
	now := s.now()
	if !s.jobs.Summaries.InWindow(now) || !s.summary.claim(now) {
		return nil
	}
	_, err := s.jobs.Summaries.Generate(ctx)
	return err
}

// throttle lets an action through at most once per every.
type throttle struct {
	mu    sync.Mutex
	every time.Duration
	last  time.Time
}

func (t *throttle) allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.last.IsZero() && now.Sub(t.last) < t.every {
		return false
	}
	t.last = now
	return true
}

// dailyOnce lets an action through at most once per calendar day in loc.
type dailyOnce struct {
	mu      sync.Mutex
	loc     *time.Location
	lastDay string
}

func (d *dailyOnce) claim(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := now.In(d.loc).Format("2006-01-02")
	if key == d.lastDay {
		return false
	}
	d.lastDay = key
	return true
}
