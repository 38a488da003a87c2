package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tynles/internal/logging"
)

// JobFunc is one run of a scheduled job.
type JobFunc func(ctx context.Context) error

// SchedulerService wraps cron-based jobs. Every job added through ScheduleJob
// gets its own single-flight guard: a tick that fires while the previous one
// is still running is skipped, not queued.
type SchedulerService struct {
	cron   *cron.Cron
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSchedulerService(loc *time.Location, log zerolog.Logger) *SchedulerService {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	cronLog := logging.CronLogger{Log: log}
	return &SchedulerService{
		cron:   cron.New(cron.WithLocation(loc), cron.WithSeconds(), cron.WithLogger(cronLog)),
		log:    log.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop halts the cadence, cancels in-flight runs and waits for them to return.
func (s *SchedulerService) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	spec, err := intervalSpec(interval)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleJob registers a named job every interval. Each run gets a context
// that expires after timeout; see Runner.
func (s *SchedulerService) ScheduleJob(name string, interval, timeout time.Duration, job JobFunc) (cron.EntryID, error) {
	spec, err := intervalSpec(interval)
	if err != nil {
		return 0, err
	}
	return s.cron.AddJob(spec, s.Runner(name, timeout, job))
}

// Runner wraps job with panic recovery, the single-flight guard and the run
// timeout. On timeout the run is abandoned: the guard is released and the
// job goroutine is left to observe its cancelled context.
func (s *SchedulerService) Runner(name string, timeout time.Duration, job JobFunc) cron.Job {
	cronLog := logging.CronLogger{Log: s.log.With().Str("job", name).Logger()}
	return cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).
		Then(cron.FuncJob(func() { s.runOnce(name, timeout, job) }))
}

func (s *SchedulerService) runOnce(name string, timeout time.Duration, job JobFunc) {
	log := s.log.With().Str("job", name).Str("run_id", uuid.NewString()).Logger()
	ctx := s.ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- job(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
			return
		}
		log.Debug().Dur("took", time.Since(start)).Msg("job ok")
	case <-ctx.Done():
		if s.ctx.Err() != nil {
			log.Info().Msg("job cancelled by shutdown")
			return
		}
		log.Warn().Err(ErrTimeout).Dur("timeout", timeout).Msg("job abandoned")
	}
}

func intervalSpec(interval time.Duration) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive")
	}
	// Convert to cron spec: every N seconds.
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("@every %ds", seconds), nil
}
