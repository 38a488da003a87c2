package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"tynles/internal/bot"
	"tynles/internal/recurrence"
	"tynles/internal/repository"
	"tynles/internal/service"
	"tynles/internal/session"
)

var Version = "dev"

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "tynles",
		Short:         "Gamified shared task tracker: Telegram bot and scheduling engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file (env vars win)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(sweepCmd(&configPath))
	rootCmd.AddCommand(remindCmd(&configPath))
	rootCmd.AddCommand(nextDueCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the background scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(*configPath, true)
			if err != nil {
				return err
			}
			defer a.close()

			sessions := session.New(a.cfg.SessionTTL, time.Now)
			telegramBot := bot.New(a.api, bot.Deps{
				Users:     a.users,
				Settings:  repository.NewSettingsRepository(a.db),
				Tasks:     a.tasks,
				Spaces:    a.spaces,
				Lifecycle: a.lifecycle,
				Reminders: a.reminders,
				Sessions:  sessions,
			}, a.log)

			scheduler, err := service.StartScheduler(a.schedulerConfig(), service.Jobs{
				Reminders:  a.reminders,
				Engagement: a.engagement,
				Lifecycle:  a.lifecycle,
				Summaries:  a.summaries,
			}, a.log)
			if err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}
			defer scheduler.Stop()

			if _, err := scheduler.Service().ScheduleInterval(a.cfg.SessionTTL, func() {
				if n := sessions.Sweep(); n > 0 {
					a.log.Debug().Int("removed", n).Msg("sessions swept")
				}
			}); err != nil {
				return fmt.Errorf("schedule session sweep: %w", err)
			}

			a.log.Info().Str("version", Version).Msg("tynles started")
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("bot stopped with error: %w", err)
			}
			a.log.Info().Msg("shutdown complete")
			return nil
		},
	}
}

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiration sweep over missed recurring tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.JobTimeout)
			defer cancel()
			res, err := a.lifecycle.ProcessExpiredRecurringTasks(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d rescheduled=%d deleted=%d\n", res.Expired, res.Rescheduled, res.Deleted)
			return nil
		},
	}
}

func remindCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Run one reminder pass (messages are logged when no token is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.ReminderTimeout)
			defer cancel()
			res, err := a.reminders.SendTaskReminders(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent=%d considered=%d horizon=%dh\n", res.RemindersSent, res.ConsideredTasks, res.HorizonHours)
			return nil
		},
	}
}

func nextDueCmd() *cobra.Command {
	var (
		kind       string
		days       string
		dayOfMonth int
		at         string
		tz         string
		from       string
	)
	cmd := &cobra.Command{
		Use:   "next-due",
		Short: "Print the next due instant of a recurrence rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := ruleFromFlags(kind, days, dayOfMonth, at)
			if err != nil {
				return err
			}
			start := time.Now()
			if from != "" {
				start, err = time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			next, err := recurrence.NextDue(rule, tz, start)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), next.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "daily", "daily, weekly or monthly")
	cmd.Flags().StringVar(&days, "days", "", "weekday numbers for weekly rules, 0=Sunday (e.g. 1,3)")
	cmd.Flags().IntVar(&dayOfMonth, "day", 0, "day of month for monthly rules (0 keeps the reference day)")
	cmd.Flags().StringVar(&at, "at", "", "local time of day HH:MM")
	cmd.Flags().StringVar(&tz, "tz", "UTC", "IANA timezone")
	cmd.Flags().StringVar(&from, "from", "", "reference instant in RFC3339 (default now)")
	return cmd
}

func ruleFromFlags(kind, days string, dayOfMonth int, at string) (recurrence.Rule, error) {
	rule := recurrence.Rule{Kind: recurrence.Kind(strings.ToLower(strings.TrimSpace(kind))), DayOfMonth: dayOfMonth}
	if days != "" {
		for _, part := range strings.Split(days, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return recurrence.Rule{}, fmt.Errorf("--days: %q is not a weekday number", part)
			}
			rule.Weekdays = append(rule.Weekdays, time.Weekday(n))
		}
	}
	if at != "" {
		t, err := recurrence.ParseTimeOfDay(at)
		if err != nil {
			return recurrence.Rule{}, err
		}
		rule.At = &t
	}
	rule = rule.Normalize()
	if !rule.Recurring() {
		return recurrence.Rule{}, fmt.Errorf("--kind %q does not recur", kind)
	}
	return rule, rule.Validate()
}
