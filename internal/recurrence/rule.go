package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRule is returned when a rule cannot describe a repeat schedule.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Kind tags the variant of a Rule.
type Kind string

const (
	KindNone    Kind = "none"
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
)

// TimeOfDay is a local wall-clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses an HH:MM string.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: time %q, expected HH:MM", ErrInvalidRule, raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: hour in %q", ErrInvalidRule, raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: minute in %q", ErrInvalidRule, raw)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// Rule describes how a task repeats. Only the fields belonging to Kind are
// meaningful: Weekdays for weekly, DayOfMonth for monthly. At is optional for
// every recurring kind.
type Rule struct {
	Kind       Kind
	Weekdays   []time.Weekday
	DayOfMonth int
	At         *TimeOfDay
}

// None is the rule of a one-shot task.
func None() Rule { return Rule{Kind: KindNone} }

// Daily repeats every civil day.
func Daily(at *TimeOfDay) Rule { return Rule{Kind: KindDaily, At: at} }

// Weekly repeats on the given weekdays. An empty set repeats every seven days.
func Weekly(at *TimeOfDay, days ...time.Weekday) Rule {
	return Rule{Kind: KindWeekly, Weekdays: normalizeDays(days), At: at}
}

// Monthly repeats on day of the month. Zero keeps the day of the reference instant.
func Monthly(day int, at *TimeOfDay) Rule {
	return Rule{Kind: KindMonthly, DayOfMonth: day, At: at}
}

// Recurring reports whether the rule reschedules its task instead of deleting it.
func (r Rule) Recurring() bool {
	return r.Kind != "" && r.Kind != KindNone
}

// Normalize returns the rule with a sorted, deduplicated weekday set. A daily
// rule that carries weekdays is treated as weekly.
func (r Rule) Normalize() Rule {
	r.Weekdays = normalizeDays(r.Weekdays)
	if r.Kind == KindDaily && len(r.Weekdays) > 0 {
		r.Kind = KindWeekly
	}
	if r.Kind == "" {
		r.Kind = KindNone
	}
	return r
}

// Validate rejects rules that cannot be stored on a task.
func (r Rule) Validate() error {
	switch r.Kind {
	case "", KindNone:
		return nil
	case KindDaily, KindWeekly:
	case KindMonthly:
		if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month %d", ErrInvalidRule, r.DayOfMonth)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidRule, r.Kind)
	}
	for _, d := range r.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d", ErrInvalidRule, d)
		}
	}
	if r.At != nil {
		if r.At.Hour < 0 || r.At.Hour > 23 || r.At.Minute < 0 || r.At.Minute > 59 {
			return fmt.Errorf("%w: time of day %s", ErrInvalidRule, r.At)
		}
	}
	return nil
}

func (r Rule) String() string {
	var sb strings.Builder
	sb.WriteString(string(r.Kind))
	switch r.Kind {
	case KindWeekly:
		if len(r.Weekdays) > 0 {
			names := make([]string, 0, len(r.Weekdays))
			for _, d := range r.Weekdays {
				names = append(names, d.String()[:3])
			}
			sb.WriteString("(" + strings.Join(names, ",") + ")")
		}
	case KindMonthly:
		if r.DayOfMonth > 0 {
			sb.WriteString(fmt.Sprintf("(day %d)", r.DayOfMonth))
		}
	}
	if r.At != nil {
		sb.WriteString(" at " + r.At.String())
	}
	return sb.String()
}

func normalizeDays(days []time.Weekday) []time.Weekday {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
