package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrUnknownZone is returned for timezone names the tz database does not know.
var ErrUnknownZone = errors.New("unknown timezone")

var zones sync.Map // name -> *time.Location

// LoadZone resolves an IANA timezone name. An empty name means UTC.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	if loc, ok := zones.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnknownZone, name, err)
	}
	zones.Store(name, loc)
	return loc, nil
}

// NextDue computes the next due instant of rule after from, using civil-date
// arithmetic in the named timezone. The result is in UTC.
func NextDue(rule Rule, tz string, from time.Time) (time.Time, error) {
	loc, err := LoadZone(tz)
	if err != nil {
		return time.Time{}, err
	}
	return Next(rule, loc, from).UTC(), nil
}

// Next computes the next due instant of rule after from in loc. Without a time
// of day the result is local midnight of the target civil date.
func Next(rule Rule, loc *time.Location, from time.Time) time.Time {
	local := from.In(loc)
	year, month, day := local.Date()

	switch rule.Kind {
	case KindWeekly:
		day += weeklyDistance(rule.Weekdays, local.Weekday())
	case KindMonthly:
		target := rule.DayOfMonth
		if target <= 0 {
			target = day
		}
		// time.Date normalizes overflow, so day 31 in a 30-day month
		// lands on the 1st of the month after.
		month++
		day = target
	default:
		day++
	}

	hour, minute := 0, 0
	if rule.At != nil {
		hour, minute = rule.At.Hour, rule.At.Minute
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

// weeklyDistance returns the number of civil days from today to the next day
// in days, always in 1..7.
func weeklyDistance(days []time.Weekday, today time.Weekday) int {
	if len(days) == 0 {
		return 7
	}
	smallest := days[0]
	for _, d := range days {
		if d < smallest {
			smallest = d
		}
	}
	best := -1
	for _, d := range days {
		if d > today && (best == -1 || d < time.Weekday(best)) {
			best = int(d)
		}
	}
	if best >= 0 {
		return best - int(today)
	}
	return 7 - int(today-smallest)
}

// EndOfDay returns 23:59:59.999 of t's civil date in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	year, month, day := local.Date()
	return time.Date(year, month, day, 23, 59, 59, int(999*time.Millisecond), loc)
}
