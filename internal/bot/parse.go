package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tynles/internal/recurrence"
)

func parseTaskID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if value == 0 {
		return 0, errors.New("id must be positive")
	}
	return uint(value), nil
}

type addRequest struct {
	Difficulty int
	Title      string
	Rule       recurrence.Rule
	Due        *time.Time
	WholeSpace bool
}

// parseAdd reads "<difficulty> <title> [@option args...]". Options:
//
//	@daily [HH:MM]
//	@weekly mon,thu [HH:MM]
//	@monthly [day] [HH:MM]
//	@due YYYY-MM-DD [HH:MM]
//	@all
//
// Dates and times are local to loc.
func parseAdd(args string, loc *time.Location) (addRequest, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return addRequest{}, errors.New("expected difficulty and title")
	}
	difficulty, err := strconv.Atoi(fields[0])
	if err != nil || difficulty < 1 || difficulty > 5 {
		return addRequest{}, fmt.Errorf("difficulty must be 1-5, got %q", fields[0])
	}
	req := addRequest{Difficulty: difficulty, Rule: recurrence.None()}

	var title []string
	rest := fields[1:]
	for len(rest) > 0 && !strings.HasPrefix(rest[0], "@") {
		title = append(title, rest[0])
		rest = rest[1:]
	}
	req.Title = strings.Join(title, " ")
	if req.Title == "" {
		return addRequest{}, errors.New("title is required")
	}

	for len(rest) > 0 {
		opt := strings.ToLower(rest[0])
		rest = rest[1:]
		var params []string
		for len(rest) > 0 && !strings.HasPrefix(rest[0], "@") {
			params = append(params, rest[0])
			rest = rest[1:]
		}
		if err := req.apply(opt, params, loc); err != nil {
			return addRequest{}, err
		}
	}
	return req, nil
}

func (r *addRequest) apply(opt string, params []string, loc *time.Location) error {
	switch opt {
	case "@all":
		r.WholeSpace = true
		return nil
	case "@daily":
		at, rest, err := trailingTime(params)
		if err != nil || len(rest) > 0 {
			return fmt.Errorf("@daily takes an optional HH:MM")
		}
		r.Rule = recurrence.Daily(at)
	case "@weekly":
		at, rest, err := trailingTime(params)
		if err != nil || len(rest) != 1 {
			return fmt.Errorf("@weekly takes days like mon,thu and an optional HH:MM")
		}
		days, err := parseWeekdays(rest[0])
		if err != nil {
			return err
		}
		r.Rule = recurrence.Weekly(at, days...)
	case "@monthly":
		at, rest, err := trailingTime(params)
		if err != nil || len(rest) > 1 {
			return fmt.Errorf("@monthly takes an optional day and HH:MM")
		}
		day := 0
		if len(rest) == 1 {
			day, err = strconv.Atoi(rest[0])
			if err != nil || day < 1 || day > 31 {
				return fmt.Errorf("day of month must be 1-31, got %q", rest[0])
			}
		}
		r.Rule = recurrence.Monthly(day, at)
	case "@due":
		if len(params) == 0 || len(params) > 2 {
			return fmt.Errorf("@due takes YYYY-MM-DD and an optional HH:MM")
		}
		date, err := time.ParseInLocation("2006-01-02", params[0], loc)
		if err != nil {
			return fmt.Errorf("bad date %q", params[0])
		}
		due := recurrence.EndOfDay(date, loc)
		if len(params) == 2 {
			at, err := recurrence.ParseTimeOfDay(params[1])
			if err != nil {
				return err
			}
			due = time.Date(date.Year(), date.Month(), date.Day(), at.Hour, at.Minute, 0, 0, loc)
		}
		due = due.UTC()
		r.Due = &due
	default:
		return fmt.Errorf("unknown option %s", opt)
	}
	return nil
}

// trailingTime splits an optional final HH:MM off params.
func trailingTime(params []string) (*recurrence.TimeOfDay, []string, error) {
	if len(params) == 0 || !strings.Contains(params[len(params)-1], ":") {
		return nil, params, nil
	}
	at, err := recurrence.ParseTimeOfDay(params[len(params)-1])
	if err != nil {
		return nil, nil, err
	}
	return &at, params[:len(params)-1], nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseWeekdays(raw string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if len(part) < 3 {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		d, ok := weekdayNames[part[:3]]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		days = append(days, d)
	}
	return days, nil
}

// splitNameAndZone treats a trailing word containing "/" (or "UTC") as the
// timezone of the new space.
func splitNameAndZone(args string) (string, string) {
	fields := strings.Fields(args)
	if len(fields) > 1 {
		last := fields[len(fields)-1]
		if strings.Contains(last, "/") || last == "UTC" {
			return strings.Join(fields[:len(fields)-1], " "), last
		}
	}
	return strings.Join(fields, " "), ""
}

func zoneName(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}
