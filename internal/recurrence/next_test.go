package recurrence

import (
	"errors"
	"testing"
	"time"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadZone(name)
	if err != nil {
		t.Fatalf("LoadZone(%q): %v", name, err)
	}
	return loc
}

func TestNextDaily(t *testing.T) {
	t.Parallel()
	berlin := mustZone(t, "Europe/Berlin")
	nineThirty := &TimeOfDay{Hour: 9, Minute: 30}

	tests := []struct {
		name string
		rule Rule
		from time.Time
		want time.Time
	}{
		{
			name: "midnight",
			rule: Daily(nil),
			from: time.Date(2024, 5, 10, 15, 0, 0, 0, berlin),
			want: time.Date(2024, 5, 11, 0, 0, 0, 0, berlin),
		},
		{
			name: "time of day",
			rule: Daily(nineThirty),
			from: time.Date(2024, 5, 10, 8, 0, 0, 0, berlin),
			want: time.Date(2024, 5, 11, 9, 30, 0, 0, berlin),
		},
		{
			// Clocks go forward on 2024-03-31; the day is 23 hours long.
			name: "spring forward",
			rule: Daily(nil),
			from: time.Date(2024, 3, 30, 12, 0, 0, 0, berlin),
			want: time.Date(2024, 3, 31, 0, 0, 0, 0, berlin),
		},
		{
			name: "fall back keeps local time",
			rule: Daily(nineThirty),
			from: time.Date(2024, 10, 26, 23, 0, 0, 0, berlin),
			want: time.Date(2024, 10, 27, 9, 30, 0, 0, berlin),
		},
		{
			name: "local date differs from utc date",
			rule: Daily(nil),
			from: time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC), // 01:30 on the 11th in Berlin
			want: time.Date(2024, 5, 12, 0, 0, 0, 0, berlin),
		},
		{
			name: "unknown kind falls back to one day",
			rule: Rule{Kind: Kind("yearly")},
			from: time.Date(2024, 5, 10, 15, 0, 0, 0, berlin),
			want: time.Date(2024, 5, 11, 0, 0, 0, 0, berlin),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.rule, berlin, tt.from)
			if !got.Equal(tt.want) {
				t.Fatalf("Next = %v, want %v", got, tt.want)
			}
			if !got.After(tt.from) {
				t.Fatalf("Next = %v, not after %v", got, tt.from)
			}
		})
	}
}

func TestNextWeekly(t *testing.T) {
	t.Parallel()
	utc := time.UTC
	wednesday := time.Date(2024, 5, 8, 10, 0, 0, 0, utc)
	friday := time.Date(2024, 5, 10, 10, 0, 0, 0, utc)

	tests := []struct {
		name string
		rule Rule
		from time.Time
		want time.Time
	}{
		{
			name: "next day in same week",
			rule: Weekly(nil, time.Monday, time.Friday),
			from: wednesday,
			want: time.Date(2024, 5, 10, 0, 0, 0, 0, utc),
		},
		{
			name: "wrap to following monday",
			rule: Weekly(nil, time.Monday, time.Wednesday),
			from: wednesday,
			want: time.Date(2024, 5, 13, 0, 0, 0, 0, utc),
		},
		{
			name: "created friday with monday rule",
			rule: Weekly(nil, time.Monday),
			from: friday,
			want: time.Date(2024, 5, 13, 0, 0, 0, 0, utc),
		},
		{
			name: "same weekday moves a full week",
			rule: Weekly(nil, time.Friday),
			from: friday,
			want: time.Date(2024, 5, 17, 0, 0, 0, 0, utc),
		},
		{
			name: "empty set is seven days",
			rule: Weekly(nil),
			from: wednesday,
			want: time.Date(2024, 5, 15, 0, 0, 0, 0, utc),
		},
		{
			name: "daily with weekdays normalizes to weekly",
			rule: Rule{Kind: KindDaily, Weekdays: []time.Weekday{time.Monday}}.Normalize(),
			from: friday,
			want: time.Date(2024, 5, 13, 0, 0, 0, 0, utc),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.rule, utc, tt.from)
			if !got.Equal(tt.want) {
				t.Fatalf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextWeeklyAlwaysLandsInSet(t *testing.T) {
	t.Parallel()
	loc := mustZone(t, "America/New_York")
	sets := [][]time.Weekday{
		{time.Sunday},
		{time.Monday, time.Wednesday},
		{time.Tuesday, time.Thursday, time.Saturday},
		{time.Saturday},
	}
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, loc)
	for _, set := range sets {
		rule := Weekly(nil, set...)
		for i := 0; i < 21; i++ {
			from := start.AddDate(0, 0, i)
			got := Next(rule, loc, from)
			if !got.After(from) {
				t.Fatalf("Next(%v, %v) = %v, not after input", rule, from, got)
			}
			found := false
			for _, d := range set {
				if got.In(loc).Weekday() == d {
					found = true
				}
			}
			if !found {
				t.Fatalf("Next(%v, %v) = %v (%v), not in set", rule, from, got, got.In(loc).Weekday())
			}
			if got.Sub(from) > 7*24*time.Hour+time.Hour {
				t.Fatalf("Next(%v, %v) = %v, more than a week ahead", rule, from, got)
			}
		}
	}
}

func TestNextMonthly(t *testing.T) {
	t.Parallel()
	utc := time.UTC
	at := &TimeOfDay{Hour: 18, Minute: 0}

	tests := []struct {
		name string
		rule Rule
		from time.Time
		want time.Time
	}{
		{
			name: "explicit day",
			rule: Monthly(15, nil),
			from: time.Date(2024, 1, 20, 0, 0, 0, 0, utc),
			want: time.Date(2024, 2, 15, 0, 0, 0, 0, utc),
		},
		{
			name: "reference day",
			rule: Monthly(0, at),
			from: time.Date(2024, 1, 20, 0, 0, 0, 0, utc),
			want: time.Date(2024, 2, 20, 18, 0, 0, 0, utc),
		},
		{
			name: "december wraps year",
			rule: Monthly(5, nil),
			from: time.Date(2024, 12, 10, 0, 0, 0, 0, utc),
			want: time.Date(2025, 1, 5, 0, 0, 0, 0, utc),
		},
		{
			name: "overflow rolls into following month",
			rule: Monthly(31, nil),
			from: time.Date(2024, 3, 31, 0, 0, 0, 0, utc),
			want: time.Date(2024, 5, 1, 0, 0, 0, 0, utc),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.rule, utc, tt.from)
			if !got.Equal(tt.want) {
				t.Fatalf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextDueUnknownZone(t *testing.T) {
	t.Parallel()
	_, err := NextDue(Daily(nil), "Mars/Olympus_Mons", time.Now())
	if !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("err = %v, want ErrUnknownZone", err)
	}
}

func TestNextDueReturnsUTC(t *testing.T) {
	t.Parallel()
	got, err := NextDue(Daily(nil), "Asia/Tokyo", time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NextDue: %v", err)
	}
	want := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC) // 2024-05-11 00:00 JST
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("NextDue = %v, want %v in UTC", got, want)
	}
}

func TestEndOfDay(t *testing.T) {
	t.Parallel()
	loc := mustZone(t, "Europe/Berlin")
	got := EndOfDay(time.Date(2024, 5, 10, 22, 30, 0, 0, time.UTC), loc) // 00:30 on the 11th locally
	want := time.Date(2024, 5, 11, 23, 59, 59, 999000000, loc)
	if !got.Equal(want) {
		t.Fatalf("EndOfDay = %v, want %v", got, want)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rule Rule
		ok   bool
	}{
		{name: "none", rule: None(), ok: true},
		{name: "daily", rule: Daily(&TimeOfDay{Hour: 7}), ok: true},
		{name: "weekly", rule: Weekly(nil, time.Monday), ok: true},
		{name: "monthly", rule: Monthly(31, nil), ok: true},
		{name: "bad kind", rule: Rule{Kind: "hourly"}, ok: false},
		{name: "bad day", rule: Monthly(32, nil), ok: false},
		{name: "bad weekday", rule: Rule{Kind: KindWeekly, Weekdays: []time.Weekday{9}}, ok: false},
		{name: "bad hour", rule: Daily(&TimeOfDay{Hour: 24}), ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("Validate = %v, want ErrInvalidRule", err)
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	got, err := ParseTimeOfDay("07:05")
	if err != nil {
		t.Fatalf("ParseTimeOfDay: %v", err)
	}
	if got != (TimeOfDay{Hour: 7, Minute: 5}) {
		t.Fatalf("ParseTimeOfDay = %v, want 07:05", got)
	}
	if _, err := ParseTimeOfDay("7"); err == nil {
		t.Fatal("expected error for missing minute")
	}
}
