package main

import (
	"bytes"
	"strings"
	"testing"

	"tynles/internal/recurrence"
)

func TestRuleFromFlags(t *testing.T) {
	t.Parallel()

	rule, err := ruleFromFlags("Weekly", "4,1,4", 0, "09:30")
	if err != nil {
		t.Fatalf("ruleFromFlags: %v", err)
	}
	if rule.Kind != recurrence.KindWeekly || len(rule.Weekdays) != 2 || rule.Weekdays[0] != 1 || rule.At.Minute != 30 {
		t.Fatalf("rule = %+v", rule)
	}

	bad := []struct {
		name           string
		kind, days, at string
		dayOfMonth     int
	}{
		{name: "none", kind: "none"},
		{name: "unknown kind", kind: "yearly"},
		{name: "weekday word", kind: "weekly", days: "mon"},
		{name: "weekday range", kind: "weekly", days: "9"},
		{name: "bad time", kind: "daily", at: "25:00"},
		{name: "day of month", kind: "monthly", dayOfMonth: 32},
	}
	for _, tt := range bad {
		if _, err := ruleFromFlags(tt.kind, tt.days, tt.dayOfMonth, tt.at); err == nil {
			t.Fatalf("%s: ruleFromFlags succeeded", tt.name)
		}
	}
}

func TestNextDueCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--kind", "daily", "--at", "09:00", "--from", "2024-05-10T12:00:00Z"}, "2024-05-11T09:00:00Z"},
		{[]string{"--kind", "weekly", "--days", "1", "--at", "08:30", "--from", "2024-05-10T12:00:00Z"}, "2024-05-13T08:30:00Z"},
	}
	for _, tt := range tests {
		cmd := nextDueCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(tt.args)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("next-due %v: %v", tt.args, err)
		}
		if got := strings.TrimSpace(out.String()); got != tt.want {
			t.Fatalf("next-due %v = %q, want %q", tt.args, got, tt.want)
		}
	}

	cmd := nextDueCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--from", "yesterday"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("next-due with a bad --from succeeded")
	}
}
