package model

import (
	"testing"
	"time"

	"tynles/internal/recurrence"
)

func TestTaskRuleRoundTrip(t *testing.T) {
	t.Parallel()
	at := recurrence.TimeOfDay{Hour: 8, Minute: 15}
	var task Task
	task.SetRule(recurrence.Weekly(&at, time.Wednesday, time.Monday, time.Monday))

	if task.RecurKind != "weekly" || task.RecurTime != "08:15" {
		t.Fatalf("columns = %q/%q, want weekly/08:15", task.RecurKind, task.RecurTime)
	}
	if string(task.RecurDays) != "[1,3]" {
		t.Fatalf("RecurDays = %s, want [1,3]", task.RecurDays)
	}

	rule := task.Rule()
	if rule.Kind != recurrence.KindWeekly || len(rule.Weekdays) != 2 || rule.At == nil || *rule.At != at {
		t.Fatalf("Rule = %+v, want weekly Mon,Wed at 08:15", rule)
	}
}

func TestTaskRuleDailyWithDaysIsWeekly(t *testing.T) {
	t.Parallel()
	task := Task{RecurKind: "daily", RecurDays: []byte("[1]")}
	if got := task.Rule().Kind; got != recurrence.KindWeekly {
		t.Fatalf("Kind = %v, want weekly", got)
	}
}

func TestTaskRuleNone(t *testing.T) {
	t.Parallel()
	var task Task
	if task.Recurring() {
		t.Fatal("empty task should not be recurring")
	}
	task.SetRule(recurrence.None())
	if task.Recurring() {
		t.Fatal("none rule should not be recurring")
	}
}

func TestTaskRuleMalformed(t *testing.T) {
	t.Parallel()
	task := Task{RecurKind: "daily", RecurTime: "25:00"}
	if err := task.Rule().Validate(); err == nil {
		t.Fatal("expected malformed rule to fail validation")
	}
}

func TestTaskRecipientAndXP(t *testing.T) {
	t.Parallel()
	assignee := uint(7)
	task := Task{Difficulty: 3, CreatorID: 2}
	if task.XP() != 30 {
		t.Fatalf("XP = %d, want 30", task.XP())
	}
	if task.Recipient() != 2 {
		t.Fatalf("Recipient = %d, want creator 2", task.Recipient())
	}
	task.AssigneeID = &assignee
	if task.Recipient() != 7 {
		t.Fatalf("Recipient = %d, want assignee 7", task.Recipient())
	}
}
