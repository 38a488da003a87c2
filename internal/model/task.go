package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"tynles/internal/recurrence"
)

// AssigneeScope says who receives XP when a task is completed.
type AssigneeScope string

const (
	ScopeSingleUser AssigneeScope = "single-user"
	ScopeWholeSpace AssigneeScope = "whole-space"
)

// XPPerDifficulty converts difficulty into awarded XP.
const XPPerDifficulty = 10

// Task represents a single item owned by a space.
type Task struct {
	ID           uint `gorm:"primaryKey"`
	SpaceID      uint `gorm:"index"`
	Title        string
	Description  string
	Difficulty   int
	DueAt        *time.Time `gorm:"index"`
	Paused       bool       `gorm:"default:false"`
	ReminderSent bool       `gorm:"default:false"`
	Scope        AssigneeScope
	AssigneeID   *uint `gorm:"index"`
	CreatorID    uint  `gorm:"index"`

	RecurKind       string
	RecurDays       datatypes.JSON
	RecurDayOfMonth int
	RecurTime       string // HH:MM, empty when unset

	CreatedAt time.Time
	UpdatedAt time.Time
}

// XP is the amount awarded per recipient on completion.
func (t Task) XP() int {
	return t.Difficulty * XPPerDifficulty
}

// Recipient is the user a single-user task belongs to.
func (t Task) Recipient() uint {
	if t.AssigneeID != nil && *t.AssigneeID != 0 {
		return *t.AssigneeID
	}
	return t.CreatorID
}

// Rule decodes the stored recurrence columns. Malformed columns decode to a
// rule that Validate rejects.
func (t Task) Rule() recurrence.Rule {
	if t.RecurKind == "" || t.RecurKind == string(recurrence.KindNone) {
		return recurrence.None()
	}
	rule := recurrence.Rule{
		Kind:       recurrence.Kind(t.RecurKind),
		DayOfMonth: t.RecurDayOfMonth,
	}
	if len(t.RecurDays) > 0 {
		var days []int
		if err := json.Unmarshal(t.RecurDays, &days); err != nil {
			return recurrence.Rule{Kind: recurrence.Kind("malformed")}
		}
		for _, d := range days {
			rule.Weekdays = append(rule.Weekdays, time.Weekday(d))
		}
	}
	if t.RecurTime != "" {
		at, err := recurrence.ParseTimeOfDay(t.RecurTime)
		if err != nil {
			return recurrence.Rule{Kind: recurrence.Kind("malformed")}
		}
		rule.At = &at
	}
	return rule.Normalize()
}

// SetRule encodes rule into the recurrence columns.
func (t *Task) SetRule(rule recurrence.Rule) {
	rule = rule.Normalize()
	t.RecurKind = string(rule.Kind)
	t.RecurDayOfMonth = rule.DayOfMonth
	t.RecurDays = nil
	t.RecurTime = ""
	if len(rule.Weekdays) > 0 {
		days := make([]int, 0, len(rule.Weekdays))
		for _, d := range rule.Weekdays {
			days = append(days, int(d))
		}
		raw, _ := json.Marshal(days)
		t.RecurDays = datatypes.JSON(raw)
	}
	if rule.At != nil {
		t.RecurTime = rule.At.String()
	}
}

// Recurring reports whether completion reschedules the task.
func (t Task) Recurring() bool {
	return t.Rule().Recurring()
}

// TaskCompletion is an append-only record of one user's share of a completion.
type TaskCompletion struct {
	ID          uint `gorm:"primaryKey"`
	TaskID      uint `gorm:"index"`
	SpaceID     uint `gorm:"index:idx_completion_space_user"`
	UserID      uint `gorm:"index:idx_completion_space_user"`
	XPAwarded   int
	CompletedAt time.Time `gorm:"index"`
}
