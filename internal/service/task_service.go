package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tynles/internal/model"
	"tynles/internal/recurrence"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	SpaceID     uint
	CreatorID   uint
	Title       string
	Description string
	Difficulty  int
	DueAt       *time.Time
	Scope       model.AssigneeScope
	AssigneeID  *uint
	Rule        recurrence.Rule
}

// TaskService wraps task-related business logic.
type TaskService struct {
	stores Stores
	now    Clock
}

func NewTaskService(stores Stores, now Clock) *TaskService {
	if now == nil {
		now = time.Now
	}
	return &TaskService{stores: stores, now: now}
}

// CreateTask validates input and stores the task. A recurring task without an
// explicit due instant starts at its next occurrence from now.
func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if input.Difficulty < 1 || input.Difficulty > 5 {
		return nil, fmt.Errorf("%w: difficulty %d not in 1..5", ErrValidation, input.Difficulty)
	}
	rule := input.Rule.Normalize()
	if err := rule.Validate(); err != nil {
		return nil, classify(err)
	}

	space, err := s.stores.Spaces.FindByID(ctx, input.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("create task: space %d: %w", input.SpaceID, classify(err))
	}
	if _, err := recurrence.LoadZone(space.Timezone); err != nil {
		return nil, classify(err)
	}

	scope := input.Scope
	if scope == "" {
		scope = model.ScopeSingleUser
	}
	task := model.Task{
		SpaceID:     input.SpaceID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Difficulty:  input.Difficulty,
		DueAt:       input.DueAt,
		Scope:       scope,
		CreatorID:   input.CreatorID,
	}
	switch scope {
	case model.ScopeSingleUser:
		task.AssigneeID = input.AssigneeID
	case model.ScopeWholeSpace:
	default:
		return nil, fmt.Errorf("%w: scope %q", ErrValidation, scope)
	}
	task.SetRule(rule)

	if task.DueAt == nil && rule.Recurring() {
		next, err := nextDueFor(rule, space.Timezone, s.now())
		if err != nil {
			return nil, classify(err)
		}
		task.DueAt = &next
	}

	if err := s.stores.Tasks.Create(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) ListBySpace(ctx context.Context, spaceID uint) ([]model.Task, error) {
	return s.stores.Tasks.ListBySpace(ctx, spaceID)
}

func (s *TaskService) GetTask(ctx context.Context, taskID uint) (*model.Task, error) {
	task, err := s.stores.Tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, classify(err)
	}
	return task, nil
}

// Pause stops reminders and expiration for a task until Resume.
func (s *TaskService) Pause(ctx context.Context, taskID uint) error {
	return classify(s.stores.Tasks.SetPaused(ctx, taskID, true))
}

func (s *TaskService) Resume(ctx context.Context, taskID uint) error {
	return classify(s.stores.Tasks.SetPaused(ctx, taskID, false))
}

// DeleteTask removes a task completely (for both one-time and recurring tasks).
func (s *TaskService) DeleteTask(ctx context.Context, taskID uint) error {
	return classify(s.stores.Tasks.Delete(ctx, taskID))
}
