package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tynles/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if task.DueAt != nil {
		due := task.DueAt.UTC()
		task.DueAt = &due
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

func (r *TaskRepository) ListBySpace(ctx context.Context, spaceID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("space_id = ?", spaceID).
		Order("due_at NULLS LAST, created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListReminderCandidates returns active, not yet reminded tasks due at or
// before cutoff, overdue ones included.
func (r *TaskRepository) ListReminderCandidates(ctx context.Context, cutoff time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("paused = ? AND reminder_sent = ? AND due_at IS NOT NULL AND due_at <= ?", false, false, cutoff.UTC()).
		Order("due_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	return tasks, nil
}

// ListExpiredRecurring returns active recurring tasks whose due instant passed.
func (r *TaskRepository) ListExpiredRecurring(ctx context.Context, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("paused = ? AND recur_kind <> '' AND recur_kind <> ? AND due_at IS NOT NULL AND due_at < ?", false, "none", now.UTC()).
		Order("due_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list expired tasks: %w", err)
	}
	return tasks, nil
}

// Reschedule moves the due instant and re-arms the reminder in one statement.
func (r *TaskRepository) Reschedule(ctx context.Context, taskID uint, due time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).
		Updates(map[string]any{"due_at": due.UTC(), "reminder_sent": false})
	if res.Error != nil {
		return fmt.Errorf("reschedule task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkReminded sets the reminder flag only while the task is still in the
// due cycle the reminder was sent for. It reports whether a row changed.
func (r *TaskRepository) MarkReminded(ctx context.Context, taskID uint, due time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND due_at = ? AND reminder_sent = ?", taskID, due.UTC(), false).
		Update("reminder_sent", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark reminded: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *TaskRepository) SetPaused(ctx context.Context, taskID uint, paused bool) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).Update("paused", paused)
	if res.Error != nil {
		return fmt.Errorf("pause task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a task. ErrNotFound means someone else removed it first.
func (r *TaskRepository) Delete(ctx context.Context, taskID uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Task{}, taskID)
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
