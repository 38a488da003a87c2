package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tynles/internal/model"
	"tynles/internal/recurrence"
)

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t, friday)
	svc := NewTaskService(env.stores, env.clock.Now)
	space := env.space(t, "UTC", 1)
	bad := env.space(t, "Moon/Base", 1)

	tests := []struct {
		name  string
		input TaskInput
		want  error
	}{
		{"empty title", TaskInput{SpaceID: space.ID, Title: "  ", Difficulty: 1}, ErrValidation},
		{"difficulty too low", TaskInput{SpaceID: space.ID, Title: "x", Difficulty: 0}, ErrValidation},
		{"difficulty too high", TaskInput{SpaceID: space.ID, Title: "x", Difficulty: 6}, ErrValidation},
		{"bad monthly day", TaskInput{SpaceID: space.ID, Title: "x", Difficulty: 1, Rule: recurrence.Monthly(40, nil)}, ErrValidation},
		{"unknown kind", TaskInput{SpaceID: space.ID, Title: "x", Difficulty: 1, Rule: recurrence.Rule{Kind: "yearly"}}, ErrValidation},
		{"unknown scope", TaskInput{SpaceID: space.ID, Title: "x", Difficulty: 1, Scope: "everyone"}, ErrValidation},
		{"bad timezone", TaskInput{SpaceID: bad.ID, Title: "x", Difficulty: 1}, ErrValidation},
		{"missing space", TaskInput{SpaceID: 999, Title: "x", Difficulty: 1}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateTask(context.Background(), tt.input); !errors.Is(err, tt.want) {
				t.Fatalf("CreateTask = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateRecurringTaskStartsAtNextOccurrence(t *testing.T) {
	env := newTestEnv(t, friday)
	svc := NewTaskService(env.stores, env.clock.Now)
	space := env.space(t, "UTC", 1)

	task, err := svc.CreateTask(context.Background(), TaskInput{
		SpaceID:    space.ID,
		CreatorID:  1,
		Title:      " yoga ",
		Difficulty: 2,
		Rule:       recurrence.Weekly(&recurrence.TimeOfDay{Hour: 7}, time.Wednesday, time.Monday),
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	want := time.Date(2024, 5, 13, 7, 0, 0, 0, time.UTC)
	if task.Title != "yoga" || task.DueAt == nil || !task.DueAt.Equal(want) || task.Scope != model.ScopeSingleUser {
		t.Fatalf("task = %+v, want yoga due %v", task, want)
	}
	if got := task.Rule(); got.Kind != recurrence.KindWeekly || len(got.Weekdays) != 2 || got.Weekdays[0] != time.Monday {
		t.Fatalf("rule = %+v", got)
	}
}

func TestPauseResumeAndDelete(t *testing.T) {
	env := newTestEnv(t, friday)
	ctx := context.Background()
	svc := NewTaskService(env.stores, env.clock.Now)
	space := env.space(t, "UTC", 1)
	task, err := svc.CreateTask(ctx, TaskInput{SpaceID: space.ID, CreatorID: 1, Title: "read", Difficulty: 1})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := svc.Pause(ctx, task.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	got, _ := svc.GetTask(ctx, task.ID)
	if !got.Paused {
		t.Fatalf("task not paused")
	}
	if err := svc.Resume(ctx, task.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	got, _ = svc.GetTask(ctx, task.ID)
	if got.Paused {
		t.Fatalf("task still paused")
	}

	if err := svc.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := svc.DeleteTask(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteTask = %v, want ErrNotFound", err)
	}
	if err := svc.Pause(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Pause missing = %v, want ErrNotFound", err)
	}
}

func TestSpaceServiceLeaderboardAndProgress(t *testing.T) {
	env := newTestEnv(t, friday)
	ctx := context.Background()
	svc := NewSpaceService(env.stores)

	if _, err := svc.CreateSpace(ctx, "flat", "Not/AZone", 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("CreateSpace bad tz = %v, want ErrValidation", err)
	}
	space, err := svc.CreateSpace(ctx, "flat", "Europe/Berlin", 1)
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	for _, id := range []uint{2, 3} {
		if err := svc.AddMember(ctx, space.ID, id); err != nil {
			t.Fatalf("AddMember: %v", err)
		}
	}
	if err := svc.AddMember(ctx, 999, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AddMember missing space = %v, want ErrNotFound", err)
	}
	env.giveXP(t, space.ID, 1, 50, nil)
	env.giveXP(t, space.ID, 2, 50, nil)
	env.giveXP(t, space.ID, 3, 120, nil)

	board, err := svc.Leaderboard(ctx, space.ID)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 3 || board[0].UserID != 3 || board[0].Position != 1 || board[1].Position != 2 || board[2].Position != 2 {
		t.Fatalf("board = %+v, want 3 first and a shared second place", board)
	}

	progress, err := svc.Progress(ctx, space.ID, 3)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if progress.Level != 2 || progress.XPIntoLevel != 18 {
		t.Fatalf("progress = %+v, want level 2 with 18 xp in", progress)
	}

	ok, err := svc.IsMember(ctx, space.ID, 2)
	if err != nil || !ok {
		t.Fatalf("IsMember = %v, %v", ok, err)
	}
}
