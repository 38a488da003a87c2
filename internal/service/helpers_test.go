package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tynles/internal/leveling"
	"tynles/internal/model"
	"tynles/internal/repository"
)

type sentMessage struct {
	UserID uint
	Text   string
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sentMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, userID uint, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, sentMessage{UserID: userID, Text: text})
	return nil
}

func (s *recordingSender) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *recordingSender) to(userID uint) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.msgs {
		if m.UserID == userID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	db     *gorm.DB
	stores Stores
	sender *recordingSender
	clock  *testClock
	log    zerolog.Logger
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return &testEnv{
		db:     db,
		stores: NewGormStores(db),
		sender: &recordingSender{},
		clock:  &testClock{t: now},
		log:    zerolog.Nop(),
	}
}

func (e *testEnv) lifecycle() *Lifecycle {
	return NewLifecycle(e.stores, e.sender, e.log, e.clock.Now)
}

func (e *testEnv) space(t *testing.T, tz string, members ...uint) model.Space {
	t.Helper()
	space := model.Space{Name: "home", Timezone: tz}
	if err := e.stores.Spaces.Create(context.Background(), &space); err != nil {
		t.Fatalf("create space: %v", err)
	}
	for _, id := range members {
		if err := e.stores.Spaces.AddMember(context.Background(), space.ID, id); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return space
}

func (e *testEnv) task(t *testing.T, task model.Task) model.Task {
	t.Helper()
	if task.Scope == "" {
		task.Scope = model.ScopeSingleUser
	}
	if err := e.stores.Tasks.Create(context.Background(), &task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

// giveXP seeds a member's total, optionally with a completion record at completedAt.
func (e *testEnv) giveXP(t *testing.T, spaceID, userID uint, xp int, completedAt *time.Time) {
	t.Helper()
	var record *model.TaskCompletion
	if completedAt != nil {
		record = &model.TaskCompletion{SpaceID: spaceID, UserID: userID, XPAwarded: xp, CompletedAt: completedAt.UTC()}
	}
	levelOf := func(total int) int { return leveling.Level(total, nil) }
	if _, err := e.stores.Stats.AdjustXP(context.Background(), spaceID, userID, xp, levelOf, record); err != nil {
		t.Fatalf("AdjustXP: %v", err)
	}
}

func (e *testEnv) totalXP(t *testing.T, spaceID, userID uint) int {
	t.Helper()
	stats, err := e.stores.Stats.Find(context.Background(), spaceID, userID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	return stats.TotalXP
}

func ptr[T any](v T) *T {
	return &v
}
