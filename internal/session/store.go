// Package session keeps short-lived per-user chat state.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an idle session survives.
const DefaultTTL = 30 * time.Minute

// Pending names the input a user is expected to send next.
type Pending string

const (
	PendingNone      Pending = ""
	PendingTaskTitle Pending = "task-title"
	PendingSpaceName Pending = "space-name"
)

// State is one user's chat session.
type State struct {
	Token   string
	SpaceID uint
	Pending Pending
}

type entry struct {
	state   State
	touched time.Time
}

// Store is a TTL map of sessions keyed by Telegram user id. Reads and writes
// refresh the TTL; expired entries are dropped on read and by Sweep.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[int64]entry
}

func New(ttl time.Duration, now func() time.Time) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Store{ttl: ttl, now: now, items: make(map[int64]entry)}
}

func (s *Store) Get(userID int64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.items[userID]
	if !ok {
		return State{}, false
	}
	if now.Sub(e.touched) >= s.ttl {
		delete(s.items, userID)
		return State{}, false
	}
	e.touched = now
	s.items[userID] = e
	return e.state, true
}

// Set stores st, assigning a token to new sessions.
func (s *Store) Set(userID int64, st State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Token == "" {
		if e, ok := s.items[userID]; ok && e.state.Token != "" {
			st.Token = e.state.Token
		} else {
			st.Token = uuid.NewString()
		}
	}
	s.items[userID] = entry{state: st, touched: s.now()}
	return st
}

// Update applies fn to the current (possibly fresh) session and stores it.
func (s *Store) Update(userID int64, fn func(*State)) State {
	st, _ := s.Get(userID)
	fn(&st)
	return s.Set(userID, st)
}

func (s *Store) Delete(userID int64) {
	s.mu.Lock()
	delete(s.items, userID)
	s.mu.Unlock()
}

// Sweep drops expired sessions and reports how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, e := range s.items {
		if now.Sub(e.touched) >= s.ttl {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
