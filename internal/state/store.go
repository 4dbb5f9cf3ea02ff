package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/mochiyoru/internal/board"
	"github.com/five82/mochiyoru/internal/model"
)

// maxNotices bounds the activity history kept for the UI.
const maxNotices = 50

// Level classifies a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Notice is one entry in the activity history.
type Notice struct {
	At      time.Time
	Level   Level
	Message string
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Board               board.State
	HasBoard            bool
	Notices             []Notice
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // consecutive refresh failures
}

// IsOffline returns true when the store has been unreachable for multiple
// refreshes.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the board state. When err is non-nil the previous state is
// kept but the error is recorded for visibility.
func (s *Store) Update(st *board.State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastUpdated = time.Now()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}
	if st != nil {
		s.snapshot.Board = cloneState(*st)
		s.snapshot.HasBoard = true
	}
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// SetBoard replaces the board state without touching the failure counters.
// Local edits use it; only refreshes reset connectivity.
func (s *Store) SetBoard(st board.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Board = cloneState(st)
	s.snapshot.HasBoard = true
	s.snapshot.LastUpdated = time.Now()
}

// Notify appends a notice, dropping the oldest past the history limit.
func (s *Store) Notify(level Level, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Notices = append(s.snapshot.Notices, Notice{
		At:      time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
	if over := len(s.snapshot.Notices) - maxNotices; over > 0 {
		s.snapshot.Notices = append([]Notice(nil), s.snapshot.Notices[over:]...)
	}
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Board = cloneState(s.snapshot.Board)
	if len(s.snapshot.Notices) > 0 {
		snap.Notices = append([]Notice(nil), s.snapshot.Notices...)
	}
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneState(st board.State) board.State {
	dup := st
	dup.Group = st.Group.Clone()
	dup.Members = model.CloneStrings(st.Members)
	dup.Items = model.CloneItems(st.Items)
	return dup
}
