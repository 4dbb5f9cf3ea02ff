package live

import (
	"sync"
	"time"

	"github.com/five82/mochiyoru/internal/model"
)

// Grace is how long a local write keeps matching echoes suppressed, per
// change kind.
type Grace struct {
	Insert time.Duration
	Update time.Duration
	Delete time.Duration
}

// DefaultGrace covers typical echo latency of the reference feed.
var DefaultGrace = Grace{
	Insert: 500 * time.Millisecond,
	Update: 500 * time.Millisecond,
	Delete: time.Second,
}

func (g Grace) forKind(kind model.ChangeKind) time.Duration {
	switch kind {
	case model.ChangeInsert:
		return g.Insert
	case model.ChangeUpdate:
		return g.Update
	case model.ChangeDelete:
		return g.Delete
	}
	return 0
}

type mark struct {
	kind    model.ChangeKind
	item    model.Item
	expires time.Time
}

// Suppressor drops feed notifications that describe a write this client just
// made. It matches on the logical mutation within a grace window; it has no
// acknowledgement and can both miss a late echo and hide an identical
// concurrent edit from someone else.
type Suppressor struct {
	mu    sync.Mutex
	grace Grace
	now   func() time.Time
	marks []mark
}

// NewSuppressor builds a Suppressor. Zero durations in grace fall back to
// DefaultGrace.
func NewSuppressor(grace Grace) *Suppressor {
	if grace.Insert <= 0 {
		grace.Insert = DefaultGrace.Insert
	}
	if grace.Update <= 0 {
		grace.Update = DefaultGrace.Update
	}
	if grace.Delete <= 0 {
		grace.Delete = DefaultGrace.Delete
	}
	return &Suppressor{grace: grace, now: time.Now}
}

// Mark records a local write that is about to be sent.
func (s *Suppressor) Mark(kind model.ChangeKind, item model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	s.marks = append(s.marks, mark{kind: kind, item: item, expires: now.Add(s.grace.forKind(kind))})
}

// Suppress reports whether a notification matches a live mark. Deletes match
// by name; inserts and updates also need equal field values.
func (s *Suppressor) Suppress(kind model.ChangeKind, item model.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	for _, m := range s.marks {
		if m.kind != kind || m.item.Name != item.Name {
			continue
		}
		if kind == model.ChangeDelete || m.item == item {
			return true
		}
	}
	return false
}

// Active counts unexpired marks.
func (s *Suppressor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	return len(s.marks)
}

func (s *Suppressor) pruneLocked(now time.Time) {
	kept := s.marks[:0]
	for _, m := range s.marks {
		if now.Before(m.expires) {
			kept = append(kept, m)
		}
	}
	s.marks = kept
}
