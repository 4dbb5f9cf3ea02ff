// Package roster manages the ordered, duplicate-free list of member names
// edited while creating or updating a group.
package roster

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/five82/mochiyoru/internal/model"
)

// Roster is safe for concurrent use. It never touches the network.
type Roster struct {
	mu      sync.RWMutex
	members []string
	persist func([]string)
}

// Option configures a Roster.
type Option func(*Roster)

// WithPersist registers a hook that receives the member list after every
// successful mutation, typically to mirror it into the local cache.
func WithPersist(fn func(members []string)) Option {
	return func(r *Roster) { r.persist = fn }
}

// New builds a roster seeded with members. Blank and duplicate seeds are
// dropped so the invariant holds from the start.
func New(members []string, opts ...Option) *Roster {
	r := &Roster{}
	for _, opt := range opts {
		opt(r)
	}
	r.members = dedupe(members)
	return r
}

// Add appends name after trimming. It fails with a ValidationError when the
// name is empty, longer than MaxMemberNameLength runes, reserved for the
// everyone assignee, or already present.
func (r *Roster) Add(name string) error {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	for _, m := range r.members {
		if m == name {
			r.mu.Unlock()
			return &model.ValidationError{Field: "member", Reason: "already added: " + name}
		}
	}
	r.members = append(r.members, name)
	snapshot := model.CloneStrings(r.members)
	r.mu.Unlock()

	r.notify(snapshot)
	return nil
}

// Remove deletes name. Removing an absent name is a no-op.
func (r *Roster) Remove(name string) {
	r.mu.Lock()
	idx := -1
	for i, m := range r.members {
		if m == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	r.members = append(r.members[:idx:idx], r.members[idx+1:]...)
	snapshot := model.CloneStrings(r.members)
	r.mu.Unlock()

	r.notify(snapshot)
}

// List returns the members in insertion order.
func (r *Roster) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.CloneStrings(r.members)
}

// Contains reports whether name is on the roster.
func (r *Roster) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m == name {
			return true
		}
	}
	return false
}

// Replace swaps the whole roster, e.g. after a backfill from the store. The
// persist hook is not invoked.
func (r *Roster) Replace(members []string) {
	clean := dedupe(members)
	r.mu.Lock()
	r.members = clean
	r.mu.Unlock()
}

// Validate applies the submission-time bounds: at least one member and no more
// than max.
func (r *Roster) Validate(max int) error {
	if max <= 0 {
		max = model.MaxMembers
	}
	r.mu.RLock()
	n := len(r.members)
	r.mu.RUnlock()

	switch {
	case n == 0:
		return &model.ValidationError{Field: "members", Reason: "add at least one member"}
	case n > max:
		return &model.ValidationError{Field: "members", Reason: "too many members"}
	}
	return nil
}

func (r *Roster) notify(members []string) {
	if r.persist != nil {
		r.persist(members)
	}
}

func validateName(name string) error {
	if name == "" {
		return &model.ValidationError{Field: "member", Reason: "name is required"}
	}
	if utf8.RuneCountInString(name) > model.MaxMemberNameLength {
		return &model.ValidationError{Field: "member", Reason: "name is too long"}
	}
	if name == model.AssigneeAll || name == model.AssigneeAllAlias {
		return &model.ValidationError{Field: "member", Reason: "name is reserved for everyone: " + name}
	}
	return nil
}

func dedupe(members []string) []string {
	out := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
