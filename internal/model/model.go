// Package model holds the shared group and item types plus the error taxonomy
// used across the mochiyoru core.
package model

import (
	"strings"
	"unicode"
)

const (
	// AssigneeAll marks an item as brought by every member.
	AssigneeAll = "全員"
	// AssigneeAllAlias is accepted on input and normalised to AssigneeAll.
	AssigneeAllAlias = "ALL"

	// DefaultGroupName is used when no name is known at creation time.
	DefaultGroupName = "新グループ"

	// MaxMemberNameLength bounds a roster entry, in runes.
	MaxMemberNameLength = 20
	// MaxMembers bounds the roster at submission time.
	MaxMembers = 10
)

// Group is the persisted group record.
type Group struct {
	ID      string   `json:"groupId"`
	Name    string   `json:"groupName"`
	Members []string `json:"members"`
}

// GroupRef is the resolved identity of the active group. Placeholder is set when
// ID was generated locally because the store could not be reached.
type GroupRef struct {
	ID          string   `json:"groupId"`
	Name        string   `json:"groupName,omitempty"`
	Members     []string `json:"members,omitempty"`
	Placeholder bool     `json:"placeholder,omitempty"`
}

// Confirmed reports whether the id was assigned by the store.
func (g GroupRef) Confirmed() bool {
	return g.ID != "" && !g.Placeholder
}

// Clone returns a copy that shares no slices with g.
func (g GroupRef) Clone() GroupRef {
	g.Members = CloneStrings(g.Members)
	return g
}

// Item is one entry of the who-brings-what list. Name is the natural key
// within a group.
type Item struct {
	Name     string `json:"name"`
	Assignee string `json:"assignee"`
	Quantity string `json:"quantity"`
}

// Field names an editable item column.
type Field string

const (
	FieldAssignee Field = "assignee"
	FieldQuantity Field = "quantity"
)

// ParseField maps a column name onto a Field.
func ParseField(name string) (Field, bool) {
	switch Field(strings.ToLower(strings.TrimSpace(name))) {
	case FieldAssignee:
		return FieldAssignee, true
	case FieldQuantity:
		return FieldQuantity, true
	}
	return "", false
}

// ChangeKind is the kind of a remote change notification.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// ParseChangeKind accepts the feed's kind names case-insensitively.
func ParseChangeKind(s string) (ChangeKind, bool) {
	switch ChangeKind(strings.ToUpper(strings.TrimSpace(s))) {
	case ChangeInsert:
		return ChangeInsert, true
	case ChangeUpdate:
		return ChangeUpdate, true
	case ChangeDelete:
		return ChangeDelete, true
	}
	return "", false
}

// NormalizeAssignee trims the value and folds the ALL alias. The match is
// exact: member names are case-sensitive, so "All" stays a name.
func NormalizeAssignee(s string) string {
	s = strings.TrimSpace(s)
	if s == AssigneeAllAlias {
		return AssigneeAll
	}
	return s
}

// ValidateQuantity enforces the free-text quantity rule: empty, or containing
// at least one digit.
func ValidateQuantity(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	for _, r := range q {
		if unicode.IsDigit(r) {
			return nil
		}
	}
	return &ValidationError{Field: "quantity", Reason: "must contain a number"}
}

// CloneStrings copies s, returning nil for an empty slice.
func CloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	dup := make([]string, len(s))
	copy(dup, s)
	return dup
}

// CloneItems copies items, returning nil for an empty slice.
func CloneItems(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}
	dup := make([]Item, len(items))
	copy(dup, items)
	return dup
}
