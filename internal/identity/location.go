package identity

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ShareURL renders the canonical address of a group.
func ShareURL(base, id string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/group/" + id
}

// ParseLocation splits a location into resolution sources. It accepts a full
// share URL, a bare path with optional query, or a bare group id.
func ParseLocation(raw string) (Sources, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Sources{Query: url.Values{}}, nil
	}
	if !strings.ContainsAny(raw, "/?") {
		return Sources{PathSegments: []string{"group", raw}, Query: url.Values{}}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Sources{}, fmt.Errorf("parse location %q: %w", raw, err)
	}
	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return Sources{PathSegments: segments, Query: u.Query()}, nil
}

// Locator rewrites the visible location once the store confirms an id.
type Locator interface {
	Replace(groupID string)
}

// Address is a Locator that remembers the canonical share URL.
type Address struct {
	mu      sync.RWMutex
	base    string
	current string
}

// NewAddress returns an Address rooted at base.
func NewAddress(base string) *Address {
	return &Address{base: base}
}

// Replace records the share URL of groupID.
func (a *Address) Replace(groupID string) {
	a.mu.Lock()
	a.current = ShareURL(a.base, groupID)
	a.mu.Unlock()
}

// String returns the current share URL, or "" before any id is confirmed.
func (a *Address) String() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}
