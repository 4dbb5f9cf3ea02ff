package identity

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/five82/mochiyoru/internal/model"
)

// Source names where a resolved value came from.
type Source int

const (
	SourceNone Source = iota
	SourcePath
	SourceQuery
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourcePath:
		return "path"
	case SourceQuery:
		return "query"
	case SourceCache:
		return "cache"
	}
	return "none"
}

// Query parameter names.
const (
	ParamGroupID   = "groupId"
	ParamGroupName = "groupName"
	ParamMembers   = "members"
)

// Sources are the three ranked inputs to resolution. Nothing else is read.
type Sources struct {
	PathSegments []string
	Query        url.Values
	Cached       *model.GroupRef
}

// Choice is the outcome of precedence alone, before any store access.
type Choice struct {
	ID          string
	IDSource    Source
	Name        string
	Members     []string
	Placeholder bool
}

// Pick applies the precedence path > query > cache to the id, and
// query > cache to name and members. Cached name and members are only used
// when the cache describes the same group, or when no id is known at all.
func Pick(src Sources) Choice {
	var p Choice
	switch {
	case pathID(src.PathSegments) != "":
		p.ID, p.IDSource = pathID(src.PathSegments), SourcePath
	case strings.TrimSpace(src.Query.Get(ParamGroupID)) != "":
		p.ID, p.IDSource = strings.TrimSpace(src.Query.Get(ParamGroupID)), SourceQuery
	case src.Cached != nil && strings.TrimSpace(src.Cached.ID) != "":
		p.ID, p.IDSource = strings.TrimSpace(src.Cached.ID), SourceCache
		p.Placeholder = src.Cached.Placeholder
	}

	p.Name = strings.TrimSpace(src.Query.Get(ParamGroupName))
	p.Members = parseMembers(src.Query.Get(ParamMembers))

	if c := src.Cached; c != nil && (p.ID == "" || strings.TrimSpace(c.ID) == p.ID) {
		if p.Name == "" {
			p.Name = strings.TrimSpace(c.Name)
		}
		if len(p.Members) == 0 {
			p.Members = model.CloneStrings(c.Members)
		}
	}
	return p
}

// pathID extracts the id from segments of the form group/<id>. Anything after
// "group" is part of the id.
func pathID(segments []string) string {
	for i, seg := range segments {
		if seg != "group" || i+1 >= len(segments) {
			continue
		}
		id := strings.Join(segments[i+1:], "/")
		return strings.TrimSpace(strings.Trim(id, "/"))
	}
	return ""
}

// parseMembers accepts a JSON array of names or of {"name": ...} objects.
// Invalid input yields no members.
func parseMembers(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		var name string
		if json.Unmarshal(e, &name) != nil {
			var obj struct {
				Name string `json:"name"`
			}
			if json.Unmarshal(e, &obj) != nil {
				continue
			}
			name = obj.Name
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
