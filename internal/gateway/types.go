package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/five82/mochiyoru/internal/model"
)

// OriginHeader carries the writing client's origin id. The feed echoes it on
// the resulting change event.
const OriginHeader = "X-Mochiyoru-Origin"

// GroupRecord mirrors the group payload of the storage API.
type GroupRecord struct {
	GroupID   string   `json:"groupId,omitempty"`
	GroupName string   `json:"groupName"`
	Members   []string `json:"members"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

// Group converts the record into the core's group type.
func (r GroupRecord) Group() model.Group {
	return model.Group{
		ID:      r.GroupID,
		Name:    r.GroupName,
		Members: model.CloneStrings(r.Members),
	}
}

// CreateGroupResponse mirrors the create endpoint's reply.
type CreateGroupResponse struct {
	GroupID string `json:"groupId"`
}

// ItemRecord is an item row under the store's native field names.
type ItemRecord struct {
	GroupID  string   `json:"group_id,omitempty"`
	ItemName string   `json:"item_name"`
	Assignee string   `json:"assignee"`
	Quantity Quantity `json:"quantity"`
}

// Item translates the row into the ledger's field names.
func (r ItemRecord) Item() model.Item {
	return model.Item{
		Name:     strings.TrimSpace(r.ItemName),
		Assignee: model.NormalizeAssignee(r.Assignee),
		Quantity: string(r.Quantity),
	}
}

// RecordFromItem builds the native row for an item of groupID.
func RecordFromItem(groupID string, it model.Item) ItemRecord {
	return ItemRecord{
		GroupID:  groupID,
		ItemName: it.Name,
		Assignee: it.Assignee,
		Quantity: Quantity(it.Quantity),
	}
}

// Quantity is free text on the wire. Older rows carry a number or null, both
// of which decode to their text form.
type Quantity string

// UnmarshalJSON accepts a string, a number, or null.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*q = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = Quantity(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*q = Quantity(strconv.FormatInt(i, 10))
		return nil
	}
	*q = Quantity(n.String())
	return nil
}

// MarshalJSON writes null for an empty quantity.
func (q Quantity) MarshalJSON() ([]byte, error) {
	if q == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(q))
}

// FeedMessage is one frame of the live change feed.
type FeedMessage struct {
	Type   string      `json:"type"`
	Kind   string      `json:"kind,omitempty"`
	Before *ItemRecord `json:"before,omitempty"`
	After  *ItemRecord `json:"after,omitempty"`
	Origin string      `json:"origin,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Feed frame types.
const (
	FeedSubscribed = "subscribed"
	FeedChange     = "change"
	FeedError      = "error"
)

// ErrorBody is the JSON body of a failed API call.
type ErrorBody struct {
	Error string `json:"error"`
}
