package ledger

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/five82/mochiyoru/internal/model"
)

const (
	rankAll = iota
	rankNamed
	rankUnassigned
)

func assigneeRank(assignee string) int {
	switch model.NormalizeAssignee(assignee) {
	case model.AssigneeAll:
		return rankAll
	case "":
		return rankUnassigned
	default:
		return rankNamed
	}
}

// SortByAssignee orders items for display: everyone first, named assignees
// in collation order, unassigned last. Items that compare equal keep their
// relative order. The slice is sorted in place.
func SortByAssignee(items []model.Item) {
	// Collators carry scratch buffers and are not safe to share.
	c := collate.New(language.Japanese)
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := assigneeRank(items[i].Assignee), assigneeRank(items[j].Assignee)
		if ri != rj {
			return ri < rj
		}
		if ri != rankNamed {
			return false
		}
		return c.CompareString(items[i].Assignee, items[j].Assignee) < 0
	})
}
