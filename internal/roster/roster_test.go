package roster

import (
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/five82/mochiyoru/internal/model"
)

func TestRoster_AddPreservesOrder(t *testing.T) {
	var persisted [][]string
	r := New(nil, WithPersist(func(m []string) { persisted = append(persisted, m) }))

	if err := r.Add("Alice"); err != nil {
		t.Fatalf("Add(Alice) returned error: %v", err)
	}
	if err := r.Add("  Bob "); err != nil {
		t.Fatalf("Add(Bob) returned error: %v", err)
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"Alice", "Bob"}) {
		t.Fatalf("List() = %v, want [Alice Bob]", got)
	}
	if len(persisted) != 2 || !reflect.DeepEqual(persisted[1], []string{"Alice", "Bob"}) {
		t.Fatalf("persist calls = %v, want two with final [Alice Bob]", persisted)
	}
}

func TestRoster_AddRejectsInvalidNames(t *testing.T) {
	r := New([]string{"Alice"})

	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"duplicate", "Alice"},
		{"too long", strings.Repeat("あ", model.MaxMemberNameLength+1)},
		{"everyone alias", model.AssigneeAllAlias},
		{"everyone", model.AssigneeAll},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Add(tc.in)
			if err == nil {
				t.Fatalf("Add(%q) returned nil error", tc.in)
			}
			if !model.IsValidation(err) {
				t.Fatalf("Add(%q) error = %T, want ValidationError", tc.in, err)
			}
		})
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"Alice"}) {
		t.Fatalf("List() = %v, want [Alice]", got)
	}
}

func TestRoster_AddIsCaseSensitive(t *testing.T) {
	r := New([]string{"alice"})
	if err := r.Add("Alice"); err != nil {
		t.Fatalf("Add(Alice) returned error: %v", err)
	}
	if got := len(r.List()); got != 2 {
		t.Fatalf("len(List()) = %d, want 2", got)
	}
	if err := r.Add("All"); err != nil {
		t.Fatalf("Add(All) returned error: %v, want only the exact alias reserved", err)
	}
}

func TestRoster_MaxLengthNameAccepted(t *testing.T) {
	r := New(nil)
	if err := r.Add(strings.Repeat("あ", model.MaxMemberNameLength)); err != nil {
		t.Fatalf("Add(20 runes) returned error: %v", err)
	}
}

func TestRoster_RemoveIsIdempotent(t *testing.T) {
	calls := 0
	r := New([]string{"Alice", "Bob"}, WithPersist(func([]string) { calls++ }))

	r.Remove("Carol")
	if calls != 0 {
		t.Fatalf("persist called %d times for absent name, want 0", calls)
	}
	r.Remove("Alice")
	r.Remove("Alice")
	if got := r.List(); !reflect.DeepEqual(got, []string{"Bob"}) {
		t.Fatalf("List() = %v, want [Bob]", got)
	}
	if calls != 1 {
		t.Fatalf("persist called %d times, want 1", calls)
	}
}

func TestRoster_Validate(t *testing.T) {
	if err := New(nil).Validate(model.MaxMembers); !model.IsValidation(err) {
		t.Fatalf("Validate(empty) = %v, want ValidationError", err)
	}

	many := make([]string, 0, model.MaxMembers+1)
	for i := 0; i <= model.MaxMembers; i++ {
		many = append(many, string(rune('A'+i)))
	}
	if err := New(many).Validate(model.MaxMembers); !model.IsValidation(err) {
		t.Fatalf("Validate(11 members) = %v, want ValidationError", err)
	}
	if err := New(many[:model.MaxMembers]).Validate(model.MaxMembers); err != nil {
		t.Fatalf("Validate(10 members) = %v, want nil", err)
	}
}

func TestNew_DropsBlankAndDuplicateSeeds(t *testing.T) {
	r := New([]string{"Alice", "", "Alice", " Bob"})
	if got := r.List(); !reflect.DeepEqual(got, []string{"Alice", "Bob"}) {
		t.Fatalf("List() = %v, want [Alice Bob]", got)
	}
}

func memberName() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z][A-Za-z]{0,19}`)
}

func TestRoster_OrderAndDuplicateProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n1 := memberName().Draw(t, "n1")
		n2 := memberName().Filter(func(s string) bool { return s != n1 }).Draw(t, "n2")

		r := New(nil)
		if err := r.Add(n1); err != nil {
			t.Fatalf("Add(%q): %v", n1, err)
		}
		if err := r.Add(n1); !model.IsValidation(err) {
			t.Fatalf("second Add(%q) = %v, want ValidationError", n1, err)
		}
		if got := r.List(); !reflect.DeepEqual(got, []string{n1}) {
			t.Fatalf("List() = %v, want [%s]", got, n1)
		}
		if err := r.Add(n2); err != nil {
			t.Fatalf("Add(%q): %v", n2, err)
		}
		if got := r.List(); !reflect.DeepEqual(got, []string{n1, n2}) {
			t.Fatalf("List() = %v, want [%s %s]", got, n1, n2)
		}
	})
}
