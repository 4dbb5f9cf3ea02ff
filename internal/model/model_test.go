package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestValidateQuantity(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"   ", false},
		{"3", false},
		{"2本", false},
		{"about 10 cans", false},
		{"many", true},
		{"たくさん", true},
	}
	for _, tc := range cases {
		err := ValidateQuantity(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ValidateQuantity(%q) = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if err != nil && !IsValidation(err) {
			t.Fatalf("ValidateQuantity(%q) error %T, want ValidationError", tc.in, err)
		}
	}
}

func TestNormalizeAssignee(t *testing.T) {
	cases := map[string]string{
		" ALL ":   AssigneeAll,
		"全員":      AssigneeAll,
		" all ":   "all",
		"All":     "All",
		" Bob ":   "Bob",
		"":        "",
		"Allison": "Allison",
	}
	for in, want := range cases {
		if got := NormalizeAssignee(in); got != want {
			t.Fatalf("NormalizeAssignee(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseChangeKind(t *testing.T) {
	if k, ok := ParseChangeKind("update"); !ok || k != ChangeUpdate {
		t.Fatalf("ParseChangeKind(update) = %q, %v", k, ok)
	}
	if _, ok := ParseChangeKind("TRUNCATE"); ok {
		t.Fatalf("ParseChangeKind(TRUNCATE) ok = true, want false")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "slow" }
func (timeoutErr) Timeout() bool { return true }

func TestIsTimeout(t *testing.T) {
	if IsTimeout(nil) {
		t.Fatalf("IsTimeout(nil) = true")
	}
	if !IsTimeout(fmt.Errorf("wrap: %w", context.DeadlineExceeded)) {
		t.Fatalf("IsTimeout(deadline) = false")
	}
	se := &SyncError{Op: "add", Item: "Tent", Err: timeoutErr{}}
	if !se.Timeout() || !IsTimeout(se) {
		t.Fatalf("SyncError wrapping timeout should report Timeout")
	}
	if IsTimeout(&SyncError{Op: "add", Err: errors.New("boom")}) {
		t.Fatalf("plain SyncError reported as timeout")
	}
}

func TestGroupRefCloneAndConfirmed(t *testing.T) {
	ref := GroupRef{ID: "abc", Members: []string{"Alice"}}
	dup := ref.Clone()
	dup.Members[0] = "Mallory"
	if ref.Members[0] != "Alice" {
		t.Fatalf("Clone shares members slice")
	}
	if !ref.Confirmed() {
		t.Fatalf("Confirmed() = false for store id")
	}
	ref.Placeholder = true
	if ref.Confirmed() {
		t.Fatalf("Confirmed() = true for placeholder id")
	}
}
