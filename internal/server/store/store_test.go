package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "nested", "mochiyoru.db")
	if pg := os.Getenv("MOCHIYORU_TEST_POSTGRES"); pg != "" {
		dsn = pg
	}
	db, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGroupLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	g, err := db.CreateGroup(ctx, "Camp", []string{"Aki", "Ben"})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if len(g.ID) != 36 {
		t.Fatalf("group id = %q, want a uuid", g.ID)
	}

	got, err := db.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGroup() error = %v", err)
	}
	if got.Name != "Camp" || !reflect.DeepEqual(got.Members, []string{"Aki", "Ben"}) {
		t.Fatalf("GetGroup() = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt is zero")
	}

	if err := db.UpdateGroup(ctx, g.ID, "Beach", []string{"Ben"}); err != nil {
		t.Fatalf("UpdateGroup() error = %v", err)
	}
	got, _ = db.GetGroup(ctx, g.ID)
	if got.Name != "Beach" || !reflect.DeepEqual(got.Members, []string{"Ben"}) {
		t.Fatalf("after update = %+v", got)
	}
}

func TestMissingGroup(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if _, err := db.GetGroup(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetGroup() error = %v, want ErrNotFound", err)
	}
	if err := db.UpdateGroup(ctx, "nope", "x", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateGroup() error = %v, want ErrNotFound", err)
	}
	if _, err := db.UpsertItem(ctx, Item{GroupID: "nope", Name: "Tent"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpsertItem() error = %v, want ErrNotFound", err)
	}
	items, err := db.ListItems(ctx, "nope")
	if err != nil || len(items) != 0 {
		t.Fatalf("ListItems() = %v, %v, want empty", items, err)
	}
}

func TestItemUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	g, err := db.CreateGroup(ctx, "Camp", []string{"Aki"})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	prev, err := db.UpsertItem(ctx, Item{GroupID: g.ID, Name: "Tent"})
	if err != nil || prev != nil {
		t.Fatalf("first UpsertItem() = %v, %v, want no previous row", prev, err)
	}
	if _, err := db.UpsertItem(ctx, Item{GroupID: g.ID, Name: "Stove", Quantity: "2"}); err != nil {
		t.Fatalf("UpsertItem(Stove) error = %v", err)
	}
	prev, err = db.UpsertItem(ctx, Item{GroupID: g.ID, Name: "Tent", Assignee: "Aki", Quantity: "1"})
	if err != nil {
		t.Fatalf("second UpsertItem() error = %v", err)
	}
	if prev == nil || prev.Assignee != "" {
		t.Fatalf("previous row = %+v, want the unassigned tent", prev)
	}

	items, err := db.ListItems(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	want := []Item{
		{GroupID: g.ID, Name: "Tent", Assignee: "Aki", Quantity: "1"},
		{GroupID: g.ID, Name: "Stove", Quantity: "2"},
	}
	if !reflect.DeepEqual(items, want) {
		t.Fatalf("ListItems() = %+v, want %+v", items, want)
	}

	deleted, err := db.DeleteItem(ctx, g.ID, "Tent")
	if err != nil || deleted == nil || deleted.Name != "Tent" {
		t.Fatalf("DeleteItem() = %+v, %v", deleted, err)
	}
	deleted, err = db.DeleteItem(ctx, g.ID, "Tent")
	if err != nil || deleted != nil {
		t.Fatalf("repeat DeleteItem() = %+v, %v, want nil, nil", deleted, err)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{postgres: true}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("rebind() = %q", got)
	}
	lite := &DB{}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("rebind() = %q", got)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatalf("Open(\"\") error = nil, want error")
	}
}
