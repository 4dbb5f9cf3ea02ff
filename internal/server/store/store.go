// Package store persists groups and items for the reference server. One
// database/sql implementation serves both SQLite (modernc, the default) and
// Postgres (pgx), selected by the DSN.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// ErrNotFound is returned for a missing group.
var ErrNotFound = errors.New("not found")

// Group is a stored group.
type Group struct {
	ID        string
	Name      string
	Members   []string
	CreatedAt time.Time
}

// Item is a stored item row.
type Item struct {
	GroupID  string
	Name     string
	Assignee string
	Quantity string
}

// Store is the server's persistence boundary.
type Store interface {
	CreateGroup(ctx context.Context, name string, members []string) (Group, error)
	GetGroup(ctx context.Context, id string) (Group, error)
	UpdateGroup(ctx context.Context, id, name string, members []string) error
	ListItems(ctx context.Context, groupID string) ([]Item, error)
	// UpsertItem writes the row keyed by (group, name) and returns the row it
	// replaced, if any.
	UpsertItem(ctx context.Context, it Item) (prev *Item, err error)
	// DeleteItem removes the row and returns it, or nil when it was absent.
	DeleteItem(ctx context.Context, groupID, name string) (*Item, error)
	Close() error
}

// Ensure DB implements Store at compile time.
var _ Store = (*DB)(nil)

// DB implements Store on database/sql.
type DB struct {
	db       *sql.DB
	postgres bool
	newID    func() string
}

// Open connects to dsn. A postgres:// or postgresql:// URL selects Postgres;
// anything else is a SQLite file path, created with its directory.
func Open(ctx context.Context, dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database is not configured")
	}
	if isPostgres(dsn) {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
		return initDB(ctx, db, true)
	}

	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return initDB(ctx, db, false)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func initDB(ctx context.Context, db *sql.DB, postgres bool) (*DB, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &DB{db: db, postgres: postgres, newID: uuid.NewString}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS group_records (
		group_id   TEXT PRIMARY KEY,
		group_name TEXT NOT NULL,
		members    TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS item_records (
		group_id  TEXT NOT NULL,
		item_name TEXT NOT NULL,
		assignee  TEXT NOT NULL DEFAULT '',
		quantity  TEXT,
		seq       BIGINT NOT NULL,
		PRIMARY KEY (group_id, item_name)
	)`,
	`CREATE INDEX IF NOT EXISTS item_records_seq ON item_records (group_id, seq)`,
}

func (s *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *DB) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $n for Postgres.
func (s *DB) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateGroup stores a new group under a fresh uuid.
func (s *DB) CreateGroup(ctx context.Context, name string, members []string) (Group, error) {
	g := Group{ID: s.newID(), Name: name, Members: cloneMembers(members), CreatedAt: time.Now().UTC()}
	raw, err := json.Marshal(g.Members)
	if err != nil {
		return Group{}, fmt.Errorf("encode members: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO group_records (group_id, group_name, members, created_at)
		VALUES (?, ?, ?, ?)
	`), g.ID, g.Name, string(raw), g.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Group{}, fmt.Errorf("insert group: %w", err)
	}
	return g, nil
}

// GetGroup reads one group.
func (s *DB) GetGroup(ctx context.Context, id string) (Group, error) {
	var (
		g       Group
		members string
		created string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT group_id, group_name, members, created_at FROM group_records WHERE group_id = ?
	`), id).Scan(&g.ID, &g.Name, &members, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrNotFound
	}
	if err != nil {
		return Group{}, fmt.Errorf("select group: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &g.Members); err != nil {
		return Group{}, fmt.Errorf("decode members: %w", err)
	}
	if g.Members == nil {
		g.Members = []string{}
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		g.CreatedAt = t
	}
	return g, nil
}

// UpdateGroup overwrites name and members.
func (s *DB) UpdateGroup(ctx context.Context, id, name string, members []string) error {
	raw, err := json.Marshal(cloneMembers(members))
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE group_records SET group_name = ?, members = ? WHERE group_id = ?
	`), name, string(raw), id)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItems returns the group's items in insertion order.
func (s *DB) ListItems(ctx context.Context, groupID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT item_name, assignee, quantity FROM item_records WHERE group_id = ? ORDER BY seq
	`), groupID)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []Item{}
	for rows.Next() {
		it := Item{GroupID: groupID}
		var qty sql.NullString
		if err := rows.Scan(&it.Name, &it.Assignee, &qty); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		it.Quantity = qty.String
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	return items, nil
}

// UpsertItem inserts or overwrites the row keyed by (group, name). Writing
// into an unknown group is ErrNotFound.
func (s *DB) UpsertItem(ctx context.Context, it Item) (prev *Item, retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if err := s.groupExists(ctx, tx, it.GroupID); err != nil {
		return nil, err
	}
	prev, err = s.lookupItem(ctx, tx, it.GroupID, it.Name)
	if err != nil {
		return nil, err
	}

	qty := sql.NullString{String: it.Quantity, Valid: it.Quantity != ""}
	if prev != nil {
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE item_records SET assignee = ?, quantity = ? WHERE group_id = ? AND item_name = ?
		`), it.Assignee, qty, it.GroupID, it.Name)
	} else {
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO item_records (group_id, item_name, assignee, quantity, seq)
			VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM item_records WHERE group_id = ?))
		`), it.GroupID, it.Name, it.Assignee, qty, it.GroupID)
	}
	if err != nil {
		return nil, fmt.Errorf("write item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return prev, nil
}

// DeleteItem removes a row. Deleting an absent row is not an error.
func (s *DB) DeleteItem(ctx context.Context, groupID, name string) (deleted *Item, retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if err := s.groupExists(ctx, tx, groupID); err != nil {
		return nil, err
	}
	deleted, err = s.lookupItem(ctx, tx, groupID, name)
	if err != nil {
		return nil, err
	}
	if deleted != nil {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			DELETE FROM item_records WHERE group_id = ? AND item_name = ?
		`), groupID, name); err != nil {
			return nil, fmt.Errorf("delete item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return deleted, nil
}

func (s *DB) groupExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM group_records WHERE group_id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select group: %w", err)
	}
	return nil
}

func (s *DB) lookupItem(ctx context.Context, tx *sql.Tx, groupID, name string) (*Item, error) {
	it := Item{GroupID: groupID}
	var qty sql.NullString
	err := tx.QueryRowContext(ctx, s.rebind(`
		SELECT item_name, assignee, quantity FROM item_records WHERE group_id = ? AND item_name = ?
	`), groupID, name).Scan(&it.Name, &it.Assignee, &qty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select item: %w", err)
	}
	it.Quantity = qty.String
	return &it, nil
}

func cloneMembers(members []string) []string {
	out := make([]string, len(members))
	copy(out, members)
	return out
}
