// Package journal keeps a local SQLite history of alerts raised and
// dispatch assignments received, so an operator can review what the
// console announced after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	ref_id TEXT NOT NULL,
	call_id TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	units TEXT NOT NULL DEFAULT '',
	muted INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_created_at ON entries (created_at DESC);
`

// Kind distinguishes journal entries.
type Kind string

const (
	KindAlert      Kind = "alert"
	KindAssignment Kind = "assignment"
)

// Entry is one journal row.
type Entry struct {
	ID        string
	Kind      Kind
	RefID     string
	CallID    string
	Priority  int
	Summary   string
	Units     []string
	Muted     bool
	CreatedAt time.Time
}

// DB is the journal database.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// NewDB opens (creating if needed) the journal at path.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	conn, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	log.Info(log.CatJournal, "journal opened", "path", path)
	return &DB{conn: conn, path: path, now: time.Now}, nil
}

// Path returns the database file.
func (db *DB) Path() string { return db.path }

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// RecordAlert stores an alert, including ones suppressed by mute.
func (db *DB) RecordAlert(ctx context.Context, intent dispatch.AlertIntent, muted bool) error {
	return db.insert(ctx, Entry{
		Kind:     KindAlert,
		RefID:    intent.CallID,
		CallID:   intent.CallID,
		Priority: intent.Priority,
		Summary:  intent.Summary,
		Muted:    muted,
	})
}

// RecordAssignment stores a received dispatch assignment.
func (db *DB) RecordAssignment(ctx context.Context, a dispatch.Assignment) error {
	return db.insert(ctx, Entry{
		Kind:    KindAssignment,
		RefID:   a.ID,
		CallID:  a.IncidentID,
		Summary: a.Message,
		Units:   a.UnitIDs,
	})
}

func (db *DB) insert(ctx context.Context, e Entry) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO entries (id, kind, ref_id, call_id, priority, summary, units, muted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(e.Kind), e.RefID, e.CallID, e.Priority, e.Summary,
		strings.Join(e.Units, ","), e.Muted, db.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording %s %s: %w", e.Kind, e.RefID, err)
	}
	log.Debug(log.CatJournal, "recorded", "kind", e.Kind, "ref", e.RefID)
	return nil
}

// Recent returns up to limit entries, newest first. An empty kind returns
// every kind.
func (db *DB) Recent(ctx context.Context, kind Kind, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, ref_id, call_id, priority, summary, units, muted, created_at FROM entries`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			kindStr string
			units   string
			created string
		)
		if err := rows.Scan(&e.ID, &kindStr, &e.RefID, &e.CallID, &e.Priority, &e.Summary, &units, &e.Muted, &created); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.Kind = Kind(kindStr)
		if units != "" {
			e.Units = strings.Split(units, ",")
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", created, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
