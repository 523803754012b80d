package capture

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"rollcall/internal/attendance"
	"rollcall/internal/slot"
)

// Entry is a capture not yet confirmed persisted by the server.
type Entry struct {
	ID         string            `json:"id"`
	Record     attendance.Record `json:"record"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExportedTo string            `json:"exportedTo,omitempty"`
}

// NewEntry wraps rec with its content id.
func NewEntry(rec attendance.Record, now time.Time) (Entry, error) {
	rec = rec.Payload()
	id, err := ContentID(rec)
	if err != nil {
		return Entry{}, err
	}
	return Entry{ID: id, Record: rec, CreatedAt: now.UTC()}, nil
}

// ContentID is the hex SHA-256 of the record's payload JSON, so the same
// capture exported twice lands on the same backlog entry.
func ContentID(rec attendance.Record) (string, error) {
	raw, err := json.Marshal(rec.Payload())
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Backlog durably holds pending entries.
type Backlog interface {
	// Put adds e, or refreshes ExportedTo if an entry with e.ID exists.
	Put(ctx context.Context, e Entry) error
	// List returns entries oldest first.
	List(ctx context.Context) ([]Entry, error)
	// RemoveIdentity drops every entry for the slot and reports how many.
	RemoveIdentity(ctx context.Context, id slot.Identity) (int, error)
	Len(ctx context.Context) (int, error)
}

// MemoryBacklog is a process-local Backlog.
type MemoryBacklog struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryBacklog returns an empty backlog.
func NewMemoryBacklog() *MemoryBacklog {
	return &MemoryBacklog{entries: make(map[string]Entry)}
}

func (b *MemoryBacklog) Put(ctx context.Context, e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.entries[e.ID]; ok {
		if e.ExportedTo != "" {
			prev.ExportedTo = e.ExportedTo
		}
		b.entries[e.ID] = prev
		return nil
	}
	b.entries[e.ID] = e
	return nil
}

func (b *MemoryBacklog) List(ctx context.Context) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (b *MemoryBacklog) RemoveIdentity(ctx context.Context, id slot.Identity) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for k, e := range b.entries {
		if e.Record.Identity() == id {
			delete(b.entries, k)
			removed++
		}
	}
	return removed, nil
}

func (b *MemoryBacklog) Len(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries), nil
}

// SQLiteBacklog keeps the backlog in a local SQLite file so it survives
// restarts of the recorder.
type SQLiteBacklog struct {
	db *sql.DB
}

// OpenSQLiteBacklog opens or creates the backlog database at path.
func OpenSQLiteBacklog(path string) (*SQLiteBacklog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create backlog dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open backlog: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping backlog: %w", err)
	}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS pending_captures (
		id          TEXT PRIMARY KEY,
		slot_key    TEXT NOT NULL,
		payload     TEXT NOT NULL,
		exported_to TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_slot ON pending_captures(slot_key);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate backlog: %w", err)
	}
	return &SQLiteBacklog{db: db}, nil
}

func (b *SQLiteBacklog) Close() error { return b.db.Close() }

func (b *SQLiteBacklog) Put(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Record.Payload())
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO pending_captures (id, slot_key, payload, exported_to, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			exported_to = CASE WHEN excluded.exported_to != '' THEN excluded.exported_to ELSE pending_captures.exported_to END
	`, e.ID, e.Record.Identity().Key(), string(payload), e.ExportedTo, e.CreatedAt.UTC())
	return err
}

func (b *SQLiteBacklog) List(ctx context.Context) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, payload, exported_to, created_at FROM pending_captures ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			payload string
		)
		if err := rows.Scan(&e.ID, &payload, &e.ExportedTo, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Record); err != nil {
			return nil, fmt.Errorf("decode backlog entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *SQLiteBacklog) RemoveIdentity(ctx context.Context, id slot.Identity) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM pending_captures WHERE slot_key = ?`, id.Key())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (b *SQLiteBacklog) Len(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_captures`).Scan(&n)
	return n, err
}
