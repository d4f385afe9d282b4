package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Key names under which the flat JSON arrays are stored.
const (
	keyRecords  = "roadscribe_records"
	keySessions = "roadscribe_sessions"
)

// Persister mirrors the store's lists to durable storage. Implementations
// serialize each list as one flat JSON array under a fixed key name.
type Persister interface {
	Load() (records []IssueRecord, sessions []TestSession, err error)
	SaveRecords(records []IssueRecord) error
	SaveSessions(sessions []TestSession) error
}

// NopPersister discards all writes. Used in tests and when persistence is
// disabled by configuration.
type NopPersister struct{}

func (NopPersister) Load() ([]IssueRecord, []TestSession, error) { return nil, nil, nil }
func (NopPersister) SaveRecords([]IssueRecord) error             { return nil }
func (NopPersister) SaveSessions([]TestSession) error            { return nil }

// SQLitePersister keeps both lists in a single key-value table in a local
// SQLite database.
type SQLitePersister struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// kv schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLitePersister, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	ddl := `CREATE TABLE IF NOT EXISTS kv (
    name  TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}

	return &SQLitePersister{db: db}, nil
}

// Close releases the underlying database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

// Load reads both JSON arrays. Missing keys yield empty lists.
func (p *SQLitePersister) Load() ([]IssueRecord, []TestSession, error) {
	var records []IssueRecord
	if err := p.loadKey(keyRecords, &records); err != nil {
		return nil, nil, err
	}
	var sessions []TestSession
	if err := p.loadKey(keySessions, &sessions); err != nil {
		return nil, nil, err
	}
	return records, sessions, nil
}

func (p *SQLitePersister) loadKey(name string, out any) error {
	var value string
	err := p.db.QueryRow(`SELECT value FROM kv WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return fmt.Errorf("store: decode %s: %w", name, err)
	}
	return nil
}

// SaveRecords writes the record list as one JSON array.
func (p *SQLitePersister) SaveRecords(records []IssueRecord) error {
	return p.saveKey(keyRecords, records)
}

// SaveSessions writes the session list as one JSON array.
func (p *SQLitePersister) SaveSessions(sessions []TestSession) error {
	return p.saveKey(keySessions, sessions)
}

func (p *SQLitePersister) saveKey(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}
	_, err = p.db.Exec(
		`INSERT INTO kv (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, string(data),
	)
	if err != nil {
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	return nil
}
