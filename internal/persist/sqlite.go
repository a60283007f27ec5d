package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"go.klb.dev/clipmind/internal/entry"
)

// DBFile is the database file name inside the data directory.
const DBFile = "clipmind.db"

const schemaVersion = 1

// SQLite stores values in a key/value table, one row per key.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) dir/clipmind.db in WAL mode.
func OpenSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("persist: create data dir: %w", err)
	}
	path := filepath.Join(dir, DBFile)
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	// Single writer; the store serializes mutations anyway.
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0o600)
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Path() string { return s.path }

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("persist: read user_version: %w", err)
	}
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS kv (
		  key        TEXT PRIMARY KEY,
		  value      TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("persist: migration 1: %w", err)
		}
	}
	if version < schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
			return fmt.Errorf("persist: set user_version: %w", err)
		}
	}
	return nil
}

// Get returns the raw value for key, or nil if it has never been written.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: get %s: %w", key, err)
	}
	return []byte(v), nil
}

// Put overwrites the value for key.
func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("persist: put %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context) ([]entry.Entry, error) {
	b, err := s.Get(ctx, HistoryKey)
	if err != nil {
		return nil, err
	}
	return decode(b)
}

func (s *SQLite) Save(ctx context.Context, entries []entry.Entry) error {
	b, err := encode(entries)
	if err != nil {
		return err
	}
	return s.Put(ctx, HistoryKey, b)
}

func (s *SQLite) Close() error { return s.db.Close() }
