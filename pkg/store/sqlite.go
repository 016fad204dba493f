package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // sqlite driver
)

const (
	sqliteSchemaVersion = 1
	sqliteSchema        = `
	CREATE TABLE set_members(
		set_key TEXT NOT NULL,
		member  TEXT NOT NULL,
		PRIMARY KEY (set_key, member)
	);`
)

// SQLiteStore is a SetStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	mu     sync.Mutex
	closed bool
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.Contains(path, ":memory:") {
		return nil, fmt.Errorf("store: in-memory sqlite is not durable, use MemoryStore")
	}

	params := make(url.Values)
	params.Add("_txlock", "immediate")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "busy_timeout(1000)")
	params.Add("_pragma", "synchronous(NORMAL)")

	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	dsn += "?" + params.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	// Single writer, so transactions never contend.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.setup(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) setup() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("store: checking schema version: %w", err)
	}
	switch version {
	case 0:
		if _, err := s.db.Exec(sqliteSchema); err != nil {
			return fmt.Errorf("store: applying schema: %w", err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
			return fmt.Errorf("store: writing schema version: %w", err)
		}
		return nil
	case sqliteSchemaVersion:
		return nil
	default:
		return fmt.Errorf("store: schema version mismatch: expected %d, have %d",
			sqliteSchemaVersion, version)
	}
}

// GetSet implements SetStore.
func (s *SQLiteStore) GetSet(key string) ([]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(
		"SELECT member FROM set_members WHERE set_key = ? ORDER BY member", key)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", key, err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", key, err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query %s: %w", key, err)
	}
	return members, nil
}

// PutSet implements SetStore. The replacement is atomic.
func (s *SQLiteStore) PutSet(key string, members []string) error {
	if s.isClosed() {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM set_members WHERE set_key = ?", key); err != nil {
		return fmt.Errorf("store: clear %s: %w", key, err)
	}

	stmt, err := tx.Prepare("INSERT INTO set_members (set_key, member) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range normalize(members) {
		if _, err := stmt.Exec(key, m); err != nil {
			return fmt.Errorf("store: insert %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ SetStore = (*SQLiteStore)(nil)
