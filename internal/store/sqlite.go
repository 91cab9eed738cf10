// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides login audit persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			principal_id TEXT PRIMARY KEY,
			scheme       TEXT NOT NULL,
			address      TEXT NOT NULL,
			first_seen   TEXT NOT NULL,
			last_login   TEXT NOT NULL,
			login_count  INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_principals_address ON principals(address);

		CREATE TABLE IF NOT EXISTS logins (
			login_id      TEXT PRIMARY KEY,
			scheme        TEXT NOT NULL,
			address       TEXT NOT NULL,
			principal_id  TEXT,
			outcome       TEXT NOT NULL,
			session_key   TEXT,
			expiration_ns INTEGER NOT NULL DEFAULT 0,
			remote_addr   TEXT,
			ts            TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_logins_ts ON logins(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_logins_address ON logins(address);
		CREATE INDEX IF NOT EXISTS idx_logins_principal ON logins(principal_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
