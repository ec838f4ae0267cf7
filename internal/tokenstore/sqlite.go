package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps values in a local SQLite database
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

type kvRow struct {
	Value     string    `db:"value"`
	ExpiresAt time.Time `db:"expires_at"`
}

// NewSQLiteStore opens (creating if needed) the database at path, migrates it
// and drops rows that expired since the last run. Use ":memory:" for a
// throwaway store.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := s.PurgeExpired(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Get returns the value for key, purging it if expired
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var row kvRow
	err := s.db.GetContext(ctx, &row, `SELECT value, expires_at FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %q: %w", key, err)
	}

	if !s.now().Before(row.ExpiresAt) {
		if err := s.Delete(ctx, key); err != nil {
			return "", err
		}
		return "", ErrNotFound
	}
	return row.Value, nil
}

// Set stores value under key until ttl elapses
func (s *SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := s.now().UTC()
	query := `
		INSERT INTO kv (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value, now.Add(ttl), now); err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// PurgeExpired removes every expired row and returns how many were dropped
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at <= ?`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired keys: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
