package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteMedium SQLite-backed key/value medium
type SQLiteMedium struct {
	db    *sql.DB
	quota int64
}

// NewSQLiteMedium opens (or creates) a key/value database at dbPath.
// A quota <= 0 means unlimited.
func NewSQLiteMedium(dbPath string, quota int64) (*SQLiteMedium, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the quota check and the write in the same view
	db.SetMaxOpenConns(1)

	m := &SQLiteMedium{db: db, quota: quota}
	if err := m.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	return m, nil
}

// initTables initializes database tables
func (m *SQLiteMedium) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := m.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", query, err)
		}
	}
	return nil
}

// Get returns the value stored under key
func (m *SQLiteMedium) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores a value, failing with ErrQuotaExceeded on overflow
func (m *SQLiteMedium) Set(ctx context.Context, key, value string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if m.quota > 0 {
		var total, existing int64
		err := tx.QueryRowContext(ctx, sizeQuery).Scan(&total)
		if err != nil {
			return fmt.Errorf("failed to measure storage: %w", err)
		}
		err = tx.QueryRowContext(ctx,
			"SELECT COALESCE(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB)), 0) FROM kv_store WHERE key = ?",
			key,
		).Scan(&existing)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to measure key %s: %w", key, err)
		}
		if total-existing+entrySize(key, value) > m.quota {
			return ErrQuotaExceeded
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit key %s: %w", key, err)
	}
	return nil
}

// Remove deletes a key
func (m *SQLiteMedium) Remove(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in lexical order
func (m *SQLiteMedium) Keys(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT key FROM kv_store ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

const sizeQuery = "SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0) FROM kv_store"

// Size returns the bytes used by keys and values
func (m *SQLiteMedium) Size(ctx context.Context) (int64, error) {
	var total int64
	if err := m.db.QueryRowContext(ctx, sizeQuery).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to measure storage: %w", err)
	}
	return total, nil
}

// Close closes the database connection
func (m *SQLiteMedium) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
