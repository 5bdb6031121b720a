package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/ragchat/internal/shared"
	_ "modernc.org/sqlite"
)

// credentialKey is the only row the credentials table holds.
const credentialKey = "token"

const (
	retryAttempts = 3
	retryBase     = 100 * time.Millisecond
)

// SQLiteCredentials implements Credentials on a SQLite file.
type SQLiteCredentials struct {
	db *sql.DB
	mu sync.Mutex // serializes writers to avoid SQLITE_BUSY between CLI and TUI
}

var _ Credentials = (*SQLiteCredentials)(nil)

// NewSQLite opens (creating if needed) the credential database at dbPath.
func NewSQLite(dbPath string) (*SQLiteCredentials, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteCredentials{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteCredentials) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Load returns the stored credential.
func (s *SQLiteCredentials) Load(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, credentialKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	return token, nil
}

// Save replaces the stored credential.
func (s *SQLiteCredentials) Save(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO credentials (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	err := shared.RetryOnConflict(ctx, "save credential", retryAttempts, retryBase, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, credentialKey, token, time.Now().Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	slog.Debug("Credential saved")
	return nil
}

// Clear removes the stored credential.
func (s *SQLiteCredentials) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows int64
	err := shared.RetryOnConflict(ctx, "clear credential", retryAttempts, retryBase, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, credentialKey)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	if rows == 0 {
		slog.Debug("Clear found no stored credential")
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteCredentials) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteCredentials) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
