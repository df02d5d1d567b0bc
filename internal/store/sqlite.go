// Package store provides storage backends for ScriptPipe.
//
// This file implements an SQLite-backed script archive.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveScript archives a completed script.
func (s *SQLiteStore) SaveScript(record models.ScriptRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO scripts (expert, audience, campaign, duration, goal, markdown, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Expert, record.Audience, record.Campaign, string(record.Duration), string(record.Goal), record.Markdown, record.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveScript failed", "error", err, "campaign", record.Campaign)
		return fmt.Errorf("failed to insert script for %s: %w", record.Campaign, err)
	}
	slog.Debug("SQLiteStore.SaveScript succeeded", "campaign", record.Campaign)
	return nil
}

// ListScripts returns archived scripts, newest first.
func (s *SQLiteStore) ListScripts() ([]models.ScriptRecord, error) {
	rows, err := s.db.Query(`SELECT id, expert, audience, campaign, duration, goal, markdown, created_at FROM scripts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		slog.Error("SQLiteStore.ListScripts query failed", "error", err)
		return nil, fmt.Errorf("failed to query scripts: %w", err)
	}
	defer rows.Close()

	var records []models.ScriptRecord
	for rows.Next() {
		record, err := scanScript(rows)
		if err != nil {
			slog.Error("SQLiteStore.ListScripts scan failed", "error", err)
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore.ListScripts rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate script rows: %w", err)
	}
	slog.Debug("SQLiteStore.ListScripts succeeded", "count", len(records))
	return records, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
