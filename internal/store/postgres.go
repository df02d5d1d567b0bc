// Package store provides storage backends for ScriptPipe.
//
// This file implements a PostgreSQL-backed script archive.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// SaveScript archives a completed script.
func (s *PostgresStore) SaveScript(record models.ScriptRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO scripts (expert, audience, campaign, duration, goal, markdown, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.Expert, record.Audience, record.Campaign, string(record.Duration), string(record.Goal), record.Markdown, record.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveScript failed", "error", err, "campaign", record.Campaign)
		return fmt.Errorf("failed to insert script for %s: %w", record.Campaign, err)
	}
	slog.Debug("PostgresStore.SaveScript succeeded", "campaign", record.Campaign)
	return nil
}

// ListScripts returns archived scripts, newest first.
func (s *PostgresStore) ListScripts() ([]models.ScriptRecord, error) {
	rows, err := s.db.Query(`SELECT id, expert, audience, campaign, duration, goal, markdown, created_at FROM scripts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		slog.Error("PostgresStore.ListScripts query failed", "error", err)
		return nil, fmt.Errorf("failed to query scripts: %w", err)
	}
	defer rows.Close()

	var records []models.ScriptRecord
	for rows.Next() {
		record, err := scanScript(rows)
		if err != nil {
			slog.Error("PostgresStore.ListScripts scan failed", "error", err)
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore.ListScripts rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate script rows: %w", err)
	}
	slog.Debug("PostgresStore.ListScripts succeeded", "count", len(records))
	return records, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
