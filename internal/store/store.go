// Package store provides storage backends for ScriptPipe.
//
// Completed scripts are archived through the Store interface; SQLite,
// PostgreSQL and in-memory implementations are provided. The workflow
// itself is in-memory only; the archive is write-once history, not
// workflow state.
package store

import (
	"strings"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// Store is the script archive contract.
type Store interface {
	// SaveScript archives a completed script.
	SaveScript(record models.ScriptRecord) error
	// ListScripts returns archived scripts, newest first.
	ListScripts() ([]models.ScriptRecord, error)
	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string or SQLite file path
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use the postgres:// scheme or key=value form; anything else is treated as
// an SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
