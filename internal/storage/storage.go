// Package storage persists the mail send log in SQLite or Postgres.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Table is the send log table name.
const Table = "enjinmel_smtp_logs"

// Status of a logged send.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusSent || s == StatusFailed
}

// Entry is one row of the send log.
type Entry struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ToEmail      string    `json:"to_email"`
	Subject      string    `json:"subject"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message"`
}

// Store is the interface for send log operations.
type Store interface {
	Insert(ctx context.Context, e *Entry) error

	// Retention
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
	DeleteOldest(ctx context.Context, n int64) (int64, error)

	// Viewer
	List(ctx context.Context, f Filter) (*Page, error)
	Export(ctx context.Context, f Filter) ([]Entry, error)
	Delete(ctx context.Context, ids []int64) (int64, error)
	Clear(ctx context.Context) (int64, error)

	Close() error
}

// Config selects and locates the database.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string
}

// Open connects to the configured database, waits for it to answer and
// creates the log table if needed.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var d dialect
	switch cfg.Driver {
	case "sqlite", "":
		d = sqliteDialect
	case "postgres":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	s, err := openSQL(ctx, d, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return s, nil
}
