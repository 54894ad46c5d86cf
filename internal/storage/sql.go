package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// connectRetries bounds the startup ping loop.
const connectRetries = 5

const columns = "id, timestamp, to_email, subject, status, error_message"

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

func openSQL(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	if d.name == "sqlite" {
		if dsn == "" {
			return nil, fmt.Errorf("sqlite storage requires a database path")
		}
		if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.name, err)
	}
	if d.name == "sqlite" {
		// A single connection serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}

	ping := func() error { return db.PingContext(ctx) }
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectRetries), ctx)
	err = backoff.RetryNotify(ping, b, func(err error, wait time.Duration) {
		slog.Warn("database not ready, retrying",
			"driver", d.name,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.name, err)
	}

	s := &SQLStore{db: db, d: d}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) createSchema(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Insert stores e and sets its ID.
func (s *SQLStore) Insert(ctx context.Context, e *Entry) error {
	ph := s.d.placeholder
	query := fmt.Sprintf(
		"INSERT INTO %s (timestamp, to_email, subject, status, error_message) VALUES (%s, %s, %s, %s, %s) RETURNING id",
		Table, ph(1), ph(2), ph(3), ph(4), ph(5),
	)
	err := s.db.QueryRowContext(ctx, query,
		e.Timestamp.UTC(), e.ToEmail, e.Subject, string(e.Status), e.ErrorMessage,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

// DeleteBefore removes entries strictly older than cutoff.
func (s *SQLStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE timestamp < %s", Table, s.d.placeholder(1))
	return s.exec(ctx, "delete expired log entries", query, cutoff.UTC())
}

// Count returns the number of entries.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+Table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count log entries: %w", err)
	}
	return n, nil
}

// DeleteOldest removes the n oldest entries, oldest timestamp first.
func (s *SQLStore) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	query := fmt.Sprintf(
		"DELETE FROM %[1]s WHERE id IN (SELECT id FROM %[1]s ORDER BY timestamp ASC, id ASC LIMIT %[2]s)",
		Table, s.d.placeholder(1),
	)
	return s.exec(ctx, "trim log entries", query, n)
}

// List returns one page of entries matching f, newest first.
func (s *SQLStore) List(ctx context.Context, f Filter) (*Page, error) {
	f = f.Normalized()
	where, args := f.where(s.d)

	page := &Page{Page: f.Page, PerPage: f.PerPage, Entries: []Entry{}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+Table+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count log entries: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY timestamp DESC, id DESC LIMIT %s OFFSET %s",
		columns, Table, where, s.d.placeholder(n+1), s.d.placeholder(n+2))
	entries, err := s.query(ctx, query, append(args, f.PerPage, f.Offset())...)
	if err != nil {
		return nil, err
	}
	page.Entries = entries
	return page, nil
}

// Export returns every entry matching f, newest first. Paging is ignored.
func (s *SQLStore) Export(ctx context.Context, f Filter) ([]Entry, error) {
	where, args := f.where(s.d)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY timestamp DESC, id DESC", columns, Table, where)
	return s.query(ctx, query, args...)
}

// Delete removes the entries with the given ids.
func (s *SQLStore) Delete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = s.d.placeholder(i + 1)
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", Table, strings.Join(marks, ", "))
	return s.exec(ctx, "delete log entries", query, args...)
}

// Clear removes every entry.
func (s *SQLStore) Clear(ctx context.Context) (int64, error) {
	return s.exec(ctx, "clear log", "DELETE FROM "+Table)
}

func (s *SQLStore) exec(ctx context.Context, what, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}
	return n, nil
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e      Entry
			status string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ToEmail, &e.Subject, &status, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Status = Status(status)
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log entries: %w", err)
	}
	return entries, nil
}
