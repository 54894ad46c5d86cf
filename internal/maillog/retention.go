package maillog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shineum/enjinmel-relay/internal/storage"
)

const (
	DefaultRetentionDays = 90
	DefaultMaxRows       = 10000
	DefaultInterval      = 24 * time.Hour
)

// Policy bounds the log table. A value <= 0 disables that sweep.
type Policy struct {
	Days    int
	MaxRows int
}

// DefaultPolicy keeps 90 days and at most 10,000 rows.
func DefaultPolicy() Policy {
	return Policy{Days: DefaultRetentionDays, MaxRows: DefaultMaxRows}
}

// PurgeResult counts the rows removed by each sweep.
type PurgeResult struct {
	Expired int64 `json:"expired"`
	Trimmed int64 `json:"trimmed"`
}

// Purge removes rows older than the age limit, then the oldest rows above
// the row limit. Running it twice in a row removes nothing the second time.
func Purge(ctx context.Context, store storage.Store, p Policy, now time.Time) (PurgeResult, error) {
	var res PurgeResult

	if p.Days > 0 {
		cutoff := now.UTC().AddDate(0, 0, -p.Days)
		n, err := store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("age sweep: %w", err)
		}
		res.Expired = n
	}

	if p.MaxRows > 0 {
		count, err := store.Count(ctx)
		if err != nil {
			return res, fmt.Errorf("count sweep: %w", err)
		}
		if over := count - int64(p.MaxRows); over > 0 {
			n, err := store.DeleteOldest(ctx, over)
			if err != nil {
				return res, fmt.Errorf("count sweep: %w", err)
			}
			res.Trimmed = n
		}
	}

	return res, nil
}

// Scheduler runs Purge at start-up and then once per Interval.
type Scheduler struct {
	Store    storage.Store
	Policy   Policy
	Interval time.Duration

	// OnPurge, if set, receives every successful result.
	OnPurge func(PurgeResult)

	now func() time.Time
}

// Run blocks until ctx is cancelled. A failed run is logged and retried on
// the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	slog.Info("log retention scheduled",
		"interval", interval,
		"days", s.Policy.Days,
		"max_rows", s.Policy.MaxRows,
	)

	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	res, err := Purge(ctx, s.Store, s.Policy, now())
	if err != nil {
		slog.Error("log retention failed", "error", err)
		return
	}
	if res.Expired > 0 || res.Trimmed > 0 {
		slog.Info("log retention completed",
			"expired", res.Expired,
			"trimmed", res.Trimmed,
		)
	}
	if s.OnPurge != nil {
		s.OnPurge(res)
	}
}
