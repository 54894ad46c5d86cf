// Package maillog records send outcomes in the log store and enforces the
// retention policy on it.
package maillog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shineum/enjinmel-relay/internal/mailhook"
	"github.com/shineum/enjinmel-relay/internal/parser"
	"github.com/shineum/enjinmel-relay/internal/storage"
)

// maxFieldLen bounds to_email and subject, in characters.
const maxFieldLen = 255

// EntryFunc may adjust an entry before it is stored. Returning false drops it.
type EntryFunc func(e *storage.Entry) bool

// Recorder writes one log row per send. It implements mailhook.Observer.
type Recorder struct {
	store   storage.Store
	enabled *bool
	filters []EntryFunc
	now     func() time.Time
}

// NewRecorder creates a Recorder. A nil enabled flag means logging is on.
func NewRecorder(store storage.Store, enabled *bool) *Recorder {
	return &Recorder{store: store, enabled: enabled, now: time.Now}
}

// OnEntry registers an entry filter.
func (r *Recorder) OnEntry(fn EntryFunc) {
	r.filters = append(r.filters, fn)
}

// Enabled reports whether entries are being written.
func (r *Recorder) Enabled() bool {
	return r.enabled == nil || *r.enabled
}

// Record stores a send outcome. It does nothing when logging is disabled.
func (r *Recorder) Record(ctx context.Context, status storage.Status, to []string, subject, errMsg string) error {
	if !r.Enabled() {
		return nil
	}

	e := &storage.Entry{
		Timestamp:    r.now().UTC().Truncate(time.Second),
		ToEmail:      truncate(strings.Join(parser.ParseAddresses(to...), ","), maxFieldLen),
		Subject:      truncate(cleanText(subject), maxFieldLen),
		Status:       status,
		ErrorMessage: errMsg,
	}
	for _, fn := range r.filters {
		if !fn(e) {
			return nil
		}
	}

	// Filters may have rewritten the row.
	e.ToEmail = truncate(e.ToEmail, maxFieldLen)
	e.Subject = truncate(cleanText(e.Subject), maxFieldLen)
	if e.Status != storage.StatusFailed {
		e.Status = storage.StatusSent
	}

	return r.store.Insert(ctx, e)
}

// MailSucceeded logs a sent row.
func (r *Recorder) MailSucceeded(ctx context.Context, env mailhook.Envelope) {
	if err := r.Record(ctx, storage.StatusSent, env.To, env.Subject, ""); err != nil {
		slog.Error("failed to record sent mail", "error", err)
	}
}

// MailFailed logs a failed row with the error message.
func (r *Recorder) MailFailed(ctx context.Context, f *mailhook.FailedError) {
	if err := r.Record(ctx, storage.StatusFailed, f.Envelope.To, f.Envelope.Subject, f.Error()); err != nil {
		slog.Error("failed to record failed mail", "error", err)
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// cleanText collapses whitespace, including line breaks, to single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
