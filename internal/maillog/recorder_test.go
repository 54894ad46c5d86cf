package maillog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/enjinmel-relay/internal/email"
	"github.com/shineum/enjinmel-relay/internal/mailhook"
	"github.com/shineum/enjinmel-relay/internal/storage"
)

func openStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "log.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entries(t *testing.T, s storage.Store) []storage.Entry {
	t.Helper()
	list, err := s.Export(context.Background(), storage.Filter{})
	require.NoError(t, err)
	return list
}

func fixedNow(r *Recorder, ts time.Time) {
	r.now = func() time.Time { return ts }
}

func TestRecorder_Succeeded(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	r := NewRecorder(s, nil)
	ts := time.Date(2024, 5, 1, 12, 30, 15, 500, time.Local)
	fixedNow(r, ts)

	r.MailSucceeded(context.Background(), mailhook.Envelope{
		To:      []string{"Jane <jane@example.com>", "bad-address", "bob@example.com", "jane@example.com"},
		Subject: "Hello\n  world",
	})

	list := entries(t, s)
	require.Len(t, list, 1)
	assert.Equal(t, "jane@example.com,bob@example.com", list[0].ToEmail)
	assert.Equal(t, "Hello world", list[0].Subject)
	assert.Equal(t, storage.StatusSent, list[0].Status)
	assert.Empty(t, list[0].ErrorMessage)
	assert.True(t, ts.UTC().Truncate(time.Second).Equal(list[0].Timestamp))
}

func TestRecorder_Failed(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	r := NewRecorder(s, nil)

	r.MailFailed(context.Background(), &mailhook.FailedError{
		Envelope: mailhook.Envelope{To: []string{"a@example.com"}, Subject: "Report"},
		Cause:    email.Errorf(email.CodeAPIError, "Quota exceeded"),
	})

	list := entries(t, s)
	require.Len(t, list, 1)
	assert.Equal(t, storage.StatusFailed, list[0].Status)
	assert.Equal(t, "Quota exceeded", list[0].ErrorMessage)
	assert.Equal(t, "a@example.com", list[0].ToEmail)
}

func TestRecorder_Disabled(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	off := false
	r := NewRecorder(s, &off)

	assert.False(t, r.Enabled())
	r.MailSucceeded(context.Background(), mailhook.Envelope{To: []string{"a@example.com"}, Subject: "x"})
	require.NoError(t, r.Record(context.Background(), storage.StatusFailed, []string{"a@example.com"}, "x", "boom"))

	assert.Empty(t, entries(t, s))
}

func TestRecorder_EnabledDefault(t *testing.T) {
	t.Parallel()
	on := true
	assert.True(t, NewRecorder(nil, nil).Enabled())
	assert.True(t, NewRecorder(nil, &on).Enabled())
}

func TestRecorder_Truncates(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	r := NewRecorder(s, nil)

	subject := strings.Repeat("é", 300)
	var to []string
	for i := 0; i < 30; i++ {
		to = append(to, strings.Repeat("x", 10)+string(rune('a'+i%26))+string(rune('0'+i/26))+"@example.com")
	}

	require.NoError(t, r.Record(context.Background(), storage.StatusSent, to, subject, ""))

	list := entries(t, s)
	require.Len(t, list, 1)
	assert.Equal(t, 255, len([]rune(list[0].Subject)))
	assert.Equal(t, 255, len([]rune(list[0].ToEmail)))
}

func TestRecorder_OnEntry(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	r := NewRecorder(s, nil)
	r.OnEntry(func(e *storage.Entry) bool {
		e.Subject = "[redacted]"
		return true
	})
	r.OnEntry(func(e *storage.Entry) bool {
		return !strings.HasSuffix(e.ToEmail, "@internal.example.com")
	})

	ctx := context.Background()
	require.NoError(t, r.Record(ctx, storage.StatusSent, []string{"a@example.com"}, "secret", ""))
	require.NoError(t, r.Record(ctx, storage.StatusSent, []string{"ops@internal.example.com"}, "secret", ""))

	list := entries(t, s)
	require.Len(t, list, 1)
	assert.Equal(t, "[redacted]", list[0].Subject)
}

type failingStore struct {
	storage.Store
}

func (failingStore) Insert(context.Context, *storage.Entry) error {
	return errors.New("disk full")
}

func TestRecorder_StoreErrorNotPropagated(t *testing.T) {
	t.Parallel()
	r := NewRecorder(failingStore{}, nil)

	err := r.Record(context.Background(), storage.StatusSent, []string{"a@example.com"}, "x", "")
	assert.Error(t, err)

	// Observer methods swallow the error.
	r.MailSucceeded(context.Background(), mailhook.Envelope{To: []string{"a@example.com"}})
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "éé", truncate("ééé", 2))
}
