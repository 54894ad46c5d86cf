// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/enjinmel-relay/internal/email"
)

// Provider is the interface that email delivery backends must implement.
// Send returns the decoded provider response on success. Failures are
// *email.Error values carrying a stable code.
type Provider interface {
	Send(ctx context.Context, req *email.Request) (email.Response, error)
	Name() string
}
