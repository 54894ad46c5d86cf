// Package mailhook routes outgoing mail through a Provider and reports the
// outcome to observers.
package mailhook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shineum/enjinmel-relay/internal/email"
	"github.com/shineum/enjinmel-relay/internal/provider"
)

// Transport tags envelopes handled by the EnjinMel REST transport.
const Transport = "enjinmel_rest"

// State is the lifecycle position of a single send.
type State int

const (
	NotIntercepted State = iota
	Dispatched
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case NotIntercepted:
		return "not_intercepted"
	case Dispatched:
		return "dispatched"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a send. A nil *Outcome means nobody handled the
// mail yet.
type Outcome struct {
	State     State
	Transport string
	Response  email.Response
	Err       error
}

// Envelope describes a message for observers.
type Envelope struct {
	To          []string
	Subject     string
	Message     string
	Headers     []string
	Attachments []string
	Transport   string
}

// FailedError is the generic mail failure reported to callers. It wraps the
// provider error, whose code stays reachable through errors.As.
type FailedError struct {
	Envelope Envelope
	Cause    error
}

func (e *FailedError) Error() string {
	return e.Cause.Error()
}

func (e *FailedError) Unwrap() error {
	return e.Cause
}

// Code is always mail_failed.
func (e *FailedError) Code() email.Code {
	return email.CodeMailFailed
}

// ProviderCode is the code of the underlying provider error, if any.
func (e *FailedError) ProviderCode() email.Code {
	return email.CodeOf(e.Cause)
}

// Codes lists mail_failed followed by the provider code.
func (e *FailedError) Codes() []email.Code {
	codes := []email.Code{email.CodeMailFailed}
	if c := e.ProviderCode(); c != "" {
		codes = append(codes, c)
	}
	return codes
}

// Observer is notified after every dispatched send.
type Observer interface {
	MailSucceeded(ctx context.Context, env Envelope)
	MailFailed(ctx context.Context, err *FailedError)
}

// Interceptor hands requests to a Provider in place of local delivery.
type Interceptor struct {
	provider  provider.Provider
	observers []Observer
}

// New creates an Interceptor.
func New(p provider.Provider, observers ...Observer) *Interceptor {
	return &Interceptor{provider: p, observers: observers}
}

// Observe adds an observer. Not safe for use concurrently with Intercept.
func (i *Interceptor) Observe(o Observer) {
	i.observers = append(i.observers, o)
}

// Intercept sends req unless prior already holds a resolved, error-free
// result, in which case prior is returned untouched. A prior still in
// NotIntercepted counts as unresolved.
func (i *Interceptor) Intercept(ctx context.Context, prior *Outcome, req *email.Request) *Outcome {
	if prior != nil && prior.Err == nil && prior.State != NotIntercepted {
		return prior
	}

	env := envelope(req)
	out := &Outcome{State: Dispatched, Transport: Transport}

	resp, err := i.provider.Send(ctx, req)
	if err != nil {
		failed := &FailedError{Envelope: env, Cause: err}
		slog.Warn("mail send failed",
			"provider", i.provider.Name(),
			"code", failed.ProviderCode(),
			"recipients", len(req.To),
			"error", err,
		)
		for _, o := range i.observers {
			o.MailFailed(ctx, failed)
		}
		out.State, out.Err = Failed, failed
		return out
	}

	slog.Info("mail sent",
		"provider", i.provider.Name(),
		"recipients", len(req.To),
	)
	for _, o := range i.observers {
		o.MailSucceeded(ctx, env)
	}
	out.State, out.Response = Succeeded, resp
	return out
}

// Send is Intercept without a prior outcome, returning only the error.
func (i *Interceptor) Send(ctx context.Context, req *email.Request) error {
	return i.Intercept(ctx, nil, req).Err
}

func envelope(req *email.Request) Envelope {
	names := make([]string, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		if a.InMemory() {
			names = append(names, a.Name)
		} else {
			names = append(names, a.Path)
		}
	}
	return Envelope{
		To:          req.To,
		Subject:     req.Subject,
		Message:     req.Message,
		Headers:     req.Headers,
		Attachments: names,
		Transport:   Transport,
	}
}

// AsFailed extracts a *FailedError from err.
func AsFailed(err error) (*FailedError, bool) {
	var f *FailedError
	ok := errors.As(err, &f)
	return f, ok
}
