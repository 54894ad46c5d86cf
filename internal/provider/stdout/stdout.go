// Package stdout implements a dry-run Provider that prints the EnjinMel
// payload it would submit instead of calling the API.
package stdout

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/enjinmel-relay/internal/email"
	"github.com/shineum/enjinmel-relay/internal/provider/enjinmel"
)

// Provider prints messages in a human-readable format.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer   io.Writer
	settings enjinmel.Settings
}

// New creates a new stdout Provider that writes to os.Stdout.
func New(settings enjinmel.Settings) *Provider {
	return NewWithWriter(os.Stdout, settings)
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
func NewWithWriter(w io.Writer, settings enjinmel.Settings) *Provider {
	return &Provider{writer: w, settings: settings}
}

// Send validates and builds the payload exactly like the API client, then
// prints it. No API key is needed.
func (p *Provider) Send(_ context.Context, req *email.Request) (email.Response, error) {
	n, err := enjinmel.Normalize(req)
	if err != nil {
		return nil, err
	}
	payload, err := enjinmel.BuildPayload(n, p.settings)
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("From: %s\n", formatSender(payload)))
	b.WriteString(fmt.Sprintf("To: %s\n", strings.ReplaceAll(payload.ToEmail, ",", ", ")))

	if len(payload.CCEmails) > 0 {
		b.WriteString(fmt.Sprintf("Cc: %s\n", strings.Join(payload.CCEmails, ", ")))
	}
	if len(payload.BCCEmails) > 0 {
		b.WriteString(fmt.Sprintf("Bcc: %s\n", strings.Join(payload.BCCEmails, ", ")))
	}
	if payload.ReplyToEmail != "" {
		b.WriteString(fmt.Sprintf("Reply-To: %s\n", payload.ReplyToEmail))
	}
	if payload.CampaignName != "" {
		b.WriteString(fmt.Sprintf("Campaign: %s\n", payload.CampaignName))
	}
	if payload.TemplateId != "" {
		b.WriteString(fmt.Sprintf("Template: %s\n", payload.TemplateId))
	}

	b.WriteString(fmt.Sprintf("Subject: %s\n", payload.Subject))
	b.WriteString(fmt.Sprintf("Content-Type: %s\n", payload.SubmittedContentType))
	b.WriteString("Body:\n")
	b.WriteString(payload.SubmittedContent + "\n")

	if len(payload.Attachments) > 0 {
		attachments := make([]string, 0, len(payload.Attachments))
		for _, att := range payload.Attachments {
			size := base64.StdEncoding.DecodedLen(len(att.Content)) - strings.Count(att.Content, "=")
			attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, formatSize(size)))
		}
		b.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(attachments, ", ")))
	}

	b.WriteString("========================================\n")

	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		return nil, email.Wrap(email.CodeHTTPError, "Unable to write the dry-run output.", err)
	}

	return email.Response{"StatusCode": "200", "Status": "OK", "Message": "Dry run"}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

func formatSender(p *enjinmel.Payload) string {
	if p.SenderName == "" {
		return p.SenderEmail
	}
	return fmt.Sprintf("%s <%s>", p.SenderName, p.SenderEmail)
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
