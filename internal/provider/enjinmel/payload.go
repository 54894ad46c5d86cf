package enjinmel

import (
	"strings"

	"github.com/shineum/enjinmel-relay/internal/attachment"
	"github.com/shineum/enjinmel-relay/internal/email"
	"github.com/shineum/enjinmel-relay/internal/parser"
)

// Normalize resolves recipients, parses headers and encodes attachments.
func Normalize(req *email.Request) (*email.Normalized, error) {
	to := parser.ParseAddresses(req.To...)
	if len(to) == 0 {
		return nil, email.Errorf(email.CodeMissingRecipient, "At least one valid recipient is required.")
	}

	headers := parser.ParseHeaders(req.Headers...)

	atts, err := attachment.Normalize(req.Attachments)
	if err != nil {
		return nil, err
	}

	return &email.Normalized{
		To:          to,
		Subject:     req.Subject,
		Message:     req.Message,
		Headers:     headers,
		ContentType: parser.ContentType(headers),
		Attachments: atts,
	}, nil
}

// BuildPayload maps a normalized message and the settings onto the API body.
func BuildPayload(n *email.Normalized, s Settings) (*Payload, error) {
	from := n.Headers.From
	if s.ForceFrom || !parser.ValidEmail(from.Email) {
		from = email.Address{Name: s.FromName, Email: s.FromEmail}
	}
	if !parser.ValidEmail(from.Email) {
		return nil, email.Errorf(email.CodeMissingSender, "A valid sender email must be configured.")
	}

	p := &Payload{
		ToEmail:              strings.Join(n.To, ","),
		Subject:              n.Subject,
		SenderEmail:          from.Email,
		SenderName:           from.Name,
		SubmittedContent:     n.Message,
		SubmittedContentType: n.ContentType,
		IsHtmlContent:        strings.Contains(strings.ToLower(n.ContentType), "html"),
		CampaignName:         s.CampaignName,
		TemplateId:           s.TemplateID,
		Attachments:          n.Attachments,
		CCEmails:             n.Headers.CC,
		BCCEmails:            n.Headers.BCC,
	}
	// The API accepts a single reply-to address.
	if len(n.Headers.ReplyTo) > 0 {
		p.ReplyToEmail = n.Headers.ReplyTo[0]
	}

	return p, nil
}
