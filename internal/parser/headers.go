package parser

import (
	"strings"

	"github.com/shineum/enjinmel-relay/internal/email"
)

// DefaultContentType is used when no Content-Type header is present.
const DefaultContentType = "text/plain"

// ParseHeaders builds the structured view of raw header input. Each entry may
// be a single line or a CRLF/LF separated block. Lines without a colon are
// skipped and header names are matched case-insensitively.
func ParseHeaders(raw ...string) email.Headers {
	h := email.Headers{Other: make(map[string]string)}
	var cc, bcc, replyTo []string

	for _, block := range raw {
		block = strings.ReplaceAll(block, "\r\n", "\n")
		for _, line := range strings.Split(block, "\n") {
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			name = strings.ToLower(strings.TrimSpace(name))
			value = strings.TrimSpace(value)
			if name == "" {
				continue
			}

			switch name {
			case "from":
				h.From = ParseAddress(value)
			case "cc":
				cc = append(cc, value)
			case "bcc":
				bcc = append(bcc, value)
			case "reply-to":
				replyTo = append(replyTo, value)
			case "content-type":
				h.ContentType = strings.ToLower(value)
			default:
				h.Other[name] = value
			}
		}
	}

	h.CC = ParseAddresses(cc...)
	h.BCC = ParseAddresses(bcc...)
	h.ReplyTo = ParseAddresses(replyTo...)
	return h
}

// ContentType returns the header content type, or DefaultContentType.
func ContentType(h email.Headers) string {
	if ct := strings.TrimSpace(h.ContentType); ct != "" {
		return ct
	}
	return DefaultContentType
}
