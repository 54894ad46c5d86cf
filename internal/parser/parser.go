// Package parser turns raw mail input into send requests. Parse ingests
// RFC 5322 messages with MIME multipart support, and ParseAddresses and
// ParseHeaders normalize the loosely formatted address and header arguments
// of a Request.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"sort"
	"strings"

	"github.com/shineum/enjinmel-relay/internal/email"
)

// routedHeaders are re-emitted explicitly by Parse; all other headers are
// passed through verbatim.
var routedHeaders = map[string]bool{
	"To":                        true,
	"From":                      true,
	"Cc":                        true,
	"Bcc":                       true,
	"Reply-To":                  true,
	"Subject":                   true,
	"Content-Type":              true,
	"Content-Transfer-Encoding": true,
	"Mime-Version":              true,
}

// body collects the text parts and attachments found while walking a message.
type body struct {
	text        string
	html        string
	attachments []email.Attachment
}

// Parse parses a raw RFC 5322 message into a Request. The HTML body is
// preferred over the plain text one and the Content-Type header line of the
// Request reflects the choice. Unrecognized MIME parts are logged as warnings.
func Parse(raw []byte) (*email.Request, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	req := &email.Request{
		Subject: decodeHeader(msg.Header.Get("Subject")),
		To:      parseAddressList(msg.Header.Get("To")),
	}

	if from := msg.Header.Get("From"); from != "" {
		req.Headers = append(req.Headers, "From: "+decodeHeader(from))
	}
	for _, name := range []string{"Cc", "Bcc", "Reply-To"} {
		if list := parseAddressList(msg.Header.Get(name)); len(list) > 0 {
			req.Headers = append(req.Headers, name+": "+strings.Join(list, ", "))
		}
	}

	passthrough := make([]string, 0, len(msg.Header))
	for key := range msg.Header {
		if !routedHeaders[key] {
			passthrough = append(passthrough, key)
		}
	}
	sort.Strings(passthrough)
	for _, key := range passthrough {
		req.Headers = append(req.Headers, key+": "+msg.Header.Get(key))
	}

	var b body
	if err := parseBody(msg, &b); err != nil {
		return nil, err
	}

	req.Attachments = b.attachments
	if b.html != "" {
		req.Message = b.html
		req.Headers = append(req.Headers, "Content-Type: text/html; charset=UTF-8")
	} else {
		req.Message = b.text
		req.Headers = append(req.Headers, "Content-Type: text/plain; charset=UTF-8")
	}

	return req, nil
}

func parseBody(msg *mail.Message, b *body) error {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// If content type is unparseable, treat as plain text
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		raw, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return fmt.Errorf("failed to read message body: %w", readErr)
		}
		b.text = string(raw)
		return nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart message missing boundary")
		}
		if err := parseMultipart(msg.Body, boundary, b); err != nil {
			return fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return nil
	}

	raw, err := io.ReadAll(msg.Body)
	if err != nil {
		return fmt.Errorf("failed to read message body: %w", err)
	}
	content, err := decodeTransfer(msg.Header.Get("Content-Transfer-Encoding"), raw)
	if err != nil {
		return err
	}

	switch mediaType {
	case "text/html":
		b.html = string(content)
	case "text/plain":
		b.text = string(content)
	default:
		slog.Warn("unrecognized top-level content type",
			"content_type", mediaType,
		)
		b.text = string(content)
	}
	return nil
}

// parseMultipart processes a multipart MIME message body, extracting text/plain,
// text/html parts and attachments.
func parseMultipart(r io.Reader, boundary string, b *body) error {
	reader := multipart.NewReader(r, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		contentDisposition := part.Header.Get("Content-Disposition")
		isAttachment := strings.HasPrefix(strings.ToLower(contentDisposition), "attachment")

		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBoundary := params["boundary"]
			if nestedBoundary == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := parseMultipart(part, nestedBoundary, b); err != nil {
				slog.Warn("failed to parse nested multipart",
					"error", err,
				)
			}
			continue
		}

		raw, err := io.ReadAll(part)
		if err == nil {
			raw, err = decodeTransfer(part.Header.Get("Content-Transfer-Encoding"), raw)
		}
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		if isAttachment {
			b.attachments = append(b.attachments, email.Attachment{
				Name: extractFilename(part, mediaType, params),
				Data: raw,
			})
			continue
		}

		switch mediaType {
		case "text/plain":
			if b.text == "" {
				b.text = string(raw)
			}
		case "text/html":
			if b.html == "" {
				b.html = string(raw)
			}
		default:
			// Inline parts with a name are still attachments.
			if part.FileName() != "" || params["name"] != "" {
				b.attachments = append(b.attachments, email.Attachment{
					Name: extractFilename(part, mediaType, params),
					Data: raw,
				})
			} else {
				slog.Warn("unrecognized MIME part, skipping",
					"content_type", mediaType,
					"disposition", contentDisposition,
				)
			}
		}
	}

	return nil
}

// decodeTransfer undoes a Content-Transfer-Encoding. The multipart reader
// already strips quoted-printable from parts, so that branch only matters for
// single-part messages.
func decodeTransfer(encoding string, raw []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		cleaned := strings.NewReplacer("\r", "", "\n", "", " ", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			// Try with RawStdEncoding for unpadded base64
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 content: %w", err)
			}
		}
		return decoded, nil
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode quoted-printable content: %w", err)
		}
		return decoded, nil
	default:
		return raw, nil
	}
}

// extractFilename extracts the filename from a MIME part, checking both
// Content-Disposition and Content-Type parameters.
func extractFilename(part *multipart.Part, mediaType string, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	if name := params["name"]; name != "" {
		return decodeHeader(name)
	}
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return "attachment." + sub
	}
	return "attachment"
}

var wordDecoder = new(mime.WordDecoder)

// decodeHeader decodes RFC 2047 encoded words, returning the input unchanged
// when it is not encoded or cannot be decoded.
func decodeHeader(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// parseAddressList splits a comma-separated address list into individual addresses.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		// Fall back to simple comma split if RFC 5322 parsing fails
		return splitList(raw)
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
