package parser

import (
	"strings"
	"testing"
)

// headerLine returns the value of the first "Name: value" line in headers.
func headerLine(headers []string, name string) string {
	for _, h := range headers {
		if k, v, ok := strings.Cut(h, ":"); ok && strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func TestParse_PlainText(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: Sender <sender@example.com>",
		"To: recipient@example.com",
		"Subject: Relay check",
		"Message-Id: <test123@example.com>",
		"Content-Type: text/plain",
		"",
		"Hello, this is a plain text email.",
	}, "\r\n"))

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := headerLine(req.Headers, "From"); got != "Sender <sender@example.com>" {
		t.Errorf("From: got %q, want %q", got, "Sender <sender@example.com>")
	}
	if len(req.To) != 1 || req.To[0] != "recipient@example.com" {
		t.Errorf("To: got %v, want [recipient@example.com]", req.To)
	}
	if req.Subject != "Relay check" {
		t.Errorf("Subject: got %q, want %q", req.Subject, "Relay check")
	}
	if got := headerLine(req.Headers, "Message-Id"); got != "<test123@example.com>" {
		t.Errorf("Message-Id: got %q, want %q", got, "<test123@example.com>")
	}
	if req.Message != "Hello, this is a plain text email." {
		t.Errorf("Message: got %q, want %q", req.Message, "Hello, this is a plain text email.")
	}
	if got := headerLine(req.Headers, "Content-Type"); got != "text/plain; charset=UTF-8" {
		t.Errorf("Content-Type: got %q, want text/plain", got)
	}
	if len(req.Attachments) != 0 {
		t.Errorf("Attachments: got %d, want 0", len(req.Attachments))
	}
}

func TestParse_MultipartPrefersHTML(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: alice@example.com, bob@example.com",
		"Cc: carol@example.com",
		"Subject: Weekly digest",
		"Content-Type: multipart/alternative; boundary=boundary123",
		"",
		"--boundary123",
		"Content-Type: text/plain",
		"",
		"Plain text body",
		"--boundary123",
		"Content-Type: text/html",
		"",
		"<html><body><p>HTML body</p></body></html>",
		"--boundary123--",
	}, "\r\n"))

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(req.To) != 2 || req.To[0] != "alice@example.com" || req.To[1] != "bob@example.com" {
		t.Errorf("To: got %v, want [alice@example.com bob@example.com]", req.To)
	}
	if got := headerLine(req.Headers, "Cc"); got != "carol@example.com" {
		t.Errorf("Cc: got %q, want %q", got, "carol@example.com")
	}
	if req.Message != "<html><body><p>HTML body</p></body></html>" {
		t.Errorf("Message: got %q", req.Message)
	}
	if got := headerLine(req.Headers, "Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", got)
	}
}

func TestParse_Attachments(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Invoice 2291",
		"Content-Type: multipart/mixed; boundary=mixedboundary",
		"",
		"--mixedboundary",
		"Content-Type: text/plain",
		"",
		"Email body text",
		"--mixedboundary",
		"Content-Type: application/pdf; name=\"report.pdf\"",
		"Content-Disposition: attachment; filename=\"report.pdf\"",
		"Content-Transfer-Encoding: base64",
		"",
		"SGVsbG8gV29ybGQ=",
		"--mixedboundary--",
	}, "\r\n"))

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Message != "Email body text" {
		t.Errorf("Message: got %q, want %q", req.Message, "Email body text")
	}
	if len(req.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(req.Attachments))
	}

	att := req.Attachments[0]
	if att.Name != "report.pdf" {
		t.Errorf("Attachment Name: got %q, want %q", att.Name, "report.pdf")
	}
	if !att.InMemory() {
		t.Error("parsed attachments must be in-memory")
	}
	if string(att.Data) != "Hello World" {
		t.Errorf("Attachment Data: got %q, want %q", string(att.Data), "Hello World")
	}
}

func TestParse_MalformedMIME(t *testing.T) {
	t.Parallel()

	t.Run("completely invalid message", func(t *testing.T) {
		t.Parallel()
		raw := []byte("not a valid email at all\x00\x01\x02")
		_, err := Parse(raw)
		if err == nil {
			t.Error("expected error for completely invalid message, got nil")
		}
	})

	t.Run("missing content type defaults to text/plain", func(t *testing.T) {
		t.Parallel()
		raw := []byte(strings.Join([]string{
			"From: sender@example.com",
			"To: recipient@example.com",
			"Subject: Plain notice",
			"",
			"Body without content type header",
		}, "\r\n"))

		req, err := Parse(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Message != "Body without content type header" {
			t.Errorf("Message: got %q, want %q", req.Message, "Body without content type header")
		}
	})

	t.Run("multipart missing boundary", func(t *testing.T) {
		t.Parallel()
		raw := []byte(strings.Join([]string{
			"From: sender@example.com",
			"To: recipient@example.com",
			"Content-Type: multipart/mixed",
			"",
			"some body",
		}, "\r\n"))

		_, err := Parse(raw)
		if err == nil {
			t.Error("expected error for multipart missing boundary, got nil")
		}
	})
}

func TestParse_RecipientHeaders(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: alice@example.com, \"Doe, Bob\" <bob@example.com>, carol@example.com",
		"Bcc: secret@example.com",
		"Reply-To: replies@example.com",
		"Subject: Team update",
		"Content-Type: text/plain",
		"",
		"Hello everyone",
	}, "\r\n"))

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(req.To) != 3 || req.To[1] != "bob@example.com" {
		t.Fatalf("To: got %v", req.To)
	}
	if got := headerLine(req.Headers, "Bcc"); got != "secret@example.com" {
		t.Errorf("Bcc: got %q, want %q", got, "secret@example.com")
	}
	if got := headerLine(req.Headers, "Reply-To"); got != "replies@example.com" {
		t.Errorf("Reply-To: got %q, want %q", got, "replies@example.com")
	}
}

func TestParse_NoRecipientHeaders(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"Subject: No To",
		"Content-Type: text/plain",
		"",
		"Body",
	}, "\r\n"))

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.To != nil {
		t.Errorf("To: got %v, want nil", req.To)
	}
	if got := headerLine(req.Headers, "Cc"); got != "" {
		t.Errorf("Cc: got %q, want empty", got)
	}
}

func TestParse_PassthroughHeaders(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"X-Custom-Header: custom-value",
		"Subject: Password reset",
		"Content-Type: text/plain",
		"",
		"Body",
	}, "\r\n"))

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := ParseHeaders(req.Headers...)
	if got := h.Other["x-custom-header"]; got != "custom-value" {
		t.Errorf("x-custom-header: got %q, want %q", got, "custom-value")
	}
	if got := h.From.Email; got != "sender@example.com" {
		t.Errorf("From: got %q, want %q", got, "sender@example.com")
	}
}

func TestParse_EncodedSubjectAndBody(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: =?UTF-8?B?SGVsbG8gV8O2cmxk?=",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"Caf=C3=A9 menu",
	}, "\r\n"))

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Subject != "Hello Wörld" {
		t.Errorf("Subject: got %q, want %q", req.Subject, "Hello Wörld")
	}
	if req.Message != "Café menu" {
		t.Errorf("Message: got %q, want %q", req.Message, "Café menu")
	}
}

func TestParse_Base64AttachmentCRLF(t *testing.T) {
	t.Parallel()

	raw := []byte("From: sender@example.com\r\n" +
		"To: recipient@example.com\r\n" +
		"Subject: CRLF Base64\r\n" +
		"Content-Type: multipart/mixed; boundary=bound\r\n" +
		"\r\n" +
		"--bound\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body\r\n" +
		"--bound\r\n" +
		"Content-Type: application/pdf; name=\"file.pdf\"\r\n" +
		"Content-Disposition: attachment; filename=\"file.pdf\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"SGVs\r\n" +
		"bG8g\r\n" +
		"V29y\r\n" +
		"bGQ=\r\n" +
		"--bound--\r\n")

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(req.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(req.Attachments))
	}

	att := req.Attachments[0]
	if att.Name != "file.pdf" {
		t.Errorf("Name: got %q, want %q", att.Name, "file.pdf")
	}
	if string(att.Data) != "Hello World" {
		t.Errorf("Data: got %q, want %q", string(att.Data), "Hello World")
	}
}

func TestParse_UnnamedAttachment(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Export ready",
		"Content-Type: multipart/mixed; boundary=bound",
		"",
		"--bound",
		"Content-Type: text/plain",
		"",
		"body",
		"--bound",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment",
		"Content-Transfer-Encoding: base64",
		"",
		"SGVsbG8gV29ybGQ=",
		"--bound--",
	}, "\r\n"))

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(req.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(req.Attachments))
	}
	if got := req.Attachments[0].Name; got != "attachment.pdf" {
		t.Errorf("Name: got %q, want %q", got, "attachment.pdf")
	}
}

func TestParse_NestedMultipart(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Order shipped",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"Plain text part",
		"--inner",
		"Content-Type: text/html",
		"",
		"<p>HTML part</p>",
		"--inner--",
		"--outer",
		"Content-Type: application/octet-stream; name=\"data.bin\"",
		"Content-Disposition: attachment; filename=\"data.bin\"",
		"",
		"binarydata",
		"--outer--",
	}, "\r\n"))

	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Message != "<p>HTML part</p>" {
		t.Errorf("Message: got %q, want %q", req.Message, "<p>HTML part</p>")
	}
	if len(req.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(req.Attachments))
	}
	if req.Attachments[0].Name != "data.bin" {
		t.Errorf("Attachment Name: got %q, want %q", req.Attachments[0].Name, "data.bin")
	}
}
