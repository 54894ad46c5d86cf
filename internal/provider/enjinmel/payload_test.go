package enjinmel

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/shineum/enjinmel-relay/internal/email"
)

func normalized(t *testing.T, req *email.Request) *email.Normalized {
	t.Helper()
	n, err := Normalize(req)
	if err != nil {
		t.Fatalf("Normalize: unexpected error: %v", err)
	}
	return n
}

func TestBuildPayload_Basic(t *testing.T) {
	t.Parallel()

	n := normalized(t, &email.Request{
		To:      []string{"alice@example.com, bob@example.com"},
		Subject: "Hello",
		Message: "Body",
	})

	p, err := BuildPayload(n, Settings{FromEmail: "noreply@example.com", FromName: "Shop"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.ToEmail != "alice@example.com,bob@example.com" {
		t.Errorf("ToEmail: got %q, want %q", p.ToEmail, "alice@example.com,bob@example.com")
	}
	if p.SenderEmail != "noreply@example.com" || p.SenderName != "Shop" {
		t.Errorf("sender: got (%q, %q), want (noreply@example.com, Shop)", p.SenderEmail, p.SenderName)
	}
	if p.SubmittedContentType != "text/plain" || p.IsHtmlContent {
		t.Errorf("content type: got (%q, %v), want (text/plain, false)", p.SubmittedContentType, p.IsHtmlContent)
	}

	raw, _ := json.Marshal(p)
	for _, key := range []string{"CampaignName", "TemplateId", "Attachments", "CCEmails", "BCCEmails", "ReplyToEmail"} {
		if strings.Contains(string(raw), `"`+key+`"`) {
			t.Errorf("payload JSON contains empty optional key %q: %s", key, raw)
		}
	}
}

func TestBuildPayload_HeaderSenderAndForceFrom(t *testing.T) {
	t.Parallel()

	n := normalized(t, &email.Request{
		To:      []string{"user@example.com"},
		Headers: []string{"From: Custom Sender <custom@example.com>"},
	})
	settings := Settings{FromEmail: "noreply@example.com", FromName: "Shop"}

	p, err := BuildPayload(n, settings)
	if err != nil {
		t.Fatal(err)
	}
	if p.SenderEmail != "custom@example.com" || p.SenderName != "Custom Sender" {
		t.Errorf("header sender: got (%q, %q)", p.SenderEmail, p.SenderName)
	}

	settings.ForceFrom = true
	p, err = BuildPayload(n, settings)
	if err != nil {
		t.Fatal(err)
	}
	if p.SenderEmail != "noreply@example.com" || p.SenderName != "Shop" {
		t.Errorf("forced sender: got (%q, %q), want (noreply@example.com, Shop)", p.SenderEmail, p.SenderName)
	}
}

func TestBuildPayload_UnusableHeaderSenderFallsBack(t *testing.T) {
	t.Parallel()

	settings := Settings{FromEmail: "noreply@example.com", FromName: "Shop"}
	for _, from := range []string{"From: WordPress", "From: Site Name <>", "From: bad@"} {
		n := normalized(t, &email.Request{
			To:      []string{"user@example.com"},
			Headers: []string{from},
		})
		p, err := BuildPayload(n, settings)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", from, err)
		}
		if p.SenderEmail != "noreply@example.com" || p.SenderName != "Shop" {
			t.Errorf("%s: sender got (%q, %q), want (noreply@example.com, Shop)", from, p.SenderEmail, p.SenderName)
		}
	}
}

func TestBuildPayload_MissingSender(t *testing.T) {
	t.Parallel()

	n := normalized(t, &email.Request{To: []string{"user@example.com"}})
	for _, s := range []Settings{{}, {FromEmail: "not-an-email"}} {
		_, err := BuildPayload(n, s)
		if code := email.CodeOf(err); code != email.CodeMissingSender {
			t.Errorf("settings %+v: got %q, want %q", s, code, email.CodeMissingSender)
		}
	}
}

func TestBuildPayload_OptionalFields(t *testing.T) {
	t.Parallel()

	n := normalized(t, &email.Request{
		To:      []string{"user@example.com"},
		Subject: "Rich",
		Message: "<p>hi</p>",
		Headers: []string{
			"Content-Type: text/html; charset=UTF-8",
			"Cc: a@example.com, b@example.com",
			"Bcc: c@example.com",
			"Reply-To: first@example.com, second@example.com",
		},
		Attachments: []email.Attachment{{Name: "a.txt", Data: []byte("x")}},
	})

	p, err := BuildPayload(n, Settings{
		FromEmail:    "noreply@example.com",
		CampaignName: "spring",
		TemplateID:   "tpl-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if !p.IsHtmlContent {
		t.Error("IsHtmlContent: got false, want true")
	}
	if p.CampaignName != "spring" || p.TemplateId != "tpl-1" {
		t.Errorf("campaign/template: got (%q, %q)", p.CampaignName, p.TemplateId)
	}
	if want := []string{"a@example.com", "b@example.com"}; !reflect.DeepEqual(p.CCEmails, want) {
		t.Errorf("CCEmails: got %v, want %v", p.CCEmails, want)
	}
	if want := []string{"c@example.com"}; !reflect.DeepEqual(p.BCCEmails, want) {
		t.Errorf("BCCEmails: got %v, want %v", p.BCCEmails, want)
	}
	if p.ReplyToEmail != "first@example.com" {
		t.Errorf("ReplyToEmail: got %q, want only the first address", p.ReplyToEmail)
	}
	if len(p.Attachments) != 1 || p.Attachments[0].Filename != "a.txt" || p.Attachments[0].Content != "eA==" {
		t.Errorf("Attachments: got %+v", p.Attachments)
	}
}

func TestNormalize_MissingRecipient(t *testing.T) {
	t.Parallel()

	for _, to := range [][]string{nil, {""}, {"nobody"}} {
		_, err := Normalize(&email.Request{To: to})
		if code := email.CodeOf(err); code != email.CodeMissingRecipient {
			t.Errorf("To %q: got %q, want %q", to, code, email.CodeMissingRecipient)
		}
	}
}
