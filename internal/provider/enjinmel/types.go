// Package enjinmel implements a Provider that submits mail to the EnjinMel
// transactional REST API.
package enjinmel

import "github.com/shineum/enjinmel-relay/internal/email"

// Settings is the operator configuration consulted on every send.
type Settings struct {
	// APIKey is the stored, encrypted credential.
	APIKey       string
	FromEmail    string
	FromName     string
	ForceFrom    bool
	CampaignName string
	TemplateID   string
}

// Payload is the SendEmail request body. Optional fields are omitted when empty.
type Payload struct {
	ToEmail              string                    `json:"ToEmail"`
	Subject              string                    `json:"Subject"`
	SenderEmail          string                    `json:"SenderEmail"`
	SenderName           string                    `json:"SenderName"`
	SubmittedContent     string                    `json:"SubmittedContent"`
	SubmittedContentType string                    `json:"SubmittedContentType"`
	IsHtmlContent        bool                      `json:"IsHtmlContent"`
	CampaignName         string                    `json:"CampaignName,omitempty"`
	TemplateId           string                    `json:"TemplateId,omitempty"`
	Attachments          []email.EncodedAttachment `json:"Attachments,omitempty"`
	CCEmails             []string                  `json:"CCEmails,omitempty"`
	BCCEmails            []string                  `json:"BCCEmails,omitempty"`
	ReplyToEmail         string                    `json:"ReplyToEmail,omitempty"`
}

// Decrypter reveals the stored API key.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// PayloadFunc may rewrite the payload before it is sent.
type PayloadFunc func(p *Payload, n *email.Normalized, s Settings)
