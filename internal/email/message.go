// Package email defines the core mail types shared by the parser, the
// EnjinMel client, the interceptor and the send log.
package email

// Request is a send request as handed to the relay, before normalization.
// To entries may themselves hold comma or semicolon delimited lists, and
// Headers entries may be single "Name: value" lines or whole header blocks.
type Request struct {
	To          []string
	Subject     string
	Message     string
	Headers     []string
	Attachments []Attachment
}

// Attachment is either a file on disk (Path set) or an in-memory blob
// (Name and Data).
type Attachment struct {
	Name string
	Data []byte
	Path string
}

// InMemory reports whether the attachment carries its own bytes.
func (a Attachment) InMemory() bool {
	return a.Path == ""
}

// Address is a parsed mailbox.
type Address struct {
	Name  string
	Email string
}

// Headers is the structured view of the raw header lines of a Request.
type Headers struct {
	From        Address
	CC          []string
	BCC         []string
	ReplyTo     []string
	ContentType string
	Other       map[string]string
}

// EncodedAttachment is an attachment ready for the provider: sanitized
// filename and base64 encoded content.
type EncodedAttachment struct {
	Filename string `json:"Filename"`
	Content  string `json:"Content"`
}

// Normalized is a Request after address parsing, header parsing and
// attachment encoding.
type Normalized struct {
	To          []string
	Subject     string
	Message     string
	Headers     Headers
	ContentType string
	Attachments []EncodedAttachment
}

// Response is the decoded provider response body.
type Response map[string]any
