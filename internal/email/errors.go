package email

import (
	"errors"
	"fmt"
)

// Code identifies a failure kind. Codes are stable and safe to match on.
type Code string

const (
	CodeMissingSecret        Code = "missing_secret"
	CodeInvalidSecret        Code = "invalid_secret"
	CodeKeyGenerationFailed  Code = "key_generation_failed"
	CodeEncryptionFailed     Code = "encryption_failed"
	CodeDecryptionFailed     Code = "decryption_failed"
	CodeMissingAPIKey        Code = "missing_api_key"
	CodeInvalidAPIKey        Code = "invalid_api_key"
	CodeMissingRecipient     Code = "missing_recipient"
	CodeMissingSender        Code = "missing_sender"
	CodeInvalidEmail         Code = "invalid_email"
	CodeMissingAttachment    Code = "missing_attachment"
	CodeUnreadableAttachment Code = "unreadable_attachment"
	CodeAttachmentTooLarge   Code = "attachment_too_large"
	CodeHTTPError            Code = "http_error"
	CodeHTTPStatus           Code = "http_status"
	CodeInvalidResponse      Code = "invalid_response"
	CodeAPIError             Code = "api_error"
	CodeMailFailed           Code = "mail_failed"
)

// Error is a coded failure with the auxiliary data of its kind.
type Error struct {
	Code    Code
	Message string

	// Status and Body are set for http_status and invalid_response.
	Status int
	Body   string

	// File and Size are set for attachment failures.
	File string
	Size int64

	// Response is the decoded provider body for api_error.
	Response Response

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so sentinel-style checks like
// errors.Is(err, &email.Error{Code: email.CodeAPIError}) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around a cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
