package smtp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/emersion/go-sasl"
	"github.com/google/uuid"

	"github.com/shineum/enjinmel-relay/internal/email"
	"github.com/shineum/enjinmel-relay/internal/parser"
)

var (
	errRateLimited = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 7, 1},
		Message:      "Rate limit exceeded, try again later",
	}
	errMalformed = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "Malformed message",
	}
	errNoRecipients = &gosmtp.SMTPError{
		Code:         503,
		EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
		Message:      "Need RCPT command",
	}
)

// session is one SMTP connection. go-smtp serializes calls per connection.
type session struct {
	server *Server
	id     string
	remote string
	user   string

	from  string
	rcpts []string
}

func newSession(s *Server, remote string) *session {
	id := uuid.NewString()
	slog.Debug("SMTP session opened", "session", id, "remote", remote)
	return &session{server: s, id: id, remote: remote}
}

func (s *session) AuthMechanisms() []string {
	return s.server.auth.Mechanisms()
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	return s.server.auth.Server(mech, func(username string) {
		s.user = username
		slog.Info("SMTP client authenticated", "session", s.id, "user", username)
	})
}

func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.server.auth.Enabled() && s.user == "" {
		return gosmtp.ErrAuthRequired
	}
	s.from = from
	s.rcpts = nil
	return nil
}

func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if !parser.ValidEmail(to) {
		return &gosmtp.SMTPError{
			Code:         553,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "Invalid recipient address",
		}
	}
	s.rcpts = append(s.rcpts, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	if len(s.rcpts) == 0 {
		return errNoRecipients
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	if !s.server.allow() {
		slog.Warn("SMTP rate limit exceeded", "session", s.id, "remote", s.remote)
		return errRateLimited
	}

	req, err := parser.Parse(raw)
	if err != nil {
		slog.Warn("failed to parse message", "session", s.id, "error", err)
		return errMalformed
	}
	applyEnvelope(req, s.rcpts)

	if err := s.server.config.Sender.Send(s.server.ctx, req); err != nil {
		slog.Warn("message rejected",
			"session", s.id,
			"from", s.from,
			"recipients", len(s.rcpts),
			"code", email.CodeOf(err),
			"error", err,
		)
		return replyFor(err)
	}

	slog.Info("message relayed",
		"session", s.id,
		"from", s.from,
		"recipients", len(s.rcpts),
		"subject", req.Subject,
	)
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

func (s *session) Logout() error {
	slog.Debug("SMTP session closed", "session", s.id)
	return nil
}

// applyEnvelope reconciles header recipients with the envelope. With no To
// header, the envelope recipients become To. Otherwise envelope recipients
// missing from To and Cc are added as Bcc.
func applyEnvelope(req *email.Request, rcpts []string) {
	if len(req.To) == 0 {
		req.To = parser.ParseAddresses(rcpts...)
		return
	}

	h := parser.ParseHeaders(req.Headers...)
	known := make(map[string]bool)
	for _, list := range [][]string{req.To, h.CC, h.BCC} {
		for _, addr := range parser.ParseAddresses(list...) {
			known[strings.ToLower(addr)] = true
		}
	}

	var extra []string
	for _, addr := range parser.ParseAddresses(rcpts...) {
		if !known[strings.ToLower(addr)] {
			known[strings.ToLower(addr)] = true
			extra = append(extra, addr)
		}
	}
	if len(extra) > 0 {
		req.Headers = append(req.Headers, "Bcc: "+strings.Join(extra, ", "))
	}
}

// replyFor maps a send failure to an SMTP reply. Transport failures and 5xx
// API answers are temporary so the submitting MTA retries.
func replyFor(err error) *gosmtp.SMTPError {
	var e *email.Error
	temporary := false
	if errors.As(err, &e) {
		switch e.Code {
		case email.CodeHTTPError:
			temporary = true
		case email.CodeHTTPStatus:
			temporary = e.Status >= http.StatusInternalServerError
		}
	}

	msg := strings.Join(strings.Fields(err.Error()), " ")
	if temporary {
		return &gosmtp.SMTPError{Code: 451, EnhancedCode: gosmtp.EnhancedCode{4, 3, 0}, Message: msg}
	}
	return &gosmtp.SMTPError{Code: 554, EnhancedCode: gosmtp.EnhancedCode{5, 0, 0}, Message: msg}
}
