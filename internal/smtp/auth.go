// Package smtp accepts inbound mail over SMTP and relays it through the
// EnjinMel interceptor.
package smtp

import (
	"crypto/subtle"
	"errors"

	"github.com/emersion/go-sasl"
)

// Mechanisms offered when authentication is enabled.
const (
	mechPlain = sasl.Plain
	mechLogin = sasl.Login
)

var errAuthFailed = errors.New("authentication failed")

// Authenticator handles SMTP AUTH verification against configured credentials.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If either is empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Verify checks a username and password.
func (a *Authenticator) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return errAuthFailed
	}
	return nil
}

// Mechanisms lists the SASL mechanisms to advertise.
func (a *Authenticator) Mechanisms() []string {
	if !a.Enabled() {
		return nil
	}
	return []string{mechPlain, mechLogin}
}

// Server returns a SASL server for mech. onSuccess runs once the client
// has authenticated.
func (a *Authenticator) Server(mech string, onSuccess func(username string)) (sasl.Server, error) {
	if !a.Enabled() {
		return nil, errors.New("authentication is not enabled")
	}
	check := func(username, password string) error {
		if err := a.Verify(username, password); err != nil {
			return err
		}
		onSuccess(username)
		return nil
	}

	switch mech {
	case mechPlain:
		// The authorization identity is ignored.
		return sasl.NewPlainServer(func(_, username, password string) error {
			return check(username, password)
		}), nil
	case mechLogin:
		return &loginServer{verify: check}, nil
	default:
		return nil, errors.New("unsupported authentication mechanism")
	}
}

// loginServer implements the server side of AUTH LOGIN, with or without an
// initial response carrying the username.
type loginServer struct {
	verify   func(username, password string) error
	step     int
	username string
}

func (s *loginServer) Next(response []byte) ([]byte, bool, error) {
	switch s.step {
	case 0:
		s.step = 1
		if response == nil {
			return []byte("Username:"), false, nil
		}
		s.username = string(response)
		s.step = 2
		return []byte("Password:"), false, nil
	case 1:
		s.username = string(response)
		s.step = 2
		return []byte("Password:"), false, nil
	case 2:
		s.step = 3
		return nil, true, s.verify(s.username, string(response))
	default:
		return nil, true, errors.New("unexpected AUTH LOGIN response")
	}
}
