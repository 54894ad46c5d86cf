package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"golang.org/x/time/rate"

	"github.com/shineum/enjinmel-relay/internal/email"
)

// shutdownTimeout is the maximum time to wait for in-flight connections
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// idleTimeout bounds each read and write on a connection.
const idleTimeout = 60 * time.Second

// DefaultMaxMessageBytes is used when no size limit is configured.
const DefaultMaxMessageBytes = 25 << 20

// Sender delivers a parsed message. *mailhook.Interceptor satisfies it.
type Sender interface {
	Send(ctx context.Context, req *email.Request) error
}

// ServerConfig holds the configuration for an SMTP server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":2525").
	ListenAddr string

	// Hostname is the server hostname used in the greeting and EHLO.
	Hostname string

	// Sender relays accepted messages.
	Sender Sender

	// TLSConfig enables STARTTLS. When set, AUTH is only offered after
	// STARTTLS.
	TLSConfig *tls.Config

	// AuthUsername and AuthPassword configure SMTP AUTH.
	// If either is empty, authentication is not required.
	AuthUsername string
	AuthPassword string

	// MaxMessageBytes caps the DATA size.
	MaxMessageBytes int64

	// RateLimit is the number of messages accepted per second across all
	// connections. Zero means unlimited.
	RateLimit float64
}

// Server accepts SMTP connections and hands every message to a Sender.
type Server struct {
	config  ServerConfig
	auth    *Authenticator
	limiter *rate.Limiter
	srv     *gosmtp.Server

	// ctx is the base context for sends; set by Serve.
	ctx context.Context
}

// New creates a new SMTP Server with the given configuration.
func New(cfg ServerConfig) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}

	s := &Server{
		config: cfg,
		auth:   NewAuthenticator(cfg.AuthUsername, cfg.AuthPassword),
		ctx:    context.Background(),
	}
	if cfg.RateLimit > 0 {
		burst := int(math.Ceil(cfg.RateLimit))
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	srv := gosmtp.NewServer(&backend{server: s})
	srv.Addr = cfg.ListenAddr
	srv.Domain = cfg.Hostname
	srv.MaxMessageBytes = cfg.MaxMessageBytes
	srv.ReadTimeout = idleTimeout
	srv.WriteTimeout = idleTimeout
	srv.TLSConfig = cfg.TLSConfig
	srv.AllowInsecureAuth = cfg.TLSConfig == nil
	s.srv = srv

	return s
}

// ListenAndServe starts the SMTP server and blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. It then stops
// accepting and waits up to 30 seconds for in-flight sessions to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// In-flight sends must survive shutdown.
	s.ctx = context.WithoutCancel(ctx)

	slog.Info("SMTP server listening",
		"addr", ln.Addr().String(),
		"auth_enabled", s.auth.Enabled(),
		"tls_enabled", s.config.TLSConfig != nil,
		"max_message_bytes", s.config.MaxMessageBytes,
		"rate_limit", s.config.RateLimit,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("SMTP server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down SMTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown timeout reached, forcing close", "error", err)
		s.srv.Close()
	} else {
		slog.Info("all sessions completed")
	}
	<-errCh
	return nil
}

// allow reports whether the rate limiter admits one more message.
func (s *Server) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

type backend struct {
	server *Server
}

func (b *backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return newSession(b.server, c.Conn().RemoteAddr().String()), nil
}
