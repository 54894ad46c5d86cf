// Package admin serves the log viewer and operational endpoints over HTTP.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shineum/enjinmel-relay/internal/email"
	"github.com/shineum/enjinmel-relay/internal/maillog"
	"github.com/shineum/enjinmel-relay/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Sender delivers a single request. *mailhook.Interceptor satisfies it.
type Sender interface {
	Send(ctx context.Context, req *email.Request) error
}

// Options configures a Server.
type Options struct {
	Store  storage.Store
	Sender Sender
	Policy maillog.Policy

	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// Token, when set, must be sent as a bearer token on every /api route.
	Token string

	// OnPurge receives the result of a manual purge.
	OnPurge func(maillog.PurgeResult)
}

// Server is the admin HTTP server.
type Server struct {
	app  *fiber.App
	opts Options
}

// New builds the fiber app and its routes.
func New(opts Options) *Server {
	s := &Server{opts: opts}

	app := fiber.New(fiber.Config{
		AppName:               "enjinmel-relay",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(requestLogger)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", s.requireToken)
	api.Get("/logs", s.listLogs)
	api.Get("/logs/export", s.exportLogs)
	api.Post("/logs/delete", s.deleteLogs)
	api.Delete("/logs", s.clearLogs)
	api.Post("/purge", s.purge)
	api.Post("/test-email", s.testEmail)

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("admin server listening", "addr", ln.Addr().String(), "auth", s.opts.Token != "")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	return nil
}

func (s *Server) requireToken(c *fiber.Ctx) error {
	if s.opts.Token == "" {
		return c.Next()
	}
	got, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized.")
	}
	return c.Next()
}

// errorHandler renders every error as {"error": message}, plus "code" for
// coded relay errors.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	} else if email.CodeOf(err) == email.CodeInvalidEmail {
		code = fiber.StatusBadRequest
	}
	if code >= fiber.StatusInternalServerError {
		slog.Error("admin request failed", "path", c.Path(), "error", err)
	}
	body := fiber.Map{"error": messageOf(err)}
	if ec := email.CodeOf(err); ec != "" {
		body["code"] = ec
	}
	return c.Status(code).JSON(body)
}

func messageOf(err error) string {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	slog.Debug("admin request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	)
	return err
}
