package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/enjinmel-relay/internal/admin"
	"github.com/shineum/enjinmel-relay/internal/maillog"
	"github.com/shineum/enjinmel-relay/internal/smtp"
	smtptls "github.com/shineum/enjinmel-relay/internal/tls"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the SMTP relay, admin API and log retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *options) error {
	cfg := opts.cfg

	tlsCfg := smtptls.Config{
		CertFile: cfg.TLS.CertFile,
		KeyFile:  cfg.TLS.KeyFile,
		Hostname: cfg.SMTP.Hostname,
	}
	tlsConfig, err := smtptls.Load(tlsCfg)
	if err != nil {
		return err
	}
	tlsMode := "file"
	if tlsCfg.SelfSigned() {
		tlsMode = "self-signed"
	}

	r, err := newRelay(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer r.Close()

	server := smtp.New(smtp.ServerConfig{
		ListenAddr:      cfg.SMTP.Listen,
		Hostname:        cfg.SMTP.Hostname,
		Sender:          r.interceptor,
		TLSConfig:       tlsConfig,
		AuthUsername:    cfg.SMTP.Username,
		AuthPassword:    cfg.SMTP.Password,
		MaxMessageBytes: cfg.SMTP.MaxMessageSize,
		RateLimit:       cfg.SMTP.RateLimit,
	})

	slog.Info("starting enjinmel-relay",
		"listen", cfg.SMTP.Listen,
		"provider", r.provider.Name(),
		"auth_enabled", cfg.AuthEnabled(),
		"tls_mode", tlsMode,
		"admin", cfg.Admin.Listen,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		once sync.Once
		fail error
	)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				slog.Error("component failed", "component", name, "error", err)
				once.Do(func() { fail = err })
				cancel()
			}
		}()
	}

	run("smtp", func() error { return server.ListenAndServe(ctx) })

	if cfg.Admin.Listen != "" {
		adm := admin.New(admin.Options{
			Store:    r.store,
			Sender:   r.interceptor,
			Policy:   cfg.RetentionPolicy(),
			Gatherer: r.registry,
			Token:    cfg.Admin.Token,
			OnPurge:  r.metrics.ObservePurge,
		})
		run("admin", func() error { return adm.ListenAndServe(ctx, cfg.Admin.Listen) })
	}

	sched := &maillog.Scheduler{
		Store:    r.store,
		Policy:   cfg.RetentionPolicy(),
		Interval: cfg.Retention.Interval,
		OnPurge:  r.metrics.ObservePurge,
	}
	run("retention", func() error {
		sched.Run(ctx)
		return nil
	})

	<-ctx.Done()
	slog.Info("received shutdown, waiting for components")
	wg.Wait()

	if fail != nil {
		return fail
	}
	slog.Info("enjinmel-relay stopped")
	return nil
}
