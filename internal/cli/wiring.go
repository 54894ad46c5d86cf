package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shineum/enjinmel-relay/internal/config"
	"github.com/shineum/enjinmel-relay/internal/mailhook"
	"github.com/shineum/enjinmel-relay/internal/maillog"
	"github.com/shineum/enjinmel-relay/internal/metrics"
	"github.com/shineum/enjinmel-relay/internal/provider"
	"github.com/shineum/enjinmel-relay/internal/provider/enjinmel"
	"github.com/shineum/enjinmel-relay/internal/provider/stdout"
	"github.com/shineum/enjinmel-relay/internal/secret"
	"github.com/shineum/enjinmel-relay/internal/storage"
)

// newCipher builds the cipher over the configured key material sources,
// first match wins: explicit key/iv, AWS Secrets Manager, generated file.
func newCipher(ctx context.Context, cfg *config.Config) (*secret.Cipher, error) {
	chain := secret.Chain{
		secret.StaticSource{Key: cfg.Secrets.Key, IV: cfg.Secrets.IV},
	}
	if cfg.AWSSecretsConfigured() {
		src, err := secret.LoadAWS(ctx, cfg.AWSConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to load key material from AWS: %w", err)
		}
		chain = append(chain, src)
	}
	if cfg.Secrets.StoreFile != "" {
		chain = append(chain, &secret.FileSource{Path: cfg.Secrets.StoreFile})
	}
	return secret.New(chain), nil
}

// relay is the wired send path shared by the commands.
type relay struct {
	cfg         *config.Config
	store       storage.Store
	provider    provider.Provider
	recorder    *maillog.Recorder
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	interceptor *mailhook.Interceptor
}

// newRelay wires the send path. Dry-run output goes to out.
func newRelay(ctx context.Context, cfg *config.Config, out io.Writer) (*relay, error) {
	cipher, err := newCipher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &relay{
		cfg:      cfg,
		store:    store,
		recorder: maillog.NewRecorder(store, cfg.Settings.EnableLogging),
		metrics:  metrics.New(reg),
		registry: reg,
	}
	clientCfg := cfg.ClientConfig()
	if cfg.EnjinMel.DryRun {
		r.provider = stdout.NewWithWriter(out, clientCfg.Settings)
	} else {
		r.provider = enjinmel.New(clientCfg, cipher)
	}
	r.interceptor = mailhook.New(r.provider, r.recorder, r.metrics)

	slog.Debug("relay wired",
		"provider", r.provider.Name(),
		"storage", cfg.Storage.Driver,
		"logging_enabled", r.recorder.Enabled(),
		"endpoint", cfg.EnjinMel.Endpoint,
	)
	return r, nil
}

func (r *relay) Close() error {
	return r.store.Close()
}
