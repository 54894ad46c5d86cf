// Package metrics exposes Prometheus counters for sends and log retention.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shineum/enjinmel-relay/internal/mailhook"
	"github.com/shineum/enjinmel-relay/internal/maillog"
)

const namespace = "enjinmel"

// Metrics holds the relay counters. It implements mailhook.Observer.
type Metrics struct {
	Sent   prometheus.Counter
	Failed *prometheus.CounterVec
	Purged *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_sent_total",
			Help:      "Messages accepted by the EnjinMel API.",
		}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_failed_total",
			Help:      "Messages that failed, by error code.",
		}, []string{"code"}),
		Purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_purged_rows_total",
			Help:      "Log rows removed by retention, by sweep.",
		}, []string{"sweep"}),
	}
	reg.MustRegister(m.Sent, m.Failed, m.Purged)
	return m
}

func (m *Metrics) MailSucceeded(context.Context, mailhook.Envelope) {
	m.Sent.Inc()
}

func (m *Metrics) MailFailed(_ context.Context, err *mailhook.FailedError) {
	code := string(err.ProviderCode())
	if code == "" {
		code = "unknown"
	}
	m.Failed.WithLabelValues(code).Inc()
}

// ObservePurge adds a retention result.
func (m *Metrics) ObservePurge(r maillog.PurgeResult) {
	m.Purged.WithLabelValues("age").Add(float64(r.Expired))
	m.Purged.WithLabelValues("count").Add(float64(r.Trimmed))
}
