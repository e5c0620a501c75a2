package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "mapsync"

// Metrics holds the server's Prometheus collectors. Each server registers
// into its own registry so several servers can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	PacketsTotal    *prometheus.CounterVec
	MutationsTotal  *prometheus.CounterVec
	SyncIDsIssued   prometheus.Counter
	QueueOverflows  prometheus.Counter
	ProtocolErrors  *prometheus.CounterVec
	ChatRateLimited prometheus.Counter
}

// NewMetrics creates the collectors in a fresh registry, together with the
// standard process and Go runtime collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Number of logged-in sessions",
		}),
		PacketsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_total",
			Help:      "Packets handled by direction and type",
		}, []string{"direction", "type"}),
		MutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mutations_total",
			Help:      "Edit requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		SyncIDsIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sync_ids_issued_total",
			Help:      "Sync ids assigned to accepted mutations",
		}),
		QueueOverflows: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "send_queue_overflows_total",
			Help:      "Sessions torn down because their send queue filled up",
		}),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Connections closed by protocol errors, by error code",
		}, []string{"code"}),
		ChatRateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chat_rate_limited_total",
			Help:      "Chat messages dropped by the per-session rate limit",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

const (
	outcomeAccepted = "accepted"
	outcomeLocked   = "locked"
	outcomeInvalid  = "invalid"
)
