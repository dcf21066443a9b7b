// Package metrics exposes Prometheus metrics for the companion server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	MessagesTotal  *prometheus.CounterVec

	// Reply metrics
	ReplyDuration *prometheus.HistogramVec
	ErrorsTotal   *prometheus.CounterVec

	// Escalation metrics
	EscalationsTotal   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "aura"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of connected conversation sessions",
	})

	sessionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total number of conversation sessions opened",
	})

	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages appended to conversations",
		},
		[]string{"sender"},
	)

	replyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_duration_seconds",
			Help:      "Time spent producing an assistant reply",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component"},
	)

	escalationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Emergency requests by outcome",
		},
		[]string{"outcome"},
	)

	notificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Emergency contact notifications by channel and status",
		},
		[]string{"channel", "status"},
	)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		sessionsActive,
		sessionsTotal,
		messagesTotal,
		replyDuration,
		errorsTotal,
		escalationsTotal,
		notificationsTotal,
	)

	return &Metrics{
		registry:           registry,
		SessionsActive:     sessionsActive,
		SessionsTotal:      sessionsTotal,
		MessagesTotal:      messagesTotal,
		ReplyDuration:      replyDuration,
		ErrorsTotal:        errorsTotal,
		EscalationsTotal:   escalationsTotal,
		NotificationsTotal: notificationsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) RecordSessionEnd() {
	m.SessionsActive.Dec()
}

func (m *Metrics) RecordMessage(sender string) {
	m.MessagesTotal.WithLabelValues(sender).Inc()
}

func (m *Metrics) RecordReply(provider string, d time.Duration) {
	m.ReplyDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) RecordError(component string) {
	m.ErrorsTotal.WithLabelValues(component).Inc()
}

func (m *Metrics) RecordEscalation(outcome string) {
	m.EscalationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordNotification(channel string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.NotificationsTotal.WithLabelValues(channel, status).Inc()
}
