// Package metrics exposes the runtime's prometheus collectors: action
// completions, exception reports and web transport requests.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gil0mendes/Stellar/internal/observability/alerting"
	"github.com/gil0mendes/Stellar/pkg/api"
)

// StatusOK labels completions without an error tag.
const StatusOK = "ok"

// ChannelMetrics is the exception channel that counts reported events.
const ChannelMetrics alerting.Channel = "metrics"

// Metrics groups the stellar_ collectors.
type Metrics struct {
	ActionsTotal    *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec
	ExceptionsTotal *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. It panics when a
// collector is already registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stellar_actions_total",
				Help: "Completed action invocations by action, status tag and connection type.",
			},
			[]string{"action", "status", "connection"},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stellar_action_duration_seconds",
				Help:    "Action invocation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		ExceptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stellar_exceptions_total",
				Help: "Reported exceptions by source and code.",
			},
			[]string{"source", "code"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stellar_http_requests_total",
				Help: "HTTP requests served by the web transport.",
			},
			[]string{"handler", "method", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stellar_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"handler", "method"},
		),
	}
	reg.MustRegister(
		m.ActionsTotal,
		m.ActionDuration,
		m.ExceptionsTotal,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// ObserveCompletion records one finished action. It matches api.CompletionHook.
func (m *Metrics) ObserveCompletion(c api.Completion) {
	if m == nil {
		return
	}
	status := c.Status
	if status == "" {
		status = StatusOK
	}
	m.ActionsTotal.WithLabelValues(c.Action, status, c.ConnectionType).Inc()
	m.ActionDuration.WithLabelValues(c.Action).Observe(c.Duration.Seconds())
}

// ObserveHTTPRequest records a request handled by the web transport.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Notifier counts exception events. Add it to the API's exception fan-out.
func (m *Metrics) Notifier() alerting.Notifier {
	return alerting.FuncNotifier{
		Name: ChannelMetrics,
		Fn: func(_ context.Context, event alerting.Event) error {
			m.ExceptionsTotal.WithLabelValues(event.Source, string(event.Code)).Inc()
			return nil
		},
	}
}
