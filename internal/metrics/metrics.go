// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActiveRequests      prometheus.Gauge
	NotesOperations     *prometheus.CounterVec
	AuthAttempts        *prometheus.CounterVec
	CacheLookups        *prometheus.CounterVec
}

// New registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		ActiveRequests: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		NotesOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notes_operations_total",
			Help: "Note operations by outcome",
		}, []string{"operation", "outcome"}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Authentication attempts",
		}, []string{"type", "status"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "response_cache_lookups_total",
			Help: "Response cache lookups by result",
		}, []string{"result"}),
	}
}

// NoteOperation counts one note operation, e.g. ("create", "ok").
func (m *Metrics) NoteOperation(op, outcome string) {
	m.NotesOperations.WithLabelValues(op, outcome).Inc()
}

// AuthAttempt counts one register/login/refresh attempt.
func (m *Metrics) AuthAttempt(kind, status string) {
	m.AuthAttempts.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}
