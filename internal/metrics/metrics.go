// Package metrics defines the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus collectors for the gateway. Collectors
// are registered on a caller-supplied registry so tests can create as many
// instances as they like without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
}

// New creates a Metrics instance with its collectors registered on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reigate_requests_total",
				Help: "Total inbound requests by route and response code",
			},
			[]string{"route", "code"},
		),

		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reigate_upstream_requests_total",
				Help: "Total outbound calls to the REI API by response code",
			},
			[]string{"code"},
		),

		upstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "reigate_upstream_request_duration_seconds",
				Help: "Wall time of outbound REI API calls",
				// Completions routinely take minutes; the default buckets
				// top out at 10s and would lump everything together.
				Buckets: []float64{0.25, 1, 5, 15, 60, 300, 900, 1800, 3000},
			},
		),
	}
}

// IncRequest counts one inbound request on a route with the HTTP code sent
// back to the caller.
func (m *Metrics) IncRequest(route string, code int) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveUpstream records one outbound REI call. code is the upstream HTTP
// status, or 0 when the call failed before a status was received (timeout,
// connection error).
func (m *Metrics) ObserveUpstream(code int, elapsed time.Duration) {
	m.upstreamRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	m.upstreamDuration.Observe(elapsed.Seconds())
}

// Handler returns the exposition endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
