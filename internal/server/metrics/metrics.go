// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters recorded by the auth pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	AuthFailuresTotal *prometheus.CounterVec
	TokensIssuedTotal *prometheus.CounterVec
	RevocationsPurged prometheus.Counter
}

// New creates a private registry with the Go and process collectors and the
// gophauth counters registered on it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gophauth_requests_total",
				Help: "Total number of requests by transport, route and status",
			},
			[]string{"transport", "route", "status"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gophauth_auth_failures_total",
				Help: "Total number of rejected requests by transport and error code",
			},
			[]string{"transport", "code"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gophauth_token_pairs_issued_total",
				Help: "Total number of token pairs minted by operation",
			},
			[]string{"operation"},
		),
		RevocationsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gophauth_revocations_purged_total",
				Help: "Total number of expired revocation entries removed",
			},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.AuthFailuresTotal, m.TokensIssuedTotal, m.RevocationsPurged)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) ObserveRequest(transport, route, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(transport, route, status).Inc()
}

func (m *Metrics) ObserveAuthFailure(transport, code string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(transport, code).Inc()
}

func (m *Metrics) ObserveIssued(operation string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObservePurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RevocationsPurged.Add(float64(n))
}
