// Package metrics owns the Prometheus collectors of one tier. Each Metrics
// has its own registry so tests and the two binaries never share state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "svh"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
	ResultHit       = "hit"
	ResultMiss      = "miss"
)

type Metrics struct {
	registry *prometheus.Registry

	Logins       *prometheus.CounterVec
	Logouts      prometheus.Counter
	Refreshes    *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	Sweeps       *prometheus.CounterVec
	SweepRevoked prometheus.Counter
	Upstream     *prometheus.CounterVec
}

// New registers the collectors for service ("edge" or "identity").
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: reg,
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "logins_total", ConstLabels: labels,
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		Logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "logouts_total", ConstLabels: labels,
			Help: "Logout requests that carried a token.",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "refreshes_total", ConstLabels: labels,
			Help: "Token refreshes by outcome.",
		}, []string{"outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_cache_lookups_total", ConstLabels: labels,
			Help: "Session cache lookups by result.",
		}, []string{"result"}),
		Sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweeps_total", ConstLabels: labels,
			Help: "Bulk revocation sweeps by outcome.",
		}, []string{"outcome"}),
		SweepRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_revoked_tokens_total", ConstLabels: labels,
			Help: "Tokens revoked by bulk sweeps.",
		}),
		Upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "identity_requests_total", ConstLabels: labels,
			Help: "Calls from the edge to the identity tier by operation and outcome.",
		}, []string{"op", "outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Logins, m.Logouts, m.Refreshes, m.CacheLookups, m.Sweeps, m.SweepRevoked, m.Upstream,
	)
	return m
}

// TrackCacheSize exposes size() as the session cache entry gauge.
func (m *Metrics) TrackCacheSize(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "session_cache_entries",
		Help: "Entries currently held by the session cache, expired ones included.",
	}, func() float64 { return float64(size()) }))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
