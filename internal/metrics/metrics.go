// Package metrics provides Prometheus instrumentation for the proxy.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal prometheus.Counter
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec

	TunnelsEstablished prometheus.Counter
	TunnelsActive      prometheus.Gauge
	TunnelBytes        *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry and all collectors
// registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spyglass_connections_total",
			Help: "Total client connections accepted.",
		}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spyglass_requests_total",
			Help: "Total proxied requests by method and response status.",
		}, []string{"method", "status_code"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spyglass_request_duration_seconds",
			Help:    "Proxied request latency in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),

		TunnelsEstablished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spyglass_tunnels_established_total",
			Help: "Total CONNECT tunnels successfully established.",
		}),

		TunnelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spyglass_tunnels_active",
			Help: "CONNECT tunnels currently relaying.",
		}),

		TunnelBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spyglass_tunnel_bytes_total",
			Help: "Bytes relayed through CONNECT tunnels by direction.",
		}, []string{"direction"}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.RequestsTotal,
		m.RequestDuration,
		m.TunnelsEstablished,
		m.TunnelsActive,
		m.TunnelBytes,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true, "CONNECT": true,
}

// NormalizeMethod returns a bounded method label; anything non-standard
// maps to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// StatusLabel renders a status code as a metric label value.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}
