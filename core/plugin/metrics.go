package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Call results recorded in the calls counter.
const (
	resultValue     = "value"
	resultStream    = "stream"
	resultError     = "error"
	resultCancelled = "cancelled"
	resultBroken    = "protocol_error"
)

// Metrics holds the host's Prometheus collectors.
type Metrics struct {
	Spawns        *prometheus.CounterVec
	SpawnFailures *prometheus.CounterVec
	Calls         *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	Teardowns     *prometheus.CounterVec
	Live          prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Spawns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeshell_plugin_spawns_total",
				Help: "Plugin processes started",
			},
			[]string{"plugin"},
		),
		SpawnFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeshell_plugin_spawn_failures_total",
				Help: "Plugin processes that failed to start or complete the handshake",
			},
			[]string{"plugin"},
		),
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeshell_plugin_calls_total",
				Help: "Plugin calls by how they ended",
			},
			[]string{"plugin", "result"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeshell_plugin_call_duration_seconds",
				Help:    "Time from sending a call to its terminal message",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"plugin"},
		),
		Teardowns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeshell_plugin_teardowns_total",
				Help: "Plugin processes stopped, by reason",
			},
			[]string{"plugin", "reason"},
		),
		Live: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeshell_plugin_live_instances",
				Help: "Plugin processes currently running",
			},
		),
	}

	reg.MustRegister(
		m.Spawns,
		m.SpawnFailures,
		m.Calls,
		m.CallDuration,
		m.Teardowns,
		m.Live,
	)
	return m
}
