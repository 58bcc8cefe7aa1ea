// Package metrics exposes Prometheus instrumentation for the pool and the
// relay server: pool size, selection changes, session counts and session
// duration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles all collectors registered against a single registry.
type Metrics struct {
	PoolSize        prometheus.Gauge
	PoolSwaps       prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionErrors   prometheus.Counter
	SessionDuration prometheus.Histogram
	AutoSwitches    prometheus.Counter
}

// New registers and returns a Metrics bundle on reg. Pass
// prometheus.DefaultRegisterer unless isolating a test registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "socks5pool",
			Subsystem: "pool",
			Name:      "size",
			Help:      "Number of upstream proxies currently held in the pool.",
		}),
		PoolSwaps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "socks5pool",
			Subsystem: "pool",
			Name:      "swaps_total",
			Help:      "Number of times the pool's entry set was replaced (load or health cycle).",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "socks5pool",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of client SOCKS5 sessions currently being relayed.",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "socks5pool",
			Subsystem: "session",
			Name:      "total",
			Help:      "Total number of client connections accepted.",
		}),
		SessionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "socks5pool",
			Subsystem: "session",
			Name:      "errors_total",
			Help:      "Total number of client sessions that ended in an error.",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "socks5pool",
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a relayed SOCKS5 session.",
			Buckets:   prometheus.DefBuckets,
		}),
		AutoSwitches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "socks5pool",
			Subsystem: "pool",
			Name:      "auto_switches_total",
			Help:      "Number of times the auto-switch ticker advanced the current selection.",
		}),
	}
}
