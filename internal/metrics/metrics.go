// Package metrics exposes Prometheus gauges and counters for the mining
// core: per-worker hashrate, shares accepted/rejected, job counts, and
// pool connection state. Shape ported from coopmine/metrics/metrics.go,
// re-scoped from a cluster/gRPC domain to a single mining client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector this process exposes.
type Metrics struct {
	WorkerHashrate *prometheus.GaugeVec
	TotalHashrate  prometheus.Gauge
	HighestHashrate prometheus.Gauge

	SharesTotal     *prometheus.CounterVec
	ShareDifficulty prometheus.Histogram

	JobsReceived prometheus.Counter
	JobHeight    prometheus.Gauge

	PoolConnected  *prometheus.GaugeVec
	PoolReconnects prometheus.Counter

	HugePagesGranted prometheus.Gauge

	registry *prometheus.Registry
}

// New builds and registers every collector under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "miner"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.WorkerHashrate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_hashrate",
		Help:      "Hashrate per worker thread in H/s.",
	}, []string{"thread_id"})

	m.TotalHashrate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "total_hashrate",
		Help:      "Aggregate hashrate across every worker thread in H/s.",
	})

	m.HighestHashrate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "highest_hashrate",
		Help:      "Highest aggregate hashrate observed since start, in H/s.",
	})

	m.SharesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shares_total",
		Help:      "Total shares submitted, by outcome.",
	}, []string{"status"}) // status: accepted, rejected, stale

	m.ShareDifficulty = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "share_difficulty",
		Help:      "Difficulty of submitted shares.",
		Buckets:   prometheus.ExponentialBuckets(1000, 2, 14),
	})

	m.JobsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_received_total",
		Help:      "Total jobs received from any pool.",
	})

	m.JobHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "job_height",
		Help:      "Block height of the currently mined job.",
	})

	m.PoolConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_connected",
		Help:      "Whether the named pool is currently connected (1) or not (0).",
	}, []string{"pool"})

	m.PoolReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_reconnects_total",
		Help:      "Total reconnect attempts across every configured pool.",
	})

	m.HugePagesGranted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "huge_pages_granted",
		Help:      "Number of huge pages successfully allocated at startup.",
	})

	m.registry.MustRegister(
		m.WorkerHashrate,
		m.TotalHashrate,
		m.HighestHashrate,
		m.SharesTotal,
		m.ShareDifficulty,
		m.JobsReceived,
		m.JobHeight,
		m.PoolConnected,
		m.PoolReconnects,
		m.HugePagesGranted,
	)

	return m
}

// Handler returns the HTTP handler to mount at the configured metrics path.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
