// Package metrics exposes the sync layer's Prometheus collectors.
//
// Every collector lives on a private registry so tests and multiple
// clients in one process do not collide. A nil *Recorder is valid and
// records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campusync"

// Recorder owns the registry and collectors.
type Recorder struct {
	registry *prometheus.Registry

	queueDepth   *prometheus.GaugeVec
	syncOps      *prometheus.CounterVec
	syncRuns     *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	online       prometheus.Gauge
	lastSyncTime prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "operations",
			Help:      "Queued operations by status.",
		}, []string{"status"}),
		syncOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Replayed queue operations by type and outcome.",
		}, []string{"type", "outcome"}),
		syncRuns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "facade",
			Name:      "requests_total",
			Help:      "Facade calls by verb and result status.",
		}, []string{"verb", "status"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "online",
			Help:      "1 when the network is believed reachable.",
		}),
		lastSyncTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed reconciliation run.",
		}),
	}
	r.registry.MustRegister(r.queueDepth, r.syncOps, r.syncRuns, r.requests, r.online, r.lastSyncTime)
	return r
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// SetQueueDepth records the number of pending and failed operations.
func (r *Recorder) SetQueueDepth(pending, failed int) {
	if r == nil {
		return
	}
	r.queueDepth.WithLabelValues("pending").Set(float64(pending))
	r.queueDepth.WithLabelValues("failed").Set(float64(failed))
}

// ObserveSyncOperation counts one replayed operation. outcome is
// "succeeded", "failed" or "exhausted".
func (r *Recorder) ObserveSyncOperation(opType, outcome string) {
	if r == nil {
		return
	}
	r.syncOps.WithLabelValues(opType, outcome).Inc()
}

// ObserveSyncRun records a completed reconciliation run.
func (r *Recorder) ObserveSyncRun(failed int, duration time.Duration, at time.Time) {
	if r == nil {
		return
	}
	result := "clean"
	if failed > 0 {
		result = "partial"
	}
	r.syncRuns.WithLabelValues(result).Observe(duration.Seconds())
	r.lastSyncTime.Set(float64(at.Unix()))
}

// ObserveRequest counts a facade call.
func (r *Recorder) ObserveRequest(verb, status string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(verb, status).Inc()
}

// SetOnline records connectivity.
func (r *Recorder) SetOnline(online bool) {
	if r == nil {
		return
	}
	if online {
		r.online.Set(1)
		return
	}
	r.online.Set(0)
}
