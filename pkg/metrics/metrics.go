// Package metrics exposes Fabric's Prometheus instrumentation:
// live/reserve worker counts, blocked-worker counts, per-worker queue
// depth, task throughput, sysmon eviction counts, and compute dispatch
// duration. It is grounded on the teacher's
// pkg/observability/prometheus/metrics.go — same promauto-backed
// struct-of-metrics shape and custom-metric registry pattern,
// retargeted from Fluxor's HTTP/EventBus/database concerns to Fabric's.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the registry Fabric metrics register into when
	// no explicit Registerer is supplied.
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer labels every metric under this registry with
	// service="fabric".
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "fabric"}, DefaultRegistry)

	once    sync.Once
	metrics *Metrics
)

// Metrics holds every Prometheus collector Fabric and Sysmon update.
type Metrics struct {
	WorkersLive    prometheus.Gauge
	WorkersReserve prometheus.Gauge
	WorkersBlocked prometheus.Gauge

	QueueDepth *prometheus.GaugeVec

	TasksCompletedTotal *prometheus.CounterVec
	TasksRejectedTotal  prometheus.Counter

	SysmonEvictionsTotal prometheus.Counter
	SysmonReclaimsTotal  prometheus.Counter
	SysmonSpawnsTotal    prometheus.Counter
	SysmonSampleDuration prometheus.Histogram

	ComputeDispatchDuration *prometheus.HistogramVec

	customMu         sync.RWMutex
	customCounters   map[string]*prometheus.CounterVec
	customGauges     map[string]*prometheus.GaugeVec
	customHistograms map[string]*prometheus.HistogramVec
}

// Get returns the process-wide Metrics instance, creating it against
// DefaultRegisterer on first use.
func Get() *Metrics {
	once.Do(func() {
		metrics = New(DefaultRegisterer)
	})
	return metrics
}

// New creates a fresh Metrics collection registered against registerer
// (DefaultRegisterer if nil). Passing a private registry keeps a test
// run from colliding with the process-wide Get() singleton, which
// Fabric itself uses.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	return &Metrics{
		WorkersLive: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "fabric_workers_live",
			Help: "Number of Workers currently in the live pool.",
		}),
		WorkersReserve: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "fabric_workers_reserve",
			Help: "Number of Workers currently held in the put-aside reserve.",
		}),
		WorkersBlocked: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "fabric_workers_blocked",
			Help: "Number of Workers Sysmon currently considers blocked (coop or external).",
		}),
		QueueDepth: promauto.With(registerer).NewGaugeVec(prometheus.GaugeOpts{
			Name: "fabric_worker_queue_depth",
			Help: "Queued-but-not-yet-run task count per Worker.",
		}, []string{"worker"}),
		TasksCompletedTotal: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "fabric_tasks_completed_total",
			Help: "Total tasks that finished running, by kind.",
		}, []string{"kind"}), // kind: task, compute
		TasksRejectedTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "fabric_tasks_rejected_total",
			Help: "Total task submissions rejected (e.g. after Stop).",
		}),
		SysmonEvictionsTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "fabric_sysmon_evictions_total",
			Help: "Total Workers evicted from the live set for being blocked.",
		}),
		SysmonReclaimsTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "fabric_sysmon_reclaims_total",
			Help: "Total evicted Workers reclaimed back into the reserve.",
		}),
		SysmonSpawnsTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "fabric_sysmon_spawns_total",
			Help: "Total brand-new Workers spawned to replace an evicted one past the reserve.",
		}),
		SysmonSampleDuration: promauto.With(registerer).NewHistogram(prometheus.HistogramOpts{
			Name:    "fabric_sysmon_sample_duration_seconds",
			Help:    "Wall time spent in one sysmon sampling tick.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12),
		}),
		ComputeDispatchDuration: promauto.With(registerer).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fabric_compute_dispatch_duration_seconds",
			Help:    "Wall time of one Compute/ComputeSized/ComputeTiled call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}), // kind: compute, compute_sized, compute_tiled

		customCounters:   make(map[string]*prometheus.CounterVec),
		customGauges:     make(map[string]*prometheus.GaugeVec),
		customHistograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Counter returns (creating if needed) a custom counter metric, for
// ambient instrumentation callers that don't warrant a named field on
// Metrics itself.
func (m *Metrics) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	m.customMu.RLock()
	if c, ok := m.customCounters[name]; ok {
		m.customMu.RUnlock()
		return c
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if c, ok := m.customCounters[name]; ok {
		return c
	}
	c := promauto.With(DefaultRegisterer).NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	m.customCounters[name] = c
	return c
}

// Gauge returns (creating if needed) a custom gauge metric.
func (m *Metrics) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	m.customMu.RLock()
	if g, ok := m.customGauges[name]; ok {
		m.customMu.RUnlock()
		return g
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if g, ok := m.customGauges[name]; ok {
		return g
	}
	g := promauto.With(DefaultRegisterer).NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	m.customGauges[name] = g
	return g
}

// Histogram returns (creating if needed) a custom histogram metric.
func (m *Metrics) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	m.customMu.RLock()
	if h, ok := m.customHistograms[name]; ok {
		m.customMu.RUnlock()
		return h
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()
	if h, ok := m.customHistograms[name]; ok {
		return h
	}
	opts := prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}
	if buckets == nil {
		opts.Buckets = prometheus.DefBuckets
	}
	h := promauto.With(DefaultRegisterer).NewHistogramVec(opts, labels)
	m.customHistograms[name] = h
	return h
}

// RecordComputeDispatch records the wall time of one dispatch call.
func (m *Metrics) RecordComputeDispatch(kind string, d time.Duration) {
	m.ComputeDispatchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordTaskCompleted increments the completed-task counter for kind
// ("task" or "compute").
func (m *Metrics) RecordTaskCompleted(kind string) {
	m.TasksCompletedTotal.WithLabelValues(kind).Inc()
}

// RecordEviction/RecordReclaim/RecordSpawn increment the sysmon
// eviction/reclaim/spawn counters. Fabric's own eviction, reclaim and
// spawn methods increment those counters directly, not through these.
func (m *Metrics) RecordEviction() { m.SysmonEvictionsTotal.Inc() }
func (m *Metrics) RecordReclaim()  { m.SysmonReclaimsTotal.Inc() }
func (m *Metrics) RecordSpawn()    { m.SysmonSpawnsTotal.Inc() }
