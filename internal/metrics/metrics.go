// Package metrics exposes the status cache and refresh cycles as Prometheus
// metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcleai/statusboard/internal/resilience"
	"github.com/marcleai/statusboard/internal/status"
	"github.com/marcleai/statusboard/internal/worker"
)

const namespace = "statusboard"

// Register attaches collectors to the supplied registerer. Collectors that
// are already registered are skipped.
func Register(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// CycleRecorder counts refresh cycles. It implements worker.CycleObserver.
type CycleRecorder struct {
	cycles      prometheus.Counter
	duration    prometheus.Histogram
	transitions prometheus.Counter
	abandoned   prometheus.Counter
	panicked    prometheus.Counter
}

// NewCycleRecorder creates the refresh cycle collectors.
func NewCycleRecorder() *CycleRecorder {
	return &CycleRecorder{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Completed refresh cycles.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_cycle_seconds",
			Help:      "Refresh cycle duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 4, 5, 8, 10},
		}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Observed service status transitions.",
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_abandoned_total",
			Help:      "Checks abandoned after exceeding their time budget.",
		}),
		panicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_panicked_total",
			Help:      "Checks that failed unexpectedly.",
		}),
	}
}

// ObserveCycle records one cycle.
func (r *CycleRecorder) ObserveCycle(res worker.CycleResult) {
	r.cycles.Inc()
	d := res.Duration
	if d < 0 {
		d = 0
	}
	r.duration.Observe(d.Seconds())
	r.transitions.Add(float64(res.Transitions))
	r.abandoned.Add(float64(res.Abandoned))
	r.panicked.Add(float64(res.Panicked))
}

// Describe implements prometheus.Collector.
func (r *CycleRecorder) Describe(ch chan<- *prometheus.Desc) {
	r.cycles.Describe(ch)
	r.duration.Describe(ch)
	r.transitions.Describe(ch)
	r.abandoned.Describe(ch)
	r.panicked.Describe(ch)
}

// Collect implements prometheus.Collector.
func (r *CycleRecorder) Collect(ch chan<- prometheus.Metric) {
	r.cycles.Collect(ch)
	r.duration.Collect(ch)
	r.transitions.Collect(ch)
	r.abandoned.Collect(ch)
	r.panicked.Collect(ch)
}

var (
	serviceStatusDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "service", "status"),
		"1 for the service's current status, 0 otherwise.",
		[]string{"service", "group", "status"}, nil,
	)
	serviceLatencyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "service", "latency_milliseconds"),
		"Latency of the service's last completed check.",
		[]string{"service"}, nil,
	)
	serviceFlappingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "service", "flapping"),
		"1 while the service is flapping.",
		[]string{"service"}, nil,
	)
	overallDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "overall_status"),
		"1 for the current overall status, 0 otherwise.",
		[]string{"status"}, nil,
	)
	cacheAgeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "cache_age_seconds"),
		"Seconds since the published snapshot's refresh started.",
		nil, nil,
	)
	breakerStateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dependency", "circuit_state"),
		"Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		[]string{"dependency"}, nil,
	)
)

// SnapshotCollector reads the published snapshot at scrape time. It never
// triggers checks.
type SnapshotCollector struct {
	cache    *status.Cache
	flags    status.FlagsFunc
	registry *resilience.Registry
	now      func() time.Time
}

// NewSnapshotCollector creates a collector over cache. flags and registry
// may be nil.
func NewSnapshotCollector(cache *status.Cache, flags status.FlagsFunc, registry *resilience.Registry) *SnapshotCollector {
	return &SnapshotCollector{cache: cache, flags: flags, registry: registry, now: time.Now}
}

// Describe implements prometheus.Collector.
func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- serviceStatusDesc
	ch <- serviceLatencyDesc
	ch <- serviceFlappingDesc
	ch <- overallDesc
	ch <- cacheAgeDesc
	ch <- breakerStateDesc
}

// Collect implements prometheus.Collector.
func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.cache.Load()

	for _, v := range snap.Services {
		for _, st := range status.All {
			ch <- prometheus.MustNewConstMetric(serviceStatusDesc, prometheus.GaugeValue, boolValue(v.Status == st), v.ID, v.Group, string(st))
		}
		if v.LatencyMs != nil {
			ch <- prometheus.MustNewConstMetric(serviceLatencyDesc, prometheus.GaugeValue, float64(*v.LatencyMs), v.ID)
		}
		if c.flags != nil {
			if f, ok := c.flags(v.ID); ok {
				ch <- prometheus.MustNewConstMetric(serviceFlappingDesc, prometheus.GaugeValue, boolValue(f.Flapping), v.ID)
			}
		}
	}

	for _, st := range status.All {
		ch <- prometheus.MustNewConstMetric(overallDesc, prometheus.GaugeValue, boolValue(snap.Overall == st), string(st))
	}
	ch <- prometheus.MustNewConstMetric(cacheAgeDesc, prometheus.GaugeValue, snap.Age(c.now()).Seconds())

	if c.registry != nil {
		for _, dep := range c.registry.All() {
			ch <- prometheus.MustNewConstMetric(breakerStateDesc, prometheus.GaugeValue, float64(dep.CircuitState), dep.Name)
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
