// Package metrics exposes monitor cycle outcomes as Prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wemix/headwatch/internal/escalation"
)

// Namespace prefixes every metric name
const Namespace = "headwatch"

// Observation is the outcome of one monitor cycle
type Observation struct {
	// Height is nil when the probe failed
	Height           *uint64
	State            escalation.MonitorState
	Level            int
	Now              time.Time
	Events           []escalation.Event
	DispatchFailures int
	Duration         time.Duration
	Err              error
}

// Collector holds the monitor metrics in a private registry
type Collector struct {
	registry *prometheus.Registry

	headHeight      prometheus.Gauge
	stallMinutes    prometheus.Gauge
	escalationLevel prometheus.Gauge
	lastAdvance     prometheus.Gauge

	cycles           prometheus.Counter
	cycleErrors      prometheus.Counter
	probeFailures    prometheus.Counter
	alerts           *prometheus.CounterVec
	resolved         prometheus.Counter
	dispatchFailures prometheus.Counter
	cycleDuration    prometheus.Histogram

	mu        sync.RWMutex
	lastCycle time.Time
}

// NewCollector creates a collector with runtime and process metrics registered
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		headHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "head_height",
			Help:      "Last observed light client head height",
		}),
		stallMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "stall_minutes",
			Help:      "Whole minutes since the head height last advanced",
		}),
		escalationLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "escalation_level",
			Help:      "0 when healthy, otherwise the 1-based index of the highest threshold notified",
		}),
		lastAdvance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_advance_timestamp_seconds",
			Help:      "Unix time of the last observed head height increase",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycles_total",
			Help:      "Monitor cycles run",
		}),
		cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycle_errors_total",
			Help:      "Monitor cycles aborted by a state error",
		}),
		probeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "probe_failures_total",
			Help:      "Head height probes that failed",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "alerts_total",
			Help:      "Stall alerts fired by threshold",
		}, []string{"threshold"}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resolved_total",
			Help:      "Stall episodes resolved",
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_failures_total",
			Help:      "Notifications that could not be delivered",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a monitor cycle",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}),
	}

	c.registry.MustRegister(
		c.headHeight,
		c.stallMinutes,
		c.escalationLevel,
		c.lastAdvance,
		c.cycles,
		c.cycleErrors,
		c.probeFailures,
		c.alerts,
		c.resolved,
		c.dispatchFailures,
		c.cycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// GetRegistry returns the registry used by the exporter and pusher
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Observe records one cycle
func (c *Collector) Observe(obs Observation) {
	c.cycles.Inc()
	c.cycleDuration.Observe(obs.Duration.Seconds())

	c.mu.Lock()
	c.lastCycle = obs.Now
	c.mu.Unlock()

	if obs.Err != nil {
		c.cycleErrors.Inc()
		return
	}

	if obs.Height == nil {
		c.probeFailures.Inc()
	} else {
		c.headHeight.Set(float64(*obs.Height))
	}

	c.escalationLevel.Set(float64(obs.Level))
	c.stallMinutes.Set(float64(obs.State.ElapsedMinutes(obs.Now)))
	if obs.State.HasUpdate() {
		c.lastAdvance.Set(float64(obs.State.LastUpdatedAt.Unix()))
	}

	for _, ev := range obs.Events {
		switch ev.Kind {
		case escalation.EventStallAlert:
			c.alerts.WithLabelValues(ev.Threshold.Name).Inc()
		case escalation.EventResolved:
			c.resolved.Inc()
		}
	}

	if obs.DispatchFailures > 0 {
		c.dispatchFailures.Add(float64(obs.DispatchFailures))
	}
}

// LastCycle returns when the last cycle was observed, zero if none
func (c *Collector) LastCycle() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastCycle
}
