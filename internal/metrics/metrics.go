// Package metrics exposes engine counters through a Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/julianstephens/habitstreak/internal/constants"
)

// Metrics is one set of engine collectors bound to a registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	corrections    prometheus.Counter
	fraudFlags     *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	sweepItems     *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	lastSweepStamp prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	ns := constants.AppName

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "operations_total",
			Help:      "Engine operations by name and result kind.",
		}, []string{"op", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of engine operations including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "protocol_retries_total",
			Help:      "Transactions retried after a write conflict.",
		}, []string{"op"}),
		corrections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "integrity_corrections_total",
			Help:      "Streak states replaced by the independent recomputation.",
		}),
		fraudFlags: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "fraud_flags_total",
			Help:      "New anti-fraud flags by kind.",
		}, []string{"kind"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_lookups_total",
			Help:      "Streak cache lookups by outcome.",
		}, []string{"outcome"}),
		sweepItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sweep_items_total",
			Help:      "Habits reconciled by the sweep, by result.",
		}, []string{"result"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a full sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		lastSweepStamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time the last sweep finished.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveOperation records one finished engine operation.
func (m *Metrics) ObserveOperation(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) Retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) Correction() {
	if m == nil {
		return
	}
	m.corrections.Inc()
}

func (m *Metrics) FraudFlag(kind string) {
	if m == nil {
		return
	}
	m.fraudFlags.WithLabelValues(kind).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SweepItem(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.sweepItems.WithLabelValues(result).Inc()
}

// SweepFinished records a sweep's duration and completion time.
func (m *Metrics) SweepFinished(elapsed time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(elapsed.Seconds())
	m.lastSweepStamp.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return fmt.Errorf("metrics disabled")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
