// Package metrics exposes prometheus collectors for the synchronisation layer.
//
// A nil *Collector is valid and records nothing, so components can take one
// as an optional dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "contentsync"

// Collector is a prometheus.Collector for queue, listing and registry activity.
type Collector struct {
	upserts         *prometheus.CounterVec
	drainsActive    prometheus.Gauge
	listingEntries  *prometheus.CounterVec
	listingDuration prometheus.Histogram
	containers      *prometheus.CounterVec
}

// New returns a new Collector.
func New() *Collector {
	return &Collector{
		upserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upserts_total",
				Help:      "Coalescing queue activity by outcome (enqueued, coalesced, applied, failed).",
			}, []string{"queue", "outcome"},
		),
		drainsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "drains_active",
				Help:      "The number of keys with a running drain.",
			},
		),
		listingEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "listing_entries_total",
				Help:      "Entries seen by the listing orchestrator by outcome (delivered, skipped).",
			}, []string{"outcome"},
		),
		listingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "listing_duration_seconds",
				Help:      "Time taken to drive a cursor to completion.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		containers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "container_resolutions_total",
				Help:      "Top level container resolutions by outcome (cached, found, created, failed).",
			}, []string{"outcome"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.upserts.Describe(ch)
	c.drainsActive.Describe(ch)
	c.listingEntries.Describe(ch)
	c.listingDuration.Describe(ch)
	c.containers.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.upserts.Collect(ch)
	c.drainsActive.Collect(ch)
	c.listingEntries.Collect(ch)
	c.listingDuration.Collect(ch)
	c.containers.Collect(ch)
}

// Upsert counts a coalescing queue event.
func (c *Collector) Upsert(queue, outcome string) {
	if c == nil {
		return
	}
	c.upserts.WithLabelValues(queue, outcome).Inc()
}

// DrainStarted tracks a drain starting.
func (c *Collector) DrainStarted() {
	if c == nil {
		return
	}
	c.drainsActive.Inc()
}

// DrainStopped tracks a drain going idle.
func (c *Collector) DrainStopped() {
	if c == nil {
		return
	}
	c.drainsActive.Dec()
}

// ListingEntry counts an entry handled by the listing orchestrator.
func (c *Collector) ListingEntry(outcome string) {
	if c == nil {
		return
	}
	c.listingEntries.WithLabelValues(outcome).Inc()
}

// ListingDone records the duration of a traversal in seconds.
func (c *Collector) ListingDone(seconds float64) {
	if c == nil {
		return
	}
	c.listingDuration.Observe(seconds)
}

// ContainerResolution counts a registry resolution.
func (c *Collector) ContainerResolution(outcome string) {
	if c == nil {
		return
	}
	c.containers.WithLabelValues(outcome).Inc()
}

// NewRegistry returns a prometheus registry holding the Go and process
// collectors plus c.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	r := prometheus.NewRegistry()
	if err := r.Register(prometheus.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := r.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if c != nil {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}
