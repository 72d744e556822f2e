// Package metrics provides the ComponentRegistry used across the daemon to register
// Prometheus collectors under a consistent namespace/subsystem, mirroring the call
// convention observed at x/publisher/metrics.go's call sites
// (metrics2.NewComponentRegistry(name, subsystem), reg.NewGauge/NewCounterVec/...).
// The package itself was referenced but not present in the retrieved teacher tree, so
// it is authored fresh against that convention.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// CountBuckets are the default histogram buckets for small integer counts (batch
// sizes, epoch counts, retry counts).
var CountBuckets = []float64{1, 2, 4, 8, 16, 32, 64, 128, 256}

const namespace = "bankai"

// ComponentRegistry registers collectors under namespace "bankai" and the given
// subsystem, against the default Prometheus registerer.
type ComponentRegistry struct {
	subsystem string
}

// NewComponentRegistry returns a registry for the given component. subsystem becomes
// every metric's Prometheus subsystem label; when subsystem is empty, name is used in
// its place.
func NewComponentRegistry(name, subsystem string) *ComponentRegistry {
	if subsystem == "" {
		subsystem = name
	}
	return &ComponentRegistry{subsystem: subsystem}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounter(opts)
	prometheus.MustRegister(c)
	return c
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounterVec(opts, labels)
	prometheus.MustRegister(c)
	return c
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	g := prometheus.NewGauge(opts)
	prometheus.MustRegister(g)
	return g
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	g := prometheus.NewGaugeVec(opts, labels)
	prometheus.MustRegister(g)
	return g
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	h := prometheus.NewHistogram(opts)
	prometheus.MustRegister(h)
	return h
}
