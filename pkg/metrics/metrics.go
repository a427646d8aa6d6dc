// Package metrics provides a process-wide prometheus registry and a small
// helper for registering namespaced component metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// GetRegistry returns the shared process registry, creating it on first use
// with the standard Go and process collectors attached.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	return registry
}

// ComponentRegistry registers metrics under a fixed namespace/subsystem pair.
type ComponentRegistry struct {
	namespace string
	subsystem string
	registry  *prometheus.Registry
}

// NewComponentRegistry creates a registry view for one component.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	return &ComponentRegistry{
		namespace: namespace,
		subsystem: subsystem,
		registry:  GetRegistry(),
	}
}

func (c *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = c.namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewCounter(opts)
	c.registry.MustRegister(m)
	return m
}

func (c *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = c.namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewCounterVec(opts, labels)
	c.registry.MustRegister(m)
	return m
}

func (c *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = c.namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewGauge(opts)
	c.registry.MustRegister(m)
	return m
}

func (c *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = c.namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewGaugeVec(opts, labels)
	c.registry.MustRegister(m)
	return m
}

func (c *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace = c.namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewHistogram(opts)
	c.registry.MustRegister(m)
	return m
}

func (c *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace = c.namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewHistogramVec(opts, labels)
	c.registry.MustRegister(m)
	return m
}
