// Package metrics exports the state of experience replay buffers as
// Prometheus metrics
package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/samuelfneumann/goreplay/expreplay"
)

// Statter is anything that can report a snapshot of a replay buffer's
// state. Every expreplay.ExperienceReplayer is a Statter.
type Statter interface {
	Stats() expreplay.Stats
}

// Collector implements prometheus.Collector over a set of named replay
// buffers. Gauges are read from each buffer's Stats at scrape time, so
// buffers shared with other goroutines should be wrapped with
// expreplay.NewLocked.
//
// Priority gauges and β are only exported for prioritized buffers.
type Collector struct {
	buffers map[string]Statter
	names   []string

	size          *prometheus.Desc
	capacity      *prometheus.Desc
	beta          *prometheus.Desc
	totalPriority *prometheus.Desc
	maxPriority   *prometheus.Desc
	minPriority   *prometheus.Desc
}

// NewCollector returns a new Collector exporting the buffers under the
// given namespace, each labelled by its key in buffers
func NewCollector(namespace string, buffers map[string]Statter) *Collector {
	names := make([]string, 0, len(buffers))
	for name := range buffers {
		names = append(names, name)
	}
	sort.Strings(names)

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "replay", name),
			help,
			[]string{"buffer"},
			nil,
		)
	}

	return &Collector{
		buffers: buffers,
		names:   names,

		size:          desc("size", "Number of experiences in the buffer"),
		capacity:      desc("capacity", "Maximum number of experiences in the buffer"),
		beta:          desc("beta", "Current importance sampling exponent"),
		totalPriority: desc("total_priority", "Sum of all priorities in the buffer"),
		maxPriority:   desc("max_priority", "Largest priority in the buffer"),
		minPriority:   desc("min_priority", "Smallest priority in the buffer"),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.capacity
	ch <- c.beta
	ch <- c.totalPriority
	ch <- c.maxPriority
	ch <- c.minPriority
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.names {
		stats := c.buffers[name].Stats()

		gauge := func(desc *prometheus.Desc, value float64) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue,
				value, name)
		}

		gauge(c.size, float64(stats.Size))
		gauge(c.capacity, float64(stats.Capacity))
		if !stats.Prioritized {
			continue
		}
		gauge(c.beta, stats.Beta)
		gauge(c.totalPriority, stats.TotalPriority)
		gauge(c.maxPriority, stats.MaxPriority)
		gauge(c.minPriority, stats.MinPriority)
	}
}
