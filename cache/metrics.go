package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the counters of every engine registered with a
// Control as prometheus metrics, labelled by cache name. Register it
// once per Control:
//
//	prometheus.MustRegister(cache.NewCollector(control))
type Collector struct {
	control *Control

	updateAttempts  *prometheus.Desc
	updateSuccesses *prometheus.Desc
	updateFailures  *prometheus.Desc
	documents       *prometheus.Desc
	dumpLoaded      *prometheus.Desc
	dumpWrittenSize *prometheus.Desc
}

// NewCollector creates a collector over the given registry
func NewCollector(control *Control) *Collector {
	return &Collector{
		control: control,
		updateAttempts: prometheus.NewDesc(
			"cache_update_attempts_total",
			"Number of started cache updates",
			[]string{"cache", "update_type"}, nil,
		),
		updateSuccesses: prometheus.NewDesc(
			"cache_update_successes_total",
			"Number of successful cache updates",
			[]string{"cache", "update_type"}, nil,
		),
		updateFailures: prometheus.NewDesc(
			"cache_update_failures_total",
			"Number of failed cache updates",
			[]string{"cache", "update_type"}, nil,
		),
		documents: prometheus.NewDesc(
			"cache_current_documents",
			"Document count reported by the most recent successful update",
			[]string{"cache"}, nil,
		),
		dumpLoaded: prometheus.NewDesc(
			"cache_dump_is_loaded",
			"Whether a cache dump was loaded on startup",
			[]string{"cache"}, nil,
		),
		dumpWrittenSize: prometheus.NewDesc(
			"cache_dump_last_written_size_bytes",
			"Byte size of the last written cache dump",
			[]string{"cache"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.updateAttempts
	ch <- c.updateSuccesses
	ch <- c.updateFailures
	ch <- c.documents
	ch <- c.dumpLoaded
	ch <- c.dumpWrittenSize
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, e := range c.control.Engines() {
		name := e.Name()
		stats := e.Statistics()

		for _, t := range []UpdateType{UpdateFull, UpdateIncremental} {
			s := stats.forType(t)
			ch <- prometheus.MustNewConstMetric(c.updateAttempts,
				prometheus.CounterValue, float64(s.Attempts()), name, t.String())
			ch <- prometheus.MustNewConstMetric(c.updateSuccesses,
				prometheus.CounterValue, float64(s.Successes()), name, t.String())
			ch <- prometheus.MustNewConstMetric(c.updateFailures,
				prometheus.CounterValue, float64(s.Failures()), name, t.String())
		}

		ch <- prometheus.MustNewConstMetric(c.documents,
			prometheus.GaugeValue, float64(stats.CurrentDocumentsCount()), name)

		loaded := 0.0
		if stats.Dump().IsLoaded() {
			loaded = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.dumpLoaded,
			prometheus.GaugeValue, loaded, name)
		ch <- prometheus.MustNewConstMetric(c.dumpWrittenSize,
			prometheus.GaugeValue, float64(stats.Dump().LastWrittenSize()), name)
	}
}
