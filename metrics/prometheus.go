package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promCollector exposes a Collector's counters to a Prometheus registry so a
// host service can scrape cache behavior without a second bookkeeping path.
type promCollector struct {
	c *Collector

	hits       *prometheus.Desc
	misses     *prometheus.Desc
	sets       *prometheus.Desc
	deletes    *prometheus.Desc
	errors     *prometheus.Desc
	avgLatency *prometheus.Desc
	memoryUsed *prometheus.Desc
}

// NewPrometheusCollector wraps c in a prometheus.Collector. Register it with
// prometheus.MustRegister or a custom registry.
func NewPrometheusCollector(c *Collector) prometheus.Collector {
	return &promCollector{
		c: c,
		hits: prometheus.NewDesc(
			"projcache_hits_total", "Cache get operations that found a value.", nil, nil),
		misses: prometheus.NewDesc(
			"projcache_misses_total", "Cache get operations that found nothing.", nil, nil),
		sets: prometheus.NewDesc(
			"projcache_sets_total", "Successful cache writes.", nil, nil),
		deletes: prometheus.NewDesc(
			"projcache_deletes_total", "Keys removed, including pattern deletes.", nil, nil),
		errors: prometheus.NewDesc(
			"projcache_errors_total", "Operations degraded by store failures.", nil, nil),
		avgLatency: prometheus.NewDesc(
			"projcache_avg_latency_seconds", "Running average store round-trip latency.", nil, nil),
		memoryUsed: prometheus.NewDesc(
			"projcache_process_memory_bytes", "Resident memory of the process.", nil, nil),
	}
}

func (p *promCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.hits
	ch <- p.misses
	ch <- p.sets
	ch <- p.deletes
	ch <- p.errors
	ch <- p.avgLatency
	ch <- p.memoryUsed
}

func (p *promCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.c.Stats()
	ch <- prometheus.MustNewConstMetric(p.hits, prometheus.CounterValue, float64(s.Operations.Hits))
	ch <- prometheus.MustNewConstMetric(p.misses, prometheus.CounterValue, float64(s.Operations.Misses))
	ch <- prometheus.MustNewConstMetric(p.sets, prometheus.CounterValue, float64(s.Operations.Sets))
	ch <- prometheus.MustNewConstMetric(p.deletes, prometheus.CounterValue, float64(s.Operations.Deletes))
	ch <- prometheus.MustNewConstMetric(p.errors, prometheus.CounterValue, float64(s.Operations.Errors))
	ch <- prometheus.MustNewConstMetric(p.avgLatency, prometheus.GaugeValue, s.Performance.AvgLatency.Seconds())
	ch <- prometheus.MustNewConstMetric(p.memoryUsed, prometheus.GaugeValue, float64(s.Memory.Used))
}
