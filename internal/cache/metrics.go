package cache

import "github.com/prometheus/client_golang/prometheus"

// StatsSource is a cache that reports its own counters. A negative Size
// means the entry count is not known to this process.
type StatsSource interface {
	Stats() Stats
}

// Collector exports the counters of named caches at scrape time.
type Collector struct {
	sources   map[string]StatsSource
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	entries   *prometheus.Desc
}

// NewCollector exports sources, keyed by the table label they report under.
func NewCollector(sources map[string]StatsSource) *Collector {
	labels := []string{"table"}
	return &Collector{
		sources:   sources,
		hits:      prometheus.NewDesc("gravl_cache_hits_total", "Resident cache lookups that found a live entry.", labels, nil),
		misses:    prometheus.NewDesc("gravl_cache_misses_total", "Resident cache lookups that missed or found an expired entry.", labels, nil),
		evictions: prometheus.NewDesc("gravl_cache_evictions_total", "Entries dropped for capacity or expiry.", labels, nil),
		entries:   prometheus.NewDesc("gravl_cache_entries", "Entries currently held.", labels, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.entries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for table, src := range c.sources {
		s := src.Stats()
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), table)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), table)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions), table)
		if s.Size >= 0 {
			ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Size), table)
		}
	}
}
