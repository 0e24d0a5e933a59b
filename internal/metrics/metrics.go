package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the media cache.
type Metrics struct {
	Lookups         *prometheus.CounterVec
	Downloads       *prometheus.CounterVec
	DownloadBytes   prometheus.Counter
	DownloadSeconds prometheus.Histogram
	Evictions       prometheus.Counter
	Entries         *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amvcache_lookups_total",
		Help: "GetFile resolutions by outcome (hit, miss, joined)",
	}, []string{"result"})

	downloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amvcache_downloads_total",
		Help: "Completed downloads by result (ok, network, storage, other)",
	}, []string{"result"})

	downloadBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amvcache_download_bytes_total",
		Help: "Total bytes committed to the cache root by downloads",
	})

	downloadSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "amvcache_download_duration_seconds",
		Help:    "Download duration measured from worker slot acquisition",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	evictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amvcache_evictions_total",
		Help: "Entries evicted to stay within capacity",
	})

	entries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "amvcache_entries",
		Help: "Indexed entries per state, refreshed whenever cache stats are computed",
	}, []string{"state"})

	reg.MustRegister(lookups, downloads, downloadBytes, downloadSeconds, evictions, entries)

	return &Metrics{
		Lookups:         lookups,
		Downloads:       downloads,
		DownloadBytes:   downloadBytes,
		DownloadSeconds: downloadSeconds,
		Evictions:       evictions,
		Entries:         entries,
	}
}
