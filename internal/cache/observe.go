package cache

import (
	"errors"
	"time"

	"github.com/amv-media/amvcache/internal/fetch"
)

const (
	lookupHit    = "hit"
	lookupMiss   = "miss"
	lookupJoined = "joined"
)

func (m *Manager) observeLookup(result string) {
	if m.metrics == nil {
		return
	}
	m.metrics.Lookups.WithLabelValues(result).Inc()
}

func (m *Manager) observeDownload(res fetch.Result, err error, elapsed time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.DownloadSeconds.Observe(elapsed.Seconds())
	switch {
	case err == nil:
		m.metrics.Downloads.WithLabelValues("ok").Inc()
		m.metrics.DownloadBytes.Add(float64(res.SizeBytes))
	case errors.Is(err, ErrNetwork):
		m.metrics.Downloads.WithLabelValues("network").Inc()
	case errors.Is(err, ErrStorage):
		m.metrics.Downloads.WithLabelValues("storage").Inc()
	default:
		m.metrics.Downloads.WithLabelValues("other").Inc()
	}
}

func (m *Manager) observeEviction() {
	if m.metrics == nil {
		return
	}
	m.metrics.Evictions.Inc()
}

func (m *Manager) observeStats(s Stats) {
	if m.metrics == nil {
		return
	}
	m.metrics.Entries.WithLabelValues(StateIdle.String()).Set(float64(s.Idle))
	m.metrics.Entries.WithLabelValues(StateDownloading.String()).Set(float64(s.Downloading))
	m.metrics.Entries.WithLabelValues(StateReady.String()).Set(float64(s.Ready))
	m.metrics.Entries.WithLabelValues(StateFailed.String()).Set(float64(s.Failed))
}
