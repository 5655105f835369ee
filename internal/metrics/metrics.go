// Package metrics holds the Prometheus collectors updated by the download
// engine. Collectors can be updated without being registered; binaries that
// expose /metrics call Register once at startup.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudmusic",
			Name:      "tasks_total",
			Help:      "Tasks that reached a terminal state, by state.",
		},
		[]string{"state"},
	)

	ActiveDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cloudmusic",
			Name:      "active_downloads",
			Help:      "Tasks currently transferring bytes.",
		},
	)

	DownloadedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cloudmusic",
			Name:      "downloaded_bytes_total",
			Help:      "Audio bytes written to disk.",
		},
	)

	Retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cloudmusic",
			Name:      "retries_total",
			Help:      "Same-tier transfer retries after transient transport errors.",
		},
	)

	QualityFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudmusic",
			Name:      "quality_fallbacks_total",
			Help:      "Quality tier step-downs, by requested and granted tier.",
		},
		[]string{"from", "to"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cloudmusic",
			Name:      "events_dropped_total",
			Help:      "Progress events dropped because a subscriber fell behind.",
		},
	)

	LeasesInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cloudmusic",
			Name:      "transport_leases_in_use",
			Help:      "Connection leases currently held from the transport pool.",
		},
	)
)

// Register registers the engine metrics into the default registry.
func Register() {
	prometheus.MustRegister(Tasks, ActiveDownloads, DownloadedBytes, Retries,
		QualityFallbacks, EventsDropped, LeasesInUse)
}
