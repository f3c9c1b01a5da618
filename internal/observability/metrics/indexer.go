package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type IndexerMetrics struct {
	registry *prometheus.Registry

	rebuildTotal    *prometheus.CounterVec
	rebuildDuration *prometheus.HistogramVec
	rebuildInFlight prometheus.Gauge
	chunksIndexed   *prometheus.GaugeVec
}

func NewIndexerMetrics(service string) *IndexerMetrics {
	registry := prometheus.NewRegistry()

	rebuildTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frag",
			Subsystem: "indexer",
			Name:      "rebuild_total",
			Help:      "Total snapshot rebuilds by status.",
		},
		[]string{"service", "status"},
	)
	rebuildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "frag",
			Subsystem: "indexer",
			Name:      "rebuild_duration_seconds",
			Help:      "Snapshot rebuild duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "status"},
	)
	rebuildInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "frag",
			Subsystem: "indexer",
			Name:      "rebuild_in_flight",
			Help:      "Whether a snapshot rebuild is currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chunksIndexed := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "frag",
			Subsystem: "indexer",
			Name:      "chunks_indexed",
			Help:      "Chunk count of the last successful snapshot.",
		},
		[]string{"service"},
	)

	registry.MustRegister(rebuildTotal, rebuildDuration, rebuildInFlight, chunksIndexed)

	return &IndexerMetrics{
		registry:        registry,
		rebuildTotal:    rebuildTotal,
		rebuildDuration: rebuildDuration,
		rebuildInFlight: rebuildInFlight,
		chunksIndexed:   chunksIndexed,
	}
}

func (m *IndexerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *IndexerMetrics) StartRebuild() {
	m.rebuildInFlight.Inc()
}

func (m *IndexerMetrics) FinishRebuild(service string, duration time.Duration, chunks int, err error) {
	m.rebuildInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.rebuildTotal.WithLabelValues(service, status).Inc()
	m.rebuildDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if err == nil {
		m.chunksIndexed.WithLabelValues(service).Set(float64(chunks))
	}
}
