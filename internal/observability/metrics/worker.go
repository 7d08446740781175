package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlasdocs/kb-assistant/internal/core/ports"
)

// WorkerMetrics instruments index rebuilds.
type WorkerMetrics struct {
	registry *prometheus.Registry

	rebuildTotal    *prometheus.CounterVec
	rebuildDuration *prometheus.HistogramVec
	rebuildInFlight prometheus.Gauge
	indexedDocs     *prometheus.GaugeVec
	indexedChunks   *prometheus.GaugeVec
	embeddedChunks  *prometheus.CounterVec
	cachedChunks    *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	rebuildTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kba",
			Subsystem: "worker",
			Name:      "index_rebuild_total",
			Help:      "Total index rebuilds by status.",
		},
		[]string{"service", "status"},
	)
	rebuildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kba",
			Subsystem: "worker",
			Name:      "index_rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	rebuildInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kba",
			Subsystem: "worker",
			Name:      "index_rebuild_in_flight",
			Help:      "Number of in-flight index rebuilds.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	indexedDocs := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kba",
			Subsystem: "index",
			Name:      "documents",
			Help:      "Documents in the active index snapshot.",
		},
		[]string{"service"},
	)
	indexedChunks := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kba",
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Chunks in the active index snapshot.",
		},
		[]string{"service"},
	)
	embeddedChunks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kba",
			Subsystem: "index",
			Name:      "embedded_chunks_total",
			Help:      "Chunks vectorized by the embedding model across rebuilds.",
		},
		[]string{"service"},
	)
	cachedChunks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kba",
			Subsystem: "index",
			Name:      "cached_chunks_total",
			Help:      "Chunks served from the embedding cache across rebuilds.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		rebuildTotal,
		rebuildDuration,
		rebuildInFlight,
		indexedDocs,
		indexedChunks,
		embeddedChunks,
		cachedChunks,
	)

	return &WorkerMetrics{
		registry:        registry,
		rebuildTotal:    rebuildTotal,
		rebuildDuration: rebuildDuration,
		rebuildInFlight: rebuildInFlight,
		indexedDocs:     indexedDocs,
		indexedChunks:   indexedChunks,
		embeddedChunks:  embeddedChunks,
		cachedChunks:    cachedChunks,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRebuild() {
	m.rebuildInFlight.Inc()
}

func (m *WorkerMetrics) FinishRebuild(service string, duration time.Duration, stats ports.IndexStats, err error) {
	m.rebuildInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.rebuildTotal.WithLabelValues(service, status).Inc()
	m.rebuildDuration.WithLabelValues(service, status).Observe(duration.Seconds())

	if err != nil {
		return
	}
	m.indexedDocs.WithLabelValues(service).Set(float64(stats.Documents))
	m.indexedChunks.WithLabelValues(service).Set(float64(stats.Chunks))
	m.embeddedChunks.WithLabelValues(service).Add(float64(stats.EmbeddedChunks))
	m.cachedChunks.WithLabelValues(service).Add(float64(stats.CachedChunks))
}
