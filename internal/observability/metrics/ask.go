// Package metrics exposes Prometheus metrics for the api and indexer
// processes. Each process owns a private registry, nothing is registered
// globally.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AskMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	askTotal           *prometheus.CounterVec
	askDuration        *prometheus.HistogramVec
	retrievalHitTotal  *prometheus.CounterVec
	noContextTotal     *prometheus.CounterVec
	retrievedSources   *prometheus.HistogramVec
	sourceCleanTotal   *prometheus.CounterVec
	answerCleanTotal   *prometheus.CounterVec
	regenerationsTotal *prometheus.CounterVec
}

func NewAskMetrics(service string) *AskMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "frag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "frag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	askTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frag",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total answered questions by routing outcome.",
		},
		[]string{"service", "outcome"},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "frag",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Ask pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	retrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frag",
			Subsystem: "ask",
			Name:      "retrieval_hit_total",
			Help:      "Total asks answered with at least one cited source.",
		},
		[]string{"service"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frag",
			Subsystem: "ask",
			Name:      "no_context_total",
			Help:      "Total asks answered without any cited source.",
		},
		[]string{"service"},
	)
	retrievedSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "frag",
			Subsystem: "ask",
			Name:      "retrieved_sources",
			Help:      "Distribution of cited sources per answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
		[]string{"service"},
	)
	sourceCleanTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frag",
			Subsystem: "guard",
			Name:      "source_cleanings_total",
			Help:      "Total packed sources cleaned of unwanted scripts.",
		},
		[]string{"service"},
	)
	answerCleanTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frag",
			Subsystem: "guard",
			Name:      "answer_cleanings_total",
			Help:      "Total generated answers cleaned of unwanted scripts.",
		},
		[]string{"service"},
	)
	regenerationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frag",
			Subsystem: "guard",
			Name:      "regenerations_total",
			Help:      "Total corrective regenerations after failed validation.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		askTotal,
		askDuration,
		retrievalHitTotal,
		noContextTotal,
		retrievedSources,
		sourceCleanTotal,
		answerCleanTotal,
		regenerationsTotal,
	)

	return &AskMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		askTotal:           askTotal,
		askDuration:        askDuration,
		retrievalHitTotal:  retrievalHitTotal,
		noContextTotal:     noContextTotal,
		retrievedSources:   retrievedSources,
		sourceCleanTotal:   sourceCleanTotal,
		answerCleanTotal:   answerCleanTotal,
		regenerationsTotal: regenerationsTotal,
	}
}

func (m *AskMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *AskMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/chats/"):
		return "/v1/chats/{chat_id}"
	default:
		return path
	}
}

// Observer adapts AskMetrics to the ask pipeline's event seam.
type Observer struct {
	metrics *AskMetrics
	service string
}

func (m *AskMetrics) Observer(service string) *Observer {
	return &Observer{metrics: m, service: service}
}

func (o *Observer) AskServed(shortCircuit string, sourceCount int, duration time.Duration) {
	outcome := shortCircuit
	if outcome == "" {
		outcome = "generated"
	}
	o.metrics.askTotal.WithLabelValues(o.service, outcome).Inc()
	o.metrics.askDuration.WithLabelValues(o.service).Observe(duration.Seconds())
	o.metrics.retrievedSources.WithLabelValues(o.service).Observe(float64(sourceCount))
	if sourceCount > 0 {
		o.metrics.retrievalHitTotal.WithLabelValues(o.service).Inc()
		return
	}
	o.metrics.noContextTotal.WithLabelValues(o.service).Inc()
}

func (o *Observer) SourceCleaned(string) {
	o.metrics.sourceCleanTotal.WithLabelValues(o.service).Inc()
}

func (o *Observer) AnswerCleaned() {
	o.metrics.answerCleanTotal.WithLabelValues(o.service).Inc()
}

func (o *Observer) AnswerRegenerated() {
	o.metrics.regenerationsTotal.WithLabelValues(o.service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
