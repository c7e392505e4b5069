// Package metrics holds the Prometheus collectors for the recognition pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signflow"

var (
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames received from clients",
		},
		[]string{"language", "result"}, // result: accepted, skipped, error
	)

	frameQueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_queue_length",
			Help:      "Frames buffered for the active worker",
		},
	)

	inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Duration of one window classification in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"language"},
	)

	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Window classifications appended to the prediction buffer",
		},
		[]string{"language"},
	)

	modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_load_duration_seconds",
			Help:      "Time for a worker to reach READY in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"language", "status"}, // status: success, error
	)

	workerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_failures_total",
			Help:      "Workers terminated by an error",
		},
		[]string{"language", "reason"}, // reason: inference, stop_timeout
	)

	wordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "words_total",
			Help:      "Words emitted to clients",
		},
		[]string{"language", "mode"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Currently connected recognition sessions",
		},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Protocol commands handled, by type and status code",
		},
		[]string{"type", "status"},
	)

	allMetrics = []prometheus.Collector{
		framesTotal,
		frameQueueLength,
		inferenceDuration,
		predictionsTotal,
		modelLoadDuration,
		workerFailuresTotal,
		wordsTotal,
		sessionsActive,
		commandsTotal,
	}
)

// RecordFrame counts a frame by outcome.
func RecordFrame(language, result string) {
	framesTotal.WithLabelValues(language, result).Inc()
}

// SetFrameQueueLength records the current frame buffer length.
func SetFrameQueueLength(n int) {
	frameQueueLength.Set(float64(n))
}

// RecordInference records one classification pass.
func RecordInference(language string, durationSeconds float64) {
	inferenceDuration.WithLabelValues(language).Observe(durationSeconds)
	predictionsTotal.WithLabelValues(language).Inc()
}

// RecordModelLoad records how long a worker took to become ready.
func RecordModelLoad(language, status string, durationSeconds float64) {
	modelLoadDuration.WithLabelValues(language, status).Observe(durationSeconds)
}

// RecordWorkerFailure counts a worker terminated by an error.
func RecordWorkerFailure(language, reason string) {
	workerFailuresTotal.WithLabelValues(language, reason).Inc()
}

// RecordWord counts an emitted word.
func RecordWord(language, mode string) {
	wordsTotal.WithLabelValues(language, mode).Inc()
}

// SessionStarted increments the active session gauge.
func SessionStarted() {
	sessionsActive.Inc()
}

// SessionEnded decrements the active session gauge.
func SessionEnded() {
	sessionsActive.Dec()
}

// RecordCommand counts a handled protocol command.
func RecordCommand(kind, status string) {
	commandsTotal.WithLabelValues(kind, status).Inc()
}

// NewRegistry returns a registry with all pipeline metrics and the Go and
// process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
