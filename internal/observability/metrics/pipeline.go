package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	runTotal      *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runInFlight   prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	retryTotal    *prometheus.CounterVec
	queueLag      *prometheus.HistogramVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visaflow",
			Subsystem: "pipeline",
			Name:      "run_total",
			Help:      "Total pipeline runs by terminal stage.",
		},
		[]string{"service", "stage"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "visaflow",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds by terminal stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "visaflow",
			Subsystem: "pipeline",
			Name:      "run_in_flight",
			Help:      "Number of in-flight pipeline runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "visaflow",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage body duration in seconds by stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	retryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visaflow",
			Subsystem: "pipeline",
			Name:      "retry_total",
			Help:      "Total caller-initiated retries.",
		},
		[]string{"service"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "visaflow",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between command publish and worker pickup.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(runTotal, runDuration, runInFlight, stageDuration, retryTotal, queueLag)

	return &PipelineMetrics{
		registry:      registry,
		runTotal:      runTotal,
		runDuration:   runDuration,
		runInFlight:   runInFlight,
		stageDuration: stageDuration,
		retryTotal:    retryTotal,
		queueLag:      queueLag,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartRun() {
	m.runInFlight.Inc()
}

func (m *PipelineMetrics) FinishRun(service string, stage string, duration time.Duration) {
	m.runInFlight.Dec()
	m.runTotal.WithLabelValues(service, stage).Inc()
	m.runDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveStage(service string, stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveRetry(service string) {
	m.retryTotal.WithLabelValues(service).Inc()
}

func (m *PipelineMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
