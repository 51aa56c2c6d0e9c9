// Package metrics exposes Prometheus instrumentation for the generation pipeline and the job worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "podcast_service"

// Outcomes recorded for a generation attempt.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeCancelled  = "cancelled"
	OutcomeSuperseded = "superseded"
)

// Recorder owns a private registry so several instances can coexist in tests.
type Recorder struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    *prometheus.GaugeVec
	jobs        *prometheus.CounterVec
}

// NewRecorder creates a recorder with Go runtime and process collectors registered.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of generation attempts by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Collaborator round-trip duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "generations_in_flight",
				Help:      "Number of generation requests currently awaiting a collaborator",
			},
			[]string{"stage"},
		),
		jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Total number of podcast jobs handled by the worker",
			},
			[]string{"status"},
		),
	}
}

// GenerationStarted marks a request to a collaborator as in flight.
func (r *Recorder) GenerationStarted(stage string) {
	r.inFlight.WithLabelValues(stage).Inc()
}

// GenerationFinished records the outcome and duration of a collaborator request.
func (r *Recorder) GenerationFinished(stage, outcome string, elapsed time.Duration) {
	r.inFlight.WithLabelValues(stage).Dec()
	r.generations.WithLabelValues(stage, outcome).Inc()
	r.duration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// JobHandled counts a worker job by its final status.
func (r *Recorder) JobHandled(status string) {
	r.jobs.WithLabelValues(status).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
