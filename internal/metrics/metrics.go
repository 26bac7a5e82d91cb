// Package metrics exposes Prometheus collectors for document checks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check sources.
const (
	SourceText = "text"
	SourceURL  = "url"
)

// Check outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeModel      = "model_error"
	OutcomeInternal   = "internal_error"
)

// Recorder owns a private registry with the check collectors. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	checks      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	modelErrors *prometheus.CounterVec
	inFlight    prometheus.Gauge
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doccheck_checks_total",
				Help: "Total number of document checks by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "doccheck_check_duration_seconds",
				Help:    "Duration of document checks in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 90},
			},
			[]string{"source"},
		),
		modelErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doccheck_model_errors_total",
				Help: "Total number of model backend errors by kind",
			},
			[]string{"kind"},
		),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "doccheck_checks_in_flight",
			Help: "Number of document checks currently running",
		}),
	}
}

// CheckStarted marks a check as running. The returned func marks it done.
func (r *Recorder) CheckStarted() func() {
	if r == nil {
		return func() {}
	}
	r.inFlight.Inc()
	return r.inFlight.Dec
}

// ObserveCheck records a finished check.
func (r *Recorder) ObserveCheck(source, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.checks.WithLabelValues(source, outcome).Inc()
	r.duration.WithLabelValues(source).Observe(d.Seconds())
}

// ModelError counts a model backend failure of the given kind.
func (r *Recorder) ModelError(kind string) {
	if r == nil {
		return
	}
	r.modelErrors.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer returns the registry backing Handler.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
