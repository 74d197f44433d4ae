package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry,
// so tests and embedded uses never collide with the global default
// registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	stepsTotal    *prometheus.CounterVec
	attemptsTotal prometheus.Counter
	runSeconds    prometheus.Histogram
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autocal_runs_total",
		Help: "Completed calibration runs by overall status.",
	}, []string{"routine", "status"})

	m.stepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autocal_steps_total",
		Help: "Terminal step results by experiment and status.",
	}, []string{"experiment", "status"})

	m.attemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autocal_measurement_attempts_total",
		Help: "Measurement attempts including transient retries.",
	})

	m.runSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "autocal_run_duration_seconds",
		Help:    "Wall-clock duration of one routine run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	m.registry.MustRegister(m.runsTotal, m.stepsTotal, m.attemptsTotal, m.runSeconds)
	return m
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(routineName, status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(routineName, status).Inc()
	m.runSeconds.Observe(seconds)
}

// ObserveStep records one terminal step result.
func (m *Metrics) ObserveStep(experiment, status string, attempts int) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(experiment, status).Inc()
	m.attemptsTotal.Add(float64(attempts))
}

// Handler exposes the collectors for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
