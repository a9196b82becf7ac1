// Package metrics provides Prometheus metrics for the dispense engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	CalculationsStarted   prometheus.Counter
	CalculationsCompleted prometheus.Counter
	CalculationsResumed   prometheus.Counter
	SigParseFailures      prometheus.Counter
	PipelineDuration      prometheus.Histogram
	ScoringDuration       prometheus.Histogram
	CollaboratorFailures  *prometheus.CounterVec
	WarningsEmitted       *prometheus.CounterVec
	OutboxPending         prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		CalculationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calculations_started_total",
			Help: "Total dispense calculations started",
		}),
		CalculationsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calculations_completed_total",
			Help: "Total dispense calculations that ran every stage",
		}),
		CalculationsResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calculations_resumed_total",
			Help: "Total calculations resumed from a partial record",
		}),
		SigParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sig_parse_failures_total",
			Help: "Total SIGs that parsed incompletely",
		}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "calculation_pipeline_duration_seconds",
			Help:    "End-to-end pipeline duration including collaborator calls",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		ScoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ndc_scoring_duration_seconds",
			Help:    "NDC candidate scoring duration",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		}),
		CollaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collaborator_failures_total",
			Help: "External collaborator failures absorbed by the pipeline",
		}, []string{"collaborator"}),
		WarningsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calculation_warnings_total",
			Help: "Warnings emitted by calculations, by type",
		}, []string{"type"}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
	}

	prometheus.MustRegister(
		m.CalculationsStarted,
		m.CalculationsCompleted,
		m.CalculationsResumed,
		m.SigParseFailures,
		m.PipelineDuration,
		m.ScoringDuration,
		m.CollaboratorFailures,
		m.WarningsEmitted,
		m.OutboxPending,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
