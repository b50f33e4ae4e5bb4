// Package metrics provides Prometheus metrics collection for the fairness
// post-processor. It covers offline calibration runs (grid sweeps, feasibility
// failures), online decision serving, and the scorer stream connection, all
// exposed via the Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the calibration and serving paths.
type Metrics struct {
	// Calibration metrics
	CalibrationsTotal   prometheus.Counter   // Total number of calibration runs started
	CalibrationFailures prometheus.Counter   // Total number of calibration runs that found no feasible point
	GridPointsEvaluated prometheus.Counter   // Total number of (threshold, margin) grid points evaluated
	CalibrationDuration prometheus.Histogram // Wall-clock duration of calibration runs

	// Fitted-model metrics
	FairnessValue    prometheus.Gauge // Fairness statistic achieved by the last successful fit
	BalancedAccuracy prometheus.Gauge // Balanced accuracy achieved by the last successful fit

	// Serving metrics
	PredictionsTotal prometheus.Counter   // Total number of post-processed predictions served
	RegionOverrides  prometheus.Counter   // Predictions flipped inside the critical region
	PredictionScores prometheus.Histogram // Distribution of incoming classifier scores

	// Scorer stream and data metrics
	WSReconnects      prometheus.Counter // Total number of scorer stream reconnections
	InstancesReceived prometheus.Counter // Total number of scored instances received from the stream
	ScorerRequests    prometheus.Counter // Total number of REST requests sent to the scorer
	ScorerErrors      prometheus.Counter // Total number of failed scorer requests

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		CalibrationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "calibrations_total",
			Help: "Total number of calibration runs started",
		}),
		CalibrationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "calibration_failures_total",
			Help: "Total number of calibration runs that found no feasible grid point",
		}),
		GridPointsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "grid_points_evaluated_total",
			Help: "Total number of threshold/margin grid points evaluated",
		}),
		CalibrationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "calibration_duration_seconds",
			Help:    "Wall-clock duration of calibration runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		FairnessValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fairness_value",
			Help: "Fairness statistic achieved by the last successful fit",
		}),
		BalancedAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "balanced_accuracy",
			Help: "Balanced accuracy achieved by the last successful fit",
		}),
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of post-processed predictions served",
		}),
		RegionOverrides: factory.NewCounter(prometheus.CounterOpts{
			Name: "region_overrides_total",
			Help: "Total number of predictions flipped inside the critical region",
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of incoming classifier scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_reconnects_total",
			Help: "Total number of scorer stream reconnections",
		}),
		InstancesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "instances_received_total",
			Help: "Total number of scored instances received from the stream",
		}),
		ScorerRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "scorer_requests_total",
			Help: "Total number of REST requests sent to the scorer",
		}),
		ScorerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "scorer_errors_total",
			Help: "Total number of failed scorer requests",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
