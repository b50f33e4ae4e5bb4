// Package calib runs end-to-end calibration: it takes a scored validation
// set, sweeps the threshold-margin grid, and reports how the fairness
// statistic and balanced accuracy moved from plain thresholding to the
// calibrated critical region.
package calib

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"fairroc/internal/cfg"
	"fairroc/internal/dataset"
	"fairroc/internal/fairness"
	"fairroc/internal/metrics"
	"fairroc/internal/roc"
	"fairroc/internal/storage"
)

// baselineThreshold is the plain decision threshold used for the
// before-calibration snapshot.
const baselineThreshold = 0.5

// Snapshot captures the fairness statistic and accuracy of one parameter pair
// applied to the validation set.
type Snapshot struct {
	Threshold                 float64 `json:"threshold"`
	Margin                    float64 `json:"margin"`
	FairnessValue             float64 `json:"fairness_value"`
	BalancedAccuracy          float64 `json:"balanced_accuracy"`
	SelectionRatePrivileged   float64 `json:"selection_rate_privileged"`
	SelectionRateUnprivileged float64 `json:"selection_rate_unprivileged"`
	Undefined                 bool    `json:"undefined"`
}

// Results holds the outcome of a calibration run.
type Results struct {
	ModelID          string              `json:"model_id"`
	Constraint       fairness.Constraint `json:"constraint"`
	MetricLowerBound float64             `json:"metric_lower_bound"`
	MetricUpperBound float64             `json:"metric_upper_bound"`

	Instances         int `json:"instances"`
	PrivilegedCount   int `json:"privileged_count"`
	UnprivilegedCount int `json:"unprivileged_count"`

	Baseline   Snapshot             `json:"baseline"`
	Calibrated Snapshot             `json:"calibrated"`
	Params     roc.FittedParameters `json:"params"`

	GridPoints      int              `json:"grid_points"`
	FeasiblePoints  int              `json:"feasible_points"`
	UndefinedPoints int              `json:"undefined_points"`
	Evaluations     []roc.Evaluation `json:"-"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// Engine wires a validation set, a calibrator, and optional metrics and
// persistence into a single calibration run.
type Engine struct {
	settings *cfg.Settings
	data     *dataset.Dataset
	metrics  *metrics.Wrapper
	store    *storage.Store

	results *Results
}

// NewEngine creates a calibration engine. Metrics and store may be nil; the
// run then skips instrumentation and persistence respectively.
func NewEngine(settings *cfg.Settings, data *dataset.Dataset, m *metrics.Wrapper, store *storage.Store) *Engine {
	return &Engine{
		settings: settings,
		data:     data,
		metrics:  m,
		store:    store,
	}
}

// Run executes the calibration and fills in the results. It fails with
// roc.ErrInfeasibleConstraint when no grid point satisfies the fairness band.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.data.Validate(); err != nil {
		return fmt.Errorf("validation set rejected: %w", err)
	}

	calCfg := e.settings.Calibration
	start := time.Now()
	e.results = &Results{
		ModelID:          e.settings.ModelID,
		Constraint:       calCfg.Constraint,
		MetricLowerBound: calCfg.MetricLowerBound,
		MetricUpperBound: calCfg.MetricUpperBound,
		Instances:        e.data.Len(),
		StartTime:        start,
	}
	for _, p := range e.data.Privileged {
		if p {
			e.results.PrivilegedCount++
		} else {
			e.results.UnprivilegedCount++
		}
	}

	log.Info().
		Str("model", e.settings.ModelID).
		Str("constraint", string(calCfg.Constraint)).
		Int("instances", e.data.Len()).
		Int("privileged", e.results.PrivilegedCount).
		Int("unprivileged", e.results.UnprivilegedCount).
		Msg("Starting calibration run")

	e.results.Baseline = e.snapshot(baselineThreshold, 0)

	cal, err := roc.NewWithMetrics(calCfg, e.metricsSink())
	if err != nil {
		return err
	}

	evals, err := cal.Sweep(ctx, e.data.Scores, e.data.Labels, e.data.Privileged)
	if err != nil {
		e.countFailure()
		return err
	}
	e.results.Evaluations = evals
	e.results.GridPoints = len(evals)
	for _, ev := range evals {
		if ev.Feasible {
			e.results.FeasiblePoints++
		}
		if ev.Undefined {
			e.results.UndefinedPoints++
		}
	}

	best, ok := roc.Reduce(evals)
	if !ok {
		e.countFailure()
		return fmt.Errorf("%s in [%f, %f] over %d grid points: %w",
			calCfg.Constraint, calCfg.MetricLowerBound, calCfg.MetricUpperBound, len(evals),
			roc.ErrInfeasibleConstraint)
	}

	e.results.Params = roc.FittedParameters{
		ClassificationThreshold: best.Threshold,
		ROCMargin:               best.Margin,
	}
	e.results.Calibrated = e.snapshot(best.Threshold, best.Margin)
	e.results.EndTime = time.Now()
	e.results.Duration = e.results.EndTime.Sub(start)

	if e.metrics != nil {
		e.metrics.CalibrationsInc()
		e.metrics.CalibrationDurationObserve(e.results.Duration.Seconds())
		e.metrics.FairnessValueSet(best.FairnessValue)
		e.metrics.BalancedAccuracySet(best.BalancedAccuracy)
	}

	if e.store != nil {
		model := storage.FittedModel{
			ModelID:          e.settings.ModelID,
			Params:           e.results.Params,
			Constraint:       calCfg.Constraint,
			MetricLowerBound: calCfg.MetricLowerBound,
			MetricUpperBound: calCfg.MetricUpperBound,
			FairnessValue:    best.FairnessValue,
			BalancedAccuracy: best.BalancedAccuracy,
			CalibratedAt:     e.results.EndTime.UTC(),
		}
		if err := e.store.SaveModel(model); err != nil {
			return fmt.Errorf("failed to persist fitted model: %w", err)
		}
		log.Info().Str("model", model.ModelID).Msg("Fitted model persisted")
	}

	log.Info().
		Float64("threshold", best.Threshold).
		Float64("margin", best.Margin).
		Float64("fairness_before", e.results.Baseline.FairnessValue).
		Float64("fairness_after", e.results.Calibrated.FairnessValue).
		Float64("balanced_accuracy", best.BalancedAccuracy).
		Dur("duration", e.results.Duration).
		Msg("Calibration run finished")

	return nil
}

// snapshot evaluates one parameter pair against the validation set. Undefined
// rates leave the snapshot marked instead of failing the run.
func (e *Engine) snapshot(threshold, margin float64) Snapshot {
	snap := Snapshot{Threshold: threshold, Margin: margin}

	preds, err := roc.Predict(e.data.Scores, e.data.Privileged, threshold, margin)
	if err != nil {
		snap.Undefined = true
		return snap
	}

	value, balAcc, err := e.settings.Calibration.Constraint.Evaluate(e.data.Labels, preds, e.data.Privileged)
	if err != nil {
		snap.Undefined = true
		return snap
	}
	snap.FairnessValue = value
	snap.BalancedAccuracy = balAcc

	priv, unpriv, err := fairness.Tally(e.data.Labels, preds, e.data.Privileged)
	if err == nil {
		if r, err := priv.SelectionRate(); err == nil {
			snap.SelectionRatePrivileged = r
		}
		if r, err := unpriv.SelectionRate(); err == nil {
			snap.SelectionRateUnprivileged = r
		}
	}
	return snap
}

func (e *Engine) metricsSink() roc.MetricsInterface {
	if e.metrics == nil {
		return nil
	}
	return e.metrics
}

func (e *Engine) countFailure() {
	if e.metrics != nil {
		e.metrics.CalibrationFailuresInc()
	}
}

// GetResults returns the results of the last run, or nil before any run.
func (e *Engine) GetResults() *Results {
	return e.results
}
