package roc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fairroc/internal/fairness"
)

// MetricsInterface defines the metrics methods needed by the calibrator.
type MetricsInterface interface {
	CalibrationsInc()
	CalibrationFailuresInc()
	GridPointsAdd(float64)
	CalibrationDurationObserve(float64)
}

// Calibrator searches a (threshold, margin) grid for the pair that maximizes
// balanced accuracy while keeping the configured fairness statistic inside its
// band, and holds the fitted parameters afterwards. The fitted parameters are
// immutable once set; re-fitting replaces them wholesale.
type Calibrator struct {
	cfg     Config
	metrics MetricsInterface

	mu     sync.RWMutex
	fitted *FittedParameters
}

// Evaluation is the outcome of one grid point. Undefined marks points where a
// required rate had an empty denominator; such points are never feasible but
// do not abort the search.
type Evaluation struct {
	Threshold        float64 `json:"threshold"`
	Margin           float64 `json:"margin"`
	FairnessValue    float64 `json:"fairness_value"`
	BalancedAccuracy float64 `json:"balanced_accuracy"`
	Feasible         bool    `json:"feasible"`
	Undefined        bool    `json:"undefined"`
}

// New creates a calibrator after validating the configuration.
func New(cfg Config) (*Calibrator, error) {
	return NewWithMetrics(cfg, nil)
}

// NewWithMetrics creates a calibrator that reports to the given metrics sink.
// A nil sink disables reporting.
func NewWithMetrics(cfg Config, metrics MetricsInterface) (*Calibrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calibrator{cfg: cfg, metrics: metrics}, nil
}

// Config returns the calibration configuration.
func (c *Calibrator) Config() Config { return c.cfg }

// Params returns the fitted parameters, and whether a fit has happened.
func (c *Calibrator) Params() (FittedParameters, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fitted == nil {
		return FittedParameters{}, false
	}
	return *c.fitted, true
}

// SetParams installs previously persisted parameters, so a calibrated model
// can be reloaded without re-running the search.
func (c *Calibrator) SetParams(p FittedParameters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fitted = &p
}

// Predict applies the fitted parameters to a new score vector.
func (c *Calibrator) Predict(scores []float64, privileged []bool) ([]bool, error) {
	p, ok := c.Params()
	if !ok {
		return nil, ErrNotFitted
	}
	return Predict(scores, privileged, p.ClassificationThreshold, p.ROCMargin)
}

type candidate struct {
	threshold, margin float64
}

// grid enumerates every (threshold, margin) candidate. For each threshold the
// margin is bounded by min(t-low, high-t) so the critical region never
// extends past the configured threshold range on either side.
func (c *Calibrator) grid() []candidate {
	thresholds := linspace(c.cfg.LowThreshold, c.cfg.HighThreshold, c.cfg.ThresholdSteps)
	out := make([]candidate, 0, len(thresholds)*c.cfg.MarginSteps)
	for _, t := range thresholds {
		maxMargin := math.Min(t-c.cfg.LowThreshold, c.cfg.HighThreshold-t)
		for _, m := range linspace(0, maxMargin, c.cfg.MarginSteps) {
			out = append(out, candidate{threshold: t, margin: m})
		}
	}
	return out
}

// Sweep evaluates every grid point and returns the full evaluation surface in
// grid order. Evaluations are independent: each worker reads the shared
// immutable input vectors and writes only its own result slots, so the output
// does not depend on scheduling. An undefined rate marks the point instead of
// failing the sweep.
func (c *Calibrator) Sweep(ctx context.Context, scores []float64, labels, privileged []bool) ([]Evaluation, error) {
	if err := ValidateInputs(scores, privileged); err != nil {
		return nil, err
	}
	if len(labels) != len(scores) {
		return nil, fmt.Errorf("labels=%d scores=%d: %w", len(labels), len(scores), ErrShapeMismatch)
	}

	candidates := c.grid()
	results := make([]Evaluation, len(candidates))

	workers := c.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := (len(candidates) + workers - 1) / workers
	for start := 0; start < len(candidates); start += chunk {
		end := start + chunk
		if end > len(candidates) {
			end = len(candidates)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				ev, err := c.evaluate(scores, labels, privileged, candidates[i])
				if err != nil {
					return err
				}
				results[i] = ev
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.GridPointsAdd(float64(len(candidates)))
	}
	return results, nil
}

func (c *Calibrator) evaluate(scores []float64, labels, privileged []bool, cand candidate) (Evaluation, error) {
	ev := Evaluation{Threshold: cand.threshold, Margin: cand.margin}

	preds, err := Predict(scores, privileged, cand.threshold, cand.margin)
	if err != nil {
		return ev, err
	}

	value, balAcc, err := c.cfg.Constraint.Evaluate(labels, preds, privileged)
	if err != nil {
		if errors.Is(err, fairness.ErrUndefinedRate) {
			ev.Undefined = true
			return ev, nil
		}
		return ev, err
	}

	ev.FairnessValue = value
	ev.BalancedAccuracy = balAcc
	ev.Feasible = value >= c.cfg.MetricLowerBound && value <= c.cfg.MetricUpperBound
	return ev, nil
}

// Fit runs the full grid search on a labeled validation set and installs the
// best feasible parameter pair. It fails with ErrInfeasibleConstraint when no
// grid point satisfies the fairness bound; the bound is never auto-relaxed.
func (c *Calibrator) Fit(ctx context.Context, scores []float64, labels, privileged []bool) (FittedParameters, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.CalibrationDurationObserve(time.Since(start).Seconds())
		}
	}()

	log.Info().
		Str("constraint", string(c.cfg.Constraint)).
		Float64("metric_lb", c.cfg.MetricLowerBound).
		Float64("metric_ub", c.cfg.MetricUpperBound).
		Int("threshold_steps", c.cfg.ThresholdSteps).
		Int("margin_steps", c.cfg.MarginSteps).
		Int("samples", len(scores)).
		Msg("Starting threshold-margin calibration")

	evals, err := c.Sweep(ctx, scores, labels, privileged)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CalibrationFailuresInc()
		}
		return FittedParameters{}, err
	}

	best, ok := Reduce(evals)
	if !ok {
		if c.metrics != nil {
			c.metrics.CalibrationFailuresInc()
		}
		return FittedParameters{}, fmt.Errorf("%s in [%f, %f] over %d grid points: %w",
			c.cfg.Constraint, c.cfg.MetricLowerBound, c.cfg.MetricUpperBound, len(evals),
			ErrInfeasibleConstraint)
	}

	p := FittedParameters{
		ClassificationThreshold: best.Threshold,
		ROCMargin:               best.Margin,
	}
	c.mu.Lock()
	c.fitted = &p
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CalibrationsInc()
	}
	log.Info().
		Float64("threshold", p.ClassificationThreshold).
		Float64("margin", p.ROCMargin).
		Float64("balanced_accuracy", best.BalancedAccuracy).
		Float64("fairness_value", best.FairnessValue).
		Msg("Calibration selected parameters")

	return p, nil
}

// Reduce folds an evaluation surface down to the single best feasible point
// with a deterministic comparator, independent of evaluation order.
func Reduce(evals []Evaluation) (Evaluation, bool) {
	var best Evaluation
	found := false
	for _, ev := range evals {
		if !ev.Feasible {
			continue
		}
		if !found || better(ev, best) {
			best = ev
			found = true
		}
	}
	return best, found
}

// better ranks feasible evaluations: highest balanced accuracy first, then the
// larger margin (a wider fairness safety buffer), then the smaller threshold.
func better(a, b Evaluation) bool {
	if a.BalancedAccuracy != b.BalancedAccuracy {
		return a.BalancedAccuracy > b.BalancedAccuracy
	}
	if a.Margin != b.Margin {
		return a.Margin > b.Margin
	}
	return a.Threshold < b.Threshold
}

// linspace returns n evenly spaced values over [lo, hi], inclusive.
func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
