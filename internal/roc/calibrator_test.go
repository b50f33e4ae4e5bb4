package roc

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairroc/internal/fairness"
)

// biasedValidationSet returns a small deterministic set where the privileged
// group is scored systematically higher, so plain thresholding violates
// statistical parity but a wide enough critical region repairs it.
func biasedValidationSet() (scores []float64, labels, privileged []bool) {
	scores = []float64{
		0.9, 0.8, 0.7, 0.6, 0.55, 0.3, // privileged
		0.45, 0.4, 0.35, 0.65, 0.2, 0.1, // unprivileged
	}
	labels = []bool{
		true, true, true, false, false, false,
		true, true, false, true, false, false,
	}
	privileged = []bool{
		true, true, true, true, true, true,
		false, false, false, false, false, false,
	}
	return scores, labels, privileged
}

func testConfig() Config {
	return Config{
		LowThreshold:     0.1,
		HighThreshold:    0.9,
		ThresholdSteps:   9,
		MarginSteps:      9,
		Constraint:       fairness.StatisticalParity,
		MetricLowerBound: -0.25,
		MetricUpperBound: 0.25,
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"crossed threshold range", func(c *Config) { c.LowThreshold = 0.9; c.HighThreshold = 0.1 }},
		{"threshold above one", func(c *Config) { c.HighThreshold = 1.5 }},
		{"zero threshold steps", func(c *Config) { c.ThresholdSteps = 0 }},
		{"zero margin steps", func(c *Config) { c.MarginSteps = 0 }},
		{"unknown constraint", func(c *Config) { c.Constraint = "demographic_vibes" }},
		{"crossed metric bounds", func(c *Config) { c.MetricLowerBound = 0.5; c.MetricUpperBound = -0.5 }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestFit_SelectsFeasibleParameters(t *testing.T) {
	scores, labels, privileged := biasedValidationSet()
	cal, err := New(testConfig())
	require.NoError(t, err)

	params, err := cal.Fit(context.Background(), scores, labels, privileged)
	require.NoError(t, err)

	cfg := cal.Config()
	assert.GreaterOrEqual(t, params.ClassificationThreshold, cfg.LowThreshold)
	assert.LessOrEqual(t, params.ClassificationThreshold, cfg.HighThreshold)

	// The critical region must stay inside the configured threshold range.
	maxMargin := math.Min(params.ClassificationThreshold-cfg.LowThreshold,
		cfg.HighThreshold-params.ClassificationThreshold)
	assert.GreaterOrEqual(t, params.ROCMargin, 0.0)
	assert.LessOrEqual(t, params.ROCMargin, maxMargin+1e-12)

	// Recomputing the statistic on the calibration's own predictions must
	// land inside the configured band.
	preds, err := cal.Predict(scores, privileged)
	require.NoError(t, err)
	value, _, err := cfg.Constraint.Evaluate(labels, preds, privileged)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, value, cfg.MetricLowerBound)
	assert.LessOrEqual(t, value, cfg.MetricUpperBound)
}

func TestFit_DeterministicAcrossWorkerCounts(t *testing.T) {
	scores, labels, privileged := biasedValidationSet()

	var baseline FittedParameters
	for i, workers := range []int{1, 2, 4, 7} {
		cfg := testConfig()
		cfg.Workers = workers
		cal, err := New(cfg)
		require.NoError(t, err)

		params, err := cal.Fit(context.Background(), scores, labels, privileged)
		require.NoError(t, err)

		if i == 0 {
			baseline = params
			continue
		}
		assert.Equal(t, baseline, params, "workers=%d changed the result", workers)
	}
}

func TestFit_InfeasibleBounds(t *testing.T) {
	scores, labels, privileged := biasedValidationSet()

	cfg := testConfig()
	// Statistical parity difference lives in [-1, 1]; this band is unreachable.
	cfg.MetricLowerBound = 10.0
	cfg.MetricUpperBound = 10.1
	cal, err := New(cfg)
	require.NoError(t, err)

	_, err = cal.Fit(context.Background(), scores, labels, privileged)
	assert.ErrorIs(t, err, ErrInfeasibleConstraint)

	_, fitted := cal.Params()
	assert.False(t, fitted, "failed fit must not install parameters")
}

func TestFit_AllRatesUndefined(t *testing.T) {
	// Single-class ground truth leaves TPR-based statistics undefined at
	// every grid point; the search must fail cleanly instead of crashing or
	// coercing rates to zero.
	scores := []float64{0.2, 0.4, 0.6, 0.8}
	labels := []bool{true, true, true, true}
	privileged := []bool{true, true, false, false}

	cfg := testConfig()
	cfg.Constraint = fairness.EqualOpportunity
	cfg.MetricLowerBound = -1
	cfg.MetricUpperBound = 1
	cal, err := New(cfg)
	require.NoError(t, err)

	_, err = cal.Fit(context.Background(), scores, labels, privileged)
	assert.ErrorIs(t, err, ErrInfeasibleConstraint)
}

func TestSweep_WideningBoundsNeverShrinksFeasibleSet(t *testing.T) {
	scores, labels, privileged := biasedValidationSet()

	narrowCfg := testConfig()
	narrowCfg.MetricLowerBound = -0.1
	narrowCfg.MetricUpperBound = 0.1
	narrow, err := New(narrowCfg)
	require.NoError(t, err)

	wideCfg := testConfig()
	wideCfg.MetricLowerBound = -0.5
	wideCfg.MetricUpperBound = 0.5
	wide, err := New(wideCfg)
	require.NoError(t, err)

	narrowEvals, err := narrow.Sweep(context.Background(), scores, labels, privileged)
	require.NoError(t, err)
	wideEvals, err := wide.Sweep(context.Background(), scores, labels, privileged)
	require.NoError(t, err)
	require.Equal(t, len(narrowEvals), len(wideEvals))

	for i := range narrowEvals {
		if narrowEvals[i].Feasible {
			assert.True(t, wideEvals[i].Feasible,
				"point (%f, %f) feasible under narrow bounds but not wide",
				narrowEvals[i].Threshold, narrowEvals[i].Margin)
		}
	}
}

func TestFit_RespectsContextCancellation(t *testing.T) {
	scores, labels, privileged := biasedValidationSet()
	cfg := testConfig()
	cfg.ThresholdSteps = 200
	cfg.MarginSteps = 200
	cal, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cal.Fit(ctx, scores, labels, privileged)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReduce_TieBreak(t *testing.T) {
	evals := []Evaluation{
		{Threshold: 0.5, Margin: 0.1, BalancedAccuracy: 0.8, Feasible: true},
		{Threshold: 0.5, Margin: 0.2, BalancedAccuracy: 0.8, Feasible: true},
		{Threshold: 0.4, Margin: 0.2, BalancedAccuracy: 0.8, Feasible: true},
		{Threshold: 0.3, Margin: 0.3, BalancedAccuracy: 0.9, Feasible: false},
	}

	best, ok := Reduce(evals)
	require.True(t, ok)
	// Equal accuracy: prefer the larger margin, then the smaller threshold.
	assert.Equal(t, 0.2, best.Margin)
	assert.Equal(t, 0.4, best.Threshold)
}

func TestReduce_NoFeasiblePoints(t *testing.T) {
	evals := []Evaluation{
		{Threshold: 0.5, Margin: 0.1, BalancedAccuracy: 0.9},
		{Threshold: 0.6, Margin: 0.0, Undefined: true},
	}
	_, ok := Reduce(evals)
	assert.False(t, ok)
}

func TestLinspace(t *testing.T) {
	testCases := []struct {
		name   string
		lo, hi float64
		n      int
		want   []float64
	}{
		{"single point collapses to low", 0.3, 0.7, 1, []float64{0.3}},
		{"two points are the endpoints", 0.0, 1.0, 2, []float64{0.0, 1.0}},
		{"five points", 0.0, 1.0, 5, []float64{0.0, 0.25, 0.5, 0.75, 1.0}},
		{"degenerate range", 0.5, 0.5, 3, []float64{0.5, 0.5, 0.5}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := linspace(tc.lo, tc.hi, tc.n)
			require.Len(t, got, len(tc.want))
			for i := range tc.want {
				assert.InDelta(t, tc.want[i], got[i], 1e-12)
			}
		})
	}
}
