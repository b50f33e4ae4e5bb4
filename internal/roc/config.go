package roc

import (
	"fmt"

	"fairroc/internal/fairness"
)

// Config holds the calibration search space and the fairness band. It is
// validated up front; no grid evaluation happens on a malformed config.
type Config struct {
	// LowThreshold and HighThreshold bound the threshold grid, 0 <= low < high <= 1.
	LowThreshold  float64 `yaml:"lowThreshold" json:"low_threshold"`
	HighThreshold float64 `yaml:"highThreshold" json:"high_threshold"`
	// ThresholdSteps and MarginSteps set the grid resolution per dimension.
	ThresholdSteps int `yaml:"thresholdSteps" json:"threshold_steps"`
	MarginSteps    int `yaml:"marginSteps" json:"margin_steps"`
	// Constraint selects the fairness statistic held inside
	// [MetricLowerBound, MetricUpperBound].
	Constraint       fairness.Constraint `yaml:"constraint" json:"constraint"`
	MetricLowerBound float64             `yaml:"metricLowerBound" json:"metric_lower_bound"`
	MetricUpperBound float64             `yaml:"metricUpperBound" json:"metric_upper_bound"`
	// Workers caps the parallelism of the grid search; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`
}

// Validate rejects malformed configurations before any grid work begins.
// All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if c.LowThreshold < 0 || c.HighThreshold > 1 || c.LowThreshold >= c.HighThreshold {
		return fmt.Errorf("threshold range [%f, %f] must satisfy 0 <= low < high <= 1: %w",
			c.LowThreshold, c.HighThreshold, ErrInvalidConfig)
	}
	if c.ThresholdSteps < 1 {
		return fmt.Errorf("threshold steps %d must be >= 1: %w", c.ThresholdSteps, ErrInvalidConfig)
	}
	if c.MarginSteps < 1 {
		return fmt.Errorf("margin steps %d must be >= 1: %w", c.MarginSteps, ErrInvalidConfig)
	}
	if _, err := fairness.ParseConstraint(string(c.Constraint)); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfig)
	}
	if c.MetricLowerBound > c.MetricUpperBound {
		return fmt.Errorf("metric bounds [%f, %f] crossed: %w",
			c.MetricLowerBound, c.MetricUpperBound, ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers %d must be >= 0: %w", c.Workers, ErrInvalidConfig)
	}
	return nil
}
