// Package roc implements reject option classification: post-processing a
// binary classifier's probability scores so a chosen group-fairness statistic
// lands inside a configured band. Instances scored near the decision threshold
// fall into a symmetric critical region where the thresholding decision is
// overridden by group membership; the calibrator searches for the
// (threshold, margin) pair that maximizes balanced accuracy subject to the
// fairness band.
package roc

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShapeMismatch is returned when score and group vectors differ in length.
	ErrShapeMismatch = errors.New("roc: input length mismatch")
	// ErrScoreOutOfRange is returned when a score falls outside [0, 1].
	ErrScoreOutOfRange = errors.New("roc: score out of range")
	// ErrInvalidConfig is returned for a malformed calibration configuration.
	ErrInvalidConfig = errors.New("roc: invalid configuration")
	// ErrInfeasibleConstraint is returned by Fit when no grid point satisfies
	// the fairness bound. It is never resolved by relaxing the bound.
	ErrInfeasibleConstraint = errors.New("roc: no grid point satisfies the fairness bound")
	// ErrNotFitted is returned when prediction is requested before calibration.
	ErrNotFitted = errors.New("roc: calibrator not fitted")
)

// FittedParameters is the complete output of a successful calibration: the
// decision threshold and the half-width of the critical region around it.
// The two fields are all that is needed to reload a calibrated model without
// re-running the search.
type FittedParameters struct {
	ClassificationThreshold float64 `json:"classification_threshold"`
	ROCMargin               float64 `json:"roc_margin"`
}

// Region returns the critical region [lo, hi] for a threshold and margin,
// clamped to the valid probability interval.
func Region(threshold, margin float64) (lo, hi float64) {
	lo = math.Max(0, threshold-margin)
	hi = math.Min(1, threshold+margin)
	return lo, hi
}

// Predict applies a fixed (threshold, margin) pair to a score vector.
// Outside the critical region the plain thresholding rule applies: favorable
// iff score > threshold. Inside it (|score - threshold| <= margin, closed
// interval) the decision is overridden by group membership: unprivileged
// instances get the favorable label, privileged instances the unfavorable one.
// With margin = 0 only exact threshold ties are in-region, so the output
// reduces to plain thresholding everywhere else. The operation is pure;
// output ordering matches input ordering.
func Predict(scores []float64, privileged []bool, threshold, margin float64) ([]bool, error) {
	if err := ValidateInputs(scores, privileged); err != nil {
		return nil, err
	}
	if margin < 0 {
		return nil, fmt.Errorf("margin %f must be >= 0: %w", margin, ErrInvalidConfig)
	}

	out := make([]bool, len(scores))
	for i, s := range scores {
		if math.Abs(s-threshold) <= margin {
			out[i] = !privileged[i]
		} else {
			out[i] = s > threshold
		}
	}
	return out, nil
}

// ValidateInputs eagerly checks shape alignment and score range so that grid
// evaluation never trips over malformed data mid-search.
func ValidateInputs(scores []float64, privileged []bool) error {
	if len(scores) != len(privileged) {
		return fmt.Errorf("scores=%d groups=%d: %w", len(scores), len(privileged), ErrShapeMismatch)
	}
	for i, s := range scores {
		if math.IsNaN(s) || s < 0 || s > 1 {
			return fmt.Errorf("score[%d]=%f: %w", i, s, ErrScoreOutOfRange)
		}
	}
	return nil
}
