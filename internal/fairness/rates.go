// Package fairness computes group-fairness statistics and balanced accuracy
// over binary predictions. All functions are pure: they take aligned vectors of
// ground-truth labels, predicted labels, and privileged-group membership and
// return signed rate differences between the unprivileged and privileged groups.
package fairness

import (
	"errors"
	"fmt"
)

// ErrUndefinedRate is returned when a rate has an empty denominator, e.g. a
// group with no actual positives. Callers must treat this as "no value", never
// as zero: substituting zero would corrupt comparisons between grid points.
var ErrUndefinedRate = errors.New("fairness: undefined rate")

// ErrShapeMismatch is returned when the input vectors have unequal lengths.
var ErrShapeMismatch = errors.New("fairness: input length mismatch")

// ConfusionCounts holds the confusion matrix tallies for one group.
type ConfusionCounts struct {
	TP, FP, TN, FN int
}

// TPR returns the true positive rate, or ErrUndefinedRate when the group has
// no actual positives.
func (c ConfusionCounts) TPR() (float64, error) {
	if c.TP+c.FN == 0 {
		return 0, fmt.Errorf("TPR with no positives: %w", ErrUndefinedRate)
	}
	return float64(c.TP) / float64(c.TP+c.FN), nil
}

// TNR returns the true negative rate, or ErrUndefinedRate when the group has
// no actual negatives.
func (c ConfusionCounts) TNR() (float64, error) {
	if c.TN+c.FP == 0 {
		return 0, fmt.Errorf("TNR with no negatives: %w", ErrUndefinedRate)
	}
	return float64(c.TN) / float64(c.TN+c.FP), nil
}

// FPR returns the false positive rate, or ErrUndefinedRate when the group has
// no actual negatives.
func (c ConfusionCounts) FPR() (float64, error) {
	if c.FP+c.TN == 0 {
		return 0, fmt.Errorf("FPR with no negatives: %w", ErrUndefinedRate)
	}
	return float64(c.FP) / float64(c.FP+c.TN), nil
}

// SelectionRate returns the fraction of instances predicted favorable, or
// ErrUndefinedRate for an empty group.
func (c ConfusionCounts) SelectionRate() (float64, error) {
	n := c.TP + c.FP + c.TN + c.FN
	if n == 0 {
		return 0, fmt.Errorf("selection rate of empty group: %w", ErrUndefinedRate)
	}
	return float64(c.TP+c.FP) / float64(n), nil
}

// Tally splits the population by privileged-group membership and accumulates
// one confusion matrix per group. Label convention: true = favorable outcome.
func Tally(labels, preds, privileged []bool) (priv, unpriv ConfusionCounts, err error) {
	if len(labels) != len(preds) || len(labels) != len(privileged) {
		return priv, unpriv, fmt.Errorf("labels=%d preds=%d groups=%d: %w",
			len(labels), len(preds), len(privileged), ErrShapeMismatch)
	}
	for i := range labels {
		c := &unpriv
		if privileged[i] {
			c = &priv
		}
		switch {
		case labels[i] && preds[i]:
			c.TP++
		case labels[i] && !preds[i]:
			c.FN++
		case !labels[i] && preds[i]:
			c.FP++
		default:
			c.TN++
		}
	}
	return priv, unpriv, nil
}

// BalancedAccuracy is the mean of TPR and TNR over the whole population,
// independent of group membership. It needs at least one actual positive and
// one actual negative, otherwise ErrUndefinedRate.
func BalancedAccuracy(labels, preds []bool) (float64, error) {
	if len(labels) != len(preds) {
		return 0, fmt.Errorf("labels=%d preds=%d: %w", len(labels), len(preds), ErrShapeMismatch)
	}
	var all ConfusionCounts
	for i := range labels {
		switch {
		case labels[i] && preds[i]:
			all.TP++
		case labels[i] && !preds[i]:
			all.FN++
		case !labels[i] && preds[i]:
			all.FP++
		default:
			all.TN++
		}
	}
	tpr, err := all.TPR()
	if err != nil {
		return 0, err
	}
	tnr, err := all.TNR()
	if err != nil {
		return 0, err
	}
	return 0.5 * (tpr + tnr), nil
}
