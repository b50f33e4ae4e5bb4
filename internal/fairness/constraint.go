package fairness

import (
	"errors"
	"fmt"
)

// Constraint selects which group-fairness statistic a calibration run treats
// as its constraint. Each variant is a signed difference of a rate between the
// unprivileged and privileged groups: negative values mean the unprivileged
// group is worse off.
type Constraint string

const (
	// StatisticalParity is P(favorable|unprivileged) - P(favorable|privileged),
	// computed from predicted labels only.
	StatisticalParity Constraint = "statistical_parity"
	// AverageOdds is the mean of the FPR and TPR differences against ground truth.
	AverageOdds Constraint = "average_odds"
	// EqualOpportunity is the TPR difference against ground truth.
	EqualOpportunity Constraint = "equal_opportunity"
)

// ErrUnknownConstraint is returned by ParseConstraint for unrecognized names.
var ErrUnknownConstraint = errors.New("fairness: unknown constraint")

// ParseConstraint maps a configuration string to a Constraint.
func ParseConstraint(s string) (Constraint, error) {
	switch Constraint(s) {
	case StatisticalParity, AverageOdds, EqualOpportunity:
		return Constraint(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownConstraint, s)
}

// Evaluate computes the selected fairness statistic and the population
// balanced accuracy for one set of predictions. A rate with an empty
// denominator surfaces as ErrUndefinedRate; the caller decides whether that
// dooms the whole evaluation or just the current candidate.
func (c Constraint) Evaluate(labels, preds, privileged []bool) (value, balancedAcc float64, err error) {
	priv, unpriv, err := Tally(labels, preds, privileged)
	if err != nil {
		return 0, 0, err
	}

	switch c {
	case StatisticalParity:
		pu, err := unpriv.SelectionRate()
		if err != nil {
			return 0, 0, fmt.Errorf("unprivileged: %w", err)
		}
		pp, err := priv.SelectionRate()
		if err != nil {
			return 0, 0, fmt.Errorf("privileged: %w", err)
		}
		value = pu - pp

	case AverageOdds:
		fu, err := unpriv.FPR()
		if err != nil {
			return 0, 0, fmt.Errorf("unprivileged: %w", err)
		}
		fp, err := priv.FPR()
		if err != nil {
			return 0, 0, fmt.Errorf("privileged: %w", err)
		}
		tu, err := unpriv.TPR()
		if err != nil {
			return 0, 0, fmt.Errorf("unprivileged: %w", err)
		}
		tp, err := priv.TPR()
		if err != nil {
			return 0, 0, fmt.Errorf("privileged: %w", err)
		}
		value = 0.5 * ((fu - fp) + (tu - tp))

	case EqualOpportunity:
		tu, err := unpriv.TPR()
		if err != nil {
			return 0, 0, fmt.Errorf("unprivileged: %w", err)
		}
		tp, err := priv.TPR()
		if err != nil {
			return 0, 0, fmt.Errorf("privileged: %w", err)
		}
		value = tu - tp

	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownConstraint, string(c))
	}

	balancedAcc, err = BalancedAccuracy(labels, preds)
	if err != nil {
		return 0, 0, err
	}
	return value, balancedAcc, nil
}
