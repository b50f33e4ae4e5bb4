package fairness

import (
	"errors"
	"math"
	"testing"
)

func TestParseConstraint(t *testing.T) {
	testCases := []struct {
		input   string
		want    Constraint
		wantErr bool
	}{
		{"statistical_parity", StatisticalParity, false},
		{"average_odds", AverageOdds, false},
		{"equal_opportunity", EqualOpportunity, false},
		{"disparate_impact", "", true},
		{"", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseConstraint(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownConstraint) {
					t.Errorf("expected ErrUnknownConstraint, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestStatisticalParity(t *testing.T) {
	// Privileged: 2 of 3 selected. Unprivileged: 1 of 3 selected.
	labels := []bool{true, false, true, true, false, false}
	preds := []bool{true, true, false, true, false, false}
	privileged := []bool{true, true, true, false, false, false}

	value, _, err := StatisticalParity.Evaluate(labels, preds, privileged)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := 1.0/3.0 - 2.0/3.0
	if math.Abs(value-expected) > 1e-12 {
		t.Errorf("expected %f, got %f", expected, value)
	}
}

func TestEqualOpportunity(t *testing.T) {
	// Privileged TPR = 1/2, unprivileged TPR = 1/1.
	labels := []bool{true, true, false, true, false, false}
	preds := []bool{true, false, false, true, false, true}
	privileged := []bool{true, true, true, false, false, false}

	value, _, err := EqualOpportunity.Evaluate(labels, preds, privileged)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := 1.0 - 0.5
	if math.Abs(value-expected) > 1e-12 {
		t.Errorf("expected %f, got %f", expected, value)
	}
}

func TestAverageOdds(t *testing.T) {
	labels := []bool{true, true, false, false, true, true, false, false}
	preds := []bool{true, false, true, false, true, true, false, false}
	privileged := []bool{true, true, true, true, false, false, false, false}

	value, balAcc, err := AverageOdds.Evaluate(labels, preds, privileged)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Privileged: TPR=1/2, FPR=1/2. Unprivileged: TPR=1, FPR=0.
	expected := 0.5 * ((0.0 - 0.5) + (1.0 - 0.5))
	if math.Abs(value-expected) > 1e-12 {
		t.Errorf("expected odds difference %f, got %f", expected, value)
	}
	// Population: TPR=3/4, TNR=3/4.
	if math.Abs(balAcc-0.75) > 1e-12 {
		t.Errorf("expected balanced accuracy 0.75, got %f", balAcc)
	}
}

func TestEvaluate_UndefinedRatePropagates(t *testing.T) {
	// Unprivileged group has no actual positives, so TPR-based statistics
	// must fail with ErrUndefinedRate rather than report zero.
	labels := []bool{true, false, false, false}
	preds := []bool{true, false, true, false}
	privileged := []bool{true, true, false, false}

	for _, c := range []Constraint{EqualOpportunity, AverageOdds} {
		_, _, err := c.Evaluate(labels, preds, privileged)
		if !errors.Is(err, ErrUndefinedRate) {
			t.Errorf("%s: expected ErrUndefinedRate, got %v", c, err)
		}
	}

	// Statistical parity only needs non-empty groups, so it still works.
	if _, _, err := StatisticalParity.Evaluate(labels, preds, privileged); err != nil {
		t.Errorf("statistical parity: unexpected error %v", err)
	}
}
