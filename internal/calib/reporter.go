package calib

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Reporter generates calibration reports.
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter.
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateGridLog(); err != nil {
		return err
	}
	if err := r.generateJSONReport(); err != nil {
		return err
	}
	return nil
}

// generateSummary generates a human-readable summary.
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "calibration_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "CALIBRATION RESULTS SUMMARY\n")
	fmt.Fprintf(file, "===========================\n\n")

	fmt.Fprintf(file, "Model: %s\n", r.results.ModelID)
	fmt.Fprintf(file, "Constraint: %s in [%.4f, %.4f]\n",
		r.results.Constraint, r.results.MetricLowerBound, r.results.MetricUpperBound)
	fmt.Fprintf(file, "Duration: %s\n\n", r.results.Duration)

	fmt.Fprintf(file, "VALIDATION SET\n")
	fmt.Fprintf(file, "--------------\n")
	fmt.Fprintf(file, "Instances: %d\n", r.results.Instances)
	fmt.Fprintf(file, "Privileged: %d\n", r.results.PrivilegedCount)
	fmt.Fprintf(file, "Unprivileged: %d\n\n", r.results.UnprivilegedCount)

	fmt.Fprintf(file, "SELECTED PARAMETERS\n")
	fmt.Fprintf(file, "-------------------\n")
	fmt.Fprintf(file, "Classification Threshold: %.4f\n", r.results.Params.ClassificationThreshold)
	fmt.Fprintf(file, "ROC Margin: %.4f\n", r.results.Params.ROCMargin)
	lo := r.results.Params.ClassificationThreshold - r.results.Params.ROCMargin
	hi := r.results.Params.ClassificationThreshold + r.results.Params.ROCMargin
	fmt.Fprintf(file, "Critical Region: [%.4f, %.4f]\n\n", lo, hi)

	fmt.Fprintf(file, "BEFORE / AFTER\n")
	fmt.Fprintf(file, "--------------\n")
	fmt.Fprintf(file, "Fairness Value: %.4f -> %.4f\n",
		r.results.Baseline.FairnessValue, r.results.Calibrated.FairnessValue)
	fmt.Fprintf(file, "Balanced Accuracy: %.4f -> %.4f\n",
		r.results.Baseline.BalancedAccuracy, r.results.Calibrated.BalancedAccuracy)
	fmt.Fprintf(file, "Selection Rate (privileged): %.4f -> %.4f\n",
		r.results.Baseline.SelectionRatePrivileged, r.results.Calibrated.SelectionRatePrivileged)
	fmt.Fprintf(file, "Selection Rate (unprivileged): %.4f -> %.4f\n\n",
		r.results.Baseline.SelectionRateUnprivileged, r.results.Calibrated.SelectionRateUnprivileged)

	fmt.Fprintf(file, "GRID SEARCH\n")
	fmt.Fprintf(file, "-----------\n")
	fmt.Fprintf(file, "Grid Points: %d\n", r.results.GridPoints)
	fmt.Fprintf(file, "Feasible Points: %d\n", r.results.FeasiblePoints)
	fmt.Fprintf(file, "Undefined Points: %d\n", r.results.UndefinedPoints)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// generateGridLog generates a CSV log of every evaluated grid point.
func (r *Reporter) generateGridLog() error {
	csvPath := filepath.Join(r.outputPath, "grid_log.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create grid log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"threshold", "margin", "fairness_value", "balanced_accuracy", "feasible", "undefined"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, ev := range r.results.Evaluations {
		record := []string{
			fmt.Sprintf("%.6f", ev.Threshold),
			fmt.Sprintf("%.6f", ev.Margin),
			fmt.Sprintf("%.6f", ev.FairnessValue),
			fmt.Sprintf("%.6f", ev.BalancedAccuracy),
			strconv.FormatBool(ev.Feasible),
			strconv.FormatBool(ev.Undefined),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().Str("file", csvPath).Int("points", len(r.results.Evaluations)).Msg("Grid log generated")
	return nil
}

// generateJSONReport generates a JSON report with all run data.
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "calibration_results.json")

	report := map[string]interface{}{
		"results":      r.results,
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints a summary to console.
func (r *Reporter) PrintSummary() {
	fmt.Println("\n=== CALIBRATION RESULTS ===")
	fmt.Printf("Model: %s\n", r.results.ModelID)
	fmt.Printf("Constraint: %s in [%.4f, %.4f]\n",
		r.results.Constraint, r.results.MetricLowerBound, r.results.MetricUpperBound)
	fmt.Printf("Threshold: %.4f\n", r.results.Params.ClassificationThreshold)
	fmt.Printf("Margin: %.4f\n", r.results.Params.ROCMargin)
	fmt.Printf("Fairness Value: %.4f -> %.4f\n",
		r.results.Baseline.FairnessValue, r.results.Calibrated.FairnessValue)
	fmt.Printf("Balanced Accuracy: %.4f -> %.4f\n",
		r.results.Baseline.BalancedAccuracy, r.results.Calibrated.BalancedAccuracy)
	fmt.Printf("Feasible Points: %d / %d\n", r.results.FeasiblePoints, r.results.GridPoints)
	fmt.Println("===========================")
}
