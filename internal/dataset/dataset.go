// Package dataset loads scored validation sets for calibration. It supports
// CSV files, JSON-lines exports, and the BoltDB instance store, and always
// returns three aligned vectors: scores, ground-truth labels, and group
// membership.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fairroc/internal/storage"
)

// Dataset holds an aligned scored validation set. Index i across the three
// slices refers to the same instance.
type Dataset struct {
	Scores     []float64
	Labels     []bool
	Privileged []bool
}

// Len returns the number of instances.
func (d *Dataset) Len() int {
	return len(d.Scores)
}

// Validate checks alignment and score ranges before the set is handed to a
// calibration run.
func (d *Dataset) Validate() error {
	if len(d.Scores) == 0 {
		return fmt.Errorf("dataset is empty")
	}
	if len(d.Scores) != len(d.Labels) || len(d.Scores) != len(d.Privileged) {
		return fmt.Errorf("misaligned dataset: %d scores, %d labels, %d group flags",
			len(d.Scores), len(d.Labels), len(d.Privileged))
	}
	for i, s := range d.Scores {
		if math.IsNaN(s) || s < 0 || s > 1 {
			return fmt.Errorf("instance %d: score %v outside [0, 1]", i, s)
		}
	}
	return nil
}

func (d *Dataset) append(score float64, label, privileged bool) {
	d.Scores = append(d.Scores, score)
	d.Labels = append(d.Labels, label)
	d.Privileged = append(d.Privileged, privileged)
}

// Load dispatches on the file extension: ".csv" for CSV, ".jsonl" or ".json"
// for JSON lines. The loaded set is validated before being returned.
func Load(path string) (*Dataset, error) {
	var (
		ds  *Dataset
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		ds, err = LoadCSV(path)
	case ".jsonl", ".json":
		ds, err = LoadJSONL(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset %s: %w", path, err)
	}
	return ds, nil
}

// LoadCSV loads a dataset from a CSV file with a header row. Required columns
// are "score", "label", and "privileged"; extra columns are ignored.
func LoadCSV(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	indices := make(map[string]int)
	for i, col := range header {
		indices[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, col := range []string{"score", "label", "privileged"} {
		if _, ok := indices[col]; !ok {
			return nil, fmt.Errorf("CSV file is missing required column %q", col)
		}
	}

	ds := &Dataset{}
	line := 1
	for {
		record, err := reader.Read()
		if err != nil {
			break // EOF or malformed tail
		}
		line++

		score, err := strconv.ParseFloat(record[indices["score"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad score %q: %w", line, record[indices["score"]], err)
		}
		label, err := parseBool(record[indices["label"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad label %q: %w", line, record[indices["label"]], err)
		}
		privileged, err := parseBool(record[indices["privileged"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad privileged flag %q: %w", line, record[indices["privileged"]], err)
		}

		ds.append(score, label, privileged)
	}

	log.Info().
		Str("file", path).
		Int("instances", ds.Len()).
		Msg("CSV dataset loaded")

	return ds, nil
}

// LoadJSONL loads a dataset from a JSON-lines file of scored instance records.
func LoadJSONL(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	ds := &Dataset{}
	for decoder.More() {
		var inst storage.ScoredInstance
		if err := decoder.Decode(&inst); err != nil {
			return nil, fmt.Errorf("failed to decode instance %d: %w", ds.Len()+1, err)
		}
		ds.append(inst.Score, inst.Label, inst.Privileged)
	}

	log.Info().
		Str("file", path).
		Int("instances", ds.Len()).
		Msg("JSON dataset loaded")

	return ds, nil
}

// LoadFromStore loads the scored instances persisted for a model within a
// time range. The loaded set is validated before being returned.
func LoadFromStore(store *storage.Store, modelID string, start, end time.Time) (*Dataset, error) {
	log.Info().
		Str("model", modelID).
		Time("start", start).
		Time("end", end).
		Msg("Loading dataset from store")

	insts, err := store.GetInstances(modelID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load instances for %s: %w", modelID, err)
	}

	ds := &Dataset{}
	for _, inst := range insts {
		ds.append(inst.Score, inst.Label, inst.Privileged)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stored dataset for %s: %w", modelID, err)
	}

	log.Info().
		Str("model", modelID).
		Int("instances", ds.Len()).
		Msg("Dataset loaded from store")

	return ds, nil
}

func parseBool(s string) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes":
		return true, nil
	case "0", "false", "f", "no":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean value")
}
