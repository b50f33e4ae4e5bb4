// Package storage provides persistent storage for the fairness post-processor.
// It uses BoltDB as the underlying engine to store fitted model parameters and
// scored validation instances collected from the scorer stream.
//
// The package provides thread-safe operations with automatic bucket management
// and efficient per-model range queries.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"fairroc/internal/fairness"
	"fairroc/internal/roc"
)

const (
	modelsBucket    = "models"    // Bucket name for fitted model parameters
	instancesBucket = "instances" // Bucket name for scored instance records
)

// ErrModelNotFound is returned when no fitted model exists under the requested ID.
var ErrModelNotFound = errors.New("model not found")

// FittedModel is the persisted result of a calibration run: the selected
// parameters plus enough context to audit how they were obtained.
type FittedModel struct {
	ModelID          string               `json:"model_id"`
	Params           roc.FittedParameters `json:"params"`
	Constraint       fairness.Constraint  `json:"constraint"`
	MetricLowerBound float64              `json:"metric_lower_bound"`
	MetricUpperBound float64              `json:"metric_upper_bound"`
	FairnessValue    float64              `json:"fairness_value"`
	BalancedAccuracy float64              `json:"balanced_accuracy"`
	CalibratedAt     time.Time            `json:"calibrated_at"`
}

// Store provides persistent storage for fitted models and scored instances.
type Store struct {
	db *bbolt.DB
}

// New creates a new storage instance rooted at the specified data path.
// It initializes the BoltDB database and creates the necessary buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "fairroc-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(modelsBucket)); err != nil {
			return fmt.Errorf("create models bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(instancesBucket)); err != nil {
			return fmt.Errorf("create instances bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveModel persists a fitted model under its model ID, replacing any
// previously saved model with the same ID.
func (s *Store) SaveModel(model FittedModel) error {
	if model.ModelID == "" {
		return fmt.Errorf("model ID cannot be empty")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(modelsBucket))

		data, err := json.Marshal(model)
		if err != nil {
			return fmt.Errorf("marshal model: %w", err)
		}
		return b.Put([]byte(model.ModelID), data)
	})
}

// LoadModel retrieves the fitted model saved under the given ID.
// Returns ErrModelNotFound if no model exists for that ID.
func (s *Store) LoadModel(modelID string) (FittedModel, error) {
	var model FittedModel
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(modelsBucket))
		data := b.Get([]byte(modelID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
		}
		return json.Unmarshal(data, &model)
	})
	return model, err
}

// ListModels returns the IDs of all persisted models in key order.
func (s *Store) ListModels() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(modelsBucket))
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// DeleteModel removes a persisted model. Deleting a missing ID is not an error.
func (s *Store) DeleteModel(modelID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(modelsBucket))
		return b.Delete([]byte(modelID))
	})
}
