package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// ScoredInstance is a single observation from the scorer: the classifier's
// probability score plus the ground-truth label and group membership needed
// for calibration.
type ScoredInstance struct {
	ModelID    string    `json:"model_id"`
	Timestamp  time.Time `json:"timestamp"`
	Score      float64   `json:"score"`
	Label      bool      `json:"label"`
	Privileged bool      `json:"privileged"`
}

// StoreInstance stores a single scored instance in the instances bucket.
// The record is stored with a key format of "modelID_timestamp" for efficient
// per-model range queries.
func (s *Store) StoreInstance(inst ScoredInstance) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putInstance(tx, inst)
	})
}

// StoreInstances stores a batch of scored instances in a single transaction.
func (s *Store) StoreInstances(insts []ScoredInstance) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, inst := range insts {
			if err := putInstance(tx, inst); err != nil {
				return err
			}
		}
		return nil
	})
}

func putInstance(tx *bbolt.Tx, inst ScoredInstance) error {
	b := tx.Bucket([]byte(instancesBucket))

	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}

	key := fmt.Sprintf("%s_%d", inst.ModelID, inst.Timestamp.UnixNano())
	return b.Put([]byte(key), data)
}

// GetInstances retrieves scored instances for a model within a time range.
// Returns records ordered by timestamp; both ends of the range are inclusive.
func (s *Store) GetInstances(modelID string, start, end time.Time) ([]ScoredInstance, error) {
	var instances []ScoredInstance

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(instancesBucket))
		c := b.Cursor()

		prefix := []byte(modelID + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", modelID, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", modelID, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}

			var inst ScoredInstance
			if err := json.Unmarshal(v, &inst); err != nil {
				continue // Skip malformed records
			}
			instances = append(instances, inst)
		}
		return nil
	})

	return instances, err
}

// CountInstances returns the number of stored instances for a model.
func (s *Store) CountInstances(modelID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(instancesBucket))
		c := b.Cursor()

		prefix := []byte(modelID + "_")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			count++
		}
		return nil
	})
	return count, err
}
