package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yieldex/onchain/pkg/types"
)

// ExecutionRecord is the durable progress of one recommendation. It is
// rewritten after every state transition so a crashed process can resume
// without re-issuing confirmed steps.
type ExecutionRecord struct {
	Recommendation types.Recommendation `json:"recommendation"`
	State          types.ExecutionState `json:"state"`
	Operations     []types.Operation    `json:"operations"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Store persists one JSON file per recommendation id. Writes go through a
// temp file and rename so a crash mid-write never leaves a torn record.
type Store struct {
	dir string
}

// NewStore creates the state directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the record atomically.
func (s *Store) Save(record *ExecutionRecord) error {
	record.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution record: %w", err)
	}

	tmp := s.path(record.Recommendation.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write execution record: %w", err)
	}
	if err := os.Rename(tmp, s.path(record.Recommendation.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace execution record: %w", err)
	}
	return nil
}

// Load returns the stored record for a recommendation id, or nil when none
// exists.
func (s *Store) Load(id string) (*ExecutionRecord, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read execution record: %w", err)
	}
	var record ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse execution record %s: %w", id, err)
	}
	return &record, nil
}

// Delete removes a stored record. Missing files are not an error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
