package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// PausedStateRepository stores pause checkpoints as one JSON file per
// (workflow, lead) pair. The mutex gives single-process resume calls
// the single-writer guarantee; the version check rejects a stale
// checkpoint either way.
type PausedStateRepository struct {
	root string
	mu   sync.Mutex
}

// NewPausedStateRepository creates a new paused-state repository.
func NewPausedStateRepository(root string) *PausedStateRepository {
	return &PausedStateRepository{root: root}
}

func (sr *PausedStateRepository) dir() string {
	return path.Join(sr.root, "paused")
}

func stateFileName(workflowID, leadID string) string {
	return workflowID + "__" + leadID + ".json"
}

// SavePausedState writes the checkpoint for the state's (workflow, lead) key.
func (sr *PausedStateRepository) SavePausedState(_ context.Context, state *models.ExecutionState) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	err := os.MkdirAll(sr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create paused states directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, state.LeadID, err)
	}

	filePath := path.Join(sr.dir(), stateFileName(state.WorkflowID, state.LeadID))

	return os.WriteFile(filePath, data, 0600)
}

// LoadPausedState returns the checkpoint for the key, or nil when none exists.
func (sr *PausedStateRepository) LoadPausedState(_ context.Context, workflowID, leadID string) (*models.ExecutionState, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	return sr.read(workflowID, leadID)
}

func (sr *PausedStateRepository) read(workflowID, leadID string) (*models.ExecutionState, error) {
	filePath := filepath.Clean(path.Join(sr.dir(), stateFileName(workflowID, leadID)))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.NewStateError("Load", workflowID, leadID, err)
	}

	var state models.ExecutionState

	err = json.Unmarshal(body, &state)
	if err != nil {
		return nil, persistence.NewStateError("Load", workflowID, leadID, err)
	}

	return &state, nil
}

// ListDuePausedStates returns checkpoints whose resume time has passed,
// oldest first, up to limit.
func (sr *PausedStateRepository) ListDuePausedStates(_ context.Context, before time.Time, limit int) ([]*models.ExecutionState, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	root := os.DirFS(sr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list paused state files: %w", err)
	}

	due := make([]*models.ExecutionState, 0)

	for _, file := range jsonFiles {
		body, err := os.ReadFile(filepath.Clean(path.Join(sr.dir(), file)))
		if err != nil {
			return nil, fmt.Errorf("failed to read paused state %s: %w", file, err)
		}

		var state models.ExecutionState

		if err := json.Unmarshal(body, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal paused state %s: %w", file, err)
		}

		if state.ResumeAt != nil && !state.ResumeAt.After(before) {
			due = append(due, &state)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(*due[j].ResumeAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// ClearPausedState consumes the checkpoint, rejecting a stale version.
func (sr *PausedStateRepository) ClearPausedState(_ context.Context, workflowID, leadID string, version int) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	state, err := sr.read(workflowID, leadID)
	if err != nil {
		return err
	}

	if state == nil {
		return persistence.NewStateError("Clear", workflowID, leadID, persistence.ErrPausedStateNotFound)
	}

	if state.Version != version {
		return persistence.NewStateError("Clear", workflowID, leadID, persistence.ErrVersionConflict)
	}

	filePath := path.Join(sr.dir(), stateFileName(workflowID, leadID))

	err = os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewStateError("Clear", workflowID, leadID, err)
	}

	return nil
}
