package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// TraceRepository stores execution traces as one JSON file per test-run id.
type TraceRepository struct {
	root string
}

// NewTraceRepository creates a new trace repository.
func NewTraceRepository(root string) *TraceRepository {
	return &TraceRepository{root: root}
}

func (tr *TraceRepository) dir() string {
	return path.Join(tr.root, "traces")
}

// SaveTrace writes the trace under the given test-run identifier.
func (tr *TraceRepository) SaveTrace(_ context.Context, testRunID string, trace *models.ExecutionTrace) error {
	err := os.MkdirAll(tr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create traces directory: %w", err)
	}

	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trace %s: %w", testRunID, err)
	}

	filePath := path.Join(tr.dir(), testRunID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// TraceByID retrieves a stored trace by its test-run identifier.
func (tr *TraceRepository) TraceByID(_ context.Context, testRunID string) (*models.ExecutionTrace, error) {
	filePath := filepath.Clean(path.Join(tr.dir(), testRunID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrTraceNotFound
		}

		return nil, fmt.Errorf("failed to read trace %s: %w", testRunID, err)
	}

	var trace models.ExecutionTrace

	err = json.Unmarshal(body, &trace)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace %s: %w", testRunID, err)
	}

	return &trace, nil
}
