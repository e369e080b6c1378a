// Package file provides file-based persistence for workflows, leads,
// paused execution state, and traces. Documents are stored as one JSON
// file per record under a root directory.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	workflowRepo *WorkflowRepository
	leadRepo     *LeadRepository
	stateRepo    *PausedStateRepository
	traceRepo    *TraceRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		workflowRepo: NewWorkflowRepository(cleanRoot),
		leadRepo:     NewLeadRepository(cleanRoot),
		stateRepo:    NewPausedStateRepository(cleanRoot),
		traceRepo:    NewTraceRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// WorkflowRepository returns the workflow repository implementation for file persistence.
func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

// LeadRepository returns the lead repository implementation for file persistence.
func (fp *Persistence) LeadRepository() persistence.LeadRepository {
	return fp.leadRepo
}

// PausedStateRepository returns the paused-state repository implementation for file persistence.
func (fp *Persistence) PausedStateRepository() persistence.PausedStateRepository {
	return fp.stateRepo
}

// TraceRepository returns the trace repository implementation for file persistence.
func (fp *Persistence) TraceRepository() persistence.TraceRepository {
	return fp.traceRepo
}
