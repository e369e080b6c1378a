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

	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations. A single
// mutex serializes the read-modify-write cycles that counter updates
// need.
type WorkflowRepository struct {
	root string
	mu   sync.Mutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir() string {
	return path.Join(wr.root, "workflows")
}

// Workflows returns all non-deleted workflows.
func (wr *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	root := os.DirFS(wr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflowID := file[:len(file)-5] // Remove .json extension

		workflow, err := wr.WorkflowByID(ctx, workflowID)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

// ListWorkflows returns paginated and filtered workflows with in-memory operations.
func (wr *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("invalid sort field: %s", opts.SortBy)
	}

	allWorkflows, err := wr.Workflows(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Workflow, 0, len(allWorkflows))

	for _, workflow := range allWorkflows {
		if opts.OwnerID != "" && workflow.Owner != opts.OwnerID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, workflow)
	}

	sortWorkflows(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))
	startIdx := opts.Offset
	endIdx := opts.Offset + opts.Limit

	if startIdx >= len(filtered) {
		return &persistence.WorkflowListResult{
			Workflows:   make([]*models.Workflow, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.WorkflowListResult{
		Workflows:   filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

// sortWorkflows sorts workflows in-place based on the specified field and order.
func sortWorkflows(workflows []*models.Workflow, sortBy, sortOrder string) {
	sort.Slice(workflows, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = workflows[i].UpdatedAt.Before(workflows[j].UpdatedAt)
		case "name":
			less = workflows[i].Name < workflows[j].Name
		default:
			less = workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// WorkflowByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) WorkflowByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	filePath := filepath.Clean(path.Join(wr.dir(), workflowID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(body, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", workflowID, err)
	}

	if workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// SaveWorkflow saves a workflow to the file system.
func (wr *WorkflowRepository) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	return wr.write(workflow)
}

func (wr *WorkflowRepository) write(workflow *models.Workflow) error {
	err := os.MkdirAll(wr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	filePath := path.Join(wr.dir(), workflow.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// DeleteWorkflow soft deletes a workflow by setting its deleted_at timestamp.
func (wr *WorkflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.WorkflowByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now

	return wr.write(workflow)
}

// IncrementRunStats bumps the run counters under the repository mutex.
// File persistence is single-process, so the mutex is sufficient to
// keep the read-modify-write atomic.
func (wr *WorkflowRepository) IncrementRunStats(ctx context.Context, workflowID string, success bool) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.WorkflowByID(ctx, workflowID)
	if err != nil {
		return err
	}

	workflow.Stats.Runs++

	if success {
		workflow.Stats.Successes++
	} else {
		workflow.Stats.Failures++
	}

	return wr.write(workflow)
}
