package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , description
  , status
  , nodes
  , edges
  , stats_runs
  , stats_successes
  , stats_failures
  , owner
  , created_at
  , updated_at
  , deleted_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow  models.Workflow
		nodesJSON []byte
		edgesJSON []byte
		deletedAt sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&nodesJSON,
		&edgesJSON,
		&workflow.Stats.Runs,
		&workflow.Stats.Successes,
		&workflow.Stats.Failures,
		&workflow.Owner,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &workflow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if deletedAt.Valid {
		workflow.DeletedAt = &deletedAt.Time
	}

	return &workflow, nil
}

// Workflows returns all non-deleted workflows.
func (r *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// ListWorkflows returns paginated and filtered workflows.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder != "asc" {
		opts.SortOrder = "desc"
	}

	// Sort fields come from an allowlist; they are never interpolated
	// from raw user input.
	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("invalid sort field: %s", opts.SortBy)
	}

	where := "WHERE deleted_at IS NULL"
	args := make([]any, 0, 4)

	if opts.OwnerID != "" {
		args = append(args, opts.OwnerID)
		where += fmt.Sprintf(" AND owner = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var totalCount int64

	countQuery := "SELECT COUNT(*) FROM workflows " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(`SELECT %s FROM workflows %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		workflowColumns, where, opts.SortBy, opts.SortOrder, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0, opts.Limit)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return &persistence.WorkflowListResult{
		Workflows:   workflows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(workflows)) < totalCount,
	}, nil
}

// WorkflowByID returns a workflow by its ID.
func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// SaveWorkflow upserts a workflow.
func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	nodesJSON, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(workflow.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	query := `
		INSERT INTO workflows (id, name, description, status, nodes, edges,
			stats_runs, stats_successes, stats_failures, owner, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		nodesJSON,
		edgesJSON,
		workflow.Stats.Runs,
		workflow.Stats.Successes,
		workflow.Stats.Failures,
		workflow.Owner,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow soft deletes a workflow by setting deleted_at.
func (r *WorkflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// IncrementRunStats atomically bumps the run counters in a single
// UPDATE so concurrent engine processes never lose an increment.
func (r *WorkflowRepository) IncrementRunStats(ctx context.Context, workflowID string, success bool) error {
	query := `
		UPDATE workflows
		SET stats_runs = stats_runs + 1,
			stats_successes = stats_successes + CASE WHEN $2 THEN 1 ELSE 0 END,
			stats_failures = stats_failures + CASE WHEN $2 THEN 0 ELSE 1 END
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, workflowID, success)
	if err != nil {
		return persistence.NewWorkflowError("IncrementRunStats", workflowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("IncrementRunStats", workflowID, persistence.ErrWorkflowNotFound)
	}

	return nil
}
