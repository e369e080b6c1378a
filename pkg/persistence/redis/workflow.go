package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// WorkflowRepository stores workflow definitions as JSON values with a
// set index, and run counters in a per-workflow hash updated via
// HIncrBy so increments from multiple processes never collide.
type WorkflowRepository struct {
	client *redis.Client
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(client *redis.Client) *WorkflowRepository {
	return &WorkflowRepository{client: client}
}

func workflowKey(id string) string {
	return keyPrefix + ":workflow:" + id
}

func workflowStatsKey(id string) string {
	return keyPrefix + ":workflow:" + id + ":stats"
}

const workflowIndexKey = keyPrefix + ":workflows"

// Workflows returns all non-deleted workflows, newest first.
func (r *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := r.client.SMembers(ctx, workflowIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow ids: %w", err)
	}

	sort.Strings(ids)

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.WorkflowByID(ctx, id)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// ListWorkflows returns paginated and filtered workflows with in-memory operations.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	all, err := r.Workflows(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if opts.OwnerID != "" && workflow.Owner != opts.OwnerID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, workflow)
	}

	sortBy := opts.SortBy
	asc := opts.SortOrder == "asc"

	sort.Slice(filtered, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = filtered[i].UpdatedAt.Before(filtered[j].UpdatedAt)
		case "name":
			less = filtered[i].Name < filtered[j].Name
		default:
			less = filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		}

		if asc {
			return less
		}

		return !less
	})

	totalCount := int64(len(filtered))
	start := opts.Offset

	if start >= len(filtered) {
		return &persistence.WorkflowListResult{
			Workflows:  make([]*models.Workflow, 0),
			TotalCount: totalCount,
		}, nil
	}

	end := min(start+opts.Limit, len(filtered))

	return &persistence.WorkflowListResult{
		Workflows:   filtered[start:end],
		TotalCount:  totalCount,
		HasNextPage: end < len(filtered),
	}, nil
}

// WorkflowByID returns a workflow with its counters merged in.
func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	data, err := r.client.Get(ctx, workflowKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	var workflow models.Workflow

	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	if workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	stats, err := r.client.HGetAll(ctx, workflowStatsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow stats %s: %w", id, err)
	}

	workflow.Stats = models.RunStats{
		Runs:      parseCounter(stats["runs"]),
		Successes: parseCounter(stats["successes"]),
		Failures:  parseCounter(stats["failures"]),
	}

	return &workflow, nil
}

func parseCounter(raw string) int64 {
	var value int64

	_, _ = fmt.Sscanf(raw, "%d", &value)

	return value
}

// SaveWorkflow upserts a workflow definition. Counters are not written
// here; they belong to the stats hash.
func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	data, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, workflowKey(workflow.ID), data, 0)
	pipe.SAdd(ctx, workflowIndexKey, workflow.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow soft deletes a workflow and drops it from the index.
func (r *WorkflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	workflow, err := r.WorkflowByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.UpdatedAt = now

	data, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, workflowKey(id), data, 0)
	pipe.SRem(ctx, workflowIndexKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

// IncrementRunStats bumps run counters with HIncrBy.
func (r *WorkflowRepository) IncrementRunStats(ctx context.Context, workflowID string, success bool) error {
	outcome := "failures"
	if success {
		outcome = "successes"
	}

	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, workflowStatsKey(workflowID), "runs", 1)
	pipe.HIncrBy(ctx, workflowStatsKey(workflowID), outcome, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewWorkflowError("IncrementRunStats", workflowID, err)
	}

	return nil
}
