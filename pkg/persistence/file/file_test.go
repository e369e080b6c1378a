package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

func testWorkflow(id, name string) *models.Workflow {
	return &models.Workflow{
		ID:     id,
		Name:   name,
		Status: models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: "manual", Config: map[string]any{}},
		},
	}
}

func TestWorkflowRepositoryRoundTrip(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveWorkflow(ctx, testWorkflow("wf-1", "first workflow")))

	loaded, err := repo.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "first workflow", loaded.Name)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, models.NodeKindTrigger, loaded.Nodes[0].Kind)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestWorkflowByIDNotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.WorkflowRepository().WorkflowByID(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestDeleteWorkflowIsSoft(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveWorkflow(ctx, testWorkflow("wf-1", "first workflow")))
	require.NoError(t, repo.DeleteWorkflow(ctx, "wf-1"))

	_, err := repo.WorkflowByID(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	all, err := repo.Workflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListWorkflowsFiltersAndPaginates(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()
	ctx := context.Background()

	first := testWorkflow("wf-1", "alpha workflow")
	first.Owner = "user-a"

	second := testWorkflow("wf-2", "beta workflow")
	second.Owner = "user-b"

	third := testWorkflow("wf-3", "gamma workflow")
	third.Owner = "user-a"
	third.Status = models.WorkflowStatusDraft

	for _, wf := range []*models.Workflow{first, second, third} {
		require.NoError(t, repo.SaveWorkflow(ctx, wf))
	}

	result, err := repo.ListWorkflows(ctx, persistence.ListWorkflowsOptions{OwnerID: "user-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalCount)

	active := models.WorkflowStatusActive
	result, err = repo.ListWorkflows(ctx, persistence.ListWorkflowsOptions{OwnerID: "user-a", Status: &active})
	require.NoError(t, err)
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, "wf-1", result.Workflows[0].ID)

	result, err = repo.ListWorkflows(ctx, persistence.ListWorkflowsOptions{Limit: 2, SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, result.Workflows, 2)
	assert.Equal(t, "alpha workflow", result.Workflows[0].Name)
	assert.True(t, result.HasNextPage)
}

func TestListWorkflowsRejectsUnknownSortField(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.WorkflowRepository().ListWorkflows(context.Background(), persistence.ListWorkflowsOptions{SortBy: "owner; DROP TABLE"})

	require.Error(t, err)
}

func TestIncrementRunStats(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveWorkflow(ctx, testWorkflow("wf-1", "first workflow")))

	require.NoError(t, repo.IncrementRunStats(ctx, "wf-1", true))
	require.NoError(t, repo.IncrementRunStats(ctx, "wf-1", true))
	require.NoError(t, repo.IncrementRunStats(ctx, "wf-1", false))

	loaded, err := repo.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.Stats.Runs)
	assert.Equal(t, int64(2), loaded.Stats.Successes)
	assert.Equal(t, int64(1), loaded.Stats.Failures)
}

func TestLeadRepositoryRoundTrip(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.LeadRepository()
	ctx := context.Background()

	lead := &models.Lead{
		ID:    "lead-1",
		Stage: "new",
		Score: 40,
		Tags:  []string{"inbound"},
	}

	require.NoError(t, repo.SaveLead(ctx, lead))

	loaded, err := repo.LeadByID(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.Stage)
	assert.Equal(t, []string{"inbound"}, loaded.Tags)
}

func TestUpdateLeadPatch(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.LeadRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveLead(ctx, &models.Lead{ID: "lead-1", Stage: "new", Score: 40}))

	patch := map[string]any{
		"stage":             "qualified",
		"score":             float64(75),
		"customFields.plan": "pro",
		"company":           "Example Inc",
	}
	require.NoError(t, repo.UpdateLead(ctx, "lead-1", patch))

	loaded, err := repo.LeadByID(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "qualified", loaded.Stage)
	assert.InEpsilon(t, 75.0, loaded.Score, 0.001)
	assert.Equal(t, "pro", loaded.CustomFields["plan"])
	assert.Equal(t, "Example Inc", loaded.Fields["company"])
}

func TestActivityLog(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.LeadRepository()
	ctx := context.Background()

	for _, kind := range []string{"add_tag", "assign_owner", "send_message"} {
		require.NoError(t, repo.AddActivity(ctx, &models.Activity{
			LeadID:     "lead-1",
			WorkflowID: "wf-1",
			NodeID:     "n1",
			Kind:       kind,
		}))
	}

	activities, err := repo.ActivitiesByLead(ctx, "lead-1", 2)
	require.NoError(t, err)
	assert.Len(t, activities, 2)

	all, err := repo.ActivitiesByLead(ctx, "lead-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLeadsMatchingAndAudienceMembers(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.LeadRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveLead(ctx, &models.Lead{
		ID: "lead-1", Stage: "new", Audiences: []string{"newsletter"},
	}))
	require.NoError(t, repo.SaveLead(ctx, &models.Lead{
		ID: "lead-2", Stage: "qualified", Audiences: []string{"newsletter"},
	}))
	require.NoError(t, repo.SaveLead(ctx, &models.Lead{
		ID: "lead-3", Stage: "new",
	}))

	matching, err := repo.LeadsMatching(ctx, map[string]any{"stage": "new"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead-1", "lead-3"}, matching)

	members, err := repo.AudienceMembers(ctx, "newsletter", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead-1"}, members)
}

func pausedState(workflowID, leadID string, version int, resumeAt time.Time) *models.ExecutionState {
	return &models.ExecutionState{
		ID:          "exec-" + workflowID,
		WorkflowID:  workflowID,
		LeadID:      leadID,
		Status:      models.ExecutionStatusPaused,
		PauseNodeID: "d1",
		ResumeAt:    &resumeAt,
		Version:     version,
	}
}

func TestPausedStateRoundTrip(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.PausedStateRepository()
	ctx := context.Background()

	resumeAt := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.SavePausedState(ctx, pausedState("wf-1", "lead-1", 1, resumeAt)))

	loaded, err := repo.LoadPausedState(ctx, "wf-1", "lead-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "d1", loaded.PauseNodeID)
	assert.Equal(t, 1, loaded.Version)

	missing, err := repo.LoadPausedState(ctx, "wf-1", "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClearPausedStateVersionCheck(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.PausedStateRepository()
	ctx := context.Background()

	resumeAt := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.SavePausedState(ctx, pausedState("wf-1", "lead-1", 2, resumeAt)))

	err := repo.ClearPausedState(ctx, "wf-1", "lead-1", 1)
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))

	require.NoError(t, repo.ClearPausedState(ctx, "wf-1", "lead-1", 2))

	err = repo.ClearPausedState(ctx, "wf-1", "lead-1", 2)
	require.ErrorIs(t, err, persistence.ErrPausedStateNotFound)
}

func TestListDuePausedStates(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.PausedStateRepository()
	ctx := context.Background()

	now := time.Now().UTC()

	require.NoError(t, repo.SavePausedState(ctx, pausedState("wf-1", "lead-1", 1, now.Add(-2*time.Hour))))
	require.NoError(t, repo.SavePausedState(ctx, pausedState("wf-2", "lead-2", 1, now.Add(-time.Hour))))
	require.NoError(t, repo.SavePausedState(ctx, pausedState("wf-3", "lead-3", 1, now.Add(time.Hour))))

	due, err := repo.ListDuePausedStates(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "wf-1", due[0].WorkflowID)
	assert.Equal(t, "wf-2", due[1].WorkflowID)

	due, err = repo.ListDuePausedStates(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestTraceRepositoryRoundTrip(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.TraceRepository()
	ctx := context.Background()

	trace := &models.ExecutionTrace{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		LeadID:      "lead-1",
		Status:      models.ExecutionStatusCompleted,
		Visited:     []string{"t1", "a1"},
		DryRun:      true,
	}

	require.NoError(t, repo.SaveTrace(ctx, "run-1", trace))

	loaded, err := repo.TraceByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, trace.Visited, loaded.Visited)
	assert.True(t, loaded.DryRun)

	_, err = repo.TraceByID(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrTraceNotFound)
}

func TestHealthCheck(t *testing.T) {
	dir := t.TempDir()

	p := NewPersistence(dir)
	require.NoError(t, p.HealthCheck(context.Background()))

	broken := NewPersistence(dir + "/does-not-exist")
	require.Error(t, broken.HealthCheck(context.Background()))
}
