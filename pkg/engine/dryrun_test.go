package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/models"
)

type memoryTraceStore struct {
	mu     sync.Mutex
	traces map[string]*models.ExecutionTrace
}

func newMemoryTraceStore() *memoryTraceStore {
	return &memoryTraceStore{traces: make(map[string]*models.ExecutionTrace)}
}

func (s *memoryTraceStore) SaveTrace(_ context.Context, testRunID string, trace *models.ExecutionTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.traces[testRunID] = trace

	return nil
}

func dryRunWorkflow() *models.Workflow {
	return activeWorkflow(
		[]*models.Node{
			node("t1", models.NodeKindTrigger, "manual", nil),
			node("c1", models.NodeKindCondition, "", map[string]any{
				"field": "stage", "operator": "equals", "value": "new",
			}),
			node("a1", models.NodeKindAction, "send_message", map[string]any{
				"channel": "email", "message": "hello",
			}),
			node("end1", models.NodeKindEnd, "", nil),
		},
		[]*models.Edge{
			edge("e1", "t1", "c1", ""),
			edge("e2", "c1", "a1", "true"),
			edge("e3", "c1", "end1", "false"),
			edge("e4", "a1", "end1", ""),
		},
	)
}

func TestDryRunSuppressesSideEffects(t *testing.T) {
	store := newMemoryTraceStore()
	runner := NewDryRunner(store, testLogger(), WithDryRunClock(func() time.Time { return testTime }))

	trace, testRunID, err := runner.Run(context.Background(), dryRunWorkflow(), nil)

	require.NoError(t, err)
	assert.True(t, trace.DryRun)
	assert.Equal(t, models.ExecutionStatusCompleted, trace.Status)
	require.Len(t, trace.ActionsTaken, 1)
	assert.Equal(t, "send_message", trace.ActionsTaken[0].ActionName)
	assert.Equal(t, true, trace.ActionsTaken[0].Result["dry_run"])

	stored, ok := store.traces[testRunID]
	require.True(t, ok)
	assert.Same(t, trace, stored)
}

func TestDryRunAcceptsDraftWorkflow(t *testing.T) {
	wf := dryRunWorkflow()
	wf.Status = models.WorkflowStatusDraft

	runner := NewDryRunner(nil, testLogger(), WithDryRunClock(func() time.Time { return testTime }))

	trace, _, err := runner.Run(context.Background(), wf, nil)

	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, trace.Status)
	// The caller's definition stays a draft.
	assert.Equal(t, models.WorkflowStatusDraft, wf.Status)
}

func TestDryRunStillValidatesGraph(t *testing.T) {
	wf := dryRunWorkflow()
	wf.Status = models.WorkflowStatusDraft
	wf.Edges = append(wf.Edges, edge("e5", "a1", "ghost", ""))

	runner := NewDryRunner(nil, testLogger(), WithDryRunClock(func() time.Time { return testTime }))

	trace, _, err := runner.Run(context.Background(), wf, nil)

	require.ErrorIs(t, err, ErrInvalidWorkflow)
	assert.Equal(t, models.ExecutionStatusFailed, trace.Status)
}

func TestDryRunIsIdempotent(t *testing.T) {
	runner := NewDryRunner(nil, testLogger(), WithDryRunClock(func() time.Time { return testTime }))

	first, _, err := runner.Run(context.Background(), dryRunWorkflow(), nil)
	require.NoError(t, err)

	second, _, err := runner.Run(context.Background(), dryRunWorkflow(), nil)
	require.NoError(t, err)

	assert.Equal(t, first.Visited, second.Visited)
	assert.Equal(t, first.Completed, second.Completed)
	assert.Equal(t, first.Skipped, second.Skipped)
}

func TestDryRunDoesNotMutateProvidedLead(t *testing.T) {
	runner := NewDryRunner(nil, testLogger())

	lead := testLead()
	before := len(lead.Tags)

	_, _, err := runner.Run(context.Background(), dryRunWorkflow(), lead)

	require.NoError(t, err)
	assert.Len(t, lead.Tags, before)
}

func TestDryRunFailsFastOnInvalidGraph(t *testing.T) {
	wf := activeWorkflow(
		[]*models.Node{node("a1", models.NodeKindAction, "add_tag", map[string]any{"tag": "x"})},
		nil,
	)

	runner := NewDryRunner(nil, testLogger())

	trace, _, err := runner.Run(context.Background(), wf, nil)

	require.ErrorIs(t, err, ErrInvalidWorkflow)
	assert.Equal(t, models.ExecutionStatusFailed, trace.Status)
	assert.NotEmpty(t, trace.Errors)
}

func TestDryRunPausesAtDelay(t *testing.T) {
	wf := activeWorkflow(
		[]*models.Node{
			node("t1", models.NodeKindTrigger, "manual", nil),
			node("d1", models.NodeKindDelay, "", map[string]any{"delaySeconds": float64(30)}),
			node("end1", models.NodeKindEnd, "", nil),
		},
		[]*models.Edge{
			edge("e1", "t1", "d1", ""),
			edge("e2", "d1", "end1", ""),
		},
	)

	runner := NewDryRunner(nil, testLogger(), WithDryRunClock(func() time.Time { return testTime }))

	trace, _, err := runner.Run(context.Background(), wf, nil)

	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, trace.Status)
	assert.True(t, trace.DryRun)
}
