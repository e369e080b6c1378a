package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/nodes/action"
	"github.com/leadflowhq/leadflow/pkg/nodes/loop"
)

// TraceStore persists dry-run traces keyed by a test-run identifier.
type TraceStore interface {
	SaveTrace(ctx context.Context, testRunID string, trace *models.ExecutionTrace) error
}

// DryRunner executes a workflow with all side effects suppressed: action
// nodes report what they would do, nothing is written to the record
// store, and no tasks or calls leave the process.
type DryRunner struct {
	traces TraceStore
	items  loop.ItemSource
	logger *slog.Logger
	now    func() time.Time
}

// DryRunOption customizes a DryRunner.
type DryRunOption func(*DryRunner)

// WithItemSource provides real collection data for loop nodes; without
// it loops iterate an empty collection.
func WithItemSource(items loop.ItemSource) DryRunOption {
	return func(d *DryRunner) {
		d.items = items
	}
}

// WithDryRunClock overrides the wall clock, for tests.
func WithDryRunClock(now func() time.Time) DryRunOption {
	return func(d *DryRunner) {
		d.now = now
	}
}

// NewDryRunner creates a dry-run harness. traces may be nil, in which
// case traces are returned but not stored.
func NewDryRunner(traces TraceStore, logger *slog.Logger, opts ...DryRunOption) *DryRunner {
	d := &DryRunner{
		traces: traces,
		items:  emptyItemSource{},
		logger: logger.With("module", "dry_run"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Run executes the workflow against the lead with side effects
// suppressed; a nil lead runs against a synthetic placeholder record.
// Drafts are dry-runnable: the active-status gate does not apply here,
// only graph validation. It returns the trace and the test-run id the
// trace is stored under.
func (d *DryRunner) Run(ctx context.Context, wf *models.Workflow, lead *models.Lead) (*models.ExecutionTrace, string, error) {
	if lead == nil {
		lead = SyntheticLead()
	} else {
		lead = lead.Clone()
	}

	executor := NewExecutor(
		&recordingActions{},
		loop.NewEvaluator(d.items),
		newMemoryPausedStore(),
		d.logger,
		WithClock(d.now),
	)

	// A shallow copy marked active passes the executor's lifecycle gate
	// without touching the caller's definition.
	wfCopy := *wf
	wfCopy.Status = models.WorkflowStatusActive

	trace, err := executor.Execute(ctx, &wfCopy, lead, nil)
	trace.DryRun = true

	testRunID := uuid.New().String()

	if d.traces != nil {
		if saveErr := d.traces.SaveTrace(ctx, testRunID, trace); saveErr != nil {
			d.logger.Warn("failed to store dry-run trace", "test_run_id", testRunID, "error", saveErr)
		}
	}

	return trace, testRunID, err
}

// SyntheticLead builds the placeholder record used when a dry run has no
// real lead to test against.
func SyntheticLead() *models.Lead {
	now := time.Now().UTC()

	return &models.Lead{
		ID:      "dry-run-lead",
		OwnerID: "dry-run-owner",
		Stage:   "new",
		Score:   50,
		Fields: map[string]any{
			"firstName": "Test",
			"lastName":  "Lead",
			"email":     "test@example.com",
			"company":   "Example Inc",
		},
		CustomFields: map[string]any{},
		Tags:         []string{"dry-run"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// recordingActions echoes what each action node would do without
// performing it.
type recordingActions struct{}

func (recordingActions) Evaluate(_ context.Context, _ action.RunInfo, node *models.Node, _ *models.Lead, _ map[string]any) *models.Outcome {
	return models.Success(map[string]any{
		"dry_run": true,
		"action":  node.Subtype,
		"config":  node.Config,
	})
}

// emptyItemSource iterates nothing, so dry-run loops complete
// immediately.
type emptyItemSource struct{}

func (emptyItemSource) LeadsMatching(context.Context, map[string]any, int) ([]string, error) {
	return nil, nil
}

func (emptyItemSource) AudienceMembers(context.Context, string, int) ([]string, error) {
	return nil, nil
}

// memoryPausedStore keeps dry-run pause checkpoints in process memory so
// a dry run that hits a delay node still pauses cleanly.
type memoryPausedStore struct {
	mu     sync.Mutex
	states map[string]*models.ExecutionState
}

func newMemoryPausedStore() *memoryPausedStore {
	return &memoryPausedStore{states: make(map[string]*models.ExecutionState)}
}

func pausedKey(workflowID, leadID string) string {
	return workflowID + "|" + leadID
}

func (s *memoryPausedStore) SavePausedState(_ context.Context, state *models.ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[pausedKey(state.WorkflowID, state.LeadID)] = state

	return nil
}

func (s *memoryPausedStore) LoadPausedState(_ context.Context, workflowID, leadID string) (*models.ExecutionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[pausedKey(workflowID, leadID)]
	if !ok {
		return nil, nil
	}

	return state, nil
}

func (s *memoryPausedStore) ClearPausedState(_ context.Context, workflowID, leadID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pausedKey(workflowID, leadID)

	state, ok := s.states[key]
	if !ok {
		return fmt.Errorf("no paused state for workflow %s lead %s", workflowID, leadID)
	}

	if state.Version != version {
		return fmt.Errorf("paused state version mismatch: have %d, want %d", state.Version, version)
	}

	delete(s.states, key)

	return nil
}
