// Package engine implements the workflow execution state machine: it
// validates the graph, walks it from the trigger node, dispatches each
// node's evaluator through an exhaustive kind switch, and suspends at
// delay nodes by persisting the execution state for a later resume.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/events"
	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/nodes/action"
	"github.com/leadflowhq/leadflow/pkg/nodes/condition"
	"github.com/leadflowhq/leadflow/pkg/nodes/delay"
	"github.com/leadflowhq/leadflow/pkg/nodes/loop"
	"github.com/leadflowhq/leadflow/pkg/nodes/trigger"
	"github.com/leadflowhq/leadflow/pkg/validation"
)

// MaxNodeVisits caps total node visits per run so a cyclic graph that
// bypassed validation still terminates.
const MaxNodeVisits = 1000

var (
	ErrInvalidWorkflow  = errors.New("workflow failed validation")
	ErrWorkflowInactive = errors.New("workflow is not active")
	ErrNotPaused        = errors.New("execution state is not paused")
	ErrPauseNodeInvalid = errors.New("pause node is not a delay node in this workflow")
	ErrCheckpointLost   = errors.New("failed to persist pause checkpoint")
)

// ActionEvaluator dispatches action nodes. *action.Evaluator is the real
// implementation; the dry-run harness substitutes a recording one.
type ActionEvaluator interface {
	Evaluate(ctx context.Context, run action.RunInfo, node *models.Node, lead *models.Lead, vars map[string]any) *models.Outcome
}

// PausedStateStore holds the durable pause checkpoints, keyed by
// (workflow id, lead id). Clear must reject a stale version so
// concurrent resumes of the same checkpoint serialize to one winner.
type PausedStateStore interface {
	SavePausedState(ctx context.Context, state *models.ExecutionState) error
	LoadPausedState(ctx context.Context, workflowID, leadID string) (*models.ExecutionState, error)
	ClearPausedState(ctx context.Context, workflowID, leadID string, version int) error
}

// StatsStore applies the atomic run-counter increment after each
// terminal run.
type StatsStore interface {
	IncrementRunStats(ctx context.Context, workflowID string, success bool) error
}

// EventPublisher emits run lifecycle events. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

// Executor drives workflow runs against lead records.
type Executor struct {
	actions ActionEvaluator
	loops   *loop.Evaluator
	paused  PausedStateStore
	stats   StatsStore
	bus     EventPublisher
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithEventPublisher attaches a lifecycle event publisher.
func WithEventPublisher(bus EventPublisher) Option {
	return func(e *Executor) {
		e.bus = bus
	}
}

// WithStatsStore attaches the run-counter store.
func WithStatsStore(stats StatsStore) Option {
	return func(e *Executor) {
		e.stats = stats
	}
}

// NewExecutor creates an executor. The paused-state store is required;
// stats and event publishing are optional.
func NewExecutor(actions ActionEvaluator, loops *loop.Evaluator, paused PausedStateStore, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		actions: actions,
		loops:   loops,
		paused:  paused,
		logger:  logger.With("module", "engine"),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// run carries the per-invocation traversal context.
type run struct {
	workflow  *models.Workflow
	lead      *models.Lead
	state     *models.ExecutionState
	eventData map[string]any
	actions   []models.ActionRecord
	warnings  []string
	startedAt time.Time
}

// Execute starts a fresh run of the workflow against the lead. The
// returned trace reflects the terminal or paused state; the error is
// non-nil only for fatal precondition failures and run failures.
func (e *Executor) Execute(ctx context.Context, wf *models.Workflow, lead *models.Lead, eventData map[string]any) (*models.ExecutionTrace, error) {
	started := e.now().UTC()

	state := &models.ExecutionState{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		LeadID:     lead.ID,
		Status:     models.ExecutionStatusRunning,
		Completed:  make(map[string]bool),
		Skipped:    make(map[string]bool),
		Variables:  make(map[string]any),
		StartedAt:  started,
		UpdatedAt:  started,
	}

	r := &run{
		workflow:  wf,
		lead:      lead,
		state:     state,
		eventData: eventData,
		startedAt: started,
	}

	if err := e.gate(wf, state); err != nil {
		return e.finish(ctx, r), err
	}

	triggers := wf.TriggerNodes()
	if len(triggers) != 1 {
		state.RecordError("", "workflow must have exactly one trigger node")
		state.Status = models.ExecutionStatusFailed

		return e.finish(ctx, r), ErrInvalidWorkflow
	}

	e.logger.Info("starting run",
		"workflow_id", wf.ID, "lead_id", lead.ID, "execution_id", state.ID)
	e.publish(ctx, state.ID, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, wf.ID),
		ExecutionID: state.ID,
		LeadID:      lead.ID,
		TriggerData: eventData,
	})

	e.walk(ctx, r, []string{triggers[0].ID})

	return e.finish(ctx, r), e.runError(state)
}

// Resume continues a paused run. The checkpoint is consumed from the
// store with a version check before any node executes, so a concurrent
// resume of the same checkpoint fails instead of double-running.
func (e *Executor) Resume(ctx context.Context, wf *models.Workflow, lead *models.Lead, state *models.ExecutionState) (*models.ExecutionTrace, error) {
	r := &run{
		workflow:  wf,
		lead:      lead,
		state:     state,
		startedAt: e.now().UTC(),
	}

	if err := e.gate(wf, state); err != nil {
		return e.finish(ctx, r), err
	}

	if state.Status != models.ExecutionStatusPaused {
		state.RecordError("", fmt.Sprintf("cannot resume run in status %q", state.Status))
		state.Status = models.ExecutionStatusFailed

		return e.finish(ctx, r), ErrNotPaused
	}

	pauseNode := wf.NodeByID(state.PauseNodeID)
	if pauseNode == nil || pauseNode.Kind != models.NodeKindDelay {
		state.RecordError("", fmt.Sprintf("pause node %q is not a delay node in workflow %q", state.PauseNodeID, wf.ID))
		state.Status = models.ExecutionStatusFailed

		return e.finish(ctx, r), ErrPauseNodeInvalid
	}

	if err := e.paused.ClearPausedState(ctx, wf.ID, lead.ID, state.Version); err != nil {
		state.RecordError("", fmt.Sprintf("failed to consume pause checkpoint: %v", err))
		state.Status = models.ExecutionStatusFailed

		return e.finish(ctx, r), fmt.Errorf("consuming pause checkpoint: %w", err)
	}

	e.logger.Info("resuming run",
		"workflow_id", wf.ID, "lead_id", lead.ID,
		"execution_id", state.ID, "pause_node_id", state.PauseNodeID)
	e.publish(ctx, state.ID, events.RunResumed{
		BaseEvent:   events.NewBaseEvent(events.RunResumedEvent, wf.ID),
		ExecutionID: state.ID,
		LeadID:      lead.ID,
		PauseNodeID: state.PauseNodeID,
	})

	state.Status = models.ExecutionStatusRunning
	state.MarkCompleted(state.PauseNodeID)
	r.actions = append(r.actions, models.ActionRecord{
		NodeID:     state.PauseNodeID,
		ActionName: "delay_completed",
		Result: map[string]any{
			"resumed_at": r.startedAt.Format(time.RFC3339),
		},
	})

	next := e.nextNodes(r, pauseNode, "")
	state.PauseNodeID = ""
	state.ResumeAt = nil

	e.walk(ctx, r, next)

	return e.finish(ctx, r), e.runError(state)
}

// gate enforces the structural and lifecycle preconditions shared by
// Execute and Resume.
func (e *Executor) gate(wf *models.Workflow, state *models.ExecutionState) error {
	if wf.Status != models.WorkflowStatusActive {
		state.RecordError("", fmt.Sprintf("workflow %q has status %q", wf.ID, wf.Status))
		state.Status = models.ExecutionStatusFailed

		return ErrWorkflowInactive
	}

	result := validation.Validate(wf)
	if !result.Valid {
		for _, verr := range result.Errors {
			state.RecordError(verr.NodeID, verr.Message)
		}

		state.Status = models.ExecutionStatusFailed

		return ErrInvalidWorkflow
	}

	return nil
}

// walk drives the traversal from the given frontier until the run
// reaches a terminal state or pauses. Fan-out branches are pushed onto
// the stack in reverse node-id order so they execute in ascending order.
func (e *Executor) walk(ctx context.Context, r *run, frontier []string) {
	stack := make([]string, len(frontier))
	copy(stack, frontier)

	for len(stack) > 0 {
		if r.state.Status != models.ExecutionStatusRunning {
			return
		}

		if len(r.state.Visited) >= MaxNodeVisits {
			r.state.RecordError("", fmt.Sprintf("node visit cap of %d exceeded", MaxNodeVisits))
			r.state.Status = models.ExecutionStatusFailed

			return
		}

		nodeID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := r.workflow.NodeByID(nodeID)
		if node == nil {
			r.state.RecordError("", fmt.Sprintf("edge references missing node %q", nodeID))
			r.state.Status = models.ExecutionStatusFailed

			return
		}

		r.state.CurrentNodeID = nodeID
		r.state.MarkVisited(nodeID)
		r.state.UpdatedAt = e.now().UTC()

		outcome := e.dispatch(ctx, r, node)

		switch outcome.Kind {
		case models.OutcomePause:
			e.pause(ctx, r, node, outcome)

			return
		case models.OutcomeFail:
			r.state.RecordError(node.ID, outcome.Message)
			r.state.Status = models.ExecutionStatusFailed

			return
		case models.OutcomeSkip:
			r.state.MarkSkipped(node.ID)
		case models.OutcomeSuccess:
			r.state.MarkCompleted(node.ID)

			if node.Kind == models.NodeKindAction {
				r.actions = append(r.actions, models.ActionRecord{
					NodeID:     node.ID,
					ActionName: node.Subtype,
					Result:     outcome.Data,
				})
			}
		}

		next := e.nextNodes(r, node, outcome.Branch)
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}

	if r.state.Status == models.ExecutionStatusRunning {
		r.state.Status = models.ExecutionStatusCompleted
	}
}

// dispatch routes the node to its kind's evaluator.
func (e *Executor) dispatch(ctx context.Context, r *run, node *models.Node) *models.Outcome {
	switch node.Kind {
	case models.NodeKindTrigger:
		return trigger.Evaluate(node, r.lead, r.eventData, e.now().UTC())
	case models.NodeKindCondition:
		return condition.Evaluate(node, r.lead)
	case models.NodeKindAction:
		info := action.RunInfo{WorkflowID: r.workflow.ID, LeadID: r.lead.ID}

		return e.actions.Evaluate(ctx, info, node, r.lead, r.state.Variables)
	case models.NodeKindDelay:
		return delay.Evaluate(node, e.now().UTC())
	case models.NodeKindLoop:
		outcome, cursor := e.loops.Evaluate(ctx, node, r.state.LoopCursor)
		r.state.LoopCursor = cursor

		return outcome
	case models.NodeKindEnd:
		return models.Success(nil)
	default:
		return models.Fail(fmt.Sprintf("unknown node kind %q", node.Kind))
	}
}

// nextNodes resolves the frontier that follows the node. Condition nodes
// follow their branch-labeled edge; a missing branch ends the path with
// a warning. Any other node follows its outgoing edges, multiple
// unlabeled edges fanning out in node-id order.
func (e *Executor) nextNodes(r *run, node *models.Node, branch string) []string {
	if node.Kind == models.NodeKindCondition {
		edge := r.workflow.OutgoingBranch(node.ID, branch)
		if edge == nil {
			warning := fmt.Sprintf("condition node %q has no outgoing edge for branch %q", node.ID, branch)
			r.warnings = append(r.warnings, warning)
			e.logger.Warn("branch has no outgoing edge", "node_id", node.ID, "branch", branch)

			return nil
		}

		return []string{edge.TargetNodeID}
	}

	edges := r.workflow.OutgoingEdges(node.ID)
	targets := make([]string, 0, len(edges))

	for _, edge := range edges {
		targets = append(targets, edge.TargetNodeID)
	}

	sort.Strings(targets)

	return targets
}

// pause persists the checkpoint and suspends the run. Losing the
// checkpoint write fails the run: without it the resume point is gone.
func (e *Executor) pause(ctx context.Context, r *run, node *models.Node, outcome *models.Outcome) {
	state := r.state
	state.Status = models.ExecutionStatusPaused
	state.PauseNodeID = node.ID
	state.ResumeAt = outcome.ResumeAt
	state.Version++
	state.UpdatedAt = e.now().UTC()

	if err := e.paused.SavePausedState(ctx, state); err != nil {
		state.Status = models.ExecutionStatusFailed
		state.RecordError(node.ID, fmt.Sprintf("failed to persist pause checkpoint: %v", err))
		e.logger.Error("pause checkpoint write failed",
			"workflow_id", state.WorkflowID, "lead_id", state.LeadID, "error", err)

		return
	}

	e.logger.Info("run paused",
		"workflow_id", state.WorkflowID, "lead_id", state.LeadID,
		"pause_node_id", node.ID, "resume_at", state.ResumeAt)
	e.publish(ctx, state.ID, events.RunPaused{
		BaseEvent:   events.NewBaseEvent(events.RunPausedEvent, state.WorkflowID),
		ExecutionID: state.ID,
		LeadID:      state.LeadID,
		PauseNodeID: node.ID,
		ResumeAt:    state.ResumeAt,
	})
}

// finish projects the state into a trace, updates run counters for
// terminal states, and emits the terminal lifecycle event.
func (e *Executor) finish(ctx context.Context, r *run) *models.ExecutionTrace {
	state := r.state
	now := e.now().UTC()

	trace := &models.ExecutionTrace{
		ExecutionID:  state.ID,
		WorkflowID:   state.WorkflowID,
		LeadID:       state.LeadID,
		Status:       state.Status,
		Visited:      append([]string(nil), state.Visited...),
		Completed:    sortedKeys(state.Completed),
		Skipped:      sortedKeys(state.Skipped),
		Errors:       append([]models.NodeError(nil), state.Errors...),
		ActionsTaken: r.actions,
		Warnings:     r.warnings,
		Duration:     now.Sub(r.startedAt),
		CapturedAt:   now,
	}

	if !state.Status.Terminal() {
		return trace
	}

	success := state.Status == models.ExecutionStatusCompleted

	if e.stats != nil {
		// Counter updates are best-effort bookkeeping.
		if err := e.stats.IncrementRunStats(ctx, state.WorkflowID, success); err != nil {
			e.logger.Warn("failed to update run stats", "workflow_id", state.WorkflowID, "error", err)
		}
	}

	if success {
		e.publish(ctx, state.ID, events.RunCompleted{
			BaseEvent:   events.NewBaseEvent(events.RunCompletedEvent, state.WorkflowID),
			ExecutionID: state.ID,
			LeadID:      state.LeadID,
			Duration:    trace.Duration,
		})
	} else {
		e.publish(ctx, state.ID, events.RunFailed{
			BaseEvent:   events.NewBaseEvent(events.RunFailedEvent, state.WorkflowID),
			ExecutionID: state.ID,
			LeadID:      state.LeadID,
			Errors:      trace.Errors,
			Duration:    trace.Duration,
		})
	}

	return trace
}

func (e *Executor) publish(ctx context.Context, key string, event events.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.Warn("failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// runError maps a failed state to its top-level error for callers.
func (e *Executor) runError(state *models.ExecutionState) error {
	if state.Status != models.ExecutionStatusFailed {
		return nil
	}

	if len(state.Errors) > 0 {
		last := state.Errors[len(state.Errors)-1]
		if last.NodeID != "" {
			return fmt.Errorf("node %s: %s", last.NodeID, last.Message)
		}

		return errors.New(last.Message)
	}

	return errors.New("run failed")
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
