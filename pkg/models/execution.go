package models

import "time"

// ExecutionStatus defines the possible states of a workflow run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status ends a run. Paused is not terminal:
// the state stays durably stored until a resume consumes it.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// NodeError attributes a failure to a specific node. Engine-level fatal
// errors use an empty NodeID.
type NodeError struct {
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

// LoopCursor tracks progress through a loop node's materialized item
// collection across visits.
type LoopCursor struct {
	LoopNodeID string   `json:"loop_node_id"`
	Index      int      `json:"index"`
	Items      []string `json:"items"`
}

// ExecutionState is the mutable, persisted record of an in-flight run.
// It is exclusively owned by the single Execute/Resume call driving it;
// while paused it is durably stored keyed by (workflow id, lead id) with
// an optimistic version guarding against concurrent resumes.
type ExecutionState struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflow_id"`
	LeadID        string          `json:"lead_id"`
	CurrentNodeID string          `json:"current_node_id"`
	Status        ExecutionStatus `json:"status"`
	Visited       []string        `json:"visited"`
	Completed     map[string]bool `json:"completed"`
	Skipped       map[string]bool `json:"skipped"`
	Errors        []NodeError     `json:"errors,omitempty"`
	Variables     map[string]any  `json:"variables,omitempty"`
	PauseNodeID   string          `json:"pause_node_id,omitempty"`
	ResumeAt      *time.Time      `json:"resume_at,omitempty"`
	LoopCursor    *LoopCursor     `json:"loop_cursor,omitempty"`
	Version       int             `json:"version"`
	StartedAt     time.Time       `json:"started_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarkVisited appends the node to the visit order exactly once per visit.
func (s *ExecutionState) MarkVisited(nodeID string) {
	s.Visited = append(s.Visited, nodeID)
}

// MarkCompleted records the node as completed.
func (s *ExecutionState) MarkCompleted(nodeID string) {
	if s.Completed == nil {
		s.Completed = make(map[string]bool)
	}

	s.Completed[nodeID] = true
}

// MarkSkipped records the node as skipped, not errored.
func (s *ExecutionState) MarkSkipped(nodeID string) {
	if s.Skipped == nil {
		s.Skipped = make(map[string]bool)
	}

	s.Skipped[nodeID] = true
}

// RecordError appends a node-attributed error.
func (s *ExecutionState) RecordError(nodeID, message string) {
	s.Errors = append(s.Errors, NodeError{NodeID: nodeID, Message: message})
}

// ActionRecord is one entry in the ordered list of node outcome records
// a run emits: action results, plus the delay_completed record a resume
// writes for its consumed pause node. Consumed by callers and the
// dry-run harness.
type ActionRecord struct {
	NodeID     string         `json:"node_id"`
	ActionName string         `json:"action_name"`
	Result     map[string]any `json:"result,omitempty"`
}

// ExecutionTrace is the read-only projection of a terminal or paused run.
type ExecutionTrace struct {
	ExecutionID  string          `json:"execution_id"`
	WorkflowID   string          `json:"workflow_id"`
	LeadID       string          `json:"lead_id"`
	Status       ExecutionStatus `json:"status"`
	Visited      []string        `json:"visited"`
	Completed    []string        `json:"completed"`
	Skipped      []string        `json:"skipped"`
	Errors       []NodeError     `json:"errors,omitempty"`
	ActionsTaken []ActionRecord  `json:"actions_taken,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
	DryRun       bool            `json:"dry_run,omitempty"`
	Duration     time.Duration   `json:"duration"`
	CapturedAt   time.Time       `json:"captured_at"`
}
