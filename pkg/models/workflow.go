package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, not executable
)

// RunStats is the best-effort run counter aggregate owned by the record
// store. The engine issues an atomic increment after each run; a failure
// to update stats never fails the run itself.
type RunStats struct {
	Runs      int64 `json:"runs"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// Workflow is a directed graph of typed nodes executed against a single
// lead record.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"      validate:"required"`
	Nodes       []*Node        `json:"nodes"`
	Edges       []*Edge        `json:"edges"`
	Stats       RunStats       `json:"stats"`
	Owner       string         `json:"owner,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// TriggerNodes returns all nodes of kind trigger, in declaration order.
func (w *Workflow) TriggerNodes() []*Node {
	triggers := make([]*Node, 0, 1)

	for _, node := range w.Nodes {
		if node.Kind == NodeKindTrigger {
			triggers = append(triggers, node)
		}
	}

	return triggers
}

// OutgoingEdges returns every edge whose source is the given node, in
// declaration order.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	edges := make([]*Edge, 0, 2)

	for _, edge := range w.Edges {
		if edge.SourceNodeID == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// OutgoingBranch returns the outgoing edge of nodeID carrying the given
// branch label, or nil when no such edge exists.
func (w *Workflow) OutgoingBranch(nodeID, label string) *Edge {
	for _, edge := range w.Edges {
		if edge.SourceNodeID == nodeID && edge.BranchLabel == label {
			return edge
		}
	}

	return nil
}
