// Package models defines the core domain models for lead workflow automation.
package models

// NodeKind is the closed set of node types a workflow graph can contain.
// Evaluator dispatch switches exhaustively over this set; adding a kind is
// a compile-checked change, not a silently ignored default branch.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindCondition NodeKind = "condition"
	NodeKindAction    NodeKind = "action"
	NodeKindDelay     NodeKind = "delay"
	NodeKindLoop      NodeKind = "loop"
	NodeKindEnd       NodeKind = "end"
)

// KnownNodeKinds lists every valid node kind, in dispatch order.
var KnownNodeKinds = []NodeKind{
	NodeKindTrigger,
	NodeKindCondition,
	NodeKindAction,
	NodeKindDelay,
	NodeKindLoop,
	NodeKindEnd,
}

// Valid reports whether k is a member of the closed node kind set.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindTrigger, NodeKindCondition, NodeKindAction, NodeKindDelay, NodeKindLoop, NodeKindEnd:
		return true
	}

	return false
}

// Branch labels on edges leaving a condition node.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Node is a typed step in a workflow graph. Immutable once a graph is
// loaded for execution.
type Node struct {
	ID      string         `json:"id"                validate:"required"`
	Kind    NodeKind       `json:"kind"              validate:"required"`
	Subtype string         `json:"subtype,omitempty"`
	Name    string         `json:"name,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}

// Edge is a directed connection between two nodes. BranchLabel is
// significant only for edges leaving a condition node, where it must be
// exactly "true" or "false".
type Edge struct {
	ID           string `json:"id"                     validate:"required"`
	SourceNodeID string `json:"source_node_id"         validate:"required"`
	TargetNodeID string `json:"target_node_id"         validate:"required"`
	BranchLabel  string `json:"branch_label,omitempty"`
}
