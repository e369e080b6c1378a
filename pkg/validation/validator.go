// Package validation provides structural checks for workflow graphs. The
// validator reports every violation it finds in one pass so callers can
// surface all problems at once; it never mutates the graph and never
// fails for structurally invalid input.
package validation

import (
	"fmt"
	"sort"

	"github.com/leadflowhq/leadflow/pkg/models"
)

// ErrorType classifies a structural graph defect.
type ErrorType string

const (
	ErrorMissingTrigger   ErrorType = "missing_trigger"
	ErrorMultipleTriggers ErrorType = "multiple_triggers"
	ErrorCycle            ErrorType = "cycle"
	ErrorDisconnected     ErrorType = "disconnected"
	ErrorInvalidCondition ErrorType = "invalid_condition"
	ErrorInvalidEdge      ErrorType = "invalid_edge"
	ErrorUnknownKind      ErrorType = "unknown_kind"
)

// Error is one structural defect, attributable to a node or edge where
// that makes sense. Details carries machine-readable context (cycle path,
// unreachable ids, branch counts) for rendering by CLI, API, or UI.
type Error struct {
	Type    ErrorType      `json:"type"`
	Message string         `json:"message"`
	NodeID  string         `json:"node_id,omitempty"`
	EdgeID  string         `json:"edge_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is the outcome of validating a graph.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []Error  `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

const largeGraphThreshold = 50

// Validate runs every structural check against the workflow graph.
func Validate(wf *models.Workflow) Result {
	result := Result{}

	nodesByID := make(map[string]*models.Node, len(wf.Nodes))
	for _, node := range wf.Nodes {
		nodesByID[node.ID] = node

		if !node.Kind.Valid() {
			result.Errors = append(result.Errors, Error{
				Type:    ErrorUnknownKind,
				Message: fmt.Sprintf("node %s has unknown kind %q", node.ID, node.Kind),
				NodeID:  node.ID,
			})
		}
	}

	result.Errors = append(result.Errors, checkEdges(wf, nodesByID)...)

	triggers := wf.TriggerNodes()
	result.Errors = append(result.Errors, checkTrigger(triggers)...)

	if cycleErr := findCycle(wf, nodesByID, triggers); cycleErr != nil {
		result.Errors = append(result.Errors, *cycleErr)
	}

	if len(triggers) == 1 {
		result.Errors = append(result.Errors, checkReachability(wf, triggers[0], nodesByID)...)
	}

	result.Errors = append(result.Errors, checkConditions(wf)...)
	result.Warnings = warnings(wf)
	result.Valid = len(result.Errors) == 0

	return result
}

func checkTrigger(triggers []*models.Node) []Error {
	switch len(triggers) {
	case 1:
		return nil
	case 0:
		return []Error{{
			Type:    ErrorMissingTrigger,
			Message: "workflow has no trigger node",
		}}
	default:
		ids := make([]string, len(triggers))
		for i, trigger := range triggers {
			ids[i] = trigger.ID
		}

		return []Error{{
			Type:    ErrorMultipleTriggers,
			Message: fmt.Sprintf("workflow has %d trigger nodes, expected exactly 1", len(triggers)),
			Details: map[string]any{"trigger_ids": ids},
		}}
	}
}

func checkEdges(wf *models.Workflow, nodesByID map[string]*models.Node) []Error {
	var errs []Error

	for _, edge := range wf.Edges {
		if _, ok := nodesByID[edge.SourceNodeID]; !ok {
			errs = append(errs, Error{
				Type:    ErrorInvalidEdge,
				Message: fmt.Sprintf("edge %s references missing source node %s", edge.ID, edge.SourceNodeID),
				EdgeID:  edge.ID,
			})
		}

		if _, ok := nodesByID[edge.TargetNodeID]; !ok {
			errs = append(errs, Error{
				Type:    ErrorInvalidEdge,
				Message: fmt.Sprintf("edge %s references missing target node %s", edge.ID, edge.TargetNodeID),
				EdgeID:  edge.ID,
			})
		}

		if edge.SourceNodeID == edge.TargetNodeID {
			errs = append(errs, Error{
				Type:    ErrorInvalidEdge,
				Message: fmt.Sprintf("edge %s is a self-loop on node %s", edge.ID, edge.SourceNodeID),
				EdgeID:  edge.ID,
				NodeID:  edge.SourceNodeID,
			})
		}
	}

	return errs
}

// findCycle runs a depth-first search with an explicit recursion stack and
// reports the first cycle reachable from any node. Only the first cycle is
// reported per validation run; after fixing it, revalidating discovers any
// further cycles. Accepted limitation, not silently worked around.
func findCycle(wf *models.Workflow, nodesByID map[string]*models.Node, triggers []*models.Node) *Error {
	adjacency := make(map[string][]string, len(wf.Nodes))

	for _, edge := range wf.Edges {
		if edge.SourceNodeID == edge.TargetNodeID {
			continue // reported separately as invalid_edge
		}

		if _, ok := nodesByID[edge.SourceNodeID]; !ok {
			continue
		}

		if _, ok := nodesByID[edge.TargetNodeID]; !ok {
			continue
		}

		adjacency[edge.SourceNodeID] = append(adjacency[edge.SourceNodeID], edge.TargetNodeID)
	}

	visited := make(map[string]bool, len(wf.Nodes))
	onStack := make(map[string]bool, len(wf.Nodes))

	var cycle []string

	var walk func(nodeID string, path []string) bool

	walk = func(nodeID string, path []string) bool {
		visited[nodeID] = true
		onStack[nodeID] = true
		path = append(path, nodeID)

		for _, next := range adjacency[nodeID] {
			if onStack[next] {
				// Cycle is the path suffix starting at the repeated
				// node, closed by repeating it.
				start := 0
				for i, id := range path {
					if id == next {
						start = i
						break
					}
				}

				cycle = append(append([]string{}, path[start:]...), next)

				return true
			}

			if !visited[next] && walk(next, path) {
				return true
			}
		}

		onStack[nodeID] = false

		return false
	}

	// Start from the trigger(s) first so a reported cycle is one execution
	// would actually reach, then sweep the remaining nodes.
	startOrder := make([]string, 0, len(wf.Nodes))
	for _, trigger := range triggers {
		startOrder = append(startOrder, trigger.ID)
	}

	for _, node := range wf.Nodes {
		startOrder = append(startOrder, node.ID)
	}

	for _, id := range startOrder {
		if !visited[id] && walk(id, nil) {
			return &Error{
				Type:    ErrorCycle,
				Message: fmt.Sprintf("workflow contains a cycle: %v", cycle),
				NodeID:  cycle[0],
				Details: map[string]any{"cycle": cycle},
			}
		}
	}

	return nil
}

func checkReachability(wf *models.Workflow, trigger *models.Node, nodesByID map[string]*models.Node) []Error {
	reachable := map[string]bool{trigger.ID: true}
	queue := []string{trigger.ID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range wf.OutgoingEdges(current) {
			if _, ok := nodesByID[edge.TargetNodeID]; !ok {
				continue
			}

			if !reachable[edge.TargetNodeID] {
				reachable[edge.TargetNodeID] = true
				queue = append(queue, edge.TargetNodeID)
			}
		}
	}

	var unreachable []string

	for _, node := range wf.Nodes {
		if !reachable[node.ID] {
			unreachable = append(unreachable, node.ID)
		}
	}

	if len(unreachable) == 0 {
		return nil
	}

	sort.Strings(unreachable)

	return []Error{{
		Type:    ErrorDisconnected,
		Message: fmt.Sprintf("%d node(s) are not reachable from the trigger: %v", len(unreachable), unreachable),
		Details: map[string]any{"unreachable": unreachable},
	}}
}

func checkConditions(wf *models.Workflow) []Error {
	var errs []Error

	for _, node := range wf.Nodes {
		if node.Kind != models.NodeKindCondition {
			continue
		}

		outgoing := wf.OutgoingEdges(node.ID)
		if len(outgoing) != 2 {
			errs = append(errs, Error{
				Type:    ErrorInvalidCondition,
				Message: fmt.Sprintf("condition node %s has %d outgoing edges, expected 2", node.ID, len(outgoing)),
				NodeID:  node.ID,
				Details: map[string]any{"actual_branches": len(outgoing), "expected_branches": 2},
			})

			continue
		}

		labels := map[string]bool{}
		for _, edge := range outgoing {
			labels[edge.BranchLabel] = true
		}

		for _, required := range []string{models.BranchTrue, models.BranchFalse} {
			if !labels[required] {
				errs = append(errs, Error{
					Type:    ErrorInvalidCondition,
					Message: fmt.Sprintf("condition node %s is missing the %q branch", node.ID, required),
					NodeID:  node.ID,
					Details: map[string]any{"missing_branch": required},
				})
			}
		}
	}

	return errs
}

func warnings(wf *models.Workflow) []string {
	var warns []string

	if len(wf.Nodes) > largeGraphThreshold {
		warns = append(warns, fmt.Sprintf("workflow has %d nodes; graphs over %d nodes are hard to maintain", len(wf.Nodes), largeGraphThreshold))
	}

	if len(wf.Nodes) > 1 {
		hasEnd := false

		for _, node := range wf.Nodes {
			if node.Kind == models.NodeKindEnd {
				hasEnd = true
				break
			}
		}

		if !hasEnd {
			warns = append(warns, "workflow has no end node; execution stops at the first node without an outgoing edge")
		}
	}

	return warns
}
