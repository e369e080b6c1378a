package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/models"
)

func node(id string, kind models.NodeKind) *models.Node {
	return &models.Node{ID: id, Kind: kind}
}

func edge(id, source, target string) *models.Edge {
	return &models.Edge{ID: id, SourceNodeID: source, TargetNodeID: target}
}

func branchEdge(id, source, target, label string) *models.Edge {
	return &models.Edge{ID: id, SourceNodeID: source, TargetNodeID: target, BranchLabel: label}
}

func errorTypes(result Result) []ErrorType {
	types := make([]ErrorType, len(result.Errors))
	for i, e := range result.Errors {
		types[i] = e.Type
	}

	return types
}

func TestValidateAcceptsLinearGraph(t *testing.T) {
	wf := &models.Workflow{
		Nodes: []*models.Node{
			node("t1", models.NodeKindTrigger),
			node("a1", models.NodeKindAction),
			node("end", models.NodeKindEnd),
		},
		Edges: []*models.Edge{
			edge("e1", "t1", "a1"),
			edge("e2", "a1", "end"),
		},
	}

	result := Validate(wf)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateMissingTrigger(t *testing.T) {
	wf := &models.Workflow{
		Nodes: []*models.Node{node("end", models.NodeKindEnd)},
	}

	result := Validate(wf)
	assert.False(t, result.Valid)
	assert.Contains(t, errorTypes(result), ErrorMissingTrigger)
}

func TestValidateMultipleTriggers(t *testing.T) {
	wf := &models.Workflow{
		Nodes: []*models.Node{
			node("t1", models.NodeKindTrigger),
			node("t2", models.NodeKindTrigger),
			node("end", models.NodeKindEnd),
		},
		Edges: []*models.Edge{
			edge("e1", "t1", "end"),
			edge("e2", "t2", "end"),
		},
	}

	result := Validate(wf)
	assert.False(t, result.Valid)

	require.Contains(t, errorTypes(result), ErrorMultipleTriggers)

	for _, e := range result.Errors {
		if e.Type == ErrorMultipleTriggers {
			assert.Equal(t, []string{"t1", "t2"}, e.Details["trigger_ids"])
		}
	}
}

func TestValidateReportsCyclePath(t *testing.T) {
	wf := &models.Workflow{
		Nodes: []*models.Node{
			node("t1", models.NodeKindTrigger),
			node("a", models.NodeKindAction),
			node("b", models.NodeKindAction),
			node("c", models.NodeKindAction),
		},
		Edges: []*models.Edge{
			edge("e1", "t1", "a"),
			edge("e2", "a", "b"),
			edge("e3", "b", "c"),
			edge("e4", "c", "a"),
		},
	}

	result := Validate(wf)
	assert.False(t, result.Valid)

	found := false

	for _, e := range result.Errors {
		if e.Type == ErrorCycle {
			found = true

			assert.Equal(t, []string{"a", "b", "c", "a"}, e.Details["cycle"])
		}
	}

	assert.True(t, found, "expected a cycle error")
}

func TestValidateDisconnectedNodes(t *testing.T) {
	wf := &models.Workflow{
		Nodes: []*models.Node{
			node("t1", models.NodeKindTrigger),
			node("a1", models.NodeKindAction),
			node("orphan", models.NodeKindAction),
			node("end", models.NodeKindEnd),
		},
		Edges: []*models.Edge{
			edge("e1", "t1", "a1"),
			edge("e2", "a1", "end"),
		},
	}

	result := Validate(wf)
	assert.False(t, result.Valid)

	for _, e := range result.Errors {
		if e.Type == ErrorDisconnected {
			assert.Equal(t, []string{"orphan"}, e.Details["unreachable"])
		}
	}
}

func TestValidateConditionBranches(t *testing.T) {
	tests := []struct {
		name   string
		edges  []*models.Edge
		expect bool
	}{
		{
			name: "complete true and false branches",
			edges: []*models.Edge{
				edge("e1", "t1", "c1"),
				branchEdge("e2", "c1", "a1", "true"),
				branchEdge("e3", "c1", "end", "false"),
				edge("e4", "a1", "end"),
			},
			expect: true,
		},
		{
			name: "single outgoing edge",
			edges: []*models.Edge{
				edge("e1", "t1", "c1"),
				branchEdge("e2", "c1", "end", "true"),
			},
			expect: false,
		},
		{
			name: "duplicate true labels",
			edges: []*models.Edge{
				edge("e1", "t1", "c1"),
				branchEdge("e2", "c1", "a1", "true"),
				branchEdge("e3", "c1", "end", "true"),
				edge("e4", "a1", "end"),
			},
			expect: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &models.Workflow{
				Nodes: []*models.Node{
					node("t1", models.NodeKindTrigger),
					node("c1", models.NodeKindCondition),
					node("a1", models.NodeKindAction),
					node("end", models.NodeKindEnd),
				},
				Edges: tt.edges,
			}

			result := Validate(wf)

			if tt.expect {
				assert.True(t, result.Valid, "errors: %v", result.Errors)
			} else {
				assert.False(t, result.Valid)
				assert.Contains(t, errorTypes(result), ErrorInvalidCondition)
			}
		})
	}
}

func TestValidateEdgeReferences(t *testing.T) {
	wf := &models.Workflow{
		Nodes: []*models.Node{
			node("t1", models.NodeKindTrigger),
			node("end", models.NodeKindEnd),
		},
		Edges: []*models.Edge{
			edge("e1", "t1", "ghost"),
			edge("e2", "t1", "end"),
			edge("e3", "end", "end"),
		},
	}

	result := Validate(wf)
	assert.False(t, result.Valid)

	count := 0

	for _, e := range result.Errors {
		if e.Type == ErrorInvalidEdge {
			count++
		}
	}

	assert.Equal(t, 2, count)
}

func TestValidateUnknownNodeKind(t *testing.T) {
	wf := &models.Workflow{
		Nodes: []*models.Node{
			node("t1", models.NodeKindTrigger),
			{ID: "x1", Kind: "teleport"},
			node("end", models.NodeKindEnd),
		},
		Edges: []*models.Edge{
			edge("e1", "t1", "x1"),
			edge("e2", "x1", "end"),
		},
	}

	result := Validate(wf)
	assert.False(t, result.Valid)
	assert.Contains(t, errorTypes(result), ErrorUnknownKind)
}

func TestValidateLargeGraphWarning(t *testing.T) {
	nodes := []*models.Node{node("t1", models.NodeKindTrigger)}
	edges := []*models.Edge{}
	prev := "t1"

	for i := 0; i < largeGraphThreshold; i++ {
		id := fmt.Sprintf("a%03d", i)
		nodes = append(nodes, node(id, models.NodeKindAction))
		edges = append(edges, edge("e-"+id, prev, id))
		prev = id
	}

	nodes = append(nodes, node("end", models.NodeKindEnd))
	edges = append(edges, edge("e-end", prev, "end"))

	wf := &models.Workflow{Nodes: nodes, Edges: edges}

	result := Validate(wf)
	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "hard to maintain")
}

func TestValidateMissingEndWarning(t *testing.T) {
	wf := &models.Workflow{
		Nodes: []*models.Node{
			node("t1", models.NodeKindTrigger),
			node("a1", models.NodeKindAction),
		},
		Edges: []*models.Edge{
			edge("e1", "t1", "a1"),
		},
	}

	result := Validate(wf)
	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "no end node")
}
