package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/models"
)

type fakeItemSource struct {
	leads     []string
	members   []string
	err       error
	lastLimit int
}

func (f *fakeItemSource) LeadsMatching(_ context.Context, _ map[string]any, limit int) ([]string, error) {
	f.lastLimit = limit
	return f.leads, f.err
}

func (f *fakeItemSource) AudienceMembers(_ context.Context, _ string, limit int) ([]string, error) {
	f.lastLimit = limit
	return f.members, f.err
}

func loopNode(config map[string]any) *models.Node {
	return &models.Node{ID: "l1", Kind: models.NodeKindLoop, Config: config}
}

func TestParseConfig(t *testing.T) {
	t.Run("filter source", func(t *testing.T) {
		config, err := ParseConfig(map[string]any{
			"source": "filter",
			"filter": map[string]any{"stage": "new"},
		})
		require.NoError(t, err)
		assert.Equal(t, "filter", config.Source)
		assert.Equal(t, DefaultMaxIterations, config.MaxIterations)
	})

	t.Run("audience source with cap", func(t *testing.T) {
		config, err := ParseConfig(map[string]any{
			"source":        "audience",
			"audience":      "trial-users",
			"maxIterations": float64(5),
		})
		require.NoError(t, err)
		assert.Equal(t, "trial-users", config.Audience)
		assert.Equal(t, 5, config.MaxIterations)
	})

	t.Run("missing audience", func(t *testing.T) {
		_, err := ParseConfig(map[string]any{"source": "audience"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audience")
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := ParseConfig(map[string]any{"source": "segment"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source")
	})

	t.Run("cap below one", func(t *testing.T) {
		_, err := ParseConfig(map[string]any{"source": "filter", "maxIterations": float64(0)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maxIterations")
	})
}

func TestEvaluateIteratesCollection(t *testing.T) {
	items := &fakeItemSource{leads: []string{"a", "b", "c"}}
	evaluator := NewEvaluator(items)
	node := loopNode(map[string]any{"source": "filter"})

	var cursor *models.LoopCursor

	for i, want := range []string{"a", "b", "c"} {
		outcome, next := evaluator.Evaluate(t.Context(), node, cursor)
		require.Equal(t, models.OutcomeSuccess, outcome.Kind)
		assert.Equal(t, want, outcome.Data["current_item"])
		assert.Equal(t, i, outcome.Data["current_index"])
		assert.Equal(t, 3, outcome.Data["total_items"])
		cursor = next
	}

	outcome, next := evaluator.Evaluate(t.Context(), node, cursor)
	require.Equal(t, models.OutcomeSkip, outcome.Kind)
	assert.Equal(t, "loop_completed", outcome.Message)
	assert.Equal(t, 3, outcome.Data["iterations"])
	assert.Nil(t, next)
}

func TestEvaluateMaterializesOncePerCursor(t *testing.T) {
	items := &fakeItemSource{leads: []string{"a", "b"}}
	evaluator := NewEvaluator(items)
	node := loopNode(map[string]any{"source": "filter"})

	_, cursor := evaluator.Evaluate(t.Context(), node, nil)
	require.NotNil(t, cursor)

	// A cursor pointing at a different loop node forces rematerialization.
	items.leads = []string{"x"}
	stale := &models.LoopCursor{LoopNodeID: "other", Index: 5, Items: []string{"ignored"}}

	outcome, fresh := evaluator.Evaluate(t.Context(), node, stale)
	require.Equal(t, models.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, "x", outcome.Data["current_item"])
	assert.Equal(t, node.ID, fresh.LoopNodeID)
}

func TestEvaluateHonorsIterationCap(t *testing.T) {
	items := &fakeItemSource{members: []string{"a", "b", "c", "d"}}
	evaluator := NewEvaluator(items)
	node := loopNode(map[string]any{
		"source":        "audience",
		"audience":      "trial-users",
		"maxIterations": float64(2),
	})

	var cursor *models.LoopCursor
	for range 2 {
		var outcome *models.Outcome
		outcome, cursor = evaluator.Evaluate(t.Context(), node, cursor)
		require.Equal(t, models.OutcomeSuccess, outcome.Kind)
	}

	outcome, _ := evaluator.Evaluate(t.Context(), node, cursor)
	require.Equal(t, models.OutcomeSkip, outcome.Kind)
	assert.Equal(t, 2, outcome.Data["iterations"])
	assert.Equal(t, 2, items.lastLimit)
}

func TestEvaluateFailures(t *testing.T) {
	t.Run("item source error", func(t *testing.T) {
		evaluator := NewEvaluator(&fakeItemSource{err: errors.New("store offline")})

		outcome, _ := evaluator.Evaluate(t.Context(), loopNode(map[string]any{"source": "filter"}), nil)
		require.Equal(t, models.OutcomeFail, outcome.Kind)
		assert.Contains(t, outcome.Message, "store offline")
	})

	t.Run("no item source", func(t *testing.T) {
		evaluator := NewEvaluator(nil)

		outcome, _ := evaluator.Evaluate(t.Context(), loopNode(map[string]any{"source": "filter"}), nil)
		require.Equal(t, models.OutcomeFail, outcome.Kind)
		assert.Contains(t, outcome.Message, "no item source")
	})

	t.Run("invalid config", func(t *testing.T) {
		evaluator := NewEvaluator(&fakeItemSource{})

		outcome, _ := evaluator.Evaluate(t.Context(), loopNode(map[string]any{}), nil)
		require.Equal(t, models.OutcomeFail, outcome.Kind)
		assert.Contains(t, outcome.Message, "invalid loop config")
	})
}
