// Package loop provides the loop node evaluator. A loop node iterates a
// materialized collection one item per visit through an external cursor;
// it does not re-enter downstream nodes per item (documented limitation
// of the graph model).
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadflowhq/leadflow/pkg/models"
)

// DefaultMaxIterations caps a loop that does not configure its own cap.
const DefaultMaxIterations = 100

// ItemSource materializes the collection a loop node iterates: lead ids
// matching a filter, or the membership of a named audience.
type ItemSource interface {
	LeadsMatching(ctx context.Context, filter map[string]any, limit int) ([]string, error)
	AudienceMembers(ctx context.Context, audience string, limit int) ([]string, error)
}

// Config is the typed shape of a loop node's config map.
type Config struct {
	Source        string // "filter" or "audience"
	Filter        map[string]any
	Audience      string
	MaxIterations int
}

// ParseConfig parses and checks the loop node configuration.
func ParseConfig(config map[string]any) (*Config, error) {
	parsed := &Config{MaxIterations: DefaultMaxIterations}

	source, _ := config["source"].(string)

	switch source {
	case "filter":
		filter, _ := config["filter"].(map[string]any)
		parsed.Source = source
		parsed.Filter = filter
	case "audience":
		audience, ok := config["audience"].(string)
		if !ok || audience == "" {
			return nil, errors.New("missing required field 'audience'")
		}

		parsed.Source = source
		parsed.Audience = audience
	default:
		return nil, fmt.Errorf("field 'source' must be \"filter\" or \"audience\", got %q", source)
	}

	if max, ok := config["maxIterations"].(float64); ok {
		if max < 1 {
			return nil, errors.New("maxIterations must be at least 1")
		}

		parsed.MaxIterations = int(max)
	}

	return parsed, nil
}

// Evaluator resolves loop collections through an ItemSource.
type Evaluator struct {
	items ItemSource
}

// NewEvaluator creates a loop evaluator backed by the given item source.
func NewEvaluator(items ItemSource) *Evaluator {
	return &Evaluator{items: items}
}

// Evaluate advances the loop cursor by one item. The first visit
// materializes the collection into the cursor; exhausting the items or
// hitting the iteration cap reports loop_completed as a skip.
func (e *Evaluator) Evaluate(ctx context.Context, node *models.Node, cursor *models.LoopCursor) (*models.Outcome, *models.LoopCursor) {
	config, err := ParseConfig(node.Config)
	if err != nil {
		return models.Fail(fmt.Sprintf("invalid loop config: %v", err)), cursor
	}

	if cursor == nil || cursor.LoopNodeID != node.ID {
		items, err := e.materialize(ctx, config)
		if err != nil {
			return models.Fail(fmt.Sprintf("failed to materialize loop items: %v", err)), cursor
		}

		cursor = &models.LoopCursor{LoopNodeID: node.ID, Index: 0, Items: items}
	}

	if cursor.Index >= len(cursor.Items) || cursor.Index >= config.MaxIterations {
		outcome := models.Skip("loop_completed", map[string]any{
			"total_items": len(cursor.Items),
			"iterations":  cursor.Index,
		})

		return outcome, nil
	}

	item := cursor.Items[cursor.Index]
	cursor.Index++

	return models.Success(map[string]any{
		"current_item":    item,
		"current_index":   cursor.Index - 1,
		"total_items":     len(cursor.Items),
		"remaining_items": len(cursor.Items) - cursor.Index,
	}), cursor
}

func (e *Evaluator) materialize(ctx context.Context, config *Config) ([]string, error) {
	if e.items == nil {
		return nil, errors.New("no item source configured")
	}

	switch config.Source {
	case "filter":
		return e.items.LeadsMatching(ctx, config.Filter, config.MaxIterations)
	case "audience":
		return e.items.AudienceMembers(ctx, config.Audience, config.MaxIterations)
	default:
		return nil, fmt.Errorf("unknown loop source %q", config.Source)
	}
}
