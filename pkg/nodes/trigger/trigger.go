// Package trigger provides the trigger node evaluator. A trigger is the
// unique entry point of a workflow graph: explicitly invoked runs always
// pass it, while typed triggers can also be evaluated against record
// state so callers can decide whether a workflow should run at all.
package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/units"
)

// Kind is the closed set of trigger subtypes.
type Kind string

const (
	KindManual         Kind = "manual"
	KindStageEntered   Kind = "stage_entered"
	KindFieldThreshold Kind = "field_threshold"
	KindTimeBased      Kind = "time_based"
	KindTagApplied     Kind = "tag_applied"
	KindExternalEvent  Kind = "external_event"
)

// Evaluate dispatches the trigger node inside a run. A non-firing typed
// trigger is reported through the triggered flag, never as a failure:
// the node still counts as visited and the caller decides what a false
// result means.
func Evaluate(node *models.Node, lead *models.Lead, eventData map[string]any, now time.Time) *models.Outcome {
	fired, err := Fires(node, lead, eventData, now)
	if err != nil {
		return models.Fail(fmt.Sprintf("invalid trigger config: %v", err))
	}

	return models.Success(map[string]any{
		"triggered": fired,
		"subtype":   node.Subtype,
	})
}

// Fires evaluates a trigger node against the lead and optional external
// event data. Manual triggers and an empty subtype always fire.
func Fires(node *models.Node, lead *models.Lead, eventData map[string]any, now time.Time) (bool, error) {
	switch Kind(node.Subtype) {
	case KindManual, Kind(""):
		return true, nil
	case KindStageEntered:
		return stageEntered(node.Config, lead)
	case KindFieldThreshold:
		return fieldThreshold(node.Config, lead)
	case KindTimeBased:
		return timeBased(node.Config, now)
	case KindTagApplied:
		return tagApplied(node.Config, lead)
	case KindExternalEvent:
		return externalEvent(node.Config, eventData, now)
	default:
		return false, fmt.Errorf("unknown trigger subtype %q", node.Subtype)
	}
}

func stageEntered(config map[string]any, lead *models.Lead) (bool, error) {
	stage, ok := config["stage"].(string)
	if !ok || stage == "" {
		return false, errors.New("missing required field 'stage'")
	}

	return lead.Stage == stage, nil
}

// fieldThreshold checks a numeric field against a threshold with one of
// eq/ne/gt/gte/lt/lte.
func fieldThreshold(config map[string]any, lead *models.Lead) (bool, error) {
	field, ok := config["field"].(string)
	if !ok || field == "" {
		return false, errors.New("missing required field 'field'")
	}

	operator, ok := config["operator"].(string)
	if !ok || operator == "" {
		return false, errors.New("missing required field 'operator'")
	}

	threshold, ok := toFloat(config["value"])
	if !ok {
		return false, errors.New("field 'value' must be numeric")
	}

	raw, found := lead.Field(field)
	if !found {
		return false, nil
	}

	current, ok := toFloat(raw)
	if !ok {
		return false, nil
	}

	switch operator {
	case "eq":
		return current == threshold, nil
	case "ne":
		return current != threshold, nil
	case "gt":
		return current > threshold, nil
	case "gte":
		return current >= threshold, nil
	case "lt":
		return current < threshold, nil
	case "lte":
		return current <= threshold, nil
	default:
		return false, fmt.Errorf("unknown threshold operator %q", operator)
	}
}

// timeBased fires once now has passed the configured target time plus an
// optional relative offset.
func timeBased(config map[string]any, now time.Time) (bool, error) {
	atStr, ok := config["at"].(string)
	if !ok || atStr == "" {
		return false, errors.New("missing required field 'at'")
	}

	target, err := time.Parse(time.RFC3339, atStr)
	if err != nil {
		return false, fmt.Errorf("field 'at' must be RFC3339: %w", err)
	}

	if offset, ok := toFloat(config["offset"]); ok {
		unit, _ := config["offsetUnit"].(string)

		d, err := units.Duration(offset, unit)
		if err != nil {
			return false, err
		}

		target = target.Add(d)
	}

	return !now.Before(target), nil
}

func tagApplied(config map[string]any, lead *models.Lead) (bool, error) {
	tag, ok := config["tag"].(string)
	if !ok || tag == "" {
		return false, errors.New("missing required field 'tag'")
	}

	return lead.HasTag(tag), nil
}

// externalEvent fires when the received event name matches and its
// timestamp falls inside the trailing window ending at now.
func externalEvent(config map[string]any, eventData map[string]any, now time.Time) (bool, error) {
	eventName, ok := config["event"].(string)
	if !ok || eventName == "" {
		return false, errors.New("missing required field 'event'")
	}

	window := 15 * time.Minute

	if value, ok := toFloat(config["window"]); ok {
		unit, _ := config["windowUnit"].(string)

		d, err := units.Duration(value, unit)
		if err != nil {
			return false, err
		}

		window = d
	}

	if eventData == nil {
		return false, nil
	}

	received, ok := eventData["event"].(string)
	if !ok || received != eventName {
		return false, nil
	}

	receivedAt := now

	if atStr, ok := eventData["received_at"].(string); ok {
		parsed, err := time.Parse(time.RFC3339, atStr)
		if err != nil {
			return false, nil
		}

		receivedAt = parsed
	}

	return !receivedAt.Before(now.Add(-window)) && !receivedAt.After(now), nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}

	return 0, false
}
