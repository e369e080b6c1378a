// Package delay provides the delay node evaluator. A delay whose target
// time is still ahead signals a pause; one that already passed is an
// instantaneous skip so the engine proceeds without suspending.
package delay

import (
	"errors"
	"fmt"
	"time"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/units"
)

// Evaluate computes the delay target from either an absolute delayUntil
// timestamp or a relative delaySeconds duration.
func Evaluate(node *models.Node, now time.Time) *models.Outcome {
	target, err := Target(node, now)
	if err != nil {
		return models.Fail(fmt.Sprintf("invalid delay config: %v", err))
	}

	if !target.After(now) {
		return models.Skip("delay_expired", map[string]any{
			"target": target.Format(time.RFC3339),
		})
	}

	return models.Pause(target, map[string]any{
		"resume_at": target.Format(time.RFC3339),
	})
}

// Target resolves the absolute point in time the delay waits for.
func Target(node *models.Node, now time.Time) (time.Time, error) {
	if untilStr, ok := node.Config["delayUntil"].(string); ok && untilStr != "" {
		target, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			return time.Time{}, fmt.Errorf("field 'delayUntil' must be RFC3339: %w", err)
		}

		return target, nil
	}

	seconds, ok := toFloat(node.Config["delaySeconds"])
	if !ok {
		return time.Time{}, errors.New("one of 'delayUntil' or 'delaySeconds' is required")
	}

	unit, _ := node.Config["delayUnit"].(string)

	d, err := units.Duration(seconds, unit)
	if err != nil {
		return time.Time{}, err
	}

	if d < 0 {
		return time.Time{}, errors.New("delay duration must not be negative")
	}

	return now.Add(d), nil
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
