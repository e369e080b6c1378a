package delay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/models"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func delayNode(config map[string]any) *models.Node {
	return &models.Node{ID: "d1", Kind: models.NodeKindDelay, Config: config}
}

func TestEvaluatePausesUntilRelativeTarget(t *testing.T) {
	outcome := Evaluate(delayNode(map[string]any{
		"delaySeconds": float64(90),
	}), now)

	require.Equal(t, models.OutcomePause, outcome.Kind)
	require.NotNil(t, outcome.ResumeAt)
	assert.Equal(t, now.Add(90*time.Second), *outcome.ResumeAt)
	assert.Equal(t, outcome.ResumeAt.Format(time.RFC3339), outcome.Data["resume_at"])
}

func TestEvaluateHonorsDelayUnit(t *testing.T) {
	outcome := Evaluate(delayNode(map[string]any{
		"delaySeconds": float64(2),
		"delayUnit":    "hr",
	}), now)

	require.Equal(t, models.OutcomePause, outcome.Kind)
	assert.Equal(t, now.Add(2*time.Hour), *outcome.ResumeAt)
}

func TestEvaluateAbsoluteTarget(t *testing.T) {
	target := now.Add(30 * time.Minute)

	outcome := Evaluate(delayNode(map[string]any{
		"delayUntil": target.Format(time.RFC3339),
	}), now)

	require.Equal(t, models.OutcomePause, outcome.Kind)
	assert.True(t, outcome.ResumeAt.Equal(target))
}

func TestEvaluateSkipsExpiredDelay(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{"absolute target in the past", map[string]any{
			"delayUntil": now.Add(-time.Hour).Format(time.RFC3339),
		}},
		{"zero relative delay", map[string]any{
			"delaySeconds": float64(0),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Evaluate(delayNode(tt.config), now)
			require.Equal(t, models.OutcomeSkip, outcome.Kind)
			assert.Equal(t, "delay_expired", outcome.Message)
		})
	}
}

func TestEvaluateInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		message string
	}{
		{"no target at all", map[string]any{}, "delaySeconds"},
		{"malformed delayUntil", map[string]any{"delayUntil": "tomorrow"}, "RFC3339"},
		{"negative duration", map[string]any{"delaySeconds": float64(-5)}, "negative"},
		{"unknown unit", map[string]any{"delaySeconds": float64(5), "delayUnit": "weeks"}, "unknown time unit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Evaluate(delayNode(tt.config), now)
			require.Equal(t, models.OutcomeFail, outcome.Kind)
			assert.Contains(t, outcome.Message, tt.message)
		})
	}
}
