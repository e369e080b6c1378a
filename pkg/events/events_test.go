package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/models"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(RunStartedEvent, "wf-123")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, RunStartedEvent, event.Type)
	assert.Equal(t, "wf-123", event.WorkflowID)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)
}

func TestEventTypes(t *testing.T) {
	resumeAt := time.Now().UTC().Add(time.Hour)

	tests := []struct {
		name     string
		event    Event
		expected EventType
	}{
		{"run started", RunStarted{}, RunStartedEvent},
		{"run completed", RunCompleted{}, RunCompletedEvent},
		{"run failed", RunFailed{}, RunFailedEvent},
		{"run paused", RunPaused{ResumeAt: &resumeAt}, RunPausedEvent},
		{"run resumed", RunResumed{}, RunResumedEvent},
		{"lead updated", LeadUpdated{}, LeadUpdatedEvent},
		{"lead stage entered", LeadStageEntered{}, LeadStageEnteredEvent},
		{"lead tag applied", LeadTagApplied{}, LeadTagAppliedEvent},
		{"task enqueued", TaskEnqueued{}, TaskEnqueuedEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.event.GetType())
		})
	}
}

func TestRunPausedJSONSerialization(t *testing.T) {
	resumeAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	original := &RunPaused{
		BaseEvent:   NewBaseEvent(RunPausedEvent, "wf-123"),
		ExecutionID: "exec-456",
		LeadID:      "lead-789",
		PauseNodeID: "delay-1",
		ResumeAt:    &resumeAt,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded RunPaused

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.ExecutionID, decoded.ExecutionID)
	assert.Equal(t, original.PauseNodeID, decoded.PauseNodeID)
	require.NotNil(t, decoded.ResumeAt)
	assert.True(t, resumeAt.Equal(*decoded.ResumeAt))
}

func TestTaskEnqueuedJSONSerialization(t *testing.T) {
	original := &TaskEnqueued{
		BaseEvent: NewBaseEvent(TaskEnqueuedEvent, "wf-123"),
		Task: &models.Task{
			ID:      "task-1",
			Kind:    models.TaskKindMessage,
			LeadID:  "lead-789",
			Channel: "email",
			Payload: map[string]any{"message": "hello"},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded TaskEnqueued

	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Task)
	assert.Equal(t, "task-1", decoded.Task.ID)
	assert.Equal(t, models.TaskKindMessage, decoded.Task.Kind)
}
