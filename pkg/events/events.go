// Package events defines event types and structures for run lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "leadflow.events"            // Run lifecycle events
const LeadTopic = "leadflow.lead.events"   // Lead mutation events
const TaskTopic = "leadflow.task.delivery" // Fire-and-forget delivery tasks

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunPausedEvent    EventType = "run.paused"
	RunResumedEvent   EventType = "run.resumed"

	// Lead events.
	LeadUpdatedEvent      EventType = "lead.updated"
	LeadStageEnteredEvent EventType = "lead.stage_entered"
	LeadTagAppliedEvent   EventType = "lead.tag_applied"

	// Task events.
	TaskEnqueuedEvent EventType = "task.enqueued"
)

// Event is implemented by every published event.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// GetWorkflowID exposes the owning workflow for consumers that only hold
// the Event interface, like the bus's span instrumentation.
func (e BaseEvent) GetWorkflowID() string {
	return e.WorkflowID
}

type RunStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	LeadID      string         `json:"lead_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	LeadID      string        `json:"lead_id"`
	Duration    time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	ExecutionID string             `json:"execution_id"`
	LeadID      string             `json:"lead_id"`
	Errors      []models.NodeError `json:"errors,omitempty"`
	Duration    time.Duration      `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunPaused struct {
	BaseEvent

	ExecutionID string     `json:"execution_id"`
	LeadID      string     `json:"lead_id"`
	PauseNodeID string     `json:"pause_node_id"`
	ResumeAt    *time.Time `json:"resume_at,omitempty"`
}

func (e RunPaused) GetType() EventType {
	return RunPausedEvent
}

type RunResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	LeadID      string `json:"lead_id"`
	PauseNodeID string `json:"pause_node_id"`
}

func (e RunResumed) GetType() EventType {
	return RunResumedEvent
}

type LeadUpdated struct {
	BaseEvent

	LeadID string         `json:"lead_id"`
	Patch  map[string]any `json:"patch,omitempty"`
}

func (e LeadUpdated) GetType() EventType {
	return LeadUpdatedEvent
}

type LeadStageEntered struct {
	BaseEvent

	LeadID string `json:"lead_id"`
	Stage  string `json:"stage"`
}

func (e LeadStageEntered) GetType() EventType {
	return LeadStageEnteredEvent
}

type LeadTagApplied struct {
	BaseEvent

	LeadID string `json:"lead_id"`
	Tag    string `json:"tag"`
}

func (e LeadTagApplied) GetType() EventType {
	return LeadTagAppliedEvent
}

type TaskEnqueued struct {
	BaseEvent

	Task *models.Task `json:"task"`
}

func (e TaskEnqueued) GetType() EventType {
	return TaskEnqueuedEvent
}
