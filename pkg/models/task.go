package models

import "time"

// TaskKind identifies the delivery worker a queued task is meant for.
type TaskKind string

const (
	TaskKindMessage TaskKind = "message" // outbound message delivery (DM, email, ...)
	TaskKindGeneric TaskKind = "generic" // externally defined worker task
)

// Task is a fire-and-forget unit of work handed to the task queue by the
// send_message and enqueue_task actions. The engine does not await
// delivery confirmation.
type Task struct {
	ID         string         `json:"id"`
	Kind       TaskKind       `json:"kind"`
	LeadID     string         `json:"lead_id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	Channel    string         `json:"channel,omitempty"` // message tasks: delivery platform
	Payload    map[string]any `json:"payload,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}
