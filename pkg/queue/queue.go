// Package queue hands fire-and-forget delivery tasks to the event bus.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/eventbus"
	"github.com/leadflowhq/leadflow/pkg/events"
	"github.com/leadflowhq/leadflow/pkg/models"
)

// TaskQueue publishes tasks to the delivery topic. Delivery workers
// consume them independently; the engine never awaits confirmation.
type TaskQueue struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewTaskQueue(publisher eventbus.EventPublisher, logger *slog.Logger) *TaskQueue {
	return &TaskQueue{
		publisher: publisher,
		logger:    logger.With("module", "queue"),
		now:       time.Now,
	}
}

// Discard returns a queue without a publisher. Tasks are stamped and
// logged but never delivered; one-off CLI runs use this.
func Discard(logger *slog.Logger) *TaskQueue {
	return &TaskQueue{
		logger: logger.With("module", "queue"),
		now:    time.Now,
	}
}

// Enqueue stamps the task and publishes it keyed by lead so tasks for
// one lead stay ordered.
func (q *TaskQueue) Enqueue(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	if task.Kind == "" {
		task.Kind = models.TaskKindGeneric
	}

	task.EnqueuedAt = q.now().UTC()

	if q.publisher != nil {
		event := events.TaskEnqueued{
			BaseEvent: events.NewBaseEvent(events.TaskEnqueuedEvent, task.WorkflowID),
			Task:      task,
		}

		if err := q.publisher.Publish(ctx, task.LeadID, event); err != nil {
			return fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
		}
	}

	q.logger.DebugContext(ctx, "Task enqueued",
		"task_id", task.ID,
		"kind", task.Kind,
		"lead_id", task.LeadID,
	)

	return nil
}
