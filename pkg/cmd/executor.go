package cmd

import (
	"log/slog"
	"net/http"

	"github.com/leadflowhq/leadflow/pkg/callout"
	"github.com/leadflowhq/leadflow/pkg/engine"
	"github.com/leadflowhq/leadflow/pkg/eventbus"
	"github.com/leadflowhq/leadflow/pkg/nodes/action"
	"github.com/leadflowhq/leadflow/pkg/nodes/loop"
	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/queue"
	"github.com/leadflowhq/leadflow/pkg/script"
)

// NewExecutor wires a fully equipped engine: real action side effects
// against the store, webhook callouts, sandboxed scripts, and the task
// queue over the event bus. A nil bus drops lifecycle events and queued
// tasks on the floor, which is what the CLI wants for one-off runs.
func NewExecutor(store persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) *engine.Executor {
	taskQueue := queue.Discard(logger)

	opts := []engine.Option{
		engine.WithStatsStore(store.WorkflowRepository()),
	}

	if bus != nil {
		taskQueue = queue.NewTaskQueue(bus, logger)

		opts = append(opts, engine.WithEventPublisher(bus))
	}

	actions := action.NewEvaluator(
		store.LeadRepository(),
		taskQueue,
		callout.NewClient(http.DefaultClient, logger),
		script.NewRunner(logger),
		logger,
	)
	loops := loop.NewEvaluator(store.LeadRepository())

	return engine.NewExecutor(actions, loops, store.PausedStateRepository(), logger, opts...)
}

// NewDryRunner wires the dry-run harness over the store's trace
// repository.
func NewDryRunner(store persistence.Persistence, logger *slog.Logger) *engine.DryRunner {
	return engine.NewDryRunner(store.TraceRepository(), logger,
		engine.WithItemSource(store.LeadRepository()))
}
