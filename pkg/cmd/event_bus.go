package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/leadflowhq/leadflow/pkg/channels/gochannel"
	"github.com/leadflowhq/leadflow/pkg/channels/kafka"
	"github.com/leadflowhq/leadflow/pkg/eventbus"
	"github.com/leadflowhq/leadflow/pkg/otelhelper"
)

// NewEventBus creates an event bus for the given provider. "kafka" needs
// KAFKA_BROKERS set and ships consume spans to the OTLP endpoint;
// "gochannel" is in-process and suits local runs.
func NewEventBus(ctx context.Context, provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka pub/sub: %w", err)
		}

		tracer, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create tracer: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, eventbus.WithTracer(tracer)), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(adapter)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
