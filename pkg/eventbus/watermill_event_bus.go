package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/leadflowhq/leadflow/pkg/events"
	"github.com/leadflowhq/leadflow/pkg/otelhelper"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	tracer     trace.Tracer

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

// Option configures a WatermillEventBus.
type Option func(*WatermillEventBus)

// WithTracer records a consume span per delivered message.
func WithTracer(tracer trace.Tracer) Option {
	return func(eb *WatermillEventBus) {
		eb.tracer = tracer
	}
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, opts ...Option) EventBus {
	eb := &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		tracer:        noop.NewTracerProvider().Tracer("eventbus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}

	for _, opt := range opts {
		opt(eb)
	}

	return eb
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// topicFor routes each event type to its topic: run lifecycle events,
// lead mutation events, and delivery tasks travel separately.
func topicFor(eventType events.EventType) string {
	switch eventType {
	case events.LeadUpdatedEvent, events.LeadStageEnteredEvent, events.LeadTagAppliedEvent:
		return events.LeadTopic
	case events.TaskEnqueuedEvent:
		return events.TaskTopic
	case events.RunStartedEvent, events.RunCompletedEvent, events.RunFailedEvent,
		events.RunPausedEvent, events.RunResumedEvent:
		return events.Topic
	}

	return events.Topic
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	for _, topic := range []string{events.Topic, events.LeadTopic, events.TaskTopic} {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		eb.mu.RLock()
		handler, exists := eb.subscriptions[eventType]
		eb.mu.RUnlock()

		if !exists {
			msg.Ack()

			continue
		}

		spanCtx, span := otelhelper.StartSpan(ctx, eb.tracer, "eventbus consume",
			attribute.String(otelhelper.EventIDKey, msg.UUID),
			attribute.String(otelhelper.EventTypeKey, string(eventType)),
		)

		event := newEvent(eventType)
		if event == nil {
			otelhelper.SetError(span, errors.New("unknown event type"))
			span.End()
			msg.Nack()

			continue
		}

		if err := json.Unmarshal(msg.Payload, event); err != nil {
			otelhelper.SetError(span, err)
			span.End()
			msg.Nack()

			continue
		}

		if owned, ok := event.(interface{ GetWorkflowID() string }); ok {
			span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, owned.GetWorkflowID()))
		}

		if err := handler(spanCtx, event); err != nil {
			otelhelper.SetError(span, err)
			span.End()
			msg.Nack()

			continue
		}

		span.End()
		msg.Ack()
	}
}

// newEvent returns a pointer to the zero value for the event type, or
// nil for an unknown type.
func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.RunStartedEvent:
		return &events.RunStarted{}
	case events.RunCompletedEvent:
		return &events.RunCompleted{}
	case events.RunFailedEvent:
		return &events.RunFailed{}
	case events.RunPausedEvent:
		return &events.RunPaused{}
	case events.RunResumedEvent:
		return &events.RunResumed{}
	case events.LeadUpdatedEvent:
		return &events.LeadUpdated{}
	case events.LeadStageEnteredEvent:
		return &events.LeadStageEntered{}
	case events.LeadTagAppliedEvent:
		return &events.LeadTagApplied{}
	case events.TaskEnqueuedEvent:
		return &events.TaskEnqueued{}
	}

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	eb.subscriptions[eventType] = handler
	eb.mu.Unlock()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}
