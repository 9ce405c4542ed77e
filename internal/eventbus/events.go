package eventbus

import (
	"context"
	"time"
)

// EventType represents the type of an event
type EventType string

// Standard event types
const (
	// Run lifecycle events
	EventRunStarted   EventType = "run_started"
	EventRunSuccess   EventType = "run_success"
	EventRunFailure   EventType = "run_failure"
	EventRunCancelled EventType = "run_cancelled"

	// Project (graph) events
	EventProjectStarted EventType = "project_started"
	EventProjectSuccess EventType = "project_success"
	EventProjectFailure EventType = "project_failure"

	// Node events
	EventNodeStarted EventType = "node_started"
	EventNodeSuccess EventType = "node_success"
	EventNodeFailure EventType = "node_failure"
	EventNodeSkipped EventType = "node_skipped"

	// Operator dispatch events
	EventCapabilityInvoked EventType = "capability_invoked"
	EventCompletionSent    EventType = "completion_sent"
	EventCompletionRefused EventType = "completion_refused"
	EventToolInvoked       EventType = "tool_invoked"
	EventToolFailed        EventType = "tool_failed"
	EventToolRetryExceeded EventType = "tool_retry_exceeded"

	// Software project phases
	EventPhaseStarted EventType = "phase_started"
	EventPhaseSuccess EventType = "phase_success"

	// System events
	EventSystemError   EventType = "system_error"
	EventSystemWarning EventType = "system_warning"
)

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened within the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Payload returns the event data
	Payload() interface{}

	// Metadata returns additional information about the event
	Metadata() map[string]interface{}

	// Timestamp returns when the event occurred
	Timestamp() int64

	// Source returns information about what generated the event
	Source() string
}

// EventBus is the central event dispatch system
type EventBus interface {
	// Publish queues an event for every subscribed handler
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types.
	// Returns a subscription ID that can be used to unsubscribe.
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for all event types.
	SubscribeAll(handler EventHandler) (string, error)

	// Unsubscribe removes a subscription by ID
	Unsubscribe(subscriptionID string) error

	// Close shuts down the event bus, cleaning up resources
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  int64
	sourceInfo string
}

// NewEvent creates a new BaseEvent
func NewEvent(eventType EventType, payload interface{}, source string, metadata map[string]interface{}) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	return &BaseEvent{
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UnixNano(),
		sourceInfo: source,
	}
}

func (e *BaseEvent) Type() EventType                  { return e.eventType }
func (e *BaseEvent) Payload() interface{}             { return e.payload }
func (e *BaseEvent) Metadata() map[string]interface{} { return e.metadata }
func (e *BaseEvent) Timestamp() int64                 { return e.timestamp }
func (e *BaseEvent) Source() string                   { return e.sourceInfo }

// WithMetadata adds or updates metadata and returns the same event
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}

// AddMetadata adds multiple metadata entries at once and returns the same event
func (e *BaseEvent) AddMetadata(data map[string]interface{}) *BaseEvent {
	for k, v := range data {
		e.metadata[k] = v
	}
	return e
}

// Publish is a nil-safe helper for components that treat the bus as optional.
// Publishing errors are returned but never block the caller beyond ctx.
func Publish(ctx context.Context, bus EventBus, eventType EventType, payload interface{}, source string, metadata map[string]interface{}) error {
	if bus == nil {
		return nil
	}
	return bus.Publish(ctx, NewEvent(eventType, payload, source, metadata))
}
