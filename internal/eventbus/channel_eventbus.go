// Package eventbus provides the in-process event bus used to observe runs,
// graph nodes and operator dispatch.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by every operation on a closed bus.
var ErrClosed = errors.New("event bus is closed")

// ChannelEventBus is an implementation of EventBus using Go channels
type ChannelEventBus struct {
	// subscribers maps event types to a map of subscription IDs to event handlers
	subscribers map[EventType]map[string]EventHandler

	// allSubscribers contains handlers that receive all events regardless of type
	allSubscribers map[string]EventHandler

	eventChan chan eventWithContext
	done      chan struct{}
	closed    bool
	// life is cancelled by Close and interrupts handler retries.
	life   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mutex protects subscribers, allSubscribers and closed
	mutex sync.RWMutex

	bufferSize    int
	workerCount   int
	maxRetries    int
	retryInterval time.Duration
	logger        logrus.FieldLogger
}

// eventWithContext bundles an event with its context for processing
type eventWithContext struct {
	ctx   context.Context
	event Event
}

// ChannelEventBusOption configures the channel-based event bus
type ChannelEventBusOption func(*ChannelEventBus)

// WithBufferSize sets the event channel buffer size
func WithBufferSize(size int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.bufferSize = size
	}
}

// WithWorkerCount sets the number of event processing workers
func WithWorkerCount(count int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.workerCount = count
	}
}

// WithRetries configures the retry behavior for event handlers
func WithRetries(maxRetries int, retryInterval time.Duration) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.maxRetries = maxRetries
		eb.retryInterval = retryInterval
	}
}

// WithLogger sets the logger handler failures are reported to.
func WithLogger(logger logrus.FieldLogger) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		if logger != nil {
			eb.logger = logger
		}
	}
}

// NewChannelEventBus creates a new channel-based event bus
func NewChannelEventBus(options ...ChannelEventBusOption) *ChannelEventBus {
	eb := &ChannelEventBus{
		subscribers:    make(map[EventType]map[string]EventHandler),
		allSubscribers: make(map[string]EventHandler),
		done:           make(chan struct{}),

		bufferSize:    100,
		workerCount:   5,
		maxRetries:    3,
		retryInterval: time.Millisecond * 100,
		logger:        logrus.StandardLogger(),
	}

	for _, option := range options {
		option(eb)
	}
	if eb.maxRetries < 0 {
		eb.maxRetries = 0
	}
	eb.life, eb.cancel = context.WithCancel(context.Background())

	eb.eventChan = make(chan eventWithContext, eb.bufferSize)

	for i := 0; i < eb.workerCount; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	return eb
}

// worker processes events from the event channel
func (eb *ChannelEventBus) worker() {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.done:
			return
		case evt := <-eb.eventChan:
			eb.processEvent(evt)
		}
	}
}

// processEvent handles the event dispatch to all relevant subscribers
func (eb *ChannelEventBus) processEvent(evt eventWithContext) {
	if evt.ctx.Err() != nil {
		return
	}

	// Copy handlers so the lock is not held while they run; handlers may
	// subscribe or unsubscribe.
	eb.mutex.RLock()
	handlers := make([]EventHandler, 0, len(eb.subscribers[evt.event.Type()])+len(eb.allSubscribers))
	for _, handler := range eb.subscribers[evt.event.Type()] {
		handlers = append(handlers, handler)
	}
	for _, handler := range eb.allSubscribers {
		handlers = append(handlers, handler)
	}
	eb.mutex.RUnlock()

	for _, handler := range handlers {
		eb.executeHandler(evt.ctx, evt.event, handler)
	}
}

// executeHandler runs handler with a constant backoff between attempts.
// A handler that still fails is reported as a system error event.
func (eb *ChannelEventBus) executeHandler(ctx context.Context, event Event, handler EventHandler) {
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(eb.life, cancel)()

	attempts := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(eb.retryInterval), uint64(eb.maxRetries)),
		hctx,
	)
	err := backoff.Retry(func() error {
		attempts++
		return handler(hctx, event)
	}, policy)
	if err == nil || hctx.Err() != nil {
		return
	}

	fields := logrus.Fields{
		"event_type": event.Type(),
		"source":     event.Source(),
		"attempts":   attempts,
	}
	eb.logger.WithFields(fields).WithError(err).Warn("event handler failed")
	if event.Type() == EventSystemError {
		return
	}

	report := NewEvent(EventSystemError, err.Error(), "EventBus", map[string]interface{}{
		"event_type": string(event.Type()),
		"source":     event.Source(),
		"attempts":   attempts,
	})
	// Workers never block on their own queue.
	select {
	case eb.eventChan <- eventWithContext{ctx: context.WithoutCancel(ctx), event: report}:
	default:
		eb.logger.WithFields(fields).Debug("event queue full, handler failure not reported")
	}
}

func (eb *ChannelEventBus) isClosed() bool {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return eb.closed
}

// Publish queues an event for all subscribed handlers. Handlers observe the
// publishing context, so a cancelled context drops the event.
func (eb *ChannelEventBus) Publish(ctx context.Context, event Event) error {
	if eb.isClosed() {
		return ErrClosed
	}
	if event == nil {
		return errors.New("event cannot be nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-eb.done:
		return ErrClosed
	case eb.eventChan <- eventWithContext{ctx: ctx, event: event}:
		return nil
	}
}

// Subscribe registers a handler for specific event types
func (eb *ChannelEventBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if handler == nil {
		return "", errors.New("handler cannot be nil")
	}
	if len(eventTypes) == 0 {
		return "", errors.New("at least one event type is required")
	}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if eb.closed {
		return "", ErrClosed
	}

	subscriptionID := uuid.New().String()
	for _, eventType := range eventTypes {
		if _, exists := eb.subscribers[eventType]; !exists {
			eb.subscribers[eventType] = make(map[string]EventHandler)
		}
		eb.subscribers[eventType][subscriptionID] = handler
	}

	return subscriptionID, nil
}

// SubscribeAll registers a handler for all event types
func (eb *ChannelEventBus) SubscribeAll(handler EventHandler) (string, error) {
	if handler == nil {
		return "", errors.New("handler cannot be nil")
	}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if eb.closed {
		return "", ErrClosed
	}

	subscriptionID := uuid.New().String()
	eb.allSubscribers[subscriptionID] = handler
	return subscriptionID, nil
}

// Unsubscribe removes a subscription by ID
func (eb *ChannelEventBus) Unsubscribe(subscriptionID string) error {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if eb.closed {
		return ErrClosed
	}

	delete(eb.allSubscribers, subscriptionID)
	for eventType := range eb.subscribers {
		delete(eb.subscribers[eventType], subscriptionID)
	}
	return nil
}

// Close shuts down the event bus. Queued events that have not been picked up
// by a worker are dropped.
func (eb *ChannelEventBus) Close() error {
	eb.mutex.Lock()
	if eb.closed {
		eb.mutex.Unlock()
		return nil
	}
	eb.closed = true
	eb.mutex.Unlock()

	eb.cancel()
	close(eb.done)
	eb.wg.Wait()
	return nil
}

// Recorder is an EventHandler that keeps every event it sees. It is used by
// the CLI to print a run summary and by tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Handle implements EventHandler.
func (r *Recorder) Handle(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many recorded events have type t.
func (r *Recorder) Count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type() == t {
			n++
		}
	}
	return n
}
