// Package concrete provides the runtime that executes operator workflows:
// dependency graphs of operator capabilities and multi-phase software projects.
package concrete

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
)

// Runtime is the main entry point into concrete. It runs workflows in the
// foreground or in the background and tracks background runs by ID.
type Runtime struct {
	config   Config
	eventBus eventbus.EventBus
	ownsBus  bool
	logger   logrus.FieldLogger

	runs      map[string]*RunContext
	runsMutex sync.RWMutex
}

// Config holds the configuration options for the Runtime.
type Config struct {
	// RunTimeout bounds every run. Zero disables the bound.
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	// Event bus configuration
	EnableEventBus      bool `mapstructure:"event_bus"`
	EventBusBufferSize  int  `mapstructure:"event_bus_buffer"`
	EventBusWorkerCount int  `mapstructure:"event_bus_workers"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RunTimeout:          time.Minute * 30,
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 5,
	}
}

// Option is a function that configures a Runtime.
type Option func(*Runtime)

// WithConfig sets the configuration.
func WithConfig(config Config) Option {
	return func(r *Runtime) {
		r.config = config
	}
}

// WithLogger sets the logger used for run lifecycle messages.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// inputter is implemented by workflows that carry a human-readable input.
type inputter interface {
	Input() string
}

// New creates a new Runtime with the provided options.
func New(options ...Option) (*Runtime, error) {
	r := &Runtime{
		config: DefaultConfig(),
		runs:   make(map[string]*RunContext),
		logger: logrus.StandardLogger(),
	}

	for _, option := range options {
		option(r)
	}

	if r.config.RunTimeout < 0 {
		return nil, NewConfigurationError("run timeout cannot be negative", nil)
	}

	if r.config.EnableEventBus && r.eventBus == nil {
		if r.config.EventBusWorkerCount <= 0 || r.config.EventBusBufferSize <= 0 {
			return nil, NewConfigurationError("event bus needs a positive buffer size and worker count", nil)
		}
		r.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(r.config.EventBusBufferSize),
			eventbus.WithWorkerCount(r.config.EventBusWorkerCount),
			eventbus.WithLogger(r.logger),
		)
		r.ownsBus = true
		r.logger.Debug("initialized default channel-based event bus")
	}

	return r, nil
}

// EventBus returns the bus lifecycle events are published on, or nil.
func (r *Runtime) EventBus() eventbus.EventBus {
	if !r.config.EnableEventBus {
		return nil
	}
	return r.eventBus
}

// Close releases the event bus when the runtime created it.
func (r *Runtime) Close() error {
	if r.ownsBus && r.eventBus != nil {
		return r.eventBus.Close()
	}
	return nil
}

// Run executes wf in the foreground and returns its run context.
func (r *Runtime) Run(ctx context.Context, wf Workflow) (*RunContext, error) {
	if wf == nil {
		return nil, NewValidationError("run", "workflow is required", nil)
	}
	rc := r.newRunContext(wf)
	err := r.execute(ctx, rc, wf, false)
	return rc, err
}

// RunAsync starts wf in the background.
// It returns a run ID that can be used to check the status or get the result.
func (r *Runtime) RunAsync(ctx context.Context, wf Workflow) (string, error) {
	if wf == nil {
		return "", NewValidationError("run", "workflow is required", nil)
	}
	rc := r.newRunContext(wf)

	// The run outlives the caller's context but keeps its values.
	asyncCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rc.setCancel(cancel)

	r.runsMutex.Lock()
	r.runs[rc.ID] = rc
	r.runsMutex.Unlock()

	go func() {
		defer cancel()
		_ = r.execute(asyncCtx, rc, wf, true)
	}()

	return rc.ID, nil
}

func (r *Runtime) newRunContext(wf Workflow) *RunContext {
	input := ""
	if in, ok := wf.(inputter); ok {
		input = in.Input()
	}
	return NewRunContext(uuid.New().String(), wf.Name(), input)
}

func (r *Runtime) execute(ctx context.Context, rc *RunContext, wf Workflow, async bool) error {
	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	log := r.logger.WithFields(logrus.Fields{
		"run_id":   rc.ID,
		"workflow": rc.Workflow,
		"async":    async,
	})
	log.Info("run started")
	r.publish(ctx, eventbus.EventRunStarted, rc, nil)

	err := wf.Run(ctx, rc)
	switch {
	case err == nil && !rc.IsTerminal():
		rc.Complete()
	case err != nil && !rc.IsTerminal():
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			rc.SetCancelled(err, string(rc.State()))
		} else {
			rc.SetError(err, string(rc.State()))
		}
	}
	if err == nil {
		err = rc.Err()
	}

	meta := map[string]interface{}{
		"duration_ms": rc.GetTotalDuration().Milliseconds(),
	}
	if err != nil {
		log.WithError(err).WithField("stage", rc.ErrorStage()).Error("run failed")
		meta["error"] = err.Error()
		meta["error_stage"] = rc.ErrorStage()
		eventType := eventbus.EventRunFailure
		if rc.State() == StateCancelled {
			eventType = eventbus.EventRunCancelled
		}
		// The run context may already be done.
		r.publish(context.Background(), eventType, rc, meta)
		return err
	}

	log.WithField("duration", rc.GetTotalDuration()).Info("run finished")
	r.publish(context.Background(), eventbus.EventRunSuccess, rc, meta)
	return nil
}

func (r *Runtime) publish(ctx context.Context, eventType eventbus.EventType, rc *RunContext, meta map[string]interface{}) {
	bus := r.EventBus()
	if bus == nil {
		return
	}
	evt := eventbus.NewEvent(eventType, rc.Workflow, "Runtime", meta).
		WithMetadata("run_id", rc.ID).
		WithMetadata("timestamp", time.Now().Format(time.RFC3339))
	if err := bus.Publish(ctx, evt); err != nil {
		r.logger.WithError(err).WithField("event_type", eventType).Debug("event not published")
	}
}
