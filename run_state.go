package concrete

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
)

// RunState represents the current state of a workflow run.
type RunState string

const (
	// StateInit is the initial state of every run
	StateInit RunState = "init"
	// StateRunning is used by single-phase workflows while they execute
	StateRunning RunState = "running"
	// StateError represents an error state
	StateError RunState = "error"
	// StateComplete represents the completed state
	StateComplete RunState = "complete"
	// StateCancelled represents the cancelled state
	StateCancelled RunState = "cancelled"
	// StateUnknown is reported when a run cannot be found.
	StateUnknown RunState = "unknown"
)

// RunContext carries the progress and results of one workflow run.
// Multi-phase workflows treat it as the tape of a pushdown automaton:
// states can be pushed and popped, and every entry time is recorded.
type RunContext struct {
	ID       string
	Workflow string
	Input    string

	mu          sync.RWMutex
	state       RunState
	stack       []RunState
	data        map[string]any
	results     map[string]any
	order       []string
	output      any
	lastErr     error
	errorStage  string
	startTime   time.Time
	endTime     time.Time
	stateStarts map[RunState]time.Time
	cancel      context.CancelFunc
}

// NewRunContext creates a run context in StateInit.
func NewRunContext(id, workflow, input string) *RunContext {
	now := time.Now()
	return &RunContext{
		ID:          id,
		Workflow:    workflow,
		Input:       input,
		state:       StateInit,
		data:        make(map[string]any),
		results:     make(map[string]any),
		startTime:   now,
		stateStarts: map[RunState]time.Time{StateInit: now},
	}
}

// State returns the current state.
func (rc *RunContext) State() RunState {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.state
}

// Transition moves the run to state without touching the stack.
func (rc *RunContext) Transition(state RunState) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state = state
	rc.stateStarts[state] = time.Now()
}

// PushState pushes the current state onto the stack and sets a new current state.
func (rc *RunContext) PushState(state RunState) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.stack = append(rc.stack, rc.state)
	rc.state = state
	rc.stateStarts[state] = time.Now()
}

// PopState restores the most recently pushed state.
// Returns false if the stack is empty.
func (rc *RunContext) PopState() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.stack) == 0 {
		return false
	}
	last := len(rc.stack) - 1
	rc.state = rc.stack[last]
	rc.stack = rc.stack[:last]
	rc.stateStarts[rc.state] = time.Now()
	return true
}

// IsTerminal checks if the run is complete, errored or cancelled.
func (rc *RunContext) IsTerminal() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return isTerminal(rc.state)
}

func isTerminal(s RunState) bool {
	return s == StateComplete || s == StateError || s == StateCancelled
}

// SetError records err and moves the run to StateError.
func (rc *RunContext) SetError(err error, stage string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.lastErr = err
	rc.errorStage = stage
	rc.state = StateError
	rc.endTime = time.Now()
	rc.stateStarts[StateError] = rc.endTime
}

// SetCancelled records the cancellation cause and moves the run to StateCancelled.
func (rc *RunContext) SetCancelled(err error, stage string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.lastErr = err
	rc.errorStage = stage
	rc.state = StateCancelled
	rc.endTime = time.Now()
	rc.stateStarts[StateCancelled] = rc.endTime
}

// Complete marks the run as complete and sets the end time.
func (rc *RunContext) Complete() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state = StateComplete
	rc.endTime = time.Now()
	rc.stateStarts[StateComplete] = rc.endTime
}

// Err returns the error that ended the run, if any.
func (rc *RunContext) Err() error {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.lastErr
}

// ErrorStage returns the state the run was in when it failed.
func (rc *RunContext) ErrorStage() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.errorStage
}

// SetResult records the result of a named step. Results keep insertion order.
func (rc *RunContext) SetResult(name string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, exists := rc.results[name]; !exists {
		rc.order = append(rc.order, name)
	}
	rc.results[name] = value
}

// Result returns the result recorded under name.
func (rc *RunContext) Result(name string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.results[name]
	return v, ok
}

// Results returns a copy of all recorded results.
func (rc *RunContext) Results() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]any, len(rc.results))
	for k, v := range rc.results {
		out[k] = v
	}
	return out
}

// ResultOrder returns result names in the order they were first recorded.
func (rc *RunContext) ResultOrder() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return append([]string(nil), rc.order...)
}

// SetOutput sets the final output of the run.
func (rc *RunContext) SetOutput(v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.output = v
}

// Output returns the final output of the run.
func (rc *RunContext) Output() any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.output
}

// Set stores workflow-private data.
func (rc *RunContext) Set(key string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.data[key] = value
}

// Get loads workflow-private data.
func (rc *RunContext) Get(key string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.data[key]
	return v, ok
}

// StartTime returns when the run was created.
func (rc *RunContext) StartTime() time.Time {
	return rc.startTime
}

// StateEnteredAt returns when state was last entered.
func (rc *RunContext) StateEnteredAt(state RunState) (time.Time, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	t, ok := rc.stateStarts[state]
	return t, ok
}

// VisitedStates returns every state the run has entered, ordered by entry time.
func (rc *RunContext) VisitedStates() []RunState {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	states := make([]RunState, 0, len(rc.stateStarts))
	for s := range rc.stateStarts {
		states = append(states, s)
	}
	sort.SliceStable(states, func(i, j int) bool {
		return rc.stateStarts[states[i]].Before(rc.stateStarts[states[j]])
	})
	return states
}

// GetTotalDuration returns the total duration of the run so far.
func (rc *RunContext) GetTotalDuration() time.Duration {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if isTerminal(rc.state) && !rc.endTime.IsZero() {
		return rc.endTime.Sub(rc.startTime)
	}
	return time.Since(rc.startTime)
}

func (rc *RunContext) setCancel(cancel context.CancelFunc) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cancel = cancel
}

func (rc *RunContext) cancelFunc() context.CancelFunc {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.cancel
}

// StateTransition defines a transition function for the state machine.
type StateTransition func(ctx context.Context, bus eventbus.EventBus, rc *RunContext) (RunState, error)

// StateMachine runs a RunContext through registered transitions until it
// reaches a terminal state.
type StateMachine struct {
	transitions map[RunState]StateTransition
	eventBus    eventbus.EventBus
}

// NewStateMachine creates a state machine. bus may be nil.
func NewStateMachine(bus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[RunState]StateTransition),
		eventBus:    bus,
	}
}

// RegisterTransition registers the transition run while the machine is in state.
func (sm *StateMachine) RegisterTransition(state RunState, transition StateTransition) {
	sm.transitions[state] = transition
}

// Execute runs the state machine until completion or error.
func (sm *StateMachine) Execute(ctx context.Context, rc *RunContext) error {
	for !rc.IsTerminal() {
		if err := ctx.Err(); err != nil {
			rc.SetCancelled(err, string(rc.State()))
			return err
		}

		current := rc.State()
		transition, exists := sm.transitions[current]
		if !exists {
			err := NewInternalError(string(current), fmt.Sprintf("no transition defined for state: %s", current), nil)
			rc.SetError(err, string(current))
			return err
		}

		next, err := transition(ctx, sm.eventBus, rc)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				rc.SetCancelled(err, string(current))
			} else if !rc.IsTerminal() {
				rc.SetError(err, string(current))
			}
			continue
		}

		if rc.IsTerminal() {
			continue
		}
		if next == StateComplete {
			rc.Complete()
			continue
		}
		rc.Transition(next)
	}

	return rc.Err()
}
