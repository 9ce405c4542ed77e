package concrete

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
)

// RunStatus represents the status information for a background run.
type RunStatus struct {
	RunID        string        `json:"run_id"`
	Workflow     string        `json:"workflow"`
	Input        string        `json:"input,omitempty"`
	CurrentState RunState      `json:"current_state"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	Completed    []string      `json:"completed,omitempty"`
	IsComplete   bool          `json:"is_complete"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
}

func (r *Runtime) lookupRun(runID string) (*RunContext, error) {
	r.runsMutex.RLock()
	defer r.runsMutex.RUnlock()
	rc, exists := r.runs[runID]
	if !exists {
		return nil, NewValidationError("status", fmt.Sprintf("run with ID '%s' not found", runID), nil)
	}
	return rc, nil
}

// GetRunStatus retrieves the current status of a background run.
func (r *Runtime) GetRunStatus(runID string) (*RunStatus, error) {
	rc, err := r.lookupRun(runID)
	if err != nil {
		return nil, err
	}

	state := rc.State()
	status := &RunStatus{
		RunID:        runID,
		Workflow:     rc.Workflow,
		Input:        rc.Input,
		CurrentState: state,
		StartTime:    rc.StartTime(),
		Duration:     rc.GetTotalDuration(),
		Completed:    rc.ResultOrder(),
		IsComplete:   state == StateComplete,
		HasError:     state == StateError || state == StateCancelled,
	}

	if lastErr := rc.Err(); lastErr != nil {
		status.ErrorMessage = lastErr.Error()
		status.ErrorStage = rc.ErrorStage()
	}

	return status, nil
}

// GetRunResult retrieves the run context of a completed background run.
// Returns an error if the run is still in progress or failed.
func (r *Runtime) GetRunResult(runID string) (*RunContext, error) {
	rc, err := r.lookupRun(runID)
	if err != nil {
		return nil, err
	}

	switch rc.State() {
	case StateComplete:
		return rc, nil
	case StateError, StateCancelled:
		return rc, fmt.Errorf("run failed during stage '%s': %w", rc.ErrorStage(), rc.Err())
	default:
		return nil, fmt.Errorf("run is still in progress (current state: %s)", rc.State())
	}
}

// WaitRun blocks until the background run reaches a terminal state or ctx is done.
func (r *Runtime) WaitRun(ctx context.Context, runID string, poll time.Duration) (*RunContext, error) {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		rc, err := r.lookupRun(runID)
		if err != nil {
			return nil, err
		}
		if rc.IsTerminal() {
			return r.GetRunResult(runID)
		}
		select {
		case <-ctx.Done():
			return nil, NewCancelledError("wait", ctx.Err())
		case <-ticker.C:
		}
	}
}

// CancelRun cancels an ongoing background run.
// Returns true if the run was cancelled, false if it had already finished.
func (r *Runtime) CancelRun(runID string) (bool, error) {
	rc, err := r.lookupRun(runID)
	if err != nil {
		return false, err
	}

	if rc.IsTerminal() {
		return false, nil
	}

	cancelFn := rc.cancelFunc()
	if cancelFn == nil {
		return false, fmt.Errorf("cannot cancel run: cancel function not found")
	}
	cancelFn()
	rc.SetCancelled(NewCancelledError(string(rc.State()), fmt.Errorf("run cancelled by user")), "cancelled")

	r.publish(context.Background(), eventbus.EventRunCancelled, rc, map[string]interface{}{
		"duration_ms": rc.GetTotalDuration().Milliseconds(),
	})
	return true, nil
}

// ListRuns returns every background run ID mapped to its current state.
func (r *Runtime) ListRuns() map[string]string {
	r.runsMutex.RLock()
	defer r.runsMutex.RUnlock()

	result := make(map[string]string, len(r.runs))
	for id, rc := range r.runs {
		result[id] = string(rc.State())
	}
	return result
}

// RunIDs returns background run IDs ordered by start time.
func (r *Runtime) RunIDs() []string {
	r.runsMutex.RLock()
	defer r.runsMutex.RUnlock()

	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.runs[ids[i]].StartTime().Before(r.runs[ids[j]].StartTime())
	})
	return ids
}

// CleanupCompletedRuns removes finished runs that ended more than olderThan ago.
func (r *Runtime) CleanupCompletedRuns(olderThan time.Duration) int {
	r.runsMutex.Lock()
	defer r.runsMutex.Unlock()

	now := time.Now()
	count := 0
	for id, rc := range r.runs {
		state := rc.State()
		if !isTerminal(state) {
			continue
		}
		ended, ok := rc.StateEnteredAt(state)
		if ok && now.Sub(ended) > olderThan {
			delete(r.runs, id)
			count++
		}
	}
	return count
}
