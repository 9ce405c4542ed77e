package concrete

import (
	"context"
	"errors"
	"testing"

	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
)

func newTestMachine() *StateMachine {
	sm := NewStateMachine(nil)
	sm.RegisterTransition(StateInit, func(ctx context.Context, _ eventbus.EventBus, rc *RunContext) (RunState, error) {
		rc.SetResult("init", "ok")
		return StateRunning, nil
	})
	sm.RegisterTransition(StateRunning, func(ctx context.Context, _ eventbus.EventBus, rc *RunContext) (RunState, error) {
		rc.SetResult("running", "ok")
		return StateComplete, nil
	})
	return sm
}

func TestStateMachine_Execute_Success(t *testing.T) {
	rc := NewRunContext("r1", "test", "query")
	if err := newTestMachine().Execute(context.Background(), rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.State() != StateComplete {
		t.Errorf("expected complete, got %s", rc.State())
	}
	order := rc.ResultOrder()
	if len(order) != 2 || order[0] != "init" || order[1] != "running" {
		t.Errorf("unexpected result order %v", order)
	}
}

func TestStateMachine_Execute_ErrorTransition(t *testing.T) {
	sm := NewStateMachine(nil)
	boom := errors.New("fail")
	sm.RegisterTransition(StateInit, func(context.Context, eventbus.EventBus, *RunContext) (RunState, error) {
		return "", boom
	})
	rc := NewRunContext("r1", "test", "")
	err := sm.Execute(context.Background(), rc)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if rc.State() != StateError || rc.ErrorStage() != string(StateInit) {
		t.Errorf("unexpected state %s stage %s", rc.State(), rc.ErrorStage())
	}
}

func TestStateMachine_Execute_MissingTransition(t *testing.T) {
	sm := NewStateMachine(nil)
	rc := NewRunContext("r1", "test", "")
	err := sm.Execute(context.Background(), rc)
	if CodeOf(err) != ErrCodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestStateMachine_Execute_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rc := NewRunContext("r1", "test", "")
	err := newTestMachine().Execute(ctx, rc)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if rc.State() != StateCancelled {
		t.Errorf("expected cancelled, got %s", rc.State())
	}
}

func TestRunContext_PushPop(t *testing.T) {
	rc := NewRunContext("r1", "test", "")
	rc.PushState("planning")
	rc.PushState("implementing")
	if rc.State() != "implementing" {
		t.Fatalf("unexpected state %s", rc.State())
	}
	if !rc.PopState() || rc.State() != "planning" {
		t.Fatalf("expected planning after pop, got %s", rc.State())
	}
	if !rc.PopState() || rc.State() != StateInit {
		t.Fatalf("expected init after pop, got %s", rc.State())
	}
	if rc.PopState() {
		t.Error("pop on empty stack should report false")
	}
	visited := rc.VisitedStates()
	if len(visited) != 3 {
		t.Errorf("unexpected visited states %v", visited)
	}
}

func TestRunContext_SetResultKeepsFirstPosition(t *testing.T) {
	rc := NewRunContext("r1", "test", "")
	rc.SetResult("a", 1)
	rc.SetResult("b", 2)
	rc.SetResult("a", 3)
	order := rc.ResultOrder()
	if len(order) != 2 || order[0] != "a" {
		t.Errorf("unexpected order %v", order)
	}
	if v, _ := rc.Result("a"); v != 3 {
		t.Errorf("expected overwritten value, got %v", v)
	}
}
