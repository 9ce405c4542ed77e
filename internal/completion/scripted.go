package completion

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ZanzyTHEbar/concrete-go"
)

// ErrScriptExhausted is returned when a Scripted service runs out of steps.
var ErrScriptExhausted = errors.New("scripted completion has no steps left")

// Step is one scripted answer.
type Step struct {
	content json.RawMessage
	refusal string
	err     error
	handler func(req concrete.CompletionRequest) (any, error)
}

// Reply answers with v encoded as JSON. A json.RawMessage or string is used as is.
func Reply(v any) Step {
	switch t := v.(type) {
	case json.RawMessage:
		return Step{content: t}
	case string:
		return Step{content: json.RawMessage(t)}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Step{err: err}
	}
	return Step{content: raw}
}

// Refuse answers with a refusal.
func Refuse(msg string) Step { return Step{refusal: msg} }

// Fail returns err from Complete.
func Fail(err error) Step { return Step{err: err} }

// Handle computes the answer from the request.
func Handle(fn func(req concrete.CompletionRequest) (any, error)) Step {
	return Step{handler: fn}
}

// Scripted is a CompletionService that replays a fixed list of steps and
// records every request. It backs tests and offline runs.
type Scripted struct {
	mu     sync.Mutex
	steps  []Step
	next   int
	repeat bool
	calls  []concrete.CompletionRequest
}

// NewScripted returns a service that answers with steps in order.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Repeat makes the last step answer every request past the end of the script.
func (s *Scripted) Repeat() *Scripted {
	s.mu.Lock()
	s.repeat = true
	s.mu.Unlock()
	return s
}

// Calls returns a copy of the recorded requests.
func (s *Scripted) Calls() []concrete.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]concrete.CompletionRequest, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of recorded requests.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Complete implements concrete.CompletionService.
func (s *Scripted) Complete(ctx context.Context, req concrete.CompletionRequest) (*concrete.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, concrete.NewCancelledError("completion", err)
	}

	s.mu.Lock()
	s.calls = append(s.calls, req)
	var step Step
	switch {
	case s.next < len(s.steps):
		step = s.steps[s.next]
		s.next++
	case s.repeat && len(s.steps) > 0:
		step = s.steps[len(s.steps)-1]
	default:
		s.mu.Unlock()
		return nil, concrete.NewCompletionError("scripted", ErrScriptExhausted)
	}
	s.mu.Unlock()

	if step.handler != nil {
		v, err := step.handler(req)
		if err != nil {
			return nil, err
		}
		step = Reply(v)
	}
	if step.err != nil {
		return nil, step.err
	}
	return &concrete.CompletionResponse{
		Content: step.content,
		Refusal: step.refusal,
		Model:   ProviderScripted,
	}, nil
}
