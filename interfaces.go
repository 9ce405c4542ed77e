package concrete

import "context"

// CompletionService turns role-tagged messages into a structured answer.
type CompletionService interface {
	// Complete sends the request to the model. Rate limiting must be reported
	// with an error matching ErrRateLimited so callers can back off.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionFunc adapts a plain function to the CompletionService interface.
type CompletionFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

// Complete implements CompletionService.
func (f CompletionFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}

// MessageStore persists resolved answers produced by operators.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg Message) error
	ListMessages(ctx context.Context, operatorID string) ([]Message, error)
	Close() error
}

// Workflow is a unit of work the Runtime can run in the foreground or background.
type Workflow interface {
	Name() string
	Run(ctx context.Context, rc *RunContext) error
}
