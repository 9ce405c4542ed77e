package completion

import (
	"context"
	"encoding/json"

	"github.com/firebase/genkit/go/core"

	"github.com/ZanzyTHEbar/concrete-go"
)

// GenkitInput is the input of a Genkit flow that answers completion requests.
type GenkitInput struct {
	System     string         `json:"system"`
	Query      string         `json:"query"`
	SchemaName string         `json:"schema_name"`
	Schema     map[string]any `json:"schema,omitempty"`
	Model      string         `json:"model,omitempty"`
}

// GenkitOutput is the output of that flow. Content holds the JSON answer;
// Refusal is set when the model declined.
type GenkitOutput struct {
	Content string `json:"content"`
	Refusal string `json:"refusal,omitempty"`
}

// GenkitFlow is the flow type the adapter runs.
type GenkitFlow = core.Flow[*GenkitInput, *GenkitOutput, struct{}]

// Genkit delegates completions to a Genkit flow, so any model plugin Genkit
// supports can back an operator.
type Genkit struct {
	run func(ctx context.Context, in *GenkitInput) (*GenkitOutput, error)
}

// NewGenkit creates an adapter for flow.
func NewGenkit(flow *GenkitFlow) (*Genkit, error) {
	if flow == nil {
		return nil, concrete.NewConfigurationError("genkit completion flow is not configured", nil)
	}
	return &Genkit{run: func(ctx context.Context, in *GenkitInput) (*GenkitOutput, error) {
		return flow.Run(ctx, in)
	}}, nil
}

// NewGenkitFunc creates an adapter around a function with the flow's
// signature. Tests and callers without a Genkit instance use it.
func NewGenkitFunc(fn func(ctx context.Context, in *GenkitInput) (*GenkitOutput, error)) *Genkit {
	return &Genkit{run: fn}
}

// Complete implements concrete.CompletionService.
func (g *Genkit) Complete(ctx context.Context, req concrete.CompletionRequest) (*concrete.CompletionResponse, error) {
	if g.run == nil {
		return nil, concrete.NewConfigurationError("genkit completion flow is not configured", nil)
	}

	in := &GenkitInput{
		System:     req.System(),
		Query:      req.User(),
		SchemaName: req.SchemaName,
		Schema:     req.Schema,
		Model:      req.Model,
	}
	out, err := g.run(ctx, in)
	if err != nil {
		return nil, concrete.NewCompletionError("genkit", err)
	}
	if out == nil {
		return nil, concrete.NewCompletionError("genkit", nil)
	}
	resp := &concrete.CompletionResponse{Refusal: out.Refusal, Model: req.Model}
	if out.Refusal == "" {
		resp.Content = json.RawMessage(out.Content)
	}
	return resp, nil
}
