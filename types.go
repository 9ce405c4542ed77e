package concrete

import (
	"encoding/json"
	"time"
)

// Role tags a chat message for the completion service.
type Role string

const (
	// RoleSystem carries the operator's instructions.
	RoleSystem Role = "system"
	// RoleUser carries the composed query.
	RoleUser Role = "user"
	// RoleAssistant carries a model answer.
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single role-tagged message.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is what an operator hands to a CompletionService.
type CompletionRequest struct {
	Messages []ChatMessage `json:"messages"`

	// SchemaName is the registered answer schema the reply must satisfy.
	SchemaName string `json:"schema_name"`
	// Schema is the JSON schema sent to the provider. It is already widened
	// with the tool request properties when tools are enabled.
	Schema map[string]any `json:"schema,omitempty"`

	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// System returns the content of the first system message.
func (r CompletionRequest) System() string {
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			return m.Content
		}
	}
	return ""
}

// User returns the content of the last user message.
func (r CompletionRequest) User() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// CompletionResponse is the raw structured answer returned by a provider.
type CompletionResponse struct {
	// Content is the JSON document conforming to the request schema.
	Content json.RawMessage `json:"content,omitempty"`
	// Refusal is non-empty when the model declined to answer.
	Refusal string `json:"refusal,omitempty"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Message is a resolved structured answer handed to a MessageStore.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`    // registered answer schema name
	Content    json.RawMessage `json:"content"` // serialized answer
	Prompt     string          `json:"prompt"`
	ProjectID  string          `json:"project_id"`
	OperatorID string          `json:"operator_id"`
	CreatedAt  time.Time       `json:"created_at"`
}
