package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ZanzyTHEbar/concrete-go"
)

// ChatCompletionsClient is the subset of the OpenAI SDK used by the adapter.
// *openai.ChatCompletionService satisfies it, and tests pass a mock.
type ChatCompletionsClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI asks the Chat Completions API for a JSON-schema constrained answer.
type OpenAI struct {
	chat        ChatCompletionsClient
	model       string
	temperature float64
}

// NewOpenAI builds the adapter around chat.
func NewOpenAI(chat ChatCompletionsClient, model string, temperature float64) (*OpenAI, error) {
	if chat == nil {
		return nil, concrete.NewConfigurationError("openai client is required", nil)
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{chat: chat, model: model, temperature: temperature}, nil
}

// NewOpenAIFromAPIKey constructs the adapter with the default HTTP client.
func NewOpenAIFromAPIKey(apiKey, model string, temperature float64) (*OpenAI, error) {
	if apiKey == "" {
		return nil, concrete.NewConfigurationError("OPENAI_API_KEY is required for the openai provider", nil)
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAI(&client.Chat.Completions, model, temperature)
}

// Complete implements concrete.CompletionService.
func (c *OpenAI) Complete(ctx context.Context, req concrete.CompletionRequest) (*concrete.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, concrete.NewValidationError("completion", "messages are required", nil)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    encodeOpenAIMessages(req.Messages),
		Temperature: openai.Float(temperature),
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName(req.SchemaName),
					Schema: strictSchema(req.Schema),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, concrete.NewRateLimitedError(ProviderOpenAI, err)
		}
		return nil, concrete.NewCompletionError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, concrete.NewCompletionError("openai", errors.New("response has no choices"))
	}

	msg := resp.Choices[0].Message
	out := &concrete.CompletionResponse{
		Refusal: msg.Refusal,
		Model:   resp.Model,
		Usage: concrete.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if msg.Refusal == "" {
		out.Content = json.RawMessage(msg.Content)
	}
	return out, nil
}

func encodeOpenAIMessages(msgs []concrete.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case concrete.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case concrete.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// schemaName makes a provider-safe schema name.
func schemaName(name string) string {
	if name == "" {
		return "answer"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}

// strictSchema returns a copy of doc in which every object lists all of its
// properties as required and forbids additional properties, as strict
// structured outputs demand. Optional fields are still answered, just empty.
func strictSchema(doc map[string]any) map[string]any {
	out, _ := strictify(doc).(map[string]any)
	return out
}

func strictify(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = strictify(e)
		}
		if props, ok := out["properties"].(map[string]any); ok {
			required := make([]any, 0, len(props))
			for k := range props {
				required = append(required, k)
			}
			sort.Slice(required, func(i, j int) bool { return required[i].(string) < required[j].(string) })
			out["required"] = required
			out["additionalProperties"] = false
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = strictify(e)
		}
		return out
	default:
		return v
	}
}
