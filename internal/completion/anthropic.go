package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ZanzyTHEbar/concrete-go"
)

// answerTool is the single tool Claude is forced to call; its input is the answer.
const answerTool = "record_answer"

// MessagesClient is the subset of the Anthropic SDK used by the adapter.
// *sdk.MessageService satisfies it, and tests pass a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicOptions configures the Anthropic adapter.
type AnthropicOptions struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Anthropic gets structured answers from Claude by forcing a tool call whose
// input schema is the answer schema.
type Anthropic struct {
	msg  MessagesClient
	opts AnthropicOptions
}

// NewAnthropic builds the adapter around msg.
func NewAnthropic(msg MessagesClient, opts AnthropicOptions) (*Anthropic, error) {
	if msg == nil {
		return nil, concrete.NewConfigurationError("anthropic client is required", nil)
	}
	if opts.Model == "" {
		opts.Model = DefaultAnthropicModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Anthropic{msg: msg, opts: opts}, nil
}

// NewAnthropicFromAPIKey constructs the adapter with the default HTTP client.
func NewAnthropicFromAPIKey(apiKey string, opts AnthropicOptions) (*Anthropic, error) {
	if apiKey == "" {
		return nil, concrete.NewConfigurationError("ANTHROPIC_API_KEY is required for the anthropic provider", nil)
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(&client.Messages, opts)
}

// Complete implements concrete.CompletionService.
func (c *Anthropic) Complete(ctx context.Context, req concrete.CompletionRequest) (*concrete.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, concrete.NewValidationError("completion", "messages are required", nil)
	}

	model := req.Model
	if model == "" {
		model = c.opts.Model
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: c.opts.MaxTokens,
	}
	for _, m := range req.Messages {
		switch m.Role {
		case concrete.RoleSystem:
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case concrete.RoleAssistant:
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	temperature := c.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if temperature > 0 {
		params.Temperature = sdk.Float(temperature)
	}
	if req.Schema != nil {
		tool := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: req.Schema}, answerTool)
		tool.OfTool.Description = sdk.String("Record the answer. The input must match the " + schemaName(req.SchemaName) + " schema.")
		params.Tools = []sdk.ToolUnionParam{tool}
		params.ToolChoice = sdk.ToolChoiceParamOfTool(answerTool)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, concrete.NewRateLimitedError(ProviderAnthropic, err)
		}
		return nil, concrete.NewCompletionError("anthropic", err)
	}
	if msg == nil {
		return nil, concrete.NewCompletionError("anthropic", errors.New("response message is nil"))
	}

	out := &concrete.CompletionResponse{
		Model: string(msg.Model),
		Usage: concrete.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "tool_use":
			if block.Name == answerTool {
				out.Content = json.RawMessage(block.Input)
			}
		case "text":
			text.WriteString(block.Text)
		}
	}

	if string(msg.StopReason) == "refusal" {
		out.Content = nil
		out.Refusal = strings.TrimSpace(text.String())
		if out.Refusal == "" {
			out.Refusal = "refused"
		}
		return out, nil
	}
	if out.Content == nil {
		// No forced tool: the text itself must be the JSON answer.
		out.Content = json.RawMessage(strings.TrimSpace(text.String()))
	}
	return out, nil
}
