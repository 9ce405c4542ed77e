package schema

import (
	"encoding/json"
	"strings"

	"github.com/ZanzyTHEbar/concrete-go"
)

// ToolFields are the properties a widened schema adds to an answer.
var ToolFields = []string{"tool_name", "tool_method", "tool_parameters"}

// Reply is the answer to a request made with tools enabled. It stands for
// the union TextAnswer | ToolRequest | T & ToolRequest: Answer always holds
// the decoded requested type, and Tool is set when the model asked for a tool.
type Reply struct {
	Answer any
	Tool   *ToolRequest
}

// IsToolRequest reports whether the model asked for a tool.
func (r Reply) IsToolRequest() bool {
	return r.Tool != nil && r.Tool.IsToolRequest()
}

// WidenedName is the name a widened schema is sent under.
func WidenedName(name string) string {
	return strings.ToLower(name) + "withtools"
}

// WithTools returns a copy of an object schema whose properties also accept a
// ToolRequest. The tool properties are optional so plain answers still
// validate; the requested properties are left untouched.
func WithTools(doc map[string]any) map[string]any {
	out := deepCopy(doc).(map[string]any)
	props, _ := out["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	for k, v := range toolProperties() {
		if _, exists := props[k]; !exists {
			props[k] = v
		}
	}
	out["properties"] = props
	out["type"] = "object"
	return out
}

// DecodeReply decodes raw as the answer named name. With tools enabled the
// same document is also read as a ToolRequest.
func (r *Registry) DecodeReply(name string, raw []byte, withTools bool) (Reply, error) {
	answer, err := r.Decode(name, raw)
	if err != nil {
		return Reply{}, err
	}
	reply := Reply{Answer: answer}
	if !withTools {
		return reply, nil
	}
	if tr, ok := answer.(ToolRequest); ok {
		reply.Tool = &tr
		return reply, nil
	}
	var tr ToolRequest
	if err := json.Unmarshal(raw, &tr); err != nil {
		return Reply{}, concrete.NewValidationError("schema", "tool request fields do not decode", err)
	}
	if tr.IsToolRequest() {
		reply.Tool = &tr
	}
	return reply, nil
}

func toolProperties() map[string]any {
	return map[string]any{
		"tool_name": map[string]any{
			"type":        "string",
			"description": "Name of the tool",
		},
		"tool_method": map[string]any{
			"type":        "string",
			"description": "Command to call the tool",
		},
		"tool_parameters": map[string]any{
			"type":        "array",
			"description": "List of parameters for the tool",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":  map[string]any{"type": "string", "description": "Name of the parameter"},
					"value": map[string]any{"type": "string", "description": "Value of the parameter"},
				},
				"required":             []any{"name", "value"},
				"additionalProperties": false,
			},
		},
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
