package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TextAnswer is the default answer: free text.
type TextAnswer struct {
	Text string `json:"text" jsonschema:"description=The answer text"`
}

// Param is one named tool parameter as written by the model.
type Param struct {
	Name  string `json:"name" jsonschema:"description=Name of the parameter"`
	Value string `json:"value" jsonschema:"description=Value of the parameter"`
}

// ToolRequest asks the caller to invoke a registered tool.
type ToolRequest struct {
	ToolName       string  `json:"tool_name" jsonschema:"description=Name of the tool"`
	ToolMethod     string  `json:"tool_method" jsonschema:"description=Command to call the tool"`
	ToolParameters []Param `json:"tool_parameters" jsonschema:"description=List of parameters for the tool"`
}

// IsToolRequest reports whether both the tool and the method are filled in.
func (t ToolRequest) IsToolRequest() bool {
	return strings.TrimSpace(t.ToolName) != "" && strings.TrimSpace(t.ToolMethod) != ""
}

// ParamString renders the parameters the way they are echoed back to the model.
func (t ToolRequest) ParamString() string {
	parts := make([]string, len(t.ToolParameters))
	for i, p := range t.ToolParameters {
		parts[i] = fmt.Sprintf("%s=%q", p.Name, p.Value)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (t ToolRequest) String() string {
	return fmt.Sprintf("%s.%s(%s)", t.ToolName, t.ToolMethod, strings.Trim(t.ParamString(), "[]"))
}

// PlannedComponents is the executive's plan for a software project.
type PlannedComponents struct {
	Components []string `json:"components" jsonschema:"description=List of planned components"`
}

// Summary collects component summaries. Each item is an unbroken summary.
type Summary struct {
	Summary []string `json:"summary" jsonschema:"description=A list of component summaries"`
}

// ProjectFile is one generated file.
type ProjectFile struct {
	FileName     string `json:"file_name" jsonschema:"description=A file path relative to root"`
	FileContents string `json:"file_contents" jsonschema:"description=The contents of the file"`
}

// ProjectDirectory is a whole generated project.
type ProjectDirectory struct {
	ProjectName string        `json:"project_name" jsonschema:"description=Name of the project directory"`
	Files       []ProjectFile `json:"files" jsonschema:"description=The files in the project directory"`
}

// ChildNodeSummary summarizes one child of a node.
type ChildNodeSummary struct {
	NodeName string `json:"node_name" jsonschema:"description=Name of the node"`
	Summary  string `json:"summary" jsonschema:"description=Summary of the node"`
}

// NodeSummary summarizes a node and its children.
type NodeSummary struct {
	NodeName          string             `json:"node_name" jsonschema:"description=Name of the node"`
	OverallSummary    string             `json:"overall_summary" jsonschema:"description=Summary of the node"`
	ChildrenSummaries []ChildNodeSummary `json:"children_summaries" jsonschema:"description=Brief description of each child node"`
}

// NodeUUID identifies a node.
type NodeUUID struct {
	NodeUUID string `json:"node_uuid" jsonschema:"description=UUID of the node"`
}

func registerBuiltins(r *Registry) {
	r.MustRegister(
		TextAnswer{},
		Param{},
		ToolRequest{},
		PlannedComponents{},
		Summary{},
		ProjectFile{},
		ProjectDirectory{},
		ChildNodeSummary{},
		NodeSummary{},
		NodeUUID{},
	)
}

// Text renders any answer as text for prompts: TextAnswer yields its text,
// strings pass through, and everything else is indented JSON.
func Text(v any) string {
	switch a := v.(type) {
	case nil:
		return ""
	case string:
		return a
	case TextAnswer:
		return a.Text
	case *TextAnswer:
		return a.Text
	case fmt.Stringer:
		return a.String()
	}
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
