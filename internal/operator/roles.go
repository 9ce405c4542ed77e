package operator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

// Capability names of the built-in roles.
const (
	CapAsk                   = "ask"
	CapAskQuestion           = "ask_question"
	CapImplementComponent    = "implement_component"
	CapIntegrateComponents   = "integrate_components"
	CapImplementHTMLElement  = "implement_html_element"
	CapPlanComponents        = "plan_components"
	CapAnswerQuestion        = "answer_question"
	CapGenerateSummary       = "generate_summary"
	CapUpdateParentSummary   = "update_parent_summary"
	CapSummarizeFile         = "summarize_file"
	CapSummarizeFromChildren = "summarize_from_children"
)

func answer(v any) CallOptions {
	return CallOptions{AnswerSchema: schema.Name(v)}
}

// NewGeneric creates an operator with the generic ask capability, which
// sends its "query" argument as is.
func NewGeneric(name, instructions string, options ...Option) (*Operator, error) {
	o, err := New(name, instructions, options...)
	if err != nil {
		return nil, err
	}
	o.MustDefine(CapAsk, func(_ context.Context, a Args) (any, error) {
		return a.Str("query"), nil
	})
	return o, nil
}

// NewDeveloper creates the operator that writes code.
func NewDeveloper(options ...Option) (*Operator, error) {
	o, err := NewGeneric("developer", DeveloperInstructions, options...)
	if err != nil {
		return nil, err
	}
	o.MustDefine(CapAskQuestion, func(_ context.Context, a Args) (any, error) {
		return askQuestionPrompt(a.Str("context")), nil
	})
	o.MustDefine(CapImplementComponent, func(_ context.Context, a Args) (any, error) {
		return implementComponentPrompt(a.Str("context")), nil
	}, answer(schema.ProjectFile{}))
	o.MustDefine(CapIntegrateComponents, func(_ context.Context, a Args) (any, error) {
		files, err := ProjectFiles(a["implementations"])
		if err != nil {
			return nil, err
		}
		return integrateComponentsPrompt(Strings(a["planned_components"]), files, a.Str("idea")), nil
	}, answer(schema.ProjectDirectory{}))
	o.MustDefine(CapImplementHTMLElement, func(_ context.Context, a Args) (any, error) {
		return implementHTMLElementPrompt(a.Str("prompt")), nil
	})
	return o, nil
}

// NewExecutive creates the operator that plans and guides other operators.
func NewExecutive(options ...Option) (*Operator, error) {
	o, err := NewGeneric("executive", ExecutiveInstructions, options...)
	if err != nil {
		return nil, err
	}
	o.MustDefine(CapPlanComponents, func(_ context.Context, a Args) (any, error) {
		return planComponentsPrompt(a.Str("starting_prompt")), nil
	}, answer(schema.PlannedComponents{}))
	o.MustDefine(CapAnswerQuestion, func(_ context.Context, a Args) (any, error) {
		return answerQuestionPrompt(a.Str("context"), a.Str("question")), nil
	})
	o.MustDefine(CapGenerateSummary, func(_ context.Context, a Args) (any, error) {
		return generateSummaryPrompt(a.Str("summary"), a.Str("implementation")), nil
	}, answer(schema.Summary{}))
	o.MustDefine(CapUpdateParentSummary, func(_ context.Context, a Args) (any, error) {
		return updateParentSummaryPrompt(a.Str("parent_summary"), a.Str("child_summary"),
			a.Str("parent_child_summaries"), a.Str("child_name")), nil
	}, answer(schema.NodeSummary{}))
	o.MustDefine(CapSummarizeFile, func(_ context.Context, a Args) (any, error) {
		return summarizeFilePrompt(a.Str("contents"), a.Str("file_name")), nil
	}, answer(schema.ChildNodeSummary{}))
	o.MustDefine(CapSummarizeFromChildren, func(_ context.Context, a Args) (any, error) {
		return summarizeFromChildrenPrompt(Strings(a["children_summaries"]), a.Str("parent_name")), nil
	}, answer(schema.NodeSummary{}))
	return o, nil
}

// NewPromptEngineer creates an instructions-only operator.
func NewPromptEngineer(options ...Option) (*Operator, error) {
	return NewGeneric("prompt_engineer", PromptEngineerInstructions, options...)
}

// NewProductManager creates an instructions-only operator.
func NewProductManager(options ...Option) (*Operator, error) {
	return NewGeneric("product_manager", ProductManagerInstructions, options...)
}

// NewDesigner creates an instructions-only operator.
func NewDesigner(options ...Option) (*Operator, error) {
	return NewGeneric("designer", DesignerInstructions, options...)
}

// NewSalesperson creates an instructions-only operator.
func NewSalesperson(options ...Option) (*Operator, error) {
	return NewGeneric("salesperson", SalespersonInstructions, options...)
}

// NewRole creates a built-in role by name.
func NewRole(role string, options ...Option) (*Operator, error) {
	switch role {
	case "executive":
		return NewExecutive(options...)
	case "developer":
		return NewDeveloper(options...)
	case "prompt_engineer":
		return NewPromptEngineer(options...)
	case "product_manager":
		return NewProductManager(options...)
	case "designer":
		return NewDesigner(options...)
	case "salesperson":
		return NewSalesperson(options...)
	case "operator":
		return NewGeneric("operator", OperatorInstructions, options...)
	}
	return nil, concrete.NewConfigurationError(fmt.Sprintf("unknown operator role %q", role), nil)
}

// Strings reads a list argument. Upstream answers such as PlannedComponents
// and Summary are unwrapped.
func Strings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case schema.PlannedComponents:
		return t.Components
	case schema.Summary:
		return t.Summary
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = schema.Text(e)
		}
		return out
	}
	return []string{schema.Text(v)}
}

// ProjectFiles reads a list of files from typed values or decoded JSON.
func ProjectFiles(v any) ([]schema.ProjectFile, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []schema.ProjectFile:
		return t, nil
	case schema.ProjectDirectory:
		return t.Files, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var files []schema.ProjectFile
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("implementations are not a list of files: %w", err)
	}
	return files, nil
}
