package operator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/completion"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

func TestExecutivePlanComponents(t *testing.T) {
	plan := schema.PlannedComponents{Components: []string{"Create index.html", "Add styles"}}
	svc := completion.NewScripted(completion.Reply(plan))
	exec, err := NewExecutive(WithClient("scripted", svc))
	require.NoError(t, err)

	out, err := exec.Invoke(context.Background(), CapPlanComponents, Args{"starting_prompt": "a todo app"})
	require.NoError(t, err)
	assert.Equal(t, plan, out)

	call := svc.Calls()[0]
	assert.Equal(t, ExecutiveInstructions, call.System())
	assert.Equal(t, "plannedcomponents", call.SchemaName)
	assert.Contains(t, call.User(), "a todo app")
}

func TestDeveloperCapabilities(t *testing.T) {
	file := schema.ProjectFile{FileName: "index.html", FileContents: "<html></html>"}
	dir := schema.ProjectDirectory{ProjectName: "todo", Files: []schema.ProjectFile{file}}
	svc := completion.NewScripted(completion.Reply(file), completion.Reply(dir))
	dev, err := NewDeveloper(WithClient("scripted", svc))
	require.NoError(t, err)
	ctx := context.Background()

	out, err := dev.Invoke(ctx, CapImplementComponent, Args{"context": "build the page"})
	require.NoError(t, err)
	assert.Equal(t, file, out)

	out, err = dev.Invoke(ctx, CapIntegrateComponents, Args{
		"planned_components": schema.PlannedComponents{Components: []string{"page"}},
		"implementations":    []schema.ProjectFile{file},
		"idea":               "todo",
	})
	require.NoError(t, err)
	assert.Equal(t, dir, out)

	calls := svc.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "projectfile", calls[0].SchemaName)
	assert.Equal(t, "projectdirectory", calls[1].SchemaName)
	assert.Contains(t, calls[1].User(), "index.html")
}

func TestNewRole(t *testing.T) {
	for _, role := range []string{"executive", "developer", "prompt_engineer", "product_manager", "designer", "salesperson", "operator"} {
		o, err := NewRole(role)
		require.NoError(t, err, role)
		assert.Contains(t, o.Capabilities(), CapAsk)
	}
	_, err := NewRole("janitor")
	assert.ErrorIs(t, err, concrete.ErrConfiguration)
}

func TestListArguments(t *testing.T) {
	assert.Equal(t, []string{"a"}, Strings(schema.Summary{Summary: []string{"a"}}))
	assert.Equal(t, []string{"x", "y"}, Strings([]any{"x", "y"}))
	assert.Equal(t, []string{"solo"}, Strings("solo"))
	assert.Nil(t, Strings(nil))

	files, err := ProjectFiles([]any{map[string]any{"file_name": "a.go", "file_contents": "package a"}})
	require.NoError(t, err)
	assert.Equal(t, []schema.ProjectFile{{FileName: "a.go", FileContents: "package a"}}, files)

	_, err = ProjectFiles("not files")
	assert.Error(t, err)
}
