package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/completion"
	"github.com/ZanzyTHEbar/concrete-go/internal/operator"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

// fakeModel answers by schema the way the operators ask for them.
type fakeModel struct {
	mu        sync.Mutex
	questions int
	contexts  []string
}

func (m *fakeModel) handle(req concrete.CompletionRequest) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch req.SchemaName {
	case "plannedcomponents":
		return schema.PlannedComponents{Components: []string{"markup", "styles"}}, nil
	case "projectfile":
		m.contexts = append(m.contexts, req.User())
		name := "index.html"
		if strings.Contains(req.User(), "Current Component: styles") {
			name = "styles.css"
		}
		return schema.ProjectFile{FileName: name, FileContents: "/* " + name + " */"}, nil
	case "summary":
		return schema.Summary{Summary: []string{"done"}}, nil
	case "projectdirectory":
		return schema.ProjectDirectory{ProjectName: "site", Files: []schema.ProjectFile{
			{FileName: "index.html", FileContents: "<html></html>"},
			{FileName: "css/styles.css", FileContents: "body {}"},
		}}, nil
	}
	if req.System() == operator.DeveloperInstructions {
		m.questions++
		if m.questions == 1 {
			return schema.TextAnswer{Text: "Which colour?"}, nil
		}
		return schema.TextAnswer{Text: NoQuestion}, nil
	}
	return schema.TextAnswer{Text: "Blue."}, nil
}

func newTeam(t *testing.T, svc concrete.CompletionService) (*operator.Operator, *operator.Operator) {
	t.Helper()
	exec, err := operator.NewExecutive(operator.WithClient("fake", svc))
	require.NoError(t, err)
	dev, err := operator.NewDeveloper(operator.WithClient("fake", svc))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = exec.Close()
		_ = dev.Close()
	})
	return exec, dev
}

func TestSoftwareProjectSequential(t *testing.T) {
	model := &fakeModel{}
	svc := completion.NewScripted(completion.Handle(model.handle)).Repeat()
	exec, dev := newTeam(t, svc)

	var mu sync.Mutex
	var roles []string
	p, err := NewSoftwareProject("a static site", exec, dev,
		WithMaxClarifications(2),
		WithObserver(func(role, _ string) {
			mu.Lock()
			roles = append(roles, role)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	rc := concrete.NewRunContext("run-1", p.Name(), p.Input())
	require.NoError(t, p.Run(context.Background(), rc))

	assert.Equal(t, concrete.StateComplete, rc.State())
	dir, ok := rc.Output().(schema.ProjectDirectory)
	require.True(t, ok)
	assert.Equal(t, "site", dir.ProjectName)
	assert.Equal(t, []string{ResultPlan, "component_1", "component_2", ResultDirectory}, rc.ResultOrder())

	require.Len(t, model.contexts, 2)
	assert.Contains(t, model.contexts[0], "Component Clarifications:\nQuestion: Which colour?\nAnswer: Blue.")
	assert.NotContains(t, model.contexts[1], "Component Clarifications")
	assert.Contains(t, model.contexts[1], "Previous Components summarized:\ndone")
	assert.Contains(t, model.contexts[1], "Starting Prompt:\na static site")

	assert.Equal(t, "executive", roles[0])
	assert.Equal(t, "developer", roles[len(roles)-1])

	visited := rc.VisitedStates()
	assert.Contains(t, visited, StatePlanning)
	assert.Contains(t, visited, StateImplementing)
	assert.Contains(t, visited, StateIntegrating)
}

func TestSoftwareProjectParallel(t *testing.T) {
	model := &fakeModel{}
	svc := completion.NewScripted(completion.Handle(model.handle)).Repeat()
	exec, dev := newTeam(t, svc)

	p, err := NewSoftwareProject("a static site", exec, dev, WithParallelism(2), WithAsync(true))
	require.NoError(t, err)

	rt, err := concrete.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	rc, err := rt.Run(context.Background(), p)
	require.NoError(t, err)

	files, _ := rc.Get(KeyImplementations)
	assert.Equal(t, "index.html", files.([]schema.ProjectFile)[0].FileName)
	assert.Equal(t, "styles.css", files.([]schema.ProjectFile)[1].FileName)
	for _, c := range model.contexts {
		assert.Contains(t, c, "Previous Components summarized:\n\n")
	}
}

func TestSoftwareProjectRefusal(t *testing.T) {
	svc := completion.NewScripted(completion.Refuse("not today"))
	exec, dev := newTeam(t, svc)

	p, err := NewSoftwareProject("anything", exec, dev)
	require.NoError(t, err)
	rc := concrete.NewRunContext("run-2", p.Name(), p.Input())

	err = p.Run(context.Background(), rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, concrete.ErrOperatorRefusal)
	assert.Equal(t, concrete.StateError, rc.State())
	assert.Equal(t, string(StatePlanning), rc.ErrorStage())
}

func TestNewSoftwareProjectValidation(t *testing.T) {
	exec, dev := newTeam(t, completion.NewScripted())
	_, err := NewSoftwareProject(" ", exec, dev)
	assert.ErrorIs(t, err, concrete.ErrValidation)
	_, err = NewSoftwareProject("x", nil, dev)
	assert.ErrorIs(t, err, concrete.ErrValidation)
}

func TestWriteDirectory(t *testing.T) {
	root := t.TempDir()
	paths, err := WriteDirectory(root, schema.ProjectDirectory{ProjectName: "site", Files: []schema.ProjectFile{
		{FileName: "index.html", FileContents: "<html></html>"},
		{FileName: "css/styles.css", FileContents: "body {}"},
	}})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	raw, err := os.ReadFile(filepath.Join(root, "site", "css", "styles.css"))
	require.NoError(t, err)
	assert.Equal(t, "body {}", string(raw))

	_, err = WriteDirectory(root, schema.ProjectDirectory{ProjectName: "site", Files: []schema.ProjectFile{
		{FileName: "../escape.txt"},
	}})
	assert.ErrorIs(t, err, concrete.ErrValidation)
}
