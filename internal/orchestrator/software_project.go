// Package orchestrator drives operators through multi-phase workflows.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
	"github.com/ZanzyTHEbar/concrete-go/internal/operator"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

// Phases of a software project run.
const (
	StatePlanning     concrete.RunState = "planning"
	StateImplementing concrete.RunState = "implementing"
	StateIntegrating  concrete.RunState = "integrating"
)

// NoQuestion is the developer's answer when it has nothing to ask.
const NoQuestion = "No Question"

// Keys of the run data and results a software project records.
const (
	KeyComponents      = "components"
	KeyImplementations = "implementations"
	KeySummary         = "summary"
	ResultPlan         = "plan"
	ResultDirectory    = "directory"
)

// Observer receives every message exchanged during a run, tagged with the
// role that produced it.
type Observer func(role, message string)

// SoftwareProject turns a prompt into a project directory: the executive
// plans components, the developer implements each of them and then
// integrates them into files.
type SoftwareProject struct {
	prompt string
	exec   *operator.Operator
	dev    *operator.Operator

	maxClarifications int
	parallelism       int
	async             bool
	observer          Observer
	bus               eventbus.EventBus
	logger            logrus.FieldLogger
}

// Option configures a SoftwareProject.
type Option func(*SoftwareProject)

// WithMaxClarifications bounds the question rounds per component.
func WithMaxClarifications(n int) Option {
	return func(p *SoftwareProject) {
		if n >= 0 {
			p.maxClarifications = n
		}
	}
}

// WithParallelism implements up to n components at once. Components
// implemented in parallel do not see each other's summaries.
func WithParallelism(n int) Option {
	return func(p *SoftwareProject) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithAsync issues every operator call through the async pool.
func WithAsync(enabled bool) Option {
	return func(p *SoftwareProject) { p.async = enabled }
}

// WithObserver sets the function messages are reported to.
func WithObserver(fn Observer) Option {
	return func(p *SoftwareProject) { p.observer = fn }
}

// WithEventBus publishes phase events on bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(p *SoftwareProject) { p.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *SoftwareProject) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewSoftwareProject creates the workflow. exec must be an executive and
// dev a developer, as built by operator.NewExecutive and operator.NewDeveloper.
func NewSoftwareProject(prompt string, exec, dev *operator.Operator, options ...Option) (*SoftwareProject, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, concrete.NewValidationError("orchestrator", "a starting prompt is required", nil)
	}
	if exec == nil || dev == nil {
		return nil, concrete.NewValidationError("orchestrator", "an executive and a developer are required", nil)
	}
	p := &SoftwareProject{
		prompt:      prompt,
		exec:        exec,
		dev:         dev,
		parallelism: 1,
		logger:      logrus.StandardLogger(),
	}
	for _, option := range options {
		option(p)
	}
	return p, nil
}

// Name implements concrete.Workflow.
func (p *SoftwareProject) Name() string { return "software_project" }

// Input is the starting prompt.
func (p *SoftwareProject) Input() string { return p.prompt }

// Run implements concrete.Workflow. The resulting schema.ProjectDirectory
// is the run output.
func (p *SoftwareProject) Run(ctx context.Context, rc *concrete.RunContext) error {
	sm := concrete.NewStateMachine(p.bus)
	sm.RegisterTransition(concrete.StateInit, p.initTransition)
	sm.RegisterTransition(StatePlanning, p.planningTransition)
	sm.RegisterTransition(StateImplementing, p.implementingTransition)
	sm.RegisterTransition(StateIntegrating, p.integratingTransition)
	return sm.Execute(ctx, rc)
}

func (p *SoftwareProject) initTransition(ctx context.Context, bus eventbus.EventBus, rc *concrete.RunContext) (concrete.RunState, error) {
	p.log(rc).Info("software project started")
	rc.Set(KeySummary, "")
	return StatePlanning, nil
}

func (p *SoftwareProject) planningTransition(ctx context.Context, bus eventbus.EventBus, rc *concrete.RunContext) (concrete.RunState, error) {
	done := p.phase(ctx, bus, rc, StatePlanning)
	plan, err := call[schema.PlannedComponents](ctx, p, p.exec, operator.CapPlanComponents,
		operator.Args{"starting_prompt": p.prompt})
	if err != nil {
		return concrete.StateError, err
	}
	if len(plan.Components) == 0 {
		return concrete.StateError, concrete.NewValidationError(string(StatePlanning), "the plan has no components", nil)
	}
	p.observe("executive", schema.Text(plan))
	rc.SetResult(ResultPlan, plan)
	rc.Set(KeyComponents, plan.Components)
	done(map[string]interface{}{"components": len(plan.Components)})
	return StateImplementing, nil
}

func (p *SoftwareProject) implementingTransition(ctx context.Context, bus eventbus.EventBus, rc *concrete.RunContext) (concrete.RunState, error) {
	done := p.phase(ctx, bus, rc, StateImplementing)
	v, _ := rc.Get(KeyComponents)
	components, _ := v.([]string)

	files := make([]schema.ProjectFile, len(components))
	if p.parallelism <= 1 {
		summary := ""
		for i, component := range components {
			file, next, err := p.dehallucinate(ctx, summary, component)
			if err != nil {
				return concrete.StateError, fmt.Errorf("component %d (%s): %w", i+1, component, err)
			}
			files[i], summary = file, next
			rc.SetResult(componentKey(i), file)
		}
		rc.Set(KeySummary, summary)
	} else {
		summaries := make([]string, len(components))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.parallelism)
		for i, component := range components {
			g.Go(func() error {
				file, summary, err := p.dehallucinate(gctx, "", component)
				if err != nil {
					return fmt.Errorf("component %d (%s): %w", i+1, component, err)
				}
				files[i], summaries[i] = file, summary
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return concrete.StateError, err
		}
		for i, file := range files {
			rc.SetResult(componentKey(i), file)
		}
		rc.Set(KeySummary, strings.Join(summaries, "\n"))
	}

	rc.Set(KeyImplementations, files)
	done(map[string]interface{}{"files": len(files)})
	return StateIntegrating, nil
}

func (p *SoftwareProject) integratingTransition(ctx context.Context, bus eventbus.EventBus, rc *concrete.RunContext) (concrete.RunState, error) {
	done := p.phase(ctx, bus, rc, StateIntegrating)
	components, _ := rc.Get(KeyComponents)
	files, _ := rc.Get(KeyImplementations)

	dir, err := call[schema.ProjectDirectory](ctx, p, p.dev, operator.CapIntegrateComponents, operator.Args{
		"planned_components": components,
		"implementations":    files,
		"idea":               p.prompt,
	})
	if err != nil {
		return concrete.StateError, err
	}
	p.observe("developer", schema.Text(dir))
	rc.SetResult(ResultDirectory, dir)
	rc.SetOutput(dir)
	done(map[string]interface{}{"project": dir.ProjectName, "files": len(dir.Files)})
	return concrete.StateComplete, nil
}

// dehallucinate implements one component. The developer may ask up to
// maxClarifications questions, which the executive answers, before it
// writes the file. The executive then folds the file into the summary.
func (p *SoftwareProject) dehallucinate(ctx context.Context, summary, component string) (schema.ProjectFile, string, error) {
	brief := fmt.Sprintf("Previous Components summarized:\n%s\nCurrent Component: %s", summary, component)
	brief = fmt.Sprintf("Starting Prompt:\n%s\n%s", p.prompt, brief)

	type exchange struct{ question, answer string }
	var clarifications []exchange
	for i := 0; i < p.maxClarifications; i++ {
		q, err := call[schema.TextAnswer](ctx, p, p.dev, operator.CapAskQuestion, operator.Args{"context": brief})
		if err != nil {
			return schema.ProjectFile{}, "", err
		}
		if strings.TrimSpace(q.Text) == NoQuestion {
			break
		}
		p.observe("developer", q.Text)

		a, err := call[schema.TextAnswer](ctx, p, p.exec, operator.CapAnswerQuestion,
			operator.Args{"context": brief, "question": q.Text})
		if err != nil {
			return schema.ProjectFile{}, "", err
		}
		p.observe("executive", a.Text)
		clarifications = append(clarifications, exchange{q.Text, a.Text})
	}
	if len(clarifications) > 0 {
		brief += "\nComponent Clarifications:"
		for _, c := range clarifications {
			brief += "\nQuestion: " + c.question + "\nAnswer: " + c.answer
		}
	}

	file, err := call[schema.ProjectFile](ctx, p, p.dev, operator.CapImplementComponent, operator.Args{"context": brief})
	if err != nil {
		return schema.ProjectFile{}, "", err
	}
	p.observe("developer", schema.Text(file))

	next, err := call[schema.Summary](ctx, p, p.exec, operator.CapGenerateSummary,
		operator.Args{"summary": summary, "implementation": schema.Text(file)})
	if err != nil {
		return schema.ProjectFile{}, "", err
	}
	joined := strings.Join(next.Summary, "\n")
	p.observe("executive", joined)
	return file, joined, nil
}

// call invokes a capability, awaits it when async and checks the answer type.
func call[T any](ctx context.Context, p *SoftwareProject, op *operator.Operator, capability string, args operator.Args) (T, error) {
	var zero T
	out, err := op.Invoke(ctx, capability, args, operator.CallOptions{Async: operator.Bool(p.async)})
	if err != nil {
		return zero, err
	}
	out, err = operator.Resolve(ctx, out)
	if err != nil {
		return zero, err
	}
	v, ok := out.(T)
	if !ok {
		return zero, concrete.NewValidationError(capability,
			fmt.Sprintf("%s.%s answered with %T, want %T", op.Name, capability, out, zero), nil)
	}
	return v, nil
}

func (p *SoftwareProject) observe(role, message string) {
	if p.observer != nil {
		p.observer(role, message)
	}
}

func (p *SoftwareProject) log(rc *concrete.RunContext) logrus.FieldLogger {
	return p.logger.WithFields(logrus.Fields{"run_id": rc.ID, "workflow": p.Name()})
}

// phase publishes the start of state and returns the function that
// publishes its success.
func (p *SoftwareProject) phase(ctx context.Context, bus eventbus.EventBus, rc *concrete.RunContext, state concrete.RunState) func(map[string]interface{}) {
	started := time.Now()
	meta := map[string]interface{}{"run_id": rc.ID, "phase": string(state)}
	if err := eventbus.Publish(ctx, bus, eventbus.EventPhaseStarted, string(state), "SoftwareProject", meta); err != nil {
		p.log(rc).WithError(err).Debug("event not published")
	}
	p.log(rc).WithField("phase", state).Debug("phase started")
	return func(extra map[string]interface{}) {
		meta := map[string]interface{}{"run_id": rc.ID, "phase": string(state), "duration": time.Since(started).String()}
		for k, v := range extra {
			meta[k] = v
		}
		if err := eventbus.Publish(ctx, bus, eventbus.EventPhaseSuccess, string(state), "SoftwareProject", meta); err != nil {
			p.log(rc).WithError(err).Debug("event not published")
		}
	}
}

func componentKey(i int) string { return fmt.Sprintf("component_%d", i+1) }
