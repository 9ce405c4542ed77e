package project

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
	"github.com/ZanzyTHEbar/concrete-go/internal/operator"
)

const tracerName = "github.com/ZanzyTHEbar/concrete-go/project"

// Result is one executed node and its resolved answer.
type Result struct {
	Node     string
	Operator string
	Value    any
	Duration time.Duration
}

// Edge carries a parent's result into a child's argument.
type Edge struct {
	Parent    string
	Child     string
	ResultKey string
	Transform Transform
}

// Project is a DAG of nodes. It is executed once.
type Project struct {
	name string

	mu       sync.Mutex
	nodes    map[string]*Node
	order    []string
	edges    map[string][]Edge
	options  operator.CallOptions
	executed bool
	partial  []Result
	metrics  Metrics

	bus    eventbus.EventBus
	logger logrus.FieldLogger
	tracer trace.Tracer
}

// Option configures a Project.
type Option func(*Project)

// WithCallOptions sets options passed to every node. A node's own options
// win over them.
func WithCallOptions(opts operator.CallOptions) Option {
	return func(p *Project) { p.options = opts }
}

// WithEventBus publishes node events on bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(p *Project) { p.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Project) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracer records node spans on tracer instead of the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Project) { p.tracer = tracer }
}

// New creates an empty project.
func New(name string, options ...Option) *Project {
	p := &Project{
		name:   name,
		nodes:  make(map[string]*Node),
		edges:  make(map[string][]Edge),
		logger: logrus.StandardLogger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, option := range options {
		option(p)
	}
	p.logger = p.logger.WithField("project", name)
	return p
}

// AddNode adds n. Node names are unique within a project.
func (p *Project) AddNode(n *Node) (*Node, error) {
	if n == nil {
		return nil, concrete.NewValidationError("project", "cannot add a nil node", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.nodes[n.Name]; exists {
		return nil, concrete.NewDuplicateRegistrationError("project", "node", n.Name)
	}
	p.nodes[n.Name] = n
	p.order = append(p.order, n.Name)
	return n, nil
}

// AddEdge passes parent's result, mapped by transform, to child as the
// argument resultKey. Both nodes must already exist. A nil transform is
// Identity. When several parents write the same key, the parent that
// finishes last wins.
func (p *Project) AddEdge(parent, child, resultKey string, transform Transform) (Edge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, name := range []string{parent, child} {
		if _, ok := p.nodes[name]; !ok {
			return Edge{}, concrete.NewMissingNodeError(name)
		}
	}
	if transform == nil {
		transform = Identity
	}
	e := Edge{Parent: parent, Child: child, ResultKey: resultKey, Transform: transform}
	p.edges[parent] = append(p.edges[parent], e)
	return e, nil
}

// Node returns the node called name.
func (p *Project) Node(name string) (*Node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[name]
	return n, ok
}

// Nodes returns the node names in insertion order.
func (p *Project) Nodes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// Edges returns the out-edges of parent.
func (p *Project) Edges(parent string) []Edge {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Edge(nil), p.edges[parent]...)
}

// Validate fails with a CyclicGraphError naming a node on the first cycle found.
func (p *Project) Validate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validateLocked()
}

func (p *Project) validateLocked() error {
	visited := make(map[string]bool, len(p.nodes))
	stack := make(map[string]bool, len(p.nodes))
	var cyclic func(name string) string
	cyclic = func(name string) string {
		if stack[name] {
			return name
		}
		if visited[name] {
			return ""
		}
		visited[name] = true
		stack[name] = true
		for _, e := range p.edges[name] {
			if at := cyclic(e.Child); at != "" {
				return at
			}
		}
		stack[name] = false
		return ""
	}
	for _, name := range p.order {
		if at := cyclic(name); at != "" {
			return concrete.NewCyclicGraphError(at)
		}
	}
	return nil
}

// Execute validates the project and returns a lazy sequence of node
// results. Nodes run one at a time, each once all of its parents finished.
// Stopping the iteration stops execution.
//
// When a node fails, the sequence ends with (Result{Node: name}, err) where
// err is a NodeExecutionError tagged with that node. Results yielded before
// remain valid and are also available from Partial. A second Execute yields
// a ValidationError.
func (p *Project) Execute(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		p.mu.Lock()
		if p.executed {
			p.mu.Unlock()
			yield(Result{}, concrete.NewValidationError("project", "project already executed", nil))
			return
		}
		p.executed = true
		if err := p.validateLocked(); err != nil {
			p.mu.Unlock()
			yield(Result{}, err)
			return
		}
		pending := make(map[string]int, len(p.nodes))
		for _, name := range p.order {
			pending[name] = 0
		}
		for _, name := range p.order {
			for _, e := range p.edges[name] {
				pending[e.Child]++
			}
		}
		var ready []string
		for _, name := range p.order {
			if pending[name] == 0 {
				ready = append(ready, name)
				p.nodes[name].setStatus(StatusReady)
			}
		}
		p.mu.Unlock()

		start := time.Now()
		done := 0
		defer func() {
			skipped := len(pending) - done
			p.metrics.finish(time.Since(start), skipped)
			if skipped > 0 {
				p.logger.WithField("skipped", skipped).Debug("nodes never became ready")
			}
		}()

		p.publish(ctx, eventbus.EventProjectStarted, p.name, nil)
		for len(ready) > 0 {
			name := ready[0]
			ready = ready[1:]
			node, _ := p.Node(name)

			if err := ctx.Err(); err != nil {
				p.publish(ctx, eventbus.EventProjectFailure, p.name, map[string]interface{}{"node": name})
				yield(Result{Node: name}, concrete.NewNodeExecutionError(name, concrete.NewCancelledError("project", err)))
				return
			}

			res, err := p.run(ctx, node)
			done++
			if err != nil {
				p.publish(ctx, eventbus.EventProjectFailure, p.name, map[string]interface{}{"node": name})
				yield(Result{Node: name, Operator: node.op.Name}, concrete.NewNodeExecutionError(name, err))
				return
			}

			// Children are fed before yielding so a consumer that stops
			// early still leaves consistent dynamic arguments behind.
			for _, e := range p.Edges(name) {
				v, err := e.Transform(res.Value)
				if err != nil {
					p.publish(ctx, eventbus.EventProjectFailure, p.name, map[string]interface{}{"node": name})
					yield(Result{Node: name, Operator: node.op.Name}, concrete.NewNodeExecutionError(name,
						fmt.Errorf("transform for %s.%s: %w", e.Child, e.ResultKey, err)))
					return
				}
				child, _ := p.Node(e.Child)
				child.Update(e.ResultKey, v)
				pending[e.Child]--
				if pending[e.Child] == 0 {
					child.setStatus(StatusReady)
					ready = append(ready, e.Child)
				}
			}

			p.mu.Lock()
			p.partial = append(p.partial, res)
			p.mu.Unlock()
			if !yield(res, nil) {
				return
			}
		}
		p.publish(ctx, eventbus.EventProjectSuccess, p.name, map[string]interface{}{"nodes": done})
	}
}

func (p *Project) run(ctx context.Context, n *Node) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "project.node",
		trace.WithAttributes(
			attribute.String("project.name", p.name),
			attribute.String("node.name", n.Name),
			attribute.String("node.operator", n.op.Name),
			attribute.String("node.task", n.Task),
		),
	)
	defer span.End()

	log := p.logger.WithFields(logrus.Fields{"node": n.Name, "task": n.Task})
	n.setStatus(StatusRunning)
	p.publish(ctx, eventbus.EventNodeStarted, n.Name, nil)
	log.Debug("executing node")

	started := time.Now()
	value, err := n.Execute(ctx, p.options)
	elapsed := time.Since(started)
	p.metrics.record(elapsed, err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Warn("node failed")
		p.publish(ctx, eventbus.EventNodeFailure, n.Name, map[string]interface{}{"error": err.Error()})
		return Result{}, err
	}
	n.setStatus(StatusDone)
	p.publish(ctx, eventbus.EventNodeSuccess, n.Name, map[string]interface{}{"duration": elapsed.String()})
	return Result{Node: n.Name, Operator: n.op.Name, Value: value, Duration: elapsed}, nil
}

// Partial returns the results yielded so far.
func (p *Project) Partial() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Result(nil), p.partial...)
}

// Metrics returns a snapshot of the execution statistics.
func (p *Project) Metrics() Metrics {
	return p.metrics.Copy()
}

// Run executes the project as a workflow, storing every result in rc.
func (p *Project) Run(ctx context.Context, rc *concrete.RunContext) error {
	var last any
	for res, err := range p.Execute(ctx) {
		if err != nil {
			return err
		}
		rc.SetResult(res.Node, res.Value)
		last = res.Value
	}
	rc.SetOutput(last)
	return nil
}

// Name returns the project name.
func (p *Project) Name() string { return p.name }

func (p *Project) publish(ctx context.Context, t eventbus.EventType, payload interface{}, meta map[string]interface{}) {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["project"] = p.name
	if err := eventbus.Publish(ctx, p.bus, t, payload, "Project", meta); err != nil {
		p.logger.WithError(err).WithField("event_type", t).Debug("event not published")
	}
}
