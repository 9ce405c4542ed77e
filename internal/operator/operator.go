// Package operator implements operators: named bundles of capabilities whose
// string-returning calls are turned into structured model answers.
package operator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
	"github.com/ZanzyTHEbar/concrete-go/internal/tools"
)

// DefaultAsyncWorkers bounds concurrent async calls per operator.
const DefaultAsyncWorkers = 4

// Args are the keyword arguments of a capability call.
type Args map[string]any

// Str renders the argument as text. Structured answers render through schema.Text.
func (a Args) Str(name string) string {
	return schema.Text(a[name])
}

// Get returns the raw argument.
func (a Args) Get(name string) (any, bool) {
	v, ok := a[name]
	return v, ok
}

// Capability is an operator method. Returning a string asks the model that
// string; any other value is the answer itself.
type Capability func(ctx context.Context, args Args) (any, error)

type capability struct {
	fn       Capability
	raw      bool
	defaults CallOptions
}

// Operator holds instructions, tools, completion clients and capabilities.
type Operator struct {
	ID        string
	ProjectID string
	Name      string

	mu           sync.RWMutex
	instructions string
	tools        []*tools.Tool
	caps         map[string]capability

	answerSchema  string
	clients       map[string]concrete.CompletionService
	defaultClient string
	async         bool
	useTools      bool
	storeMessages bool
	store         concrete.MessageStore

	registry *tools.Registry
	schemas  *schema.Registry
	bus      eventbus.EventBus
	logger   logrus.FieldLogger

	workers   int
	pool      *pool.Pool
	inflight  sync.WaitGroup
	closeOnce sync.Once
	closed    bool
}

// New creates an operator. instructions is its system prompt.
func New(name, instructions string, options ...Option) (*Operator, error) {
	o := &Operator{
		ID:           uuid.New().String(),
		ProjectID:    uuid.New().String(),
		Name:         name,
		instructions: instructions,
		caps:         make(map[string]capability),
		answerSchema: schema.Name(schema.TextAnswer{}),
		clients:      make(map[string]concrete.CompletionService),
		registry:     tools.Default(),
		schemas:      schema.Default(),
		logger:       logrus.StandardLogger(),
		workers:      DefaultAsyncWorkers,
	}
	for _, option := range options {
		option(o)
	}

	if strings.TrimSpace(o.instructions) == "" {
		return nil, concrete.NewValidationError("operator", "operator '"+name+"' needs instructions", nil)
	}
	if o.storeMessages && o.store == nil {
		return nil, concrete.NewStoreUnavailableError(name)
	}
	if !o.schemas.Has(o.answerSchema) {
		return nil, concrete.NewSchemaNotRegisteredError(o.answerSchema)
	}
	o.logger = o.logger.WithFields(logrus.Fields{"operator": name, "operator_id": o.ID})

	o.caps["chat"] = capability{raw: true, fn: func(_ context.Context, args Args) (any, error) {
		return o.Chat(args.Str("message")), nil
	}}
	return o, nil
}

// Define adds a capability. Its string results are sent to the model.
// defaults apply to every call of the capability; call options override them.
func (o *Operator) Define(name string, fn Capability, defaults ...CallOptions) error {
	c := capability{fn: fn}
	for _, d := range defaults {
		c.defaults = c.defaults.Merge(d)
	}
	return o.define(name, c)
}

// DefineRaw adds a capability whose results are never sent to the model.
func (o *Operator) DefineRaw(name string, fn Capability) error {
	return o.define(name, capability{fn: fn, raw: true})
}

// MustDefine is Define that panics on error.
func (o *Operator) MustDefine(name string, fn Capability, defaults ...CallOptions) {
	if err := o.Define(name, fn, defaults...); err != nil {
		panic(err)
	}
}

func (o *Operator) define(name string, c capability) error {
	if name == "" || c.fn == nil {
		return concrete.NewValidationError("operator", "capability needs a name and a function", nil)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.caps[name]; exists {
		return concrete.NewDuplicateRegistrationError("operator", "capability", name)
	}
	o.caps[name] = c
	return nil
}

func (o *Operator) capability(name string) (capability, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.caps[name]
	return c, ok
}

// Capabilities returns the capability names, sorted.
func (o *Operator) Capabilities() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.caps))
	for name := range o.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instructions returns the system prompt.
func (o *Operator) Instructions() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.instructions
}

// SetInstructions replaces the system prompt.
func (o *Operator) SetInstructions(instructions string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.instructions = instructions
}

// Tools returns the tools offered when tools are in use.
func (o *Operator) Tools() []*tools.Tool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*tools.Tool(nil), o.tools...)
}

// SetTools replaces the offered tools.
func (o *Operator) SetTools(ts ...*tools.Tool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tools = ts
}

// Store returns the message store, or nil.
func (o *Operator) Store() concrete.MessageStore { return o.store }

// Defaults are the options every call starts from.
func (o *Operator) Defaults() CallOptions {
	return CallOptions{
		Instructions: o.Instructions(),
		AnswerSchema: o.answerSchema,
		UseTools:     Bool(o.useTools),
		Async:        Bool(o.async),
		Client:       o.defaultClient,
	}
}

// Chat returns message unchanged. It is never routed through the model.
func (o *Operator) Chat(message string) string {
	return message
}

func (o *Operator) client(name string) (concrete.CompletionService, error) {
	if name == "" {
		name = o.defaultClient
	}
	svc, ok := o.clients[name]
	if !ok || svc == nil {
		return nil, concrete.NewConfigurationError("operator '"+o.Name+"' has no completion client '"+name+"'", nil)
	}
	return svc, nil
}

// reserve returns the async pool and counts one pending submission, or nil
// once the operator is closed. The pool is created on first use.
func (o *Operator) reserve() *pool.Pool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	if o.pool == nil {
		o.pool = pool.New().WithMaxGoroutines(o.workers)
	}
	o.inflight.Add(1)
	return o.pool
}

// Close waits for outstanding async calls. Later async calls fail.
// Repeated calls wait for the first to finish.
func (o *Operator) Close() error {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		p := o.pool
		o.mu.Unlock()

		o.inflight.Wait()
		if p != nil {
			p.Wait()
		}
	})
	return nil
}
