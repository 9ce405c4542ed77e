package operator

import (
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
	"github.com/ZanzyTHEbar/concrete-go/internal/tools"
)

// CallOptions tune a single capability call. Zero values mean "not set":
// empty strings, a nil Tools slice and nil flags fall back to the operator.
type CallOptions struct {
	Instructions string
	AnswerSchema string
	Tools        []*tools.Tool
	UseTools     *bool
	Async        *bool
	Client       string
}

// Merge returns o with every field set in override replacing its own.
func (o CallOptions) Merge(override CallOptions) CallOptions {
	out := o
	if override.Instructions != "" {
		out.Instructions = override.Instructions
	}
	if override.AnswerSchema != "" {
		out.AnswerSchema = override.AnswerSchema
	}
	if override.Tools != nil {
		out.Tools = override.Tools
	}
	if override.UseTools != nil {
		out.UseTools = override.UseTools
	}
	if override.Async != nil {
		out.Async = override.Async
	}
	if override.Client != "" {
		out.Client = override.Client
	}
	return out
}

// Bool returns a pointer to b for CallOptions flags.
func Bool(b bool) *bool { return &b }

func flag(b *bool) bool { return b != nil && *b }

// Option configures an Operator.
type Option func(*Operator)

// WithClient adds a completion service under name. The first client added
// becomes the default.
func WithClient(name string, svc concrete.CompletionService) Option {
	return func(o *Operator) {
		o.clients[name] = svc
		if o.defaultClient == "" {
			o.defaultClient = name
		}
	}
}

// WithDefaultClient selects the client used when a call names none.
func WithDefaultClient(name string) Option {
	return func(o *Operator) { o.defaultClient = name }
}

// WithTools sets the tools offered to the model when tools are in use.
func WithTools(ts ...*tools.Tool) Option {
	return func(o *Operator) { o.tools = ts }
}

// WithToolRegistry sets the registry tool requests are dispatched through.
func WithToolRegistry(r *tools.Registry) Option {
	return func(o *Operator) { o.registry = r }
}

// WithSchemaRegistry sets the registry answer schemas are resolved in.
func WithSchemaRegistry(r *schema.Registry) Option {
	return func(o *Operator) { o.schemas = r }
}

// WithAnswerSchema sets the default answer schema by registered name.
func WithAnswerSchema(name string) Option {
	return func(o *Operator) { o.answerSchema = name }
}

// WithOperatorID overrides the generated operator ID.
func WithOperatorID(id string) Option {
	return func(o *Operator) { o.ID = id }
}

// WithProjectID sets the project the operator works for.
func WithProjectID(id string) Option {
	return func(o *Operator) { o.ProjectID = id }
}

// WithStore sets the store answers are persisted to.
func WithStore(store concrete.MessageStore) Option {
	return func(o *Operator) { o.store = store }
}

// WithStoreMessages persists every resolved answer. New fails when no store is set.
func WithStoreMessages(enabled bool) Option {
	return func(o *Operator) { o.storeMessages = enabled }
}

// WithAsync makes capability calls return a *Future by default.
func WithAsync(enabled bool) Option {
	return func(o *Operator) { o.async = enabled }
}

// WithUseTools offers the operator's tools on every call by default.
func WithUseTools(enabled bool) Option {
	return func(o *Operator) { o.useTools = enabled }
}

// WithAsyncWorkers bounds the goroutines serving async calls.
func WithAsyncWorkers(n int) Option {
	return func(o *Operator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithEventBus publishes dispatch events on bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(o *Operator) { o.bus = bus }
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Operator) {
		if logger != nil {
			o.logger = logger
		}
	}
}
