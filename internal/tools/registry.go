package tools

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

// Registry maps tool names to tools. Populate it at startup; it is safe for
// concurrent readers afterwards.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger logrus.FieldLogger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger invocations are reported to.
func WithLogger(logger logrus.FieldLogger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]*Tool),
		logger: logrus.StandardLogger(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry with the built-in tools.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := RegisterBuiltins(defaultRegistry); err != nil {
			panic(err)
		}
	})
	return defaultRegistry
}

// Register adds t. A second tool with the same name is rejected.
func (r *Registry) Register(t *Tool) error {
	if t == nil || strings.TrimSpace(t.Name()) == "" {
		return concrete.NewValidationError("tools", "tool must have a name", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return concrete.NewDuplicateRegistrationError("tools", "tool", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister registers every tool and panics on the first failure.
func (r *Registry) MustRegister(ts ...*Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, concrete.NewToolNotFoundError("tools", name)
	}
	return t, nil
}

// Lookup resolves a list of tool names, failing on the first unknown one.
func (r *Registry) Lookup(names ...string) ([]*Tool, error) {
	out := make([]*Tool, 0, len(names))
	for _, n := range names {
		t, err := r.Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// List returns every tool sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Describe concatenates the self-description of every tool.
func (r *Registry) Describe() string {
	tools := r.List()
	parts := make([]string, len(tools))
	for i, t := range tools {
		parts[i] = t.String()
	}
	return strings.Join(parts, "\n\n")
}

// Invoke calls toolName.methodName with the model's named string parameters.
// The three failure kinds are distinguishable with errors.Is:
// concrete.ErrToolNotFound, concrete.ErrToolMethodNotFound and
// concrete.ErrToolInvocation.
func (r *Registry) Invoke(ctx context.Context, toolName, methodName string, params []schema.Param) (any, error) {
	supplied := make(map[string]any, len(params))
	for _, p := range params {
		supplied[p.Name] = p.Value
	}
	return r.InvokeArgs(ctx, toolName, methodName, supplied)
}

// InvokeRequest invokes the tool a model asked for.
func (r *Registry) InvokeRequest(ctx context.Context, req schema.ToolRequest) (any, error) {
	return r.Invoke(ctx, req.ToolName, req.ToolMethod, req.ToolParameters)
}

// InvokeArgs is Invoke for Go callers with typed arguments.
func (r *Registry) InvokeArgs(ctx context.Context, toolName, methodName string, args map[string]any) (any, error) {
	t, err := r.Get(toolName)
	if err != nil {
		return nil, err
	}

	name := ParseMethodName(methodName)
	m, ok := t.Method(name)
	if !ok {
		return nil, concrete.NewToolMethodNotFoundError("tools", toolName, name)
	}

	bound, err := bind(m, args)
	if err != nil {
		return nil, concrete.NewToolInvocationError("tools", toolName, name, err)
	}

	log := r.logger.WithFields(logrus.Fields{"tool": toolName, "method": name})
	log.Debug("invoking tool")

	out, err := m.fn(ctx, bound)
	if err != nil {
		log.WithError(err).Debug("tool returned an error")
		return nil, concrete.NewToolInvocationError("tools", toolName, name, err)
	}
	return out, nil
}
