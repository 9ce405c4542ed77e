// Package schema holds the answer schemas operators ask the model to fill in,
// and the process-wide table that dereferences them by name.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ZanzyTHEbar/concrete-go"
)

// Namer lets an answer type pick the name it is registered under.
// The name is lowercased like every other registry key.
type Namer interface {
	SchemaName() string
}

// Envelope is the serialized form of an answer: its registered name plus the
// JSON document. It is what message stores persist.
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Registry maps lowercase schema names to Go types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type

	// compiled validators keyed by name and tool widening
	compiled map[string]*jsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]reflect.Type),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, populated with the built-in
// answer types on first use. Treat it as read-only after startup.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		registerBuiltins(defaultRegistry)
	})
	return defaultRegistry
}

// Name returns the canonical lowercase name of v's type.
func Name(v any) string {
	if n, ok := v.(Namer); ok {
		return strings.ToLower(n.SchemaName())
	}
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	return typeName(t)
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if n, ok := reflect.New(t).Elem().Interface().(Namer); ok {
		return strings.ToLower(n.SchemaName())
	}
	return strings.ToLower(t.Name())
}

// Register adds v's type under its lowercase name. Registering a second type
// under a name already taken fails with a DuplicateRegistrationError.
func (r *Registry) Register(v any) error {
	t := reflect.TypeOf(v)
	if t == nil {
		return concrete.NewValidationError("schema", "cannot register a nil answer type", nil)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return concrete.NewValidationError("schema", fmt.Sprintf("answer type %s must be a struct", t), nil)
	}
	name := typeName(t)
	if name == "" {
		return concrete.NewValidationError("schema", "answer type must be named", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[name]; exists {
		return concrete.NewDuplicateRegistrationError("schema", "answer schema", name)
	}
	r.types[name] = t
	return nil
}

// MustRegister registers every value and panics on the first failure.
func (r *Registry) MustRegister(vs ...any) {
	for _, v := range vs {
		if err := r.Register(v); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the type registered under name. Lookups ignore case.
func (r *Registry) Lookup(name string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[strings.ToLower(name)]
	if !ok {
		return nil, concrete.NewSchemaNotRegisteredError(name)
	}
	return t, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// New returns a pointer to a zero value of the type registered under name.
func (r *Registry) New(name string) (any, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return reflect.New(t).Interface(), nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Decode unmarshals raw into a value of the type registered under name and
// returns it by value.
func (r *Registry) Decode(name string, raw []byte) (any, error) {
	ptr, err := r.New(name)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, ptr); err != nil {
		return nil, concrete.NewValidationError("schema", fmt.Sprintf("answer does not decode as %s", strings.ToLower(name)), err)
	}
	return reflect.ValueOf(ptr).Elem().Interface(), nil
}

// Unmarshal dereferences env.Type and decodes env.Content.
func (r *Registry) Unmarshal(env Envelope) (any, error) {
	return r.Decode(env.Type, env.Content)
}

// Marshal serializes v into an envelope tagged with its registered name.
func Marshal(v any) (Envelope, error) {
	name := Name(v)
	if name == "" {
		return Envelope{}, concrete.NewValidationError("schema", "cannot marshal a nil answer", nil)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, concrete.NewValidationError("schema", fmt.Sprintf("answer %s does not marshal", name), err)
	}
	return Envelope{Type: name, Content: raw}, nil
}
