// Package tools is the registry of capability tools operators can ask for.
// A tool is a named set of methods; the model selects a tool, a method and
// named string parameters, and the registry binds and invokes the method.
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Kind is the declared type of a parameter or return value.
type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindBool  Kind = "bool"
	KindStr   Kind = "str"
	KindList  Kind = "list"
	KindDict  Kind = "dict"
	KindAny   Kind = "any"
)

// Args are the bound, coerced arguments handed to a method.
type Args map[string]any

// Str returns the named argument as a string.
func (a Args) Str(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns the named argument as an int.
func (a Args) Int(name string) int {
	i, _ := a[name].(int)
	return i
}

// Float returns the named argument as a float64.
func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

// Bool returns the named argument as a bool.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// MethodFunc is the body of a tool method.
type MethodFunc func(ctx context.Context, args Args) (any, error)

// Param declares one method parameter.
type Param struct {
	Name       string
	Kind       Kind
	Default    any
	HasDefault bool
}

func (p Param) String() string {
	s := p.Name
	if p.Kind != "" {
		s += ": " + string(p.Kind)
	}
	if p.HasDefault {
		s += fmt.Sprintf(" = %v", p.Default)
	}
	return s
}

// Method is one invocable method of a tool.
type Method struct {
	Name    string
	Params  []Param
	Returns Kind
	Doc     string

	fn       MethodFunc
	internal bool
}

// MethodOption configures a Method.
type MethodOption func(*Method)

// WithParam declares a required parameter.
func WithParam(name string, kind Kind) MethodOption {
	return func(m *Method) {
		m.Params = append(m.Params, Param{Name: name, Kind: kind})
	}
}

// WithDefault declares an optional parameter and its default value.
func WithDefault(name string, kind Kind, value any) MethodOption {
	return func(m *Method) {
		m.Params = append(m.Params, Param{Name: name, Kind: kind, Default: value, HasDefault: true})
	}
}

// WithReturns declares the return type shown in the tool description.
func WithReturns(kind Kind) MethodOption {
	return func(m *Method) {
		m.Returns = kind
	}
}

// WithDoc sets the method documentation shown to the model.
func WithDoc(doc string) MethodOption {
	return func(m *Method) {
		m.Doc = strings.TrimSpace(doc)
	}
}

// Signature renders the method as name(p: type = default, ...) -> type.
func (m *Method) Signature() string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.String()
	}
	sig := fmt.Sprintf("%s(%s)", m.Name, strings.Join(params, ", "))
	if m.Returns != "" {
		sig += " -> " + string(m.Returns)
	}
	return sig
}

// Describe renders the signature followed by the tab-indented doc.
func (m *Method) Describe() string {
	doc := m.Doc
	if doc == "" {
		doc = "No docstring provided"
	}
	return m.Signature() + "\n\t" + doc
}

// Tool is a named, stateless set of methods. Tools are immutable once registered.
type Tool struct {
	name        string
	description string
	category    string
	methods     map[string]*Method
	order       []string
}

// ToolOption configures a Tool.
type ToolOption func(*Tool)

// WithDescription sets a short description of the tool.
func WithDescription(description string) ToolOption {
	return func(t *Tool) {
		t.description = description
	}
}

// WithCategory sets the tool's category.
func WithCategory(category string) ToolOption {
	return func(t *Tool) {
		t.category = category
	}
}

// WithMethod adds a method. Names starting with "_" are internal helpers:
// they are neither described nor invocable by name.
func WithMethod(name string, fn MethodFunc, options ...MethodOption) ToolOption {
	return func(t *Tool) {
		m := &Method{Name: name, fn: fn, internal: strings.HasPrefix(name, "_")}
		for _, option := range options {
			option(m)
		}
		if _, exists := t.methods[name]; !exists {
			t.order = append(t.order, name)
		}
		t.methods[name] = m
	}
}

// NewTool creates a tool.
func NewTool(name string, options ...ToolOption) *Tool {
	t := &Tool{
		name:    name,
		methods: make(map[string]*Method),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

func (t *Tool) Name() string        { return t.name }
func (t *Tool) Description() string { return t.description }
func (t *Tool) Category() string    { return t.category }

// Method returns the public method called name.
func (t *Tool) Method(name string) (*Method, bool) {
	m, ok := t.methods[name]
	if !ok || m.internal {
		return nil, false
	}
	return m, true
}

// Methods returns the public methods in declaration order.
func (t *Tool) Methods() []*Method {
	out := make([]*Method, 0, len(t.order))
	for _, name := range t.order {
		if m := t.methods[name]; !m.internal {
			out = append(out, m)
		}
	}
	return out
}

// String is the tool's self-description, the text appended to queries when
// the tool is offered to the model.
func (t *Tool) String() string {
	methods := t.Methods()
	lines := make([]string, len(methods))
	for i, m := range methods {
		lines[i] = "   - " + m.Describe()
	}
	return fmt.Sprintf("Tool Name: %s\nTool Methods:\n", t.name) + strings.Join(lines, "\n")
}

// ParseMethodName normalizes the method names models write, such as
// "Tool.method()" or "method()", to the bare method name.
func ParseMethodName(method string) string {
	method = strings.TrimSpace(method)
	method = strings.TrimSuffix(method, "()")
	method = strings.Trim(method, "()")
	if i := strings.LastIndex(method, "."); i >= 0 {
		method = method[i+1:]
	}
	return method
}
