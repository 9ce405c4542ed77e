package project

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/operator"
)

// DAGFile is the declarative form of a project.
type DAGFile struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Options     NodeOptions `yaml:"options" json:"options"`
	Nodes       []DAGNode   `yaml:"nodes" json:"nodes"`
	Edges       []DAGEdge   `yaml:"edges" json:"edges"`
}

// DAGNode declares one node.
type DAGNode struct {
	Name     string         `yaml:"name" json:"name"`
	Operator string         `yaml:"operator" json:"operator"`
	Task     string         `yaml:"task" json:"task"`
	Args     map[string]any `yaml:"args" json:"args"`
	Options  NodeOptions    `yaml:"options" json:"options"`
}

// DAGEdge declares one edge. Transform is "identity", "field:<key>" or an expression.
type DAGEdge struct {
	Parent    string `yaml:"parent" json:"parent"`
	Child     string `yaml:"child" json:"child"`
	ResultKey string `yaml:"result_key" json:"result_key"`
	Transform string `yaml:"transform" json:"transform"`
}

// NodeOptions are the call options a DAG file can set.
type NodeOptions struct {
	Instructions string `yaml:"instructions" json:"instructions"`
	AnswerSchema string `yaml:"answer_schema" json:"answer_schema"`
	UseTools     *bool  `yaml:"use_tools" json:"use_tools"`
	Async        *bool  `yaml:"async" json:"async"`
	Client       string `yaml:"client" json:"client"`
}

// CallOptions converts o for the operator layer.
func (o NodeOptions) CallOptions() operator.CallOptions {
	return operator.CallOptions{
		Instructions: o.Instructions,
		AnswerSchema: o.AnswerSchema,
		UseTools:     o.UseTools,
		Async:        o.Async,
		Client:       o.Client,
	}
}

// DAGFileLoader loads a DAGFile from a source such as a path.
type DAGFileLoader interface {
	Load(source string) (*DAGFile, error)
	Format() string
}

var loaderRegistry = make(map[string]DAGFileLoader)

// RegisterDAGFileLoader registers loader under its format name.
func RegisterDAGFileLoader(loader DAGFileLoader) {
	loaderRegistry[loader.Format()] = loader
}

// GetDAGFileLoader retrieves a loader by format name, such as "yaml".
func GetDAGFileLoader(format string) (DAGFileLoader, bool) {
	loader, ok := loaderRegistry[format]
	return loader, ok
}

// YAMLLoader reads YAML DAG files. JSON is a subset of YAML, so it serves
// the "json" format as well.
type YAMLLoader struct{ format string }

func (l YAMLLoader) Load(path string) (*DAGFile, error) { return LoadFile(path) }

func (l YAMLLoader) Format() string { return l.format }

func init() {
	RegisterDAGFileLoader(YAMLLoader{format: "yaml"})
	RegisterDAGFileLoader(YAMLLoader{format: "json"})
}

// LoadFile reads and parses the DAG file at path.
func LoadFile(path string) (*DAGFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, concrete.NewConfigurationError(fmt.Sprintf("failed to open DAG file %s", path), err)
	}
	return Parse(raw)
}

// Parse decodes a DAG file. Unknown fields are rejected.
func Parse(raw []byte) (*DAGFile, error) {
	var dag DAGFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&dag); err != nil {
		return nil, concrete.NewValidationError("dagfile", "failed to parse DAG file", err)
	}
	return &dag, nil
}

// Validate checks for duplicate names, edges to missing nodes, invalid
// transforms and cycles.
func (dag *DAGFile) Validate() error {
	names := make(map[string]struct{}, len(dag.Nodes))
	for _, n := range dag.Nodes {
		if strings.TrimSpace(n.Name) == "" {
			return concrete.NewValidationError("dagfile", "node without a name", nil)
		}
		if _, exists := names[n.Name]; exists {
			return concrete.NewDuplicateRegistrationError("dagfile", "node", n.Name)
		}
		names[n.Name] = struct{}{}
	}

	children := make(map[string][]string, len(dag.Nodes))
	for _, e := range dag.Edges {
		for _, end := range []string{e.Parent, e.Child} {
			if _, exists := names[end]; !exists {
				return concrete.NewMissingNodeError(end)
			}
		}
		if _, err := ParseTransform(e.Transform); err != nil {
			return concrete.NewValidationError("dagfile",
				fmt.Sprintf("edge %s -> %s has an invalid transform", e.Parent, e.Child), err)
		}
		children[e.Parent] = append(children[e.Parent], e.Child)
	}

	visited := make(map[string]bool, len(dag.Nodes))
	stack := make(map[string]bool, len(dag.Nodes))
	var hasCycle func(name string) bool
	hasCycle = func(name string) bool {
		if stack[name] {
			return true
		}
		if visited[name] {
			return false
		}
		visited[name] = true
		stack[name] = true
		for _, c := range children[name] {
			if hasCycle(c) {
				return true
			}
		}
		stack[name] = false
		return false
	}
	for _, n := range dag.Nodes {
		if hasCycle(n.Name) {
			return concrete.NewCyclicGraphError(n.Name)
		}
	}
	return nil
}

// Operators returns the distinct operator names the file refers to.
func (dag *DAGFile) Operators() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range dag.Nodes {
		if !seen[n.Operator] {
			seen[n.Operator] = true
			out = append(out, n.Operator)
		}
	}
	return out
}

// Build validates the file and assembles a project from it, resolving
// operator names in operators.
func (dag *DAGFile) Build(operators map[string]*operator.Operator, options ...Option) (*Project, error) {
	if err := dag.Validate(); err != nil {
		return nil, err
	}
	name := dag.Name
	if name == "" {
		name = "dag"
	}
	p := New(name, append([]Option{WithCallOptions(dag.Options.CallOptions())}, options...)...)

	for _, n := range dag.Nodes {
		op, ok := operators[n.Operator]
		if !ok {
			return nil, concrete.NewConfigurationError(fmt.Sprintf("node '%s' uses unknown operator '%s'", n.Name, n.Operator), nil)
		}
		node, err := NewNode(n.Name, n.Task, op, n.Args, n.Options.CallOptions())
		if err != nil {
			return nil, err
		}
		if _, err := p.AddNode(node); err != nil {
			return nil, err
		}
	}
	for _, e := range dag.Edges {
		transform, err := ParseTransform(e.Transform)
		if err != nil {
			return nil, err
		}
		if _, err := p.AddEdge(e.Parent, e.Child, e.ResultKey, transform); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Load reads a DAG file with the loader registered for its extension.
// ".yml" and extensionless paths are read as YAML.
func Load(path string) (*DAGFile, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "yml" || format == "" {
		format = "yaml"
	}
	loader, ok := GetDAGFileLoader(format)
	if !ok {
		return nil, concrete.NewConfigurationError(fmt.Sprintf("no DAG loader registered for %q", format), nil)
	}
	return loader.Load(path)
}

// LoadAndBuild loads a DAG file and builds it.
func LoadAndBuild(path string, operators map[string]*operator.Operator, options ...Option) (*Project, error) {
	dag, err := Load(path)
	if err != nil {
		return nil, err
	}
	return dag.Build(operators, options...)
}
