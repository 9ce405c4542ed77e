// Package project runs directed acyclic graphs of operator capability calls.
// Each node's result flows along its out-edges into the arguments of the
// nodes downstream.
package project

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/operator"
)

// Status is the lifecycle state of a node.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusReady   Status = "READY"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
)

// Node is one capability call on an operator.
type Node struct {
	Name string
	Task string

	op       *operator.Operator
	defaults operator.Args
	options  operator.CallOptions

	mu      sync.Mutex
	dynamic operator.Args
	status  Status
}

// NewNode binds task on op. It fails when op has no such capability.
func NewNode(name, task string, op *operator.Operator, defaultArgs operator.Args, options operator.CallOptions) (*Node, error) {
	if strings.TrimSpace(name) == "" {
		return nil, concrete.NewValidationError("project", "node needs a name", nil)
	}
	if op == nil {
		return nil, concrete.NewValidationError("project", fmt.Sprintf("node '%s' needs an operator", name), nil)
	}
	found := false
	for _, c := range op.Capabilities() {
		if c == task {
			found = true
			break
		}
	}
	if !found {
		return nil, concrete.NewCapabilityNotFoundError(op.Name, task)
	}

	defaults := make(operator.Args, len(defaultArgs))
	for k, v := range defaultArgs {
		defaults[k] = v
	}
	return &Node{
		Name:     name,
		Task:     task,
		op:       op,
		defaults: defaults,
		options:  options,
		dynamic:  make(operator.Args),
		status:   StatusPending,
	}, nil
}

// Operator returns the operator the node calls.
func (n *Node) Operator() *operator.Operator { return n.op }

// Options returns the node's own call options.
func (n *Node) Options() operator.CallOptions { return n.options }

// Update sets a dynamic argument. Upstream edges call it with their results.
func (n *Node) Update(key string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dynamic[key] = value
}

// Args returns the default arguments overlaid with the dynamic ones.
func (n *Node) Args() operator.Args {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(operator.Args, len(n.defaults)+len(n.dynamic))
	for k, v := range n.defaults {
		out[k] = v
	}
	for k, v := range n.dynamic {
		out[k] = v
	}
	return out
}

// Status returns the node's lifecycle state.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *Node) setStatus(s Status) {
	n.mu.Lock()
	n.status = s
	n.mu.Unlock()
}

// Execute calls the capability with the merged arguments. The node's own
// options win over override. An async call is awaited before returning.
func (n *Node) Execute(ctx context.Context, override operator.CallOptions) (any, error) {
	opts := override.Merge(n.options)
	out, err := n.op.Invoke(ctx, n.Task, n.Args(), opts)
	if err != nil {
		return nil, err
	}
	return operator.Resolve(ctx, out)
}

// String renders the call the node stands for, such as
// executive.plan_components(starting_prompt=a todo app).
func (n *Node) String() string {
	keys := make([]string, 0, len(n.defaults))
	for k := range n.defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, n.defaults[k])
	}
	return fmt.Sprintf("%s.%s(%s)", n.op.Name, n.Task, strings.Join(parts, ", "))
}
