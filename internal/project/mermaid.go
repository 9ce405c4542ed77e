package project

import (
	"fmt"
	"strings"
)

// Direction is the layout direction of a Mermaid flowchart.
type Direction string

const (
	LeftRight Direction = "LR"
	RightLeft Direction = "RL"
	TopDown   Direction = "TD"
	BottomUp  Direction = "BT"
)

// Mermaid renders the project as a Mermaid flowchart. Nodes and edges are
// visited breadth first from the source nodes.
func (p *Project) Mermaid(title string, direction Direction) string {
	if direction == "" {
		direction = TopDown
	}
	var b strings.Builder
	fmt.Fprintf(&b, "flowchart %s\n", direction)
	if title != "" {
		fmt.Fprintf(&b, "---\ntitle: %s\n---\n", title)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	hasParent := make(map[string]bool, len(p.nodes))
	for _, edges := range p.edges {
		for _, e := range edges {
			hasParent[e.Child] = true
		}
	}
	var queue []string
	seen := make(map[string]bool, len(p.nodes))
	for _, name := range p.order {
		if !hasParent[name] {
			queue = append(queue, name)
			seen[name] = true
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		fmt.Fprintf(&b, "\t%s([\"%s\"])\n", mermaidID(name), p.nodes[name])
		for _, e := range p.edges[name] {
			fmt.Fprintf(&b, "\t%s -->|%s| %s\n", mermaidID(name), e.ResultKey, mermaidID(e.Child))
			if !seen[e.Child] {
				seen[e.Child] = true
				queue = append(queue, e.Child)
			}
		}
	}
	return b.String()
}

func mermaidID(name string) string {
	return strings.Join(strings.Fields(name), "")
}
