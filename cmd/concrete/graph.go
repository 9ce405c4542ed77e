package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/operator"
	"github.com/ZanzyTHEbar/concrete-go/internal/project"
)

var (
	graphDirection string
	graphTitle     string
)

var graphCmd = &cobra.Command{
	Use:   "graph <dag.yaml>",
	Short: "Print a DAG file as a Mermaid flowchart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := renderGraph(args[0], graphTitle, graphDirection)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	graphCmd.Flags().StringVar(&graphDirection, "direction", string(project.LeftRight), "Flowchart direction: LR, RL, TD or BT")
	graphCmd.Flags().StringVar(&graphTitle, "title", "", "Diagram title (default the DAG name)")
}

// renderGraph builds the DAG with client-less operators; nothing is invoked.
func renderGraph(path, title, direction string) (string, error) {
	dir := project.Direction(strings.ToUpper(direction))
	switch dir {
	case project.LeftRight, project.RightLeft, project.TopDown, project.BottomUp:
	default:
		return "", concrete.NewValidationError("graph", fmt.Sprintf("unknown direction %q", direction), nil)
	}

	dag, err := loadDAG(path)
	if err != nil {
		return "", err
	}
	ops := make(map[string]*operator.Operator)
	for _, name := range dag.Operators() {
		op, err := operator.NewRole(name)
		if err != nil {
			return "", err
		}
		ops[name] = op
	}
	p, err := dag.Build(ops)
	if err != nil {
		return "", err
	}
	if title == "" {
		title = dag.Name
	}
	return p.Mermaid(title, dir), nil
}
