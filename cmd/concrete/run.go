package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/concrete-go/internal/logging"
	"github.com/ZanzyTHEbar/concrete-go/internal/project"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

var (
	runAsync bool
	runPoll  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <dag.yaml>",
	Short: "Execute a DAG file",
	Long: `Execute the task graph in a DAG file and print each node's result as it
finishes. Operator names in the file are built-in roles (executive, developer,
prompt_engineer, product_manager, designer, salesperson, operator).

With --async the graph runs in the background and its progress is polled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runDAG(ctx, args[0])
	},
}

func init() {
	runCmd.Flags().BoolVar(&runAsync, "async", false, "Run in the background and poll its status")
	runCmd.Flags().DurationVar(&runPoll, "poll", 250*time.Millisecond, "Status poll interval with --async")
}

func runDAG(ctx context.Context, path string) error {
	dag, err := loadDAG(path)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ops, err := a.operators(dag.Operators())
	if err != nil {
		return err
	}
	defer closeOperators(ops)

	p, err := dag.Build(ops,
		project.WithEventBus(a.runtime.EventBus()),
		project.WithLogger(logging.New("project")),
	)
	if err != nil {
		return err
	}

	if runAsync {
		return pollRun(ctx, a, p)
	}

	for res, err := range p.Execute(ctx) {
		if err != nil {
			printStatus("✗", res.Node, color.FgRed)
			return err
		}
		printResult(res)
	}
	m := p.Metrics()
	fmt.Printf("\n%d nodes in %s\n", m.NodesSucceeded, m.TotalDuration.Round(time.Millisecond))
	return nil
}

func pollRun(ctx context.Context, a *app, p *project.Project) error {
	id, err := a.runtime.RunAsync(ctx, p)
	if err != nil {
		return err
	}
	printStatus("→", "run "+id+" started", color.FgCyan)

	seen := 0
	ticker := time.NewTicker(runPoll)
	defer ticker.Stop()
	for {
		status, err := a.runtime.GetRunStatus(id)
		if err != nil {
			return err
		}
		for _, node := range status.Completed[seen:] {
			printStatus("✓", node, color.FgGreen)
		}
		seen = len(status.Completed)

		if status.IsComplete || status.HasError {
			rc, err := a.runtime.GetRunResult(id)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s\n", schema.Text(rc.Output()))
			return nil
		}
		select {
		case <-ctx.Done():
			_, _ = a.runtime.CancelRun(id)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func loadDAG(path string) (*project.DAGFile, error) {
	dag, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	if err := dag.Validate(); err != nil {
		return nil, err
	}
	return dag, nil
}

func printResult(res project.Result) {
	printStatus("✓", fmt.Sprintf("%s (%s, %s)", res.Node, res.Operator, res.Duration.Round(time.Millisecond)), color.FgGreen)
	fmt.Println(indent(schema.Text(res.Value)))
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}
