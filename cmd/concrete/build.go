package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/logging"
	"github.com/ZanzyTHEbar/concrete-go/internal/orchestrator"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

var (
	buildOut            string
	buildClarifications int
	buildParallelism    int
	buildVerbose        bool
)

var buildCmd = &cobra.Command{
	Use:   "build <prompt>",
	Short: "Plan, implement and integrate a project from a prompt",
	Long: `Run the software project flow: the executive plans components, the developer
implements each one (asking clarifying questions when allowed) and finally
integrates them into a project directory.

Examples:
  concrete build "a landing page for a bakery" --out ./bakery
  concrete build "a snake game" --clarifications 2 --parallel 3 -v`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildOut, "out", "", "Write the generated files under this directory")
	buildCmd.Flags().IntVar(&buildClarifications, "clarifications", -1, "Questions the developer may ask per component (default from config)")
	buildCmd.Flags().IntVar(&buildParallelism, "parallel", 0, "Components implemented at once (default from config)")
	buildCmd.Flags().BoolVarP(&buildVerbose, "verbose", "v", false, "Print every message exchanged between operators")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ops, err := a.operators([]string{"executive", "developer"})
	if err != nil {
		return err
	}
	defer closeOperators(ops)

	clarifications := cfg.Operator.MaxClarifications
	if buildClarifications >= 0 {
		clarifications = buildClarifications
	}
	parallelism := cfg.Operator.Parallelism
	if buildParallelism > 0 {
		parallelism = buildParallelism
	}

	sp, err := orchestrator.NewSoftwareProject(args[0], ops["executive"], ops["developer"],
		orchestrator.WithMaxClarifications(clarifications),
		orchestrator.WithParallelism(parallelism),
		orchestrator.WithAsync(cfg.Operator.Async),
		orchestrator.WithEventBus(a.runtime.EventBus()),
		orchestrator.WithLogger(logging.New("orchestrator")),
		orchestrator.WithObserver(observer(buildVerbose)),
	)
	if err != nil {
		return err
	}

	rc, err := a.runtime.Run(ctx, sp)
	if err != nil {
		return err
	}
	dir, ok := rc.Output().(schema.ProjectDirectory)
	if !ok {
		return concrete.NewValidationError("build", fmt.Sprintf("build produced %T, not a project directory", rc.Output()), nil)
	}
	printStatus("✓", fmt.Sprintf("%s: %d files", dir.ProjectName, len(dir.Files)), color.FgGreen)

	if buildOut == "" {
		for _, f := range dir.Files {
			fmt.Println(color.New(color.Bold).Sprint(f.FileName))
			fmt.Println(indent(f.FileContents))
		}
		return nil
	}
	written, err := orchestrator.WriteDirectory(buildOut, dir)
	if err != nil {
		return err
	}
	for _, path := range written {
		printStatus("→", path, color.FgCyan)
	}
	return nil
}

func observer(verbose bool) orchestrator.Observer {
	if !verbose {
		return nil
	}
	roles := map[string]color.Attribute{
		"executive": color.FgMagenta,
		"developer": color.FgBlue,
	}
	return func(role, message string) {
		attr, ok := roles[role]
		if !ok {
			attr = color.FgWhite
		}
		fmt.Printf("%s\n%s\n\n", color.New(attr, color.Bold).Sprint(role), message)
	}
}
