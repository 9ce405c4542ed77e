package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/config"
	"github.com/ZanzyTHEbar/concrete-go/internal/logging"
)

var (
	configPath   string
	providerFlag string
	logLevel     string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "concrete",
	Short: "Operators, capabilities and task graphs over LLM completions",
	Long: `concrete runs operators: named roles whose capabilities become model queries
answered in a structured schema.

Task graphs are described in YAML (or JSON) DAG files and executed node by node.
The build command runs the software project flow, where an executive plans
components and a developer implements and integrates them.

Examples:
  concrete run graph.yaml
  concrete build "a todo list web page" --out ./site
  concrete tools invoke Calculator evaluate expression="2*(3+4)"
  concrete --provider scripted graph graph.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if providerFlag != "" {
			loaded.Completion.Provider = providerFlag
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if err := logging.Init(loaded.Log.Level, loaded.Log.Format); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./concrete.yaml)")
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "Completion provider: openai, anthropic or scripted")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(schemasCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// reportError prints the error kind and, when known, the node or operator it concerns.
func reportError(err error) {
	red := color.New(color.FgRed, color.Bold)
	kind := concrete.CodeOf(err)
	if kind == "" {
		kind = "ERROR"
	}
	msg := red.Sprint(kind)
	if node := concrete.NodeOf(err); node != "" {
		msg += " (" + node + ")"
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
}
