package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
	"github.com/ZanzyTHEbar/concrete-go/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and invoke registered tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		bold := color.New(color.Bold)
		for _, t := range tools.Default().List() {
			fmt.Printf("%s  %s\n", bold.Sprint(t.Name()), t.Description())
		}
	},
}

var toolsDescribeCmd = &cobra.Command{
	Use:   "describe [tool]",
	Short: "Print tool descriptions as offered to the model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			fmt.Println(tools.Default().Describe())
			return nil
		}
		t, err := tools.Default().Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(t.String())
		return nil
	},
}

var toolsInvokeCmd = &cobra.Command{
	Use:   "invoke <tool> <method> [name=value ...]",
	Short: "Invoke a tool method",
	Long: `Invoke a tool method directly. Parameters are name=value pairs and are
coerced to the declared parameter types.

Example:
  concrete tools invoke Calculator evaluate expression="2*(3+4)"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args[2:])
		if err != nil {
			return err
		}
		out, err := tools.Default().InvokeArgs(cmd.Context(), args[0], args[1], params)
		if err != nil {
			return err
		}
		fmt.Println(schema.Text(out))
		return nil
	},
}

func init() {
	toolsCmd.AddCommand(toolsListCmd, toolsDescribeCmd, toolsInvokeCmd)
}

func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, concrete.NewValidationError("tools", fmt.Sprintf("parameter %q is not name=value", pair), nil)
		}
		params[name] = value
	}
	return params, nil
}

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "Inspect registered answer schemas",
}

var schemasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered answer schemas",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range schema.Default().Names() {
			fmt.Println(name)
		}
	},
}

var schemaWithTools bool

var schemasShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the JSON schema sent for an answer type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := schema.Default().RequestSchema(args[0], schemaWithTools)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	schemasShowCmd.Flags().BoolVar(&schemaWithTools, "with-tools", false, "Show the schema widened with tool fields")
	schemasCmd.AddCommand(schemasListCmd, schemasShowCmd)
}
