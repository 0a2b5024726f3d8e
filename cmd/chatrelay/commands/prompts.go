package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	promptName string
	promptText string
	promptFile string
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and edit the prompt catalog",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List system prompt types and their names",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		prompts := a.catalog.ListPrompts()
		keys := make([]string, 0, len(prompts))
		for t := range prompts {
			keys = append(keys, t)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tNAME")
		for _, t := range keys {
			fmt.Fprintf(w, "%s\t%s\n", t, prompts[t])
		}
		return w.Flush()
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <type>",
	Short: "Print the system prompt a type resolves to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n%s\n", a.catalog.PromptName(args[0]), a.catalog.SystemPrompt(args[0]))
		return nil
	},
}

var promptsAddCmd = &cobra.Command{
	Use:   "add <type>",
	Short: "Add or replace a system prompt in the catalog file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := promptText
		if promptFile != "" {
			data, err := os.ReadFile(promptFile)
			if err != nil {
				return err
			}
			text = strings.TrimSpace(string(data))
		}
		if text == "" {
			return fmt.Errorf("prompt text is required (--text or --file)")
		}

		a, err := loadApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		name := promptName
		if name == "" {
			name = args[0]
		}
		if err := a.catalog.AddSystemPrompt(args[0], name, text); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", args[0], name)
		return nil
	},
}

func init() {
	promptsAddCmd.Flags().StringVar(&promptName, "name", "", "Display name (defaults to the type)")
	promptsAddCmd.Flags().StringVar(&promptText, "text", "", "System prompt text")
	promptsAddCmd.Flags().StringVar(&promptFile, "file", "", "Read the system prompt text from a file")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsAddCmd)
}
