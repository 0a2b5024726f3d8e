// Package commands provides the CLI commands for chatrelay.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chatrelay/chatrelay/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs  bool
	logLevel   string
	configFile string
	workDir    string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "chatrelay - chat sessions over hosted LLM assistants",
	Long: `chatrelay keeps per-user chat sessions and relays them to a hosted
LLM provider, either through provider-side threads or through single
search-enabled completions.

Run 'chatrelay serve' to start the HTTP API, or 'chatrelay chat' for an
interactive session in the terminal.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (overrides CHATRELAY_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "Project directory holding chatrelay.json")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the config")

	rootCmd.SetVersionTemplate(fmt.Sprintf("chatrelay %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(promptsCmd)
}

// setup loads the dotenv file and configures logging before any command.
func setup(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if configFile != "" {
		os.Setenv("CHATRELAY_CONFIG", configFile)
	}

	var out io.Writer = io.Discard
	if printLogs {
		out = os.Stderr
	}
	level := logLevel
	if level == "" {
		level = os.Getenv("CHATRELAY_LOG_LEVEL")
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(level),
		Output: out,
		Pretty: true,
	})
	return nil
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close()
	return rootCmd.Execute()
}

// getWorkDir returns the directory from the flag or the current directory.
func getWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}
