// Package cmd provides the candor CLI commands.
//
// Commands:
//   - serve:   HTTP API server with NDJSON trace streaming
//   - chat:    interactive terminal client against a running server
//   - migrate: apply database migrations and exit
//   - mcp:     Model Context Protocol server for editor integration
//   - version: version information
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/candor0/candor/internal/log"
)

var (
	flagDebug   bool
	flagJSONLog bool
)

var rootCmd = &cobra.Command{
	Use:   "candor",
	Short: "Candor - a chat service with an observable reasoning loop",
	Long: `Candor runs agent turns against a language model, executes tools on
the model's behalf, and streams the full reasoning trace (thoughts, tool
calls, results, citations, final answer) to clients while persisting it
per message in PostgreSQL.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		slog.SetDefault(newLogger())
	},
}

// Execute is the main entry point for the candor CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "log-json", false, "log in JSON format")
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLog})
}
