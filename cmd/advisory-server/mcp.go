package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/curalink-advisory/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the advisory operations as MCP tools over stdio",
	Long: `mcp runs a Model Context Protocol server on stdin/stdout exposing
analyze_condition, suggest_research_collaborations and summarize_trial.
Logs go to stderr so they never mix with protocol messages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd, withStdioSafeLogging)
		if err != nil {
			return err
		}
		defer a.Close()

		return mcp.NewServer(a.service, version, a.logger).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
