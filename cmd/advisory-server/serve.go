package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/curalink-advisory/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			a.cfg.Server.Port = port
		}

		a.logger.Infof("Starting advisory server on %s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
		server := api.NewServer(a.cfg, a.service, a.logger)

		if err := server.Start(ctx); err != nil {
			return err
		}
		a.logger.Info("Server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
