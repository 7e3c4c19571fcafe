/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/frost/pkg/api"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only REST API server",
		Long: `Serve the bag files of a directory over HTTP.

Endpoints live under /api/v1 and require the X-API-Key header when an API
key is configured. Prometheus metrics are exposed on /metrics.

Examples:
  frost serve --data-dir ./recordings
  frost serve --addr 0.0.0.0:9000 --api-key mysecretkey`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := containerFrom(cmd)
			if err != nil {
				return err
			}
			cfg := c.Config()

			serverConfig := api.ServerConfig{
				Addr:           cfg.Server.Addr(),
				APIKey:         cfg.Server.APIKey,
				DataDir:        cfg.DataDir,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				EnableMetrics:  cfg.Metrics.Enabled,
			}
			if cmd.Flags().Changed("addr") {
				serverConfig.Addr, _ = cmd.Flags().GetString("addr")
			}
			if cmd.Flags().Changed("data-dir") {
				serverConfig.DataDir, _ = cmd.Flags().GetString("data-dir")
			}
			if cmd.Flags().Changed("api-key") {
				serverConfig.APIKey, _ = cmd.Flags().GetString("api-key")
			}
			if serverConfig.APIKey == "" {
				c.Logger().Warn("serving without an API key")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			starter := c.GetServerFactory().CreateServerStarter()
			return starter.StartServer(ctx, serverConfig, c.MetadataSource(), c.Logger())
		},
	}
	serveCmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	serveCmd.Flags().String("data-dir", "", "Directory of bag files to serve")
	serveCmd.Flags().String("api-key", "", "API key required by /api/v1")
	return serveCmd
}
