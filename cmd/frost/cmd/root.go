/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/frost/pkg/config"
	"github.com/ssargent/frost/pkg/di"
)

type containerKey struct{}

// newContainer builds the dependency container for a command run. Tests
// replace it to inject fakes.
var newContainer = di.NewContainer

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "frost",
		Short: "frost - bag recording inspector",
		Long: `frost reads bag recordings: it prints their metadata, lists topics,
types and per-topic sizes, dumps messages and serves a read-only HTTP API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format, _ = cmd.Flags().GetString("log-format")
			}
			if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
				cfg.Cache.Enabled = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), containerKey{}, newContainer(cfg)))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c, ok := cmd.Context().Value(containerKey{}).(*di.Container); ok {
				return c.Close()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default "+config.GetDefaultConfigPath()+")")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.Bool("no-cache", false, "Bypass the metadata cache")

	rootCmd.AddCommand(
		newInfoCmd(),
		newTopicsCmd(),
		newTypesCmd(),
		newSizeCmd(),
		newMessagesCmd(),
		newServeCmd(),
		newCacheCmd(),
		newConfigCmd(),
		newServiceCmd(),
	)
	return rootCmd
}

// Execute runs the CLI. This is called by main.main().
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// containerFrom returns the container installed by PersistentPreRunE.
func containerFrom(cmd *cobra.Command) (*di.Container, error) {
	c, ok := cmd.Context().Value(containerKey{}).(*di.Container)
	if !ok {
		return nil, errors.New("dependency container not initialized")
	}
	return c, nil
}
