/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/frost/pkg/config"
)

const serviceName = "frost.service"

// Replaced in tests.
var (
	unitPath   = "/etc/systemd/system/" + serviceName
	geteuid    = os.Geteuid
	runCommand = func(cmd *cobra.Command, name string, args ...string) error {
		c := exec.Command(name, args...)
		c.Stdout = cmd.OutOrStdout()
		c.Stderr = cmd.ErrOrStderr()
		return c.Run()
	}
)

func newServiceCmd() *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage frost serve as a systemd service",
		// Loading the config is left to the subcommands that need it.
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}

	unitCmd := &cobra.Command{
		Use:   "unit",
		Short: "Print the systemd unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := serviceConfigPath(cmd)
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			user, _ := cmd.Flags().GetString("user")
			binary, _ := cmd.Flags().GetString("binary")
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderUnit(cfg, configPath, user, binary))
			return err
		},
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install and enable the systemd service",
		Long: `Install frost serve as a systemd service.

A configuration file with a generated API key is created when missing.

Examples:
  sudo frost service install
  sudo frost service install --data-dir /srv/bags --user frost`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if geteuid() != 0 {
				return errors.New("service install requires root privileges")
			}
			configPath := serviceConfigPath(cmd)
			dataDir, _ := cmd.Flags().GetString("data-dir")
			user, _ := cmd.Flags().GetString("user")
			binary, _ := cmd.Flags().GetString("binary")
			startNow, _ := cmd.Flags().GetBool("start")

			var cfg *config.Config
			var err error
			if config.ConfigExists(configPath) {
				if cfg, err = config.LoadConfig(configPath); err != nil {
					return err
				}
				if dataDir != "" {
					cfg.DataDir = dataDir
					if err := config.SaveConfig(cfg, configPath); err != nil {
						return err
					}
				}
			} else {
				if cfg, err = config.BootstrapConfig(configPath, dataDir); err != nil {
					return err
				}
				cmd.Printf("Created configuration at %s\n", configPath)
			}

			if err := os.WriteFile(unitPath, []byte(renderUnit(cfg, configPath, user, binary)), 0644); err != nil {
				return errors.Wrap(err, "failed to write unit file")
			}
			if err := runCommand(cmd, "systemctl", "daemon-reload"); err != nil {
				return errors.Wrap(err, "failed to reload systemd")
			}
			if err := runCommand(cmd, "systemctl", "enable", serviceName); err != nil {
				return errors.Wrap(err, "failed to enable service")
			}
			if startNow {
				if err := runCommand(cmd, "systemctl", "start", serviceName); err != nil {
					return errors.Wrap(err, "failed to start service")
				}
			}

			cmd.Printf("Installed %s\n", serviceName)
			cmd.Printf("Config: %s\n", configPath)
			cmd.Printf("Data:   %s\n", cfg.DataDir)
			cmd.Printf("Listen: %s\n", cfg.Server.Addr())
			return nil
		},
	}

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop, disable and remove the systemd service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if geteuid() != 0 {
				return errors.New("service uninstall requires root privileges")
			}
			// Already stopped is fine.
			_ = runCommand(cmd, "systemctl", "stop", serviceName)
			if err := runCommand(cmd, "systemctl", "disable", serviceName); err != nil {
				cmd.Printf("Warning: could not disable service: %v\n", err)
			}
			if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
				return errors.Wrap(err, "failed to remove unit file")
			}
			if err := runCommand(cmd, "systemctl", "daemon-reload"); err != nil {
				return errors.Wrap(err, "failed to reload systemd")
			}
			cmd.Printf("Uninstalled %s; configuration and data were kept\n", serviceName)
			return nil
		},
	}

	serviceCmd.AddCommand(unitCmd, installCmd, uninstallCmd)
	for _, action := range []string{"start", "stop", "restart", "status"} {
		serviceCmd.AddCommand(systemctlCmd(action))
	}

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show service logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			follow, _ := cmd.Flags().GetBool("follow")
			lines, _ := cmd.Flags().GetInt("lines")
			journalArgs := []string{"-u", serviceName}
			if follow {
				journalArgs = append(journalArgs, "-f")
			}
			if lines > 0 {
				journalArgs = append(journalArgs, fmt.Sprintf("-n%d", lines))
			}
			return runCommand(cmd, "journalctl", journalArgs...)
		},
	}
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 0, "Number of lines to show")
	serviceCmd.AddCommand(logsCmd)

	for _, c := range []*cobra.Command{unitCmd, installCmd} {
		c.Flags().String("user", "frost", "User to run the service as")
		c.Flags().String("binary", "/usr/local/bin/frost", "Path of the frost binary")
	}
	installCmd.Flags().String("data-dir", "", "Directory of bag files to serve")
	installCmd.Flags().Bool("start", true, "Start the service after installation")
	return serviceCmd
}

func systemctlCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: "Run systemctl " + action + " on the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, "systemctl", action, serviceName)
		},
	}
}

func serviceConfigPath(cmd *cobra.Command) string {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		return config.GetDefaultConfigPath()
	}
	return configPath
}

// renderUnit builds the systemd unit running frost serve. The bag
// directory only needs read access; the cache directory is writable.
func renderUnit(cfg *config.Config, configPath, user, binary string) string {
	configPath = absOr(configPath)
	writable := ""
	if cfg.Cache.Enabled {
		writable = "ReadWritePaths=" + absOr(cfg.Cache.Dir) + "\n"
	}
	return fmt.Sprintf(`[Unit]
Description=frost bag inspection server
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
NoNewPrivileges=true
ProtectSystem=strict
UMask=0077
ReadOnlyPaths=%s
ReadOnlyPaths=%s
%s
[Install]
WantedBy=multi-user.target
`, user, user, binary, configPath, absOr(cfg.DataDir), filepath.Dir(configPath), writable)
}

// systemd only accepts absolute paths.
func absOr(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
