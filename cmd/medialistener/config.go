package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/medialistener/internal/config"
)

var configOpts struct {
	daemon bool
	force  bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration files",
	// --config may point at a daemon config, so the client config is only
	// loaded when it is the one being operated on.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger(cmd.ErrOrStderr())
		if configOpts.daemon {
			return nil
		}
		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		var v any = getConfig()
		if configOpts.daemon {
			path, err := daemonConfigPath()
			if err != nil {
				return err
			}
			dc, err := config.LoadDaemonConfig(path)
			if err != nil {
				return err
			}
			v = dc
		}

		data, err := toml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := selectedConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := selectedConfigPath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil && !configOpts.force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if configOpts.daemon {
			err = config.SaveDaemonConfig(config.DefaultDaemonConfig(), path)
		} else {
			err = config.DefaultConfig().Save(path)
		}
		if err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd)

	configCmd.PersistentFlags().BoolVar(&configOpts.daemon, "daemon", false,
		"Operate on the daemon config instead of the client config")
	configInitCmd.Flags().BoolVar(&configOpts.force, "force", false,
		"Overwrite an existing file")
}

// selectedConfigPath returns the client or daemon config path.
func selectedConfigPath() (string, error) {
	if configOpts.daemon {
		return daemonConfigPath()
	}
	if globalOpts.configPath != "" {
		return globalOpts.configPath, nil
	}
	path := config.ConfigPath()
	if path == "" {
		return "", fmt.Errorf("could not determine config directory")
	}
	return path, nil
}

func daemonConfigPath() (string, error) {
	if configOpts.daemon && globalOpts.configPath != "" {
		return globalOpts.configPath, nil
	}
	return config.DaemonConfigPath()
}
