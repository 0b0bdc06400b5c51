package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"igfeed/pkg/config"
	"igfeed/pkg/ui"
)

func (c *cli) configCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage igfeed configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IGFEED_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default values",
		Long: `Write a configuration file with every option set to its default.

The file is created at $XDG_CONFIG_HOME/igfeed/config.yaml unless a
different path is given with --config.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configFile
			if path == "" {
				path = filepath.Join(config.ConfigDir(), "config.yaml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			ui.PrintSuccess("✓ Configuration written")
			ui.PrintInfo("Path", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the configuration after every source has been applied.

Proxy credentials are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *c.cfg
			shown.Instagram.Proxy = redactURL(shown.Instagram.Proxy)

			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration from every source and report each problem found.

This command checks:
  - YAML syntax
  - Environment variable values
  - Value types and ranges`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(c.configFile, c.flags()); err != nil {
				for _, line := range strings.Split(err.Error(), "\n") {
					ui.PrintError("  • " + line)
				}
				return errors.New("configuration is invalid")
			}
			ui.PrintSuccess("✓ Configuration is valid")
			return nil
		},
	}

	configCmd.AddCommand(initCmd, showCmd, validateCmd)
	return configCmd
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "********"
	}
	return u.Redacted()
}
