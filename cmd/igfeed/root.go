package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"igfeed/pkg/config"
	"igfeed/pkg/logger"
	"igfeed/pkg/ui"
)

var (
	// Version information
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// skipConfig marks commands that must run even when the configuration does not load
const skipConfig = "skip-config"

// cli holds the global flags and the state shared by the commands of one invocation
type cli struct {
	configFile  string
	logLevel    string
	proxy       string
	sessionFile string
	chromeTLS   bool
	noColor     bool
	quiet       bool
	verbose     bool

	fs  afero.Fs
	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{fs: afero.NewOsFs()}

	rootCmd := &cobra.Command{
		Use:   "igfeed",
		Short: "Log in to Instagram and read profile, reels, live and location feeds",
		Long: `igfeed establishes an Instagram web session and reads public data feeds with it.

Features:
  - Password login with automatic security checkpoint handling
  - Verification codes from another terminal, the system keychain, the environment or a prompt
  - Sessions saved between runs, encrypted at rest
  - Profile, reels, live broadcast and location feeds printed as JSON
  - Rate limiting and retries with exponential backoff`,
		Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/igfeed/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&c.proxy, "proxy", "", "HTTP or SOCKS5 proxy URL")
	rootCmd.PersistentFlags().StringVar(&c.sessionFile, "session-file", "", "where the session is saved")
	rootCmd.PersistentFlags().BoolVar(&c.chromeTLS, "chrome-tls", false, "present a Chrome TLS fingerprint")
	rootCmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "suppress all output except errors and results")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "show the logo and debug logs")

	rootCmd.SetVersionTemplate(`igfeed {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.authCmd(),
		c.codeCmd(),
		c.profileCmd(),
		c.reelsCmd(),
		c.liveCmd(),
		c.locationCmd(),
		c.configCmd(),
	)

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	ui.SetOutput(cmd.ErrOrStderr())
	ui.SetColor(!c.noColor && os.Getenv("NO_COLOR") == "")
	ui.SetQuietMode(c.quiet)

	if c.verbose {
		ui.PrintLogo()
	}
	if cmd.Annotations[skipConfig] != "" {
		return nil
	}

	cfg, err := config.Load(c.configFile, c.flags())
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	c.cfg = cfg
	c.log = logger.GetLogger()
	c.log.DebugWithFields("configuration loaded", map[string]interface{}{
		"command": cmd.CommandPath(),
		"version": version,
	})
	return nil
}

func (c *cli) flags() map[string]interface{} {
	level := c.logLevel
	switch {
	case c.verbose:
		level = "debug"
	case c.quiet && level == "":
		level = "error"
	}

	return map[string]interface{}{
		"log-level":    level,
		"proxy":        c.proxy,
		"session-file": c.sessionFile,
		"chrome-tls":   c.chromeTLS,
	}
}
