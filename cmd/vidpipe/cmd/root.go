// Package cmd implements the CLI commands for vidpipe.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// cfgFile holds the config file path from the CLI flag.
	cfgFile string

	// appConfig is loaded before any subcommand runs.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "vidpipe",
	Short:   "Video pipeline orchestration and self-healing engine",
	Version: version.Version,
	Long: `vidpipe ingests course video uploads, dispatches encode tasks to remote
workers, delivers and records the finished encodes, and runs a periodic heal
cycle that re-dispatches whatever is missing.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		return initLogging()
	}

	// Flags are not bound to viper; an explicitly set flag overrides env and file.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, /etc/vidpipe/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

func loadConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	appConfig = cfg
	return nil
}

// initLogging installs the redacting logger. Explicit flags win over the
// environment and the config file.
func initLogging() error {
	logCfg := appConfig.Logging

	flags := rootCmd.PersistentFlags()
	logCfg.Level = stringOverride(flags, "log-level", logCfg.Level)
	logCfg.Format = stringOverride(flags, "log-format", logCfg.Format)

	logCfg.Level = strings.ToLower(logCfg.Level)
	logCfg.Format = strings.ToLower(logCfg.Format)
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}
	appConfig.Logging = logCfg

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)
	return nil
}

// stringOverride returns the flag value when the user set it, else current.
func stringOverride(flags *pflag.FlagSet, name, current string) string {
	if !flags.Changed(name) {
		return current
	}
	if v, err := flags.GetString(name); err == nil {
		return v
	}
	return current
}
