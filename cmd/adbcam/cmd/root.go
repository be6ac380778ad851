// Package cmd implements the CLI commands for adbcam.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"adbcam/internal/config"
	"adbcam/internal/observability"
	"adbcam/internal/scrcpy"
	"adbcam/internal/session"
	"adbcam/internal/version"
)

// Exit codes. Teardown failures get their own code so scripts can tell a
// leaked resource apart from a run that never started.
const (
	exitOK      = 0
	exitFailure = 1
	exitRelease = 2
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "adbcam",
	Short:   "Use an Android phone as a virtual webcam and microphone",
	Version: version.Short(),
	Long: `adbcam turns an Android phone connected over adb into a virtual webcam
and microphone on Linux.

It mirrors a phone camera into a v4l2loopback device via scrcpy and,
optionally, routes a phone microphone into a PulseAudio null sink whose
monitor acts as the virtual microphone. Everything it sets up is torn
down again when the run ends.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and maps the result to a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		if errors.Is(err, session.ErrNoDevices) || errors.Is(err, scrcpy.ErrNoDevice) {
			fmt.Fprintln(os.Stderr, "Hint: enable USB debugging on the phone, accept the debugging prompt, and check `adbcam devices`.")
		}

		var relErr *session.ReleaseError
		if errors.As(err, &relErr) {
			return exitRelease
		}
		return exitFailure
	}
	return exitOK
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set PersistentPreRunE here to avoid initialization cycle
	// (initLogging references rootCmd.PersistentFlags)
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// Global flags
	// Note: These flags are NOT bound to viper. Instead, we check if they were
	// explicitly set using Changed() and only then override the config/env values.
	// This preserves the correct priority: CLI flag > env var > config > default
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.adbcam.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/adbcam")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".adbcam")
	}

	viper.SetEnvPrefix("ADBCAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging configures the slog logger based on configuration.
// Uses the observability package so device serials are redacted.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) - only if explicitly provided
//  2. Environment variables (ADBCAM_LOGGING_LEVEL, ADBCAM_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, text)
func initLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	// Override with CLI flags only if explicitly set by user.
	// We don't bind these flags to viper because viper's flag layer would
	// always override env/config, even at the flag's default value.
	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "text"
	}

	logCfg := config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	observability.SetDefault(observability.NewLoggerWithWriter(logCfg, os.Stderr))
	return nil
}

// loadConfig builds the validated application configuration after viper has
// been initialized.
func loadConfig() (*config.Config, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding
// fails. This helper ensures lint-compliant error handling for
// viper.BindPFlag.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
