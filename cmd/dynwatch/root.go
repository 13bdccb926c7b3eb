package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dynwatch",
	Short: "Query rate monitoring for the Dyn metering API",
	Long: `Dynwatch watches the 95th percentile query rate of a Dyn account and
raises monitoring alerts when it crosses configured thresholds.

Quick start:
  dynwatch check --customer acme --username monitor --period day -w 80 -c 100
  dynwatch serve --defs-dir ./checks

Management:
  dynwatch validate --dir ./checks   # Validate check definition files`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Argument errors carry the UNKNOWN exit code so that a
// misconfigured monitoring probe never reports a healthy state.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("UNKNOWN: %v\n", err)
		os.Exit(3)
	}
}

func init() {
	cobra.OnInitialize(loadDotEnv)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console|json)")
}

func loadDotEnv() {
	godotenv.Load()
}

// newLogger builds the process logger from the global flags. Logs go to
// stderr so that the verdict line on stdout stays machine readable.
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = zerolog.WarnLevel
	}

	var logger zerolog.Logger
	if logFormat == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
