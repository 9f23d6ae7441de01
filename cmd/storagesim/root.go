package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"storagesim/internal/logging"
)

var (
	logLevel  string
	logFormat string
	logOutput string
)

var rootCmd = &cobra.Command{
	Use:   "storagesim",
	Short: "Energy storage system simulation toolkit",
	Long:  "storagesim simulates battery, hydrogen and redox flow storage systems against a requested power profile.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()
		return setupLogging(cmd.ErrOrStderr())
	},
	SilenceUsage: true,
}

// setupLogging installs the default logger. stderr is used unless
// --log-output names a file.
func setupLogging(stderr io.Writer) error {
	w := stderr
	if logOutput != "" {
		f, err := os.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log output: %w", err)
		}
		w = f
	}
	logger, err := logging.New(logLevel, logFormat, w)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "", "Write logs to this file instead of STDERR")
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}
