// Package cmd implements streamcored's CLI, wiring jmylchreest-tvarr's
// cobra+pflag stack (persistent flags bound into the config loader's own
// viper instance) around streamcore's config.Config instead of tvarr's IPTV
// settings.
package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nsavage/streamcore/internal/logger"
)

var cfgFile string

// rootCmd is the base command invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "streamcored",
	Short: "Stream core daemon: per-stream actors, ingest flavors, admin API",
}

// Execute runs the CLI, returning the first error any subcommand produced.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./streamcored.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func initLogger(level string) zerolog.Logger {
	logger.Init()
	if err := logger.SetLevel(level); err != nil {
		logger.Logger().Warn().Str("level", level).Msg("invalid log level, keeping previous")
	}
	return *logger.Logger()
}
