// Package cli holds the command-line entry points of the notes server.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Vr3n/crown-vitality-research/internal/config"
	"github.com/Vr3n/crown-vitality-research/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "notes",
	Short: "Research notes API for nutrition professionals",
	Long: `Serves the notes API, applies schema migrations and consumes
note lifecycle events.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(consumeCmd)
}

// bootstrap loads configuration and builds the process logger from it.
func bootstrap() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Env, cfg.LogLevel, os.Stdout), nil
}
