package cli

import (
	"github.com/spf13/cobra"

	"github.com/Vr3n/crown-vitality-research/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the embedded schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMigrate(database.Up)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every applied migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMigrate(database.Down)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func runMigrate(dir database.Direction) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	if err := database.Migrate(cfg.DB(), dir); err != nil {
		return err
	}
	log.Info().Str("direction", string(dir)).Msg("migrations applied")
	return nil
}
