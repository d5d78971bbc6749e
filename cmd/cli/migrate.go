package cli

import (
	"github.com/spf13/cobra"

	"crmflow/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()
		db, err := database.Open(cfg, "", logger)
		if err != nil {
			return err
		}
		logger.Info("Starting database migration...")
		if err := database.Migrate(db); err != nil {
			return err
		}
		logger.Info("Database migration completed successfully!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
