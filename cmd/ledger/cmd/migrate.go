package cmd

import (
	"github.com/Fi44er/casino_ledger/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.ConnectDb(cfg.DB_URL, logger)
		if err != nil {
			return err
		}
		return db.Migrate(database, true, logger)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
