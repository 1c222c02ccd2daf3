package cmd

import (
	"fmt"

	"idm-reconciler/core/config"
	"idm-reconciler/core/database"
	"idm-reconciler/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long:  `Migrates every persistent entity. Use "integrity schema" to only report drift.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer logg.Sync()

		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		logg.Info("Schema migrated", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
