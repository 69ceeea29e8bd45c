package main

import (
	"fmt"
	"os"

	"neon/backend/config"
	"neon/backend/database"
	"neon/backend/logger"
	"neon/backend/migrations"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var configFile string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			if err != nil {
				return err
			}
			defer log.Sync()

			// InitDB applies the migrations
			if err := database.InitDB(cfg.Database.Path, log); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer database.Close()

			applied, err := migrations.Applied(database.DB)
			if err != nil {
				return err
			}
			log.Info("migrations completed successfully", zap.Strings("applied", applied))
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to a config file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
