package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/openwitness/chronicle/internal/config"
	"github.com/openwitness/chronicle/internal/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := db.RunMigrations(cfg.Database); err != nil {
				return err
			}
			log.Println("[DB] migrations up to date")
			return nil
		},
	}
}
