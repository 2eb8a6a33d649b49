package main

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spectrum-club/internal/models/config"
	database "spectrum-club/pkg"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Создать схему club в PostgreSQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var db *sqlx.DB
			return runOnce(cmd, func(ctx context.Context, _ *config.Config, logger *zap.Logger) error {
				if err := database.Migrate(ctx, db); err != nil {
					return err
				}
				logger.Info("✅ Схема применена")
				return nil
			}, &db)
		},
	}
}
