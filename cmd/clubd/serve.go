package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spectrum-club/internal/app"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTP API, метрики и обработка событий оплаты",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a := app.New(cfg, logger, app.Server)
			if err := a.Start(cmd.Context()); err != nil {
				return err
			}

			<-cmd.Context().Done()
			logger.Info("🛑 Получен сигнал завершения...")

			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := a.Stop(stopCtx); err != nil {
				logger.Error("Ошибка при остановке", zap.Error(err))
				return err
			}
			logger.Info("👋 Корректное завершение работы")
			return nil
		},
	}
}
