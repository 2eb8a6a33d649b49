package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"spectrum-club/internal/app"
	"spectrum-club/internal/models/config"
)

const (
	programName = "clubd"
	stopTimeout = 10 * time.Second
)

var globalFlags = struct {
	debug bool
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Расписание клуба, посещения и пакеты часов",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(
		serveCommand(),
		migrateCommand(),
		materializeCommand(),
		rebuildCommand(),
		cancelFutureCommand(),
		editSlotCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		stop()
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	if globalFlags.debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, nil, err
	}
	logger = logger.Named(programName)
	logger.Info("🚀 Запуск", zap.String("env", cfg.Environment), zap.String("tz", cfg.Location().String()))
	return cfg, logger, nil
}

// runOnce поднимает граф зависимостей, заполняет targets, выполняет run и
// останавливает приложение.
func runOnce(cmd *cobra.Command, run func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error, targets ...any) (err error) {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a := app.New(cfg, logger, fx.Populate(targets...))
	if err := a.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		err = multierr.Append(err, a.Stop(stopCtx))
	}()

	return run(ctx, cfg, logger)
}
