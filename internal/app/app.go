// Package app собирает зависимости через fx: общий граф для CLI команд
// и серверная часть (HTTP + RabbitMQ) для serve.
package app

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"spectrum-club/internal/bot"
	"spectrum-club/internal/metrics"
	"spectrum-club/internal/models/config"
	"spectrum-club/internal/repository/attendance"
	"spectrum-club/internal/repository/credit"
	"spectrum-club/internal/repository/event"
	"spectrum-club/internal/repository/group"
	"spectrum-club/internal/repository/program"
	"spectrum-club/internal/repository/schedule"
	"spectrum-club/internal/repository/schedule_template"
	"spectrum-club/internal/repository/subscription"
	"spectrum-club/internal/repository/user"
	attendance_service "spectrum-club/internal/service/attendance"
	credit_service "spectrum-club/internal/service/credit"
	provisioning_service "spectrum-club/internal/service/provisioning"
	schedule_service "spectrum-club/internal/service/schedule"
	subscription_service "spectrum-club/internal/service/subscription"
	user_service "spectrum-club/internal/service/user"
	database "spectrum-club/pkg"
	"spectrum-club/pkg/obs"
)

const (
	serviceName    = "spectrum-club"
	connectTimeout = 10 * time.Second
)

// Core - БД, репозитории, сервисы, метрики и трейсинг.
var Core = fx.Options(
	fx.Provide(
		newDB,
		database.NewTransactor,
		newRegistry,
		newMetrics,

		user.NewUserRepository,
		program.NewProgramRepository,
		schedule_template.NewWeekScheduleRepository,
		schedule.NewOccurrenceRepository,
		attendance.NewAttendanceRepository,
		subscription.NewEnrollmentRepository,
		group.NewGroupRepository,
		credit.NewCreditRepository,
		event.NewEventRepository,

		clubLocation,
		scheduleOptions,
		botConfig,
		bot.NewBot,
		user_service.NewMembershipGuard,
		schedule_service.NewScheduleService,
		attendance_service.NewAttendanceService,
		subscription_service.NewSubscriptionService,
		credit_service.NewCreditService,
		provisioning_service.NewProvisioningService,
	),
	fx.Invoke(initTracing),
)

// New собирает приложение. extra - команды CLI добавляют сюда свои fx.Invoke/fx.Populate.
func New(cfg *config.Config, logger *zap.Logger, extra ...fx.Option) *fx.App {
	return fx.New(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			fl := &fxevent.ZapLogger{Logger: l.Named("fx")}
			fl.UseLogLevel(zap.DebugLevel)
			return fl
		}),
		Core,
		fx.Options(extra...),
	)
}

func newDB(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("Закрываем соединения с БД")
			return db.Close()
		},
	})
	return db, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func clubLocation(cfg *config.Config) *time.Location {
	return cfg.Location()
}

func scheduleOptions(cfg *config.Config, loc *time.Location) schedule_service.Options {
	return schedule_service.Options{
		Location:    loc,
		HorizonDays: cfg.RebuildHorizonDays,
	}
}

func botConfig(cfg *config.Config) config.BotConfig {
	return cfg.Bot
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) error {
	shutdown, err := obs.InitTracer(context.Background(), serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	if cfg.OTLPEndpoint != "" {
		logger.Info("Трейсинг включен", zap.String("endpoint", cfg.OTLPEndpoint))
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return nil
}
