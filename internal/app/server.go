package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"spectrum-club/internal/consumer"
	"spectrum-club/internal/models/config"
	"spectrum-club/internal/service"
	"spectrum-club/internal/web"
	"spectrum-club/pkg/mq"
)

const readHeaderTimeout = 5 * time.Second

// Server - HTTP API с метриками и потребитель событий оплаты.
var Server = fx.Options(
	fx.Provide(web.NewHandler),
	fx.Invoke(registerHTTP, registerConsumer),
)

func registerHTTP(lc fx.Lifecycle, cfg *config.Config, handler *web.Handler, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("🌐 HTTP сервер запущен", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP сервер остановился", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func registerConsumer(lc fx.Lifecycle, cfg *config.Config, provisioning service.ProvisioningService, logger *zap.Logger) {
	if cfg.Rabbit.URL == "" {
		logger.Warn("RABBIT_URL не задан, события оплаты не обрабатываются")
		return
	}

	var (
		source *mq.Consumer
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			source, err = mq.NewConsumer(mq.Config{
				URL:                cfg.Rabbit.URL,
				Exchange:           cfg.Rabbit.Exchange,
				Queue:              cfg.Rabbit.Queue,
				Keys:               []string{consumer.RKPaymentSucceeded},
				Prefetch:           cfg.Rabbit.Prefetch,
				DeadLetterExchange: cfg.Rabbit.DeadLetterExchange,
			})
			if err != nil {
				return err
			}

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			c := consumer.NewPaymentConsumer(source, provisioning, logger)

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.Run(ctx); err != nil {
					logger.Error("Потребитель событий оплаты остановился", zap.Error(err))
				}
			}()
			logger.Info("📨 Потребитель событий оплаты запущен", zap.String("queue", cfg.Rabbit.Queue))
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			return source.Close()
		},
	})
}
