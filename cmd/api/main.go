package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/kilnpay/api/routes"
	"github.com/angelmondragon/kilnpay/internal/bookings"
	"github.com/angelmondragon/kilnpay/internal/customorders"
	"github.com/angelmondragon/kilnpay/internal/notifications"
	"github.com/angelmondragon/kilnpay/internal/orders"
	"github.com/angelmondragon/kilnpay/internal/payments"
	"github.com/angelmondragon/kilnpay/pkg/config"
	"github.com/angelmondragon/kilnpay/pkg/db"
	"github.com/angelmondragon/kilnpay/pkg/instance"
	"github.com/angelmondragon/kilnpay/pkg/logger"
	"github.com/angelmondragon/kilnpay/pkg/metrics"
	"github.com/angelmondragon/kilnpay/pkg/migrate"
	"github.com/angelmondragon/kilnpay/pkg/outbox"
	"github.com/angelmondragon/kilnpay/pkg/razorpay"
	"github.com/angelmondragon/kilnpay/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	razorpayClient, err := razorpay.NewClient(context.Background(), cfg.Razorpay, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap razorpay", err)
		os.Exit(1)
	}

	var limiter payments.AttemptLimiter
	switch cfg.Payments.LimiterBackend {
	case config.LimiterBackendRedis:
		limiter = payments.NewRedisLimiter(redisClient, cfg.Payments.VerifyWindow, cfg.Payments.VerifyMaxAttempts)
	default:
		// counters are per process and reset on restart
		limiter = payments.NewMemoryLimiter(cfg.Payments.VerifyWindow, cfg.Payments.VerifyMaxAttempts)
	}

	customOrdersRepo := customorders.NewRepository(dbClient.DB())
	stores := []payments.Store{
		orders.NewStore(orders.NewRepository(dbClient.DB())),
		customorders.NewStore(customOrdersRepo),
		bookings.NewStore(bookings.NewRepository(dbClient.DB())),
	}

	emitter, err := notifications.NewEmitter(outbox.NewService(outbox.NewRepository(dbClient.DB()), logg), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification emitter", err)
		os.Exit(1)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	intents, err := payments.NewIntentCreator(payments.IntentParams{
		Provider:  razorpayClient,
		Stores:    stores,
		Currency:  cfg.Payments.Currency,
		MaxAmount: cfg.Payments.MaxAmount,
		Timeout:   cfg.Payments.ProviderTimeout,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create intent creator", err)
		os.Exit(1)
	}

	verifier, err := payments.NewVerifier(payments.VerifierParams{
		Stores:   stores,
		Limiter:  limiter,
		Tx:       dbClient,
		Notifier: emitter,
		Secret:   razorpayClient.KeySecret(),
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment verifier", err)
		os.Exit(1)
	}

	customOrderAdmin, err := customorders.NewService(customorders.ServiceParams{
		Repo:      customOrdersRepo,
		Tx:        dbClient,
		Notifier:  emitter,
		MaxAmount: cfg.Payments.MaxAmount,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create custom order service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":             cfg.App.Env,
		"addr":            addr,
		"instance":        instance.ID(),
		"limiter_backend": cfg.Payments.LimiterBackend,
		"razorpay_env":    razorpayClient.Environment(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Idempotency:    redisClient,
			IdempotencyTTL: cfg.Payments.IdempotencyTTL,
			Intents:        intents,
			Verifier:       verifier,
			CustomOrders:   customOrderAdmin,
			Metrics:        promhttp.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
	logg.Info(ctx, "api server stopped")
}
