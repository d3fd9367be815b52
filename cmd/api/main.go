package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/andresmgomez/pasarela-backend/api/routes"
	customersvc "github.com/andresmgomez/pasarela-backend/internal/customers"
	paymentsvc "github.com/andresmgomez/pasarela-backend/internal/payments"
	productsvc "github.com/andresmgomez/pasarela-backend/internal/products"
	transactionsvc "github.com/andresmgomez/pasarela-backend/internal/transactions"
	wompiwebhook "github.com/andresmgomez/pasarela-backend/internal/webhooks/wompi"
	"github.com/andresmgomez/pasarela-backend/pkg/config"
	"github.com/andresmgomez/pasarela-backend/pkg/db"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
	"github.com/andresmgomez/pasarela-backend/pkg/metrics"
	"github.com/andresmgomez/pasarela-backend/pkg/migrate"
	"github.com/andresmgomez/pasarela-backend/pkg/redis"
	"github.com/andresmgomez/pasarela-backend/pkg/security"
	"github.com/andresmgomez/pasarela-backend/pkg/wompi"
)

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

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured, idempotency and event dedupe disabled")
	}

	wompiClient, err := wompi.NewClient(context.Background(), cfg.Wompi, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wompi client", err)
		os.Exit(1)
	}

	sealer, err := security.NewTokenSealer(cfg.Payments.TokenEncryptionKey)
	if err != nil {
		logg.Error(context.Background(), "failed to create token sealer", err)
		os.Exit(1)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	productRepo := productsvc.NewRepository(dbClient.DB())
	customerRepo := customersvc.NewRepository(dbClient.DB())
	transactionRepo := transactionsvc.NewRepository(dbClient.DB())

	productService, err := productsvc.NewService(productRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	customerService, err := customersvc.NewService(customerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create customer service", err)
		os.Exit(1)
	}

	transactionService, err := transactionsvc.NewService(transactionsvc.ServiceParams{
		Repo:      transactionRepo,
		Tx:        dbClient,
		Customers: customerService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create transaction service", err)
		os.Exit(1)
	}

	webhookParams := wompiwebhook.ServiceParams{
		TransactionRepo: transactionRepo,
		Transactions:    transactionService,
		ProductRepo:     productRepo,
		Tx:              dbClient,
		Logger:          logg,
		Metrics:         paymentMetrics,
		EventsKey:       cfg.Wompi.EventsKey,
	}
	if redisClient != nil {
		webhookParams.Guard = redisClient
	}
	webhookService, err := wompiwebhook.NewService(webhookParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	paymentService, err := paymentsvc.NewService(paymentsvc.ServiceParams{
		Transactions:    transactionService,
		TransactionRepo: transactionRepo,
		ProductRepo:     productRepo,
		Gateway:         wompiClient,
		Sealer:          sealer,
		Tx:              dbClient,
		Reconciler:      webhookService,
		Logger:          logg,
		Metrics:         paymentMetrics,
		Currency:        cfg.Payments.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			productService,
			transactionService,
			paymentService,
			webhookService,
		),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
