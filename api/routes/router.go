package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andresmgomez/pasarela-backend/api/controllers"
	webhookcontrollers "github.com/andresmgomez/pasarela-backend/api/controllers/webhooks"
	"github.com/andresmgomez/pasarela-backend/api/middleware"
	paymentsvc "github.com/andresmgomez/pasarela-backend/internal/payments"
	productsvc "github.com/andresmgomez/pasarela-backend/internal/products"
	transactionsvc "github.com/andresmgomez/pasarela-backend/internal/transactions"
	"github.com/andresmgomez/pasarela-backend/pkg/config"
	"github.com/andresmgomez/pasarela-backend/pkg/db"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
	"github.com/andresmgomez/pasarela-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	productService productsvc.Service,
	transactionService transactionsvc.Service,
	paymentService paymentsvc.Service,
	webhookService webhookcontrollers.WompiWebhookService,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisP redis.Pinger
	if redisClient != nil {
		redisP = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ListProducts(productService, logg))
		r.Get("/{productId}", controllers.GetProduct(productService, logg))
		if redisClient != nil {
			r.With(middleware.Idempotency(redisClient, logg)).Post("/", controllers.CreateProduct(productService, logg))
		} else {
			r.Post("/", controllers.CreateProduct(productService, logg))
		}
	})

	r.Route("/api/v1/transactions", func(r chi.Router) {
		if redisClient != nil {
			r.Use(middleware.Idempotency(redisClient, logg))
		}
		r.Post("/", controllers.UpsertTransaction(transactionService, logg))
		r.Get("/{identifier}", controllers.GetTransaction(transactionService, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		if redisClient != nil {
			r.Use(middleware.Idempotency(redisClient, logg))
		}
		r.Post("/", controllers.ProcessPayment(paymentService, logg))
		r.Post("/integrity", controllers.PaymentIntegrity(paymentService, logg))
		r.Post("/webhook", webhookcontrollers.WompiWebhook(webhookService, logg))
		r.Get("/{identifier}", controllers.GetPaymentStatus(paymentService, logg))
	})

	return r
}
