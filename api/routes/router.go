package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/kilnpay/api/controllers"
	"github.com/angelmondragon/kilnpay/api/middleware"
	"github.com/angelmondragon/kilnpay/pkg/config"
	"github.com/angelmondragon/kilnpay/pkg/logger"
	"github.com/angelmondragon/kilnpay/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          controllers.Pinger
	Idempotency    redis.IdempotencyStore
	IdempotencyTTL time.Duration
	Intents        controllers.IntentCreator
	Verifier       controllers.PaymentVerifier
	CustomOrders   controllers.CustomOrderAdmin
	Metrics        http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.OptionsNoContent,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	idempotent := middleware.Idempotency(p.Idempotency, p.IdempotencyTTL, logg)

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.With(idempotent).Post("/orders", controllers.CreateOrderIntent(p.Intents, logg))
		r.Post("/orders/verify", controllers.VerifyOrderPayment(p.Verifier, logg))
		r.With(idempotent).Post("/experiences/intent", controllers.CreateExperienceIntent(p.Intents, logg))
		r.Post("/experiences/verify", controllers.VerifyExperiencePayment(p.Verifier, logg))
	})

	r.Route("/api/public/v1/custom-orders", func(r chi.Router) {
		r.Post("/intent", controllers.CreateCustomOrderIntent(p.Intents, logg))
		r.Post("/verify", controllers.VerifyCustomOrderPayment(p.Verifier, logg))
	})

	r.Route("/api/admin/v1/custom-orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))
		r.Post("/{customOrderId}/estimate", controllers.AdminSetCustomOrderEstimate(p.CustomOrders, logg))
		r.Post("/{customOrderId}/status", controllers.AdminAdvanceCustomOrderStatus(p.CustomOrders, logg))
	})

	return r
}
