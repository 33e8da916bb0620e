// Package router assembles the gateway's chi handler tree.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amerfu/arbiter/internal/config"
	"github.com/amerfu/arbiter/internal/handlers"
	"github.com/amerfu/arbiter/internal/middleware"
	"github.com/amerfu/arbiter/internal/services/health"
	"github.com/amerfu/arbiter/internal/services/registry"
)

// Dependencies carries everything the HTTP surface needs. DB may be
// nil when the gateway runs without Postgres.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Completer handlers.Completer
	Registry  *registry.Registry
	Tracker   *health.Tracker
	DB        *gorm.DB
}

// New builds the full handler tree.
func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   deps.Config.CORS.AllowedMethods,
		AllowedHeaders:   deps.Config.CORS.AllowedHeaders,
		AllowCredentials: deps.Config.CORS.AllowCredentials,
		MaxAge:           deps.Config.CORS.MaxAge,
	}))

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Registry, deps.Tracker)
	chatHandler := handlers.NewChatHandler(deps.Completer, deps.Logger)
	modelsHandler := handlers.NewModelsHandler(deps.Registry, deps.Logger)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(middleware.Auth(deps.Config.JWT.SecretKey, deps.Logger))
		v1.Post("/chat/completions", chatHandler.ChatCompletions)
		v1.Get("/models", modelsHandler.List)
		v1.Post("/models", modelsHandler.Register)
		v1.Get("/providers/health", healthHandler.ProviderHealth)
	})

	return r
}
