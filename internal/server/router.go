package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/prolearn/prolearn/internal/handler"
	"github.com/prolearn/prolearn/internal/middleware"
)

// RouterConfig collects the handlers and middleware settings behind the
// router.
type RouterConfig struct {
	Logger *slog.Logger

	Root        *handler.Handler
	Health      *handler.HealthHandler
	Metrics     *handler.MetricsHandler
	Users       *handler.UserHandler
	Identifiers *handler.IdentifierHandler
	Audit       *handler.AuditHandler

	Security  middleware.SecurityConfig
	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimitConfig
	Admin     middleware.AdminConfig
}

// NewRouter builds the chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.MaxBodySize(cfg.Security.MaxRequestBodySize))

	r.Get("/", cfg.Root.Index)
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	r.Get("/metrics", cfg.Metrics.Metrics)

	adminOnly := middleware.AdminOnly(cfg.Admin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.With(middleware.RateLimitRegister(cfg.RateLimit)).Post("/", cfg.Users.Register)
			r.Get("/{code}", cfg.Users.Get)
			r.With(adminOnly).Delete("/{code}", cfg.Users.Delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/identifier-cursors", cfg.Identifiers.ListCursors)
			r.Get("/identifier-cursors/{year}", cfg.Identifiers.GetCursor)
			r.Post("/identifiers", cfg.Identifiers.Mint)
			r.Post("/identifiers/import", cfg.Identifiers.Import)
			r.Get("/audit-events", cfg.Audit.List)
		})
	})

	r.NotFound(cfg.Root.NotFound)
	r.MethodNotAllowed(cfg.Root.MethodNotAllowed)

	return r
}
