package router

import (
	"net/netip"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/handler"
	authmw "callcenter-service/internal/middleware"
	"callcenter-service/pkg/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Options struct {
	CORSOrigins     []string
	LoginRateLimit  int
	LoginRateWindow time.Duration
	// TrustedProxies may set X-Forwarded-For for the rate limiter.
	TrustedProxies []netip.Prefix
}

func SetupRoutes(
	r chi.Router,
	h *handler.Handler,
	auth *authmw.AuthMiddleware,
	limiter middleware.Limiter,
	opts Options,
	logger *zap.Logger,
) chi.Router {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// ---- Global Middleware ----
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", handler.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.RateLimiter(limiter, opts.LoginRateLimit, opts.LoginRateWindow, 2*opts.LoginRateWindow, "login", opts.TrustedProxies, logger)).
			Post("/login", h.HandleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Require)
			pr.Get("/me", h.HandleMe)
			pr.With(auth.RequireRole(domain.RoleAdmin)).Post("/register", h.HandleRegister)
		})
	})

	// ---------------- Authenticated ----------------
	r.Group(func(pr chi.Router) {
		pr.Use(auth.Require)

		pr.Route("/accounts", func(r chi.Router) {
			r.With(auth.RequireRole(domain.RoleAdmin)).Get("/", h.HandleListAccounts)
			r.Get("/{id}", h.HandleGetAccount)
			r.With(auth.RequireRole(domain.RoleAdmin)).Delete("/{id}", h.HandleDeleteAccount)
			r.Get("/{id}/contacts", h.HandleAccountContacts)
			r.Get("/{id}/stats", h.HandleAccountStats)
		})

		pr.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.HandleListContacts)
			r.With(auth.RequireRole(domain.RoleAdmin)).Post("/", h.HandleCreateContact)
			r.With(auth.RequireRole(domain.RoleAdmin)).Get("/stats", h.HandleContactStats)
			r.Get("/{id}", h.HandleGetContact)
			r.Put("/{id}/phone-status", h.HandleSetPhoneStatus)
		})

		// ---------------- Admin ----------------
		pr.Group(func(ar chi.Router) {
			ar.Use(auth.RequireRole(domain.RoleAdmin))
			ar.Post("/assignments", h.HandleAssign)
			ar.Post("/assignments/remove", h.HandleUnassign)
			ar.Post("/maintenance/reconcile", h.HandleReconcile)
		})
	})

	return r
}
