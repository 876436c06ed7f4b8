/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies (rate limiting input)
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Allow-list from configuration

ROUTE GROUPS:
  Public routes (customer-facing) sit behind a per-client rate limit.
  Operator routes require a bearer token; admin routes stack the role
  gate on top.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions carries the HTTP-level configuration.
type RouterOptions struct {
	AllowedOrigins []string
	PublicRPS      float64
	PublicBurst    int
}

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	public := newRateLimiter(opts.PublicRPS, opts.PublicBurst)

	// Customer-facing routes
	r.Group(func(r chi.Router) {
		r.Use(public.Middleware)
		r.Get("/clientes/{cpf}", h.GetCliente)
		r.Get("/clientes/{cpf}/extrato", h.GetExtrato)
		r.Post("/clientes/registro", h.RegisterCliente)
		r.Get("/recompensas/publica", h.ListRecompensasPublica)
	})

	// Account routes
	r.Post("/usuarios/registro", h.RegisterUsuario)
	r.Post("/usuarios/login", h.LoginUsuario)

	// Operator routes
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Post("/resgates", h.CreateResgate)
		r.Get("/recompensas", h.ListRecompensas)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAdmin)
			r.Post("/transacoes", h.CreateTransacao)
			r.Post("/recompensas", h.CreateRecompensa)
			r.Put("/recompensas/{id}", h.UpdateRecompensa)
			r.Delete("/recompensas/{id}", h.DeleteRecompensa)
			r.Get("/dashboard/stats", h.GetDashboard)
			r.Get("/admin/auditoria", h.GetAuditoria)
		})
	})

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
