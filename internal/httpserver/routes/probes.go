package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/mw"
	"github.com/MrSnakeDoc/appendix/internal/observability"
)

func init() { Register(registerProbes) }

// Liveness stays open; readiness, infra and metrics sit behind the allow-list.
func registerProbes(r chi.Router, d deps.Deps) {
	r.Get("/health", handlers.Health)
	r.Get("/healthz", handlers.Healthz(d))

	ops := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustedProxies, d.Logger))
	ops.Get("/readyz", handlers.Readyz(d))
	ops.With(mw.EnforceHost(d.AllowedHosts, d.Logger)).Get("/infra", handlers.Infra(d))
	if d.Gatherer != nil {
		ops.Handle("/metrics", observability.Handler(d.Gatherer))
	}
}
