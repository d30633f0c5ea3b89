package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/mw"
)

func init() { Register(registerFetchFactors) }

func registerFetchFactors(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateLimitBurst,
		RefillPerIPPerMin: d.RateLimitPerMin,
		TrustedProxies:    d.TrustedProxies,
	})

	const path = "/api/fetch-factors"
	r.With(limit).Post(path, handlers.FetchFactors(d))
	r.Get(path, handlers.FetchFactorsMethodNotAllowed)
	r.Put(path, handlers.FetchFactorsMethodNotAllowed)
	r.Patch(path, handlers.FetchFactorsMethodNotAllowed)
	r.Delete(path, handlers.FetchFactorsMethodNotAllowed)
}
