package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/handlers"
)

func init() { Register(registerCollaborators) }

func registerCollaborators(r chi.Router, d deps.Deps) {
	r.Post("/export", handlers.Export(d))
	if d.Turnstile != nil {
		r.Post("/api/turnstile/verify", handlers.TurnstileVerify(d))
	}
}
