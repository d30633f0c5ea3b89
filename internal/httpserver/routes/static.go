package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/handlers"
)

func init() { Register(registerStatic) }

func registerStatic(r chi.Router, d deps.Deps) {
	if d.StaticDir == "" {
		return
	}
	r.Get("/*", handlers.Static(d.StaticDir))
}
