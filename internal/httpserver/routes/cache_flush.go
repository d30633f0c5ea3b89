package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/mw"
	"github.com/MrSnakeDoc/appendix/internal/utils"
)

func init() { Register(registerCacheFlush) }

// Flushing purges shared state, so it is refused outright without an IP allow-list.
func registerCacheFlush(r chi.Router, d deps.Deps) {
	const path = "/api/cache/flush"
	if utils.NewIPMatcher(d.AllowedCIDRS).IsEmpty() {
		d.Logger.Warn("cache flush endpoint disabled, SWPPP_ALLOWED_CIDRS is empty")
		r.Post(path, handlers.CacheFlushDisabled)
		return
	}
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustedProxies, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger)).Post(path, handlers.CacheFlush(d))
}
