package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/utils"
)

// AllowOnlyCIDRS restricts ops endpoints to the given IPs/CIDRs. An empty
// list disables the filter. Forwarding headers count only when sent by one
// of trustedProxies (cloudflared, load balancers).
func AllowOnlyCIDRS(allowed, trustedProxies []string, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	proxies := utils.NewIPMatcher(trustedProxies)
	if m.IsEmpty() {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, proxies)
			if !m.Allow(ip) {
				log.Warn("ip not allowed",
					logger.String("ip", ip),
					logger.String("remote_addr", r.RemoteAddr),
					logger.String("path", r.URL.Path))
				reject(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
