package mw

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/appendix/internal/logger"
)

// EnforceHost allows requests only if r.Host matches one of the allowed
// hosts. Patterns like "*.example.com" match any subdomain. An empty list
// disables the check.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	if len(allowedHosts) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, pattern := range allowedHosts {
				if matchHost(r.Host, pattern) {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn("host not allowed",
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path))
			reject(w, http.StatusForbidden, "forbidden")
		})
	}
}

// matchHost compares case-insensitively and ignores a port on either side.
func matchHost(host, pattern string) bool {
	host = strings.ToLower(stripPort(host))
	pattern = strings.ToLower(stripPort(pattern))

	if host == pattern {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return strings.HasSuffix(host, suffix)
	}
	return false
}

func stripPort(h string) string {
	if i := strings.LastIndexByte(h, ':'); i >= 0 && !strings.Contains(h[i:], "]") {
		return h[:i]
	}
	return h
}
