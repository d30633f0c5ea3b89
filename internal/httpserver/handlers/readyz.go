package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready           bool `json:"ready"`
	ServicesPending int  `json:"services_pending"`
}

// Readyz reports ready once every catalog service has been resolved.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending := 0
		if d.Prewarm != nil {
			pending = d.Prewarm.Pending()
		}

		status := http.StatusOK
		if pending > 0 {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readyzResponse{Ready: pending == 0, ServicesPending: pending})
	}
}
