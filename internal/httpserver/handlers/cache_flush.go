package handlers

import (
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/logger"
)

type cacheFlushResponse struct {
	Flushed          bool   `json:"flushed"`
	Backend          string `json:"backend"`
	ServicesPurged   bool   `json:"services_purged"`
	PrewarmTriggered bool   `json:"prewarm_triggered"`
}

// CacheFlush drops cached payloads. With ?services=true it also forgets the
// resolved services and schedules a prewarm.
func CacheFlush(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, _ := strconv.ParseBool(r.URL.Query().Get("services"))

		if err := d.Factors.Flush(r.Context(), services); err != nil {
			d.Logger.Error("cache flush failed", logger.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		triggered := false
		if services && d.PrewarmTrigger != nil {
			select {
			case d.PrewarmTrigger <- struct{}{}:
				triggered = true
			default:
				d.Logger.Warn("prewarm already pending",
					logger.String("remote_ip", r.RemoteAddr))
			}
		}

		d.Logger.Info("cache flushed via endpoint",
			logger.Bool("services", services),
			logger.String("remote_ip", r.RemoteAddr))

		writeJSON(w, http.StatusOK, cacheFlushResponse{
			Flushed:          true,
			Backend:          d.Factors.CacheBackend(),
			ServicesPurged:   services,
			PrewarmTriggered: triggered,
		})
	}
}

// CacheFlushDisabled answers flush requests when no IP allow-list is set.
func CacheFlushDisabled(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusForbidden, "cache flush requires SWPPP_ALLOWED_CIDRS")
}
