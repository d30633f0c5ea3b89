package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/appendix/internal/arcgis"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
)

type componentStatus struct {
	OK             bool                   `json:"ok"`
	Mode           string                 `json:"mode,omitempty"`
	Impact         string                 `json:"impact,omitempty"`
	Error          string                 `json:"error,omitempty"`
	ServicesCached *int                   `json:"services_cached,omitempty"`
	Pending        *int                   `json:"pending,omitempty"`
	Services       []arcgis.CachedService `json:"services,omitempty"`
	Sources        []deps.FactorSource    `json:"sources,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"response_cache": checkResponseCache(r.Context(), d),
			"locator":        checkLocator(d),
			"catalog":        {OK: len(d.Sources) > 0, Sources: d.Sources},
			"pdf": {
				OK:   d.PDF != nil && d.PDF.Enabled(),
				Mode: enabledMode(d.PDF != nil && d.PDF.Enabled()),
			},
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if loc, ok := components["locator"]; ok && !loc.OK {
		return "warming" // first lookups will hit the portal
	}
	if rc, ok := components["response_cache"]; ok && !rc.OK {
		return "degraded" // every request reaches ArcGIS
	}
	return "operational"
}

func checkLocator(d deps.Deps) componentStatus {
	cached := d.Services.Cached()
	n := len(cached)
	pending := 0
	if d.Prewarm != nil {
		pending = d.Prewarm.Pending()
	}
	return componentStatus{
		OK:             pending == 0,
		ServicesCached: &n,
		Pending:        &pending,
		Services:       cached,
	}
}

func checkResponseCache(parent context.Context, d deps.Deps) componentStatus {
	backend := d.Factors.CacheBackend()
	if d.RedisClient == nil {
		return componentStatus{OK: true, Mode: backend, Impact: "per-instance"}
	}

	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   backend,
			Impact: "cache-bypassed",
			Error:  "timeout",
		}
	}
	return componentStatus{OK: true, Mode: backend, Impact: "shared"}
}

func enabledMode(ok bool) string {
	if ok {
		return "enabled"
	}
	return "disabled"
}
