package deps

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/appendix/internal/arcgis"
	"github.com/MrSnakeDoc/appendix/internal/domain"
	"github.com/MrSnakeDoc/appendix/internal/factors"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/turnstile"
)

// FactorService is the fetch-factors pipeline.
type FactorService interface {
	FetchFactors(ctx context.Context, req factors.FetchRequest) (*domain.Payload, error)
	Flush(ctx context.Context, services bool) error
	CacheBackend() string
}

// ServiceCatalog reports memoized service descriptors.
type ServiceCatalog interface {
	Cached() []arcgis.CachedService
}

// PDFRenderer converts appendix HTML to PDF.
type PDFRenderer interface {
	Enabled() bool
	Render(ctx context.Context, html string) ([]byte, error)
}

// TokenVerifier checks CAPTCHA tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (turnstile.Result, error)
}

// PrewarmStatus reports unresolved catalog items.
type PrewarmStatus interface {
	Pending() int
}

// FactorSource is one configured portal item, as shown by /infra.
type FactorSource struct {
	Factor string `json:"factor"`
	ItemID string `json:"itemId"`
	Label  string `json:"label,omitempty"`
}

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time // for testing, defaults to time.Now
	AllowedHosts    []string         // Host headers allowed to access ops endpoints
	AllowedCIDRS    []string         // IPs allowed to access ops endpoints
	TrustedProxies  []string         // reverse proxies (e.g., cloudflared) whose forwarding headers are honored
	BodyLimit       int64            // max request body in bytes
	RateLimitBurst  int              // fetch-factors burst per client IP
	RateLimitPerMin int              // fetch-factors refill per client IP
	StaticDir       string           // built front-end (empty = no static serving)

	Factors   FactorService
	Services  ServiceCatalog
	PDF       PDFRenderer
	Turnstile TokenVerifier
	Prewarm   PrewarmStatus // nil when prewarm is disabled
	Sources   []FactorSource

	RedisClient    *redis.Client       // nil when the response cache is in-process
	Gatherer       prometheus.Gatherer // source for /metrics
	PrewarmTrigger chan struct{}       // manual prewarm after a service purge (nil if prewarm is disabled)
}

// Now returns the injected clock's time.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
