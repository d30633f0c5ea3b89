package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":3002"
	ShutdownTimeout time.Duration // ex: 10s
	RequestTimeout  time.Duration // per-request deadline, covers the whole fetch-factors fan-out
	BodyLimit       int64         // max JSON/HTML request body in bytes

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// GIS catalog
	CatalogFile      string        // optional YAML catalog (portal, items, basemaps)
	PortalURL        string        // overrides the catalog portal when set
	LSItemID         string        // overrides the LS portal item id when set
	KItemID          string        // overrides the K portal item id when set
	QueryTimeout     time.Duration // portal + query JSON fetches (default: 15s)
	ExportTimeout    time.Duration // image exports (default: 20s)
	CacheTTL         time.Duration // fetch-factors response cache TTL (default: 10m)
	ServiceCacheSize int           // max memoized service descriptors

	// Prewarm
	Prewarm         bool          // resolve catalog services at startup
	PrewarmInterval time.Duration // retry interval while some services are unresolved

	// Redis (optional, empty addr => in-process cache)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// Collaborators
	PDFRendererURL     string        // Gotenberg base URL (empty => /export answers 503)
	PDFTimeout         time.Duration // PDF render timeout
	TurnstileSecret    string        // Cloudflare Turnstile secret key
	TurnstileVerifyURL string        // siteverify endpoint override

	StaticDir string // built front-end, served with SPA fallback (empty => disabled)

	AllowedHosts    []string // optional, restrict access to specific Host headers
	AllowedCIDRS    []string // optional, restrict ops endpoints to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustedProxies  []string // peers allowed to set X-Forwarded-For (e.g. cloudflared); empty => headers ignored
	RateLimitBurst  int      // fetch-factors requests allowed in a burst per IP
	RateLimitPerMin int      // fetch-factors refill rate per IP
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SWPPP_LISTEN_PORT", ":3002"),
		ShutdownTimeout: mustDuration("SWPPP_SHUTDOWN_TIMEOUT", 10*time.Second),
		RequestTimeout:  mustDuration("SWPPP_REQUEST_TIMEOUT", 90*time.Second),
		BodyLimit:       int64(getenvInt("SWPPP_BODY_LIMIT", 6<<20)),

		// Logging
		LogLevel:  getenv("SWPPP_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SWPPP_PRETTY_LOG", true),

		// GIS catalog
		CatalogFile:      getenv("SWPPP_CATALOG_FILE", ""),
		PortalURL:        getenv("SWPPP_PORTAL_URL", ""),
		LSItemID:         getenv("SWPPP_LS_ITEM_ID", ""),
		KItemID:          getenv("SWPPP_K_ITEM_ID", ""),
		QueryTimeout:     mustDuration("SWPPP_QUERY_TIMEOUT", 15*time.Second),
		ExportTimeout:    mustDuration("SWPPP_EXPORT_TIMEOUT", 20*time.Second),
		CacheTTL:         mustDuration("SWPPP_CACHE_TTL", 10*time.Minute),
		ServiceCacheSize: getenvInt("SWPPP_SERVICE_CACHE_SIZE", 64),

		// Prewarm
		Prewarm:         mustBool("SWPPP_PREWARM", true),
		PrewarmInterval: mustDuration("SWPPP_PREWARM_RETRY", time.Minute),

		// Redis settings
		RedisAddr:             getenv("SWPPP_REDIS_ADDR", ""),
		RedisUser:             getenv("SWPPP_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("SWPPP_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("SWPPP_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("SWPPP_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Collaborators
		PDFRendererURL:     getenv("SWPPP_PDF_RENDERER_URL", ""),
		PDFTimeout:         mustDuration("SWPPP_PDF_TIMEOUT", 60*time.Second),
		TurnstileSecret:    firstEnv("SWPPP_TURNSTILE_SECRET", "TURNSTILE_SECRET_KEY"),
		TurnstileVerifyURL: getenv("SWPPP_TURNSTILE_VERIFY_URL", ""),

		StaticDir: getenv("SWPPP_STATIC_DIR", ""),

		// Access restrictions
		AllowedHosts:    splitAndTrim(getenv("SWPPP_ALLOWED_HOSTS", "")),
		AllowedCIDRS:    parseAllowedIPs(getenv("SWPPP_ALLOWED_CIDRS", "")),
		TrustedProxies:  parseAllowedIPs(getenv("SWPPP_TRUSTED_PROXIES", "")),
		RateLimitBurst:  getenvInt("SWPPP_RATE_LIMIT_BURST", 20),
		RateLimitPerMin: getenvInt("SWPPP_RATE_LIMIT_PER_MIN", 60),
	}

	// Validate Redis password configuration
	if cfg.RedisAddr != "" && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: SWPPP_REDIS_PASSWORD is required when SWPPP_REDIS_PASSWORD_REQUIRED=true")
	}
	if cfg.RequestTimeout < cfg.QueryTimeout+cfg.ExportTimeout {
		panic(fmt.Sprintf("❌ FATAL: SWPPP_REQUEST_TIMEOUT (%s) must cover query + export timeouts (%s)",
			cfg.RequestTimeout, cfg.QueryTimeout+cfg.ExportTimeout))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.RedisUser != "" {
		cp.RedisUser = "***REDACTED***"
	}
	if cp.TurnstileSecret != "" {
		cp.TurnstileSecret = "***REDACTED***"
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
