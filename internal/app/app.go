package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/appendix/internal/arcgis"
	"github.com/MrSnakeDoc/appendix/internal/cache"
	"github.com/MrSnakeDoc/appendix/internal/catalog"
	"github.com/MrSnakeDoc/appendix/internal/config"
	"github.com/MrSnakeDoc/appendix/internal/domain"
	"github.com/MrSnakeDoc/appendix/internal/factors"
	"github.com/MrSnakeDoc/appendix/internal/httpserver"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
	"github.com/MrSnakeDoc/appendix/internal/pdf"
	"github.com/MrSnakeDoc/appendix/internal/redis"
	"github.com/MrSnakeDoc/appendix/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/appendix/internal/store/redis"
	"github.com/MrSnakeDoc/appendix/internal/turnstile"
	"github.com/MrSnakeDoc/appendix/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	prewarmer   *scheduler.Prewarmer
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	cat, err := loadCatalog(cfg)
	if err != nil {
		loggerClient.Errorf("Failed to load catalog: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("factor catalog loaded",
		logger.String("portal", cat.PortalURL),
		logger.String("ls_item", cat.Items[domain.FactorLS]),
		logger.String("k_item", cat.Items[domain.FactorK]))

	reg := observability.NewRegistry()
	metrics := observability.NewMetrics(reg)

	client := arcgis.NewClient(arcgis.Options{
		PortalURL:           cat.PortalURL,
		BasemapBaseURL:      cat.BasemapBaseURL,
		BasemapReferenceURL: cat.BasemapReferenceURL,
		QueryTimeout:        cfg.QueryTimeout,
		ExportTimeout:       cfg.ExportTimeout,
	}, metrics, loggerClient)

	locator, err := arcgis.NewLocator(client, max(cfg.ServiceCacheSize, len(cat.Items)), metrics, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to create service locator: %v", err)
		os.Exit(1)
	}

	// Response cache: shared Redis when configured, in-process otherwise.
	var (
		rc          factors.ResponseCache = cache.NewMemory(cfg.CacheTTL, nil)
		redisClient *goredis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient, err = redis.New(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Warn("redis unavailable, falling back to in-process response cache",
				logger.Error(err))
			redisClient = nil
		} else {
			rc = redisstore.NewResponseCache(redisstore.NewStore(redisClient), cfg.CacheTTL, loggerClient)
			loggerClient.Info("Redis initialized successfully")
		}
	}

	svc := factors.NewService(locator, client, rc, cat.Items, metrics, loggerClient)

	var (
		prewarmer      *scheduler.Prewarmer
		prewarmTrigger chan struct{}
		prewarmStatus  deps.PrewarmStatus
	)
	if cfg.Prewarm {
		prewarmTrigger = make(chan struct{}, 1)
		prewarmer = scheduler.NewPrewarmer(locator, cat.Items, metrics, loggerClient, cfg.PrewarmInterval, nil, prewarmTrigger)
		prewarmStatus = prewarmer
	}

	if cfg.TurnstileSecret == "" {
		loggerClient.Info("turnstile secret not configured, /api/turnstile/verify will answer 500")
	}
	if cfg.PDFRendererURL == "" {
		loggerClient.Info("pdf renderer not configured, /export will answer 503")
	}

	// Dependencies passed to routes.
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustedProxies:  cfg.TrustedProxies,
		BodyLimit:       cfg.BodyLimit,
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       cfg.StaticDir,
		Factors:         svc,
		Services:        locator,
		PDF:             pdf.NewRenderer(cfg.PDFRendererURL, cfg.PDFTimeout, metrics, loggerClient),
		Turnstile:       turnstile.NewVerifier(cfg.TurnstileSecret, cfg.TurnstileVerifyURL, 10*time.Second, metrics, loggerClient),
		Prewarm:         prewarmStatus,
		Sources:         factorSources(cat),
		RedisClient:     redisClient,
		Gatherer:        reg,
		PrewarmTrigger:  prewarmTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		prewarmer:   prewarmer,
	}
}

// loadCatalog merges the built-in catalog, the optional yaml file and the
// environment overrides, in that order.
func factorSources(cat catalog.Catalog) []deps.FactorSource {
	out := make([]deps.FactorSource, 0, len(domain.Factors))
	for _, key := range domain.Factors {
		out = append(out, deps.FactorSource{
			Factor: string(key),
			ItemID: cat.Items[key],
			Label:  cat.Labels[key],
		})
	}
	return out
}

func loadCatalog(cfg *config.Config) (catalog.Catalog, error) {
	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return catalog.Catalog{}, err
	}
	return cat.Merge(catalog.File{
		Portal: cfg.PortalURL,
		Factors: map[string]catalog.FactorEntry{
			string(domain.FactorLS): {Item: cfg.LSItemID},
			string(domain.FactorK):  {Item: cfg.KItemID},
		},
	})
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting appendix v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("appendix %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// Resolve factor services in the background so a slow portal does not
	// delay the listener.
	if a.prewarmer != nil {
		go a.prewarmer.Start(ctx)
		a.logger.Info("prewarm started",
			logger.Duration("retry_interval", a.cfg.PrewarmInterval))
	}

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.prewarmer != nil {
		a.prewarmer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ appendix stopped cleanly")
	_ = a.logger.Sync()
	return nil
}
