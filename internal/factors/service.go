package factors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/appendix/internal/arcgis"
	"github.com/MrSnakeDoc/appendix/internal/cache"
	"github.com/MrSnakeDoc/appendix/internal/domain"
	"github.com/MrSnakeDoc/appendix/internal/geo"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
)

// ErrMissingAddress is returned when the request carries no address text.
var ErrMissingAddress = errors.New("missing addressText")

// ResponseCache memoizes complete payloads by cache.Key.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*domain.Payload, bool)
	Set(ctx context.Context, key string, p *domain.Payload)
	Flush(ctx context.Context) error
	Name() string
}

// Locator maps a portal item to its queryable service.
type Locator interface {
	Resolve(ctx context.Context, itemID string, factor domain.FactorKey) (arcgis.ServiceDescriptor, error)
	Purge()
}

// Upstream runs the per-point ArcGIS calls.
type Upstream interface {
	QueryValueAtPoint(ctx context.Context, svc arcgis.ServiceDescriptor, factor domain.FactorKey, p geo.Point) (domain.FactorResult, error)
	ExportMapImage(ctx context.Context, svc arcgis.ServiceDescriptor, p geo.Point) (string, error)
	ExportBasemap(ctx context.Context, p geo.Point) (arcgis.Basemap, error)
}

// FetchRequest is one factor lookup.
type FetchRequest struct {
	AddressText   string
	IncludeImages bool
}

// Service resolves LS and K factor values, and optionally their imagery,
// for a point.
type Service struct {
	locator  Locator
	upstream Upstream
	cache    ResponseCache
	items    map[domain.FactorKey]string
	metrics  *observability.Metrics
	logger   logger.Logger
}

// NewService wires a factor service. items maps each factor to its portal item id.
func NewService(locator Locator, upstream Upstream, rc ResponseCache, items map[domain.FactorKey]string, metrics *observability.Metrics, log logger.Logger) *Service {
	return &Service{
		locator:  locator,
		upstream: upstream,
		cache:    rc,
		items:    items,
		metrics:  metrics,
		logger:   log,
	}
}

// FetchFactors returns the LS and K results for the point in req.AddressText.
//
// Flow: cache lookup, parse, resolve both services, query both, then (with
// images) export the basemap and both overlays. Independent calls run
// concurrently and the first failure aborts the lookup.
func (s *Service) FetchFactors(ctx context.Context, req FetchRequest) (*domain.Payload, error) {
	if strings.TrimSpace(req.AddressText) == "" {
		return nil, ErrMissingAddress
	}

	key := cache.Key(req.AddressText, req.IncludeImages)
	if p, ok := s.cache.Get(ctx, key); ok {
		s.cacheResult("hit")
		return p, nil
	}
	s.cacheResult("miss")

	pt, err := geo.ParsePoint(req.AddressText)
	if err != nil {
		s.countError(err)
		return nil, err
	}

	start := time.Now()
	p, timings, err := s.lookup(ctx, pt, req.IncludeImages)
	if err != nil {
		s.countError(err)
		return nil, err
	}

	s.cache.Set(ctx, key, p)

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.FetchDuration.WithLabelValues(imagesLabel(req.IncludeImages)).Observe(elapsed.Seconds())
	}
	s.logger.Info("fetch-factors ok",
		logger.Bool("include_images", req.IncludeImages),
		logger.Duration("elapsed", elapsed),
		logger.Duration("svc", timings.services),
		logger.Duration("query", timings.query),
		logger.Duration("img", timings.images),
	)
	return p, nil
}

type stageTimings struct {
	services time.Duration
	query    time.Duration
	images   time.Duration
}

func (s *Service) lookup(ctx context.Context, pt geo.Point, includeImages bool) (*domain.Payload, stageTimings, error) {
	var timings stageTimings
	mark := time.Now()

	services := make(map[domain.FactorKey]arcgis.ServiceDescriptor, len(domain.Factors))
	results := make(map[domain.FactorKey]domain.FactorResult, len(domain.Factors))

	// Resolve.
	resolved := make([]arcgis.ServiceDescriptor, len(domain.Factors))
	g, gctx := errgroup.WithContext(ctx)
	for i, factor := range domain.Factors {
		itemID := s.items[factor]
		g.Go(func() error {
			svc, err := s.locator.Resolve(gctx, itemID, factor)
			if err != nil {
				return err
			}
			resolved[i] = svc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, timings, err
	}
	for i, factor := range domain.Factors {
		services[factor] = resolved[i]
	}
	timings.services, mark = time.Since(mark), time.Now()

	// Query.
	queried := make([]domain.FactorResult, len(domain.Factors))
	g, gctx = errgroup.WithContext(ctx)
	for i, factor := range domain.Factors {
		svc := services[factor]
		g.Go(func() error {
			res, err := s.upstream.QueryValueAtPoint(gctx, svc, factor, pt)
			if err != nil {
				return fmt.Errorf("%s query: %w", factor, err)
			}
			queried[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, timings, err
	}
	for i, factor := range domain.Factors {
		results[factor] = queried[i]
	}
	timings.query, mark = time.Since(mark), time.Now()

	// Images.
	if includeImages {
		var basemap arcgis.Basemap
		overlays := make([]string, len(domain.Factors))

		g, gctx = errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			basemap, err = s.upstream.ExportBasemap(gctx, pt)
			return err
		})
		for i, factor := range domain.Factors {
			svc := services[factor]
			g.Go(func() error {
				img, err := s.upstream.ExportMapImage(gctx, svc, pt)
				if err != nil {
					return fmt.Errorf("%s %w", factor, err)
				}
				overlays[i] = img
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, timings, err
		}

		for i, factor := range domain.Factors {
			res := results[factor]
			res.ScreenshotBase64 = overlays[i]
			res.BasemapBase64 = basemap.BaseBase64
			res.BasemapReferenceBase64 = basemap.ReferenceBase64
			results[factor] = res
		}
		timings.images = time.Since(mark)
	}

	p := &domain.Payload{}
	for _, factor := range domain.Factors {
		p.Set(factor, results[factor])
	}
	return p, timings, nil
}

// Flush drops cached payloads and, when services is set, the memoized
// service descriptors too.
func (s *Service) Flush(ctx context.Context, services bool) error {
	if services {
		s.locator.Purge()
	}
	return s.cache.Flush(ctx)
}

// CacheBackend names the response cache implementation.
func (s *Service) CacheBackend() string { return s.cache.Name() }

func (s *Service) cacheResult(result string) {
	if s.metrics != nil {
		s.metrics.ResponseCache.WithLabelValues(result).Inc()
	}
}

func (s *Service) countError(err error) {
	if s.metrics != nil {
		s.metrics.FetchErrors.WithLabelValues(Classify(err)).Inc()
	}
}

// Classify buckets an error from FetchFactors for logs and metrics.
func Classify(err error) string {
	var (
		rerr *arcgis.ResolutionError
		terr *arcgis.TransportError
	)
	switch {
	case errors.Is(err, ErrMissingAddress), errors.Is(err, geo.ErrInvalidPoint):
		return "input"
	case errors.As(err, &rerr):
		return "resolution"
	case errors.As(err, &terr):
		return "transport"
	default:
		return "internal"
	}
}

// IsInputError reports whether err should be answered with 400.
func IsInputError(err error) bool {
	return Classify(err) == "input"
}

func imagesLabel(include bool) string {
	if include {
		return "1"
	}
	return "0"
}
