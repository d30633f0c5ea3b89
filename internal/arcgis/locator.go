package arcgis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/appendix/internal/domain"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
)

// DefaultLocatorSize bounds the descriptor memo when no size is configured.
const DefaultLocatorSize = 64

var (
	serviceURLPattern = regexp.MustCompile(`(?i)/MapServer\b|/FeatureServer\b`)
	layerURLPattern   = regexp.MustCompile(`(?i)^(.*/MapServer|.*/FeatureServer)/(\d+)$`)
)

// ServiceDescriptor is a queryable map or feature service plus sublayer.
type ServiceDescriptor struct {
	BaseURL string `json:"baseUrl"`
	LayerID int    `json:"layerId"`
}

// CachedService is one memoized resolution, as reported by Locator.Cached.
type CachedService struct {
	ItemID  string            `json:"itemId"`
	Service ServiceDescriptor `json:"service"`
}

// Locator traces portal app items through their web map to the backing
// service. Resolutions are memoized per item id.
type Locator struct {
	client  *Client
	memo    *lru.Cache[string, ServiceDescriptor]
	group   singleflight.Group
	metrics *observability.Metrics
	logger  logger.Logger
}

// NewLocator creates a locator holding at most size descriptors.
func NewLocator(client *Client, size int, metrics *observability.Metrics, log logger.Logger) (*Locator, error) {
	if size <= 0 {
		size = DefaultLocatorSize
	}
	memo, err := lru.New[string, ServiceDescriptor](size)
	if err != nil {
		return nil, fmt.Errorf("create locator cache: %w", err)
	}
	return &Locator{client: client, memo: memo, metrics: metrics, logger: log}, nil
}

// Resolve returns the service behind itemID. Concurrent calls for the same
// item share one resolution.
func (l *Locator) Resolve(ctx context.Context, itemID string, factor domain.FactorKey) (ServiceDescriptor, error) {
	if svc, ok := l.memo.Get(itemID); ok {
		return svc, nil
	}

	// The shared resolution outlives any single caller; each upstream call
	// is still bounded by the client timeouts.
	shared := context.WithoutCancel(ctx)
	v, err, _ := l.group.Do(itemID, func() (any, error) {
		if svc, ok := l.memo.Get(itemID); ok {
			return svc, nil
		}
		svc, err := l.resolve(shared, itemID, factor)
		if err != nil {
			l.record(factor, "error")
			return ServiceDescriptor{}, err
		}
		l.memo.Add(itemID, svc)
		l.record(factor, "resolved")
		l.logger.Info("resolved factor service",
			logger.String("factor", string(factor)),
			logger.String("item", itemID),
			logger.String("base_url", svc.BaseURL),
			logger.Int("layer", svc.LayerID),
		)
		return svc, nil
	})
	if err != nil {
		return ServiceDescriptor{}, err
	}
	return v.(ServiceDescriptor), nil
}

func (l *Locator) resolve(ctx context.Context, itemID string, factor domain.FactorKey) (ServiceDescriptor, error) {
	var item, data any

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.client.fetchJSON(gctx, observability.KindPortal, l.client.itemURL(itemID), &item)
	})
	g.Go(func() error {
		return l.client.fetchJSON(gctx, observability.KindPortal, l.client.itemDataURL(itemID), &data)
	})
	if err := g.Wait(); err != nil {
		return ServiceDescriptor{}, err
	}

	webmapID := firstString(
		lookup(data, "values", "webmap"),
		lookup(data, "webmap"),
		lookup(data, "map", "itemId"),
		lookup(item, "properties", "webmap"),
	)
	if webmapID == "" {
		return ServiceDescriptor{}, &ResolutionError{Factor: factor, ItemID: itemID}
	}

	var webmap any
	if err := l.client.fetchJSON(ctx, observability.KindPortal, l.client.itemDataURL(webmapID), &webmap); err != nil {
		return ServiceDescriptor{}, err
	}

	layers, _ := lookup(webmap, "operationalLayers").([]any)
	for _, raw := range layers {
		rawURL, ok := lookup(raw, "url").(string)
		if !ok || !serviceURLPattern.MatchString(rawURL) {
			continue
		}

		fallback := 0
		if id, ok := layerID(firstElem(lookup(raw, "layers"), "id")); ok {
			fallback = id
		} else if id, ok := layerID(lookup(raw, "layerId")); ok {
			fallback = id
		}
		return NormalizeService(rawURL, fallback), nil
	}

	return ServiceDescriptor{}, &ResolutionError{Factor: factor, ItemID: itemID, WebmapID: webmapID}
}

// NormalizeService strips one trailing slash and splits a ".../MapServer/<n>"
// or ".../FeatureServer/<n>" URL into base and layer. Other URLs keep the
// fallback layer.
func NormalizeService(rawURL string, fallbackLayer int) ServiceDescriptor {
	cleaned := strings.TrimSuffix(rawURL, "/")
	if m := layerURLPattern.FindStringSubmatch(cleaned); m != nil {
		if id, err := strconv.Atoi(m[2]); err == nil {
			return ServiceDescriptor{BaseURL: m[1], LayerID: id}
		}
	}
	return ServiceDescriptor{BaseURL: cleaned, LayerID: fallbackLayer}
}

// Warm resolves every item, returning how many are now cached and the
// failures joined together.
func (l *Locator) Warm(ctx context.Context, items map[domain.FactorKey]string) (int, error) {
	var (
		resolved int
		errs     []error
	)
	for _, factor := range domain.Factors {
		itemID, ok := items[factor]
		if !ok || itemID == "" {
			continue
		}
		if _, err := l.Resolve(ctx, itemID, factor); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", factor, err))
			continue
		}
		resolved++
	}
	return resolved, errors.Join(errs...)
}

// Cached lists the memoized descriptors.
func (l *Locator) Cached() []CachedService {
	keys := l.memo.Keys()
	out := make([]CachedService, 0, len(keys))
	for _, k := range keys {
		if svc, ok := l.memo.Peek(k); ok {
			out = append(out, CachedService{ItemID: k, Service: svc})
		}
	}
	return out
}

// Purge forgets every descriptor so the next lookup re-reads the portal.
func (l *Locator) Purge() {
	l.memo.Purge()
	l.updateSize()
}

func (l *Locator) record(factor domain.FactorKey, result string) {
	if l.metrics == nil {
		return
	}
	l.metrics.LocatorResolves.WithLabelValues(string(factor), result).Inc()
	l.updateSize()
}

func (l *Locator) updateSize() {
	if l.metrics != nil {
		l.metrics.LocatorCacheSize.Set(float64(l.memo.Len()))
	}
}

// lookup walks nested JSON objects; any missing step yields nil.
func lookup(v any, path ...string) any {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}

func firstElem(v any, key string) any {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	return lookup(arr[0], key)
}

// firstString returns the first value that is a non-empty string or a
// non-zero number.
func firstString(values ...any) string {
	for _, v := range values {
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			if t != 0 {
				return domain.FormatNumber(t)
			}
		}
	}
	return ""
}

// layerID accepts non-negative integral numbers and numeric strings.
func layerID(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
