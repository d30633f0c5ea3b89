package redis

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/appendix/internal/domain"
	"github.com/MrSnakeDoc/appendix/internal/logger"
)

// ResponseCache adapts Store to the factor service cache contract. Redis
// failures degrade to misses so a flaky cache never fails a lookup.
type ResponseCache struct {
	store  *Store
	ttl    time.Duration
	logger logger.Logger
}

// NewResponseCache wraps store with a fixed TTL.
func NewResponseCache(store *Store, ttl time.Duration, log logger.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultPayloadTTL
	}
	return &ResponseCache{store: store, ttl: ttl, logger: log}
}

func (c *ResponseCache) Get(ctx context.Context, key string) (*domain.Payload, bool) {
	p, err := c.store.GetPayload(ctx, key)
	if err != nil {
		c.logger.Warn("response cache read failed", logger.Error(err))
		return nil, false
	}
	return p, p != nil
}

func (c *ResponseCache) Set(ctx context.Context, key string, p *domain.Payload) {
	if p == nil {
		return
	}
	if err := c.store.SavePayload(ctx, key, p, c.ttl); err != nil {
		c.logger.Warn("response cache write failed", logger.Error(err))
	}
}

func (c *ResponseCache) Flush(ctx context.Context) error {
	n, err := c.store.FlushPayloads(ctx)
	c.logger.Info("response cache flushed", logger.Int("deleted", n))
	return err
}

// Name identifies the backend in status reports.
func (c *ResponseCache) Name() string { return "redis" }

// Ping reports whether Redis is reachable.
func (c *ResponseCache) Ping(ctx context.Context) error { return c.store.Ping(ctx) }
