package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrSnakeDoc/appendix/internal/domain"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
)

// Warmer resolves catalog items ahead of the first request.
type Warmer interface {
	Warm(ctx context.Context, items map[domain.FactorKey]string) (int, error)
}

// Prewarmer resolves the catalog services at startup and keeps retrying on
// an interval until every item resolved. A manual trigger forces a run, e.g.
// after the locator was purged.
type Prewarmer struct {
	warmer        Warmer
	items         map[domain.FactorKey]string
	metrics       *observability.Metrics
	logger        logger.Logger
	interval      time.Duration
	clock         clockwork.Clock
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}

	mu      sync.Mutex
	pending int
}

// NewPrewarmer creates a prewarmer. A nil clock means the real clock.
func NewPrewarmer(
	warmer Warmer,
	items map[domain.FactorKey]string,
	metrics *observability.Metrics,
	log logger.Logger,
	interval time.Duration,
	clock clockwork.Clock,
	manualTrigger chan struct{},
) *Prewarmer {
	if interval <= 0 {
		interval = time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Prewarmer{
		warmer:        warmer,
		items:         items,
		metrics:       metrics,
		logger:        log,
		interval:      interval,
		clock:         clock,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		pending:       countItems(items),
	}
}

// Start runs one pass immediately, then retries in the background while
// services remain unresolved. Portal failures never fail startup.
func (p *Prewarmer) Start(ctx context.Context) {
	p.Prewarm(ctx)

	ticker := p.clock.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if p.Pending() > 0 {
					p.Prewarm(ctx)
				}
			case <-p.manualTrigger:
				p.logger.Info("manual prewarm triggered")
				p.Prewarm(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the background loop.
func (p *Prewarmer) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Prewarm resolves every catalog item and returns how many are still
// unresolved.
func (p *Prewarmer) Prewarm(ctx context.Context) int {
	start := p.clock.Now()
	resolved, err := p.warmer.Warm(ctx, p.items)
	pending := countItems(p.items) - resolved

	p.mu.Lock()
	p.pending = pending
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.PrewarmPending.Set(float64(pending))
	}

	if err != nil {
		p.logger.Warn("prewarm incomplete",
			logger.Int("resolved", resolved),
			logger.Int("pending", pending),
			logger.Error(err))
		return pending
	}
	p.logger.Info("prewarmed factor services",
		logger.Int("resolved", resolved),
		logger.Duration("elapsed", p.clock.Since(start)))
	return pending
}

// Pending reports how many catalog items the last pass left unresolved.
func (p *Prewarmer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func countItems(items map[domain.FactorKey]string) int {
	n := 0
	for _, id := range items {
		if id != "" {
			n++
		}
	}
	return n
}
