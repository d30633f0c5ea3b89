package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/appendix/internal/domain"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
)

var testItems = map[domain.FactorKey]string{
	domain.FactorLS: "ls-item",
	domain.FactorK:  "k-item",
}

// flakyWarmer resolves only LS until failures runs out.
type flakyWarmer struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (f *flakyWarmer) Warm(_ context.Context, items map[domain.FactorKey]string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return 1, errors.New("K: portal unavailable")
	}
	return len(items), nil
}

func (f *flakyWarmer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPrewarmer_Prewarm(t *testing.T) {
	w := &flakyWarmer{failures: 1}
	p := NewPrewarmer(w, testItems, observability.NewMetricsForTesting(), logger.NewNop(), time.Minute, clockwork.NewFakeClock(), nil)

	assert.Equal(t, 2, p.Pending())
	assert.Equal(t, 1, p.Prewarm(context.Background()))
	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, 0, p.Prewarm(context.Background()))
	assert.Equal(t, 0, p.Pending())
}

func TestPrewarmer_RetriesUntilResolved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	w := &flakyWarmer{failures: 2}
	p := NewPrewarmer(w, testItems, nil, logger.NewNop(), time.Minute, clock, nil)

	p.Start(ctx)
	defer p.Stop()
	require.Equal(t, 1, w.Calls())

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return w.Calls() == 2 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, w.Calls())

	// Nothing pending: ticks are no-ops.
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, w.Calls())
}

func TestPrewarmer_ManualTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := make(chan struct{}, 1)
	w := &flakyWarmer{}
	p := NewPrewarmer(w, testItems, nil, logger.NewNop(), time.Hour, clockwork.NewFakeClock(), trigger)

	p.Start(ctx)
	defer p.Stop()

	trigger <- struct{}{}
	assert.Eventually(t, func() bool { return w.Calls() == 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
}

func TestCountItems(t *testing.T) {
	assert.Equal(t, 1, countItems(map[domain.FactorKey]string{domain.FactorLS: "x", domain.FactorK: ""}))
	assert.Equal(t, 0, countItems(nil))
}
