package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrSnakeDoc/appendix/internal/domain"
)

// DefaultTTL is how long a factor payload stays fresh.
const DefaultTTL = 10 * time.Minute

// Key builds the response cache key for an address and image flag.
//
//	Key("  37.3, -122 ", true)  -> "37.3, -122|img:1"
func Key(addressText string, includeImages bool) string {
	flag := "0"
	if includeImages {
		flag = "1"
	}
	return strings.ToLower(strings.TrimSpace(addressText)) + "|img:" + flag
}

type entry struct {
	storedAt time.Time
	payload  domain.Payload
}

// Memory is an in-process TTL cache. Staleness is checked on lookup. Set
// replaces the entry for its key and, at most once per TTL, drops every
// expired entry.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]entry
	ttl       time.Duration
	clock     clockwork.Clock
	lastPrune time.Time
}

// NewMemory creates a cache. A nil clock means the real clock.
func NewMemory(ttl time.Duration, clock clockwork.Clock) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		entries:   make(map[string]entry),
		ttl:       ttl,
		clock:     clock,
		lastPrune: clock.Now(),
	}
}

// Get returns the payload stored under key if it is younger than the TTL.
func (m *Memory) Get(_ context.Context, key string) (*domain.Payload, bool) {
	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()

	if !ok || m.clock.Since(e.storedAt) >= m.ttl {
		return nil, false
	}
	p := e.payload
	return &p, true
}

// Set stores p under key, replacing any previous entry.
func (m *Memory) Set(_ context.Context, key string, p *domain.Payload) {
	if p == nil {
		return
	}
	now := m.clock.Now()
	m.mu.Lock()
	m.entries[key] = entry{storedAt: now, payload: *p}
	if now.Sub(m.lastPrune) >= m.ttl {
		m.pruneLocked(now)
	}
	m.mu.Unlock()
}

func (m *Memory) pruneLocked(now time.Time) {
	for k, e := range m.entries {
		if now.Sub(e.storedAt) >= m.ttl {
			delete(m.entries, k)
		}
	}
	m.lastPrune = now
}

// Flush drops every entry.
func (m *Memory) Flush(context.Context) error {
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
	return nil
}

// size counts entries, stale ones included.
func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Name identifies the backend in status reports.
func (m *Memory) Name() string { return "memory" }
