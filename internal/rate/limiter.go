package rate

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Config defines pacing parameters for one API.
// RequestsPerSecond <= 0 disables pacing.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

func (c Config) limit() rate.Limit {
	if c.RequestsPerSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(c.RequestsPerSecond)
}

func (c Config) burst() int {
	if c.Burst < 1 {
		return 1
	}
	return c.Burst
}

// New creates a token bucket limiter from cfg.
func New(cfg Config) *rate.Limiter {
	return rate.NewLimiter(cfg.limit(), cfg.burst())
}

// Manager holds one limiter per key (typically the API name).
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	defaults Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*rate.Limiter),
		defaults: defaults,
	}
}

func (m *Manager) GetLimiter(key string) *rate.Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	lim := New(m.defaults)
	m.limiters[key] = lim
	return lim
}

// Wait blocks until key may issue another request or ctx is done.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}
