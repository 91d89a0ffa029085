package browser

import (
	"context"
	"log/slog"
	"sync"
)

// Launcher starts a fresh browser process for a family. Injected so
// pool behavior is testable without a real Chrome.
type Launcher func(family string, headless bool) (Instance, error)

// Pool caches at most one live browser per engine family. Acquisition
// health-checks the cached instance and transparently replaces it;
// when the family count exceeds the maximum, the least-recently-
// inserted family is closed and dropped (insertion-order FIFO, not
// LRU-by-use).
type Pool struct {
	mu       sync.Mutex
	entries  map[string]Instance
	order    []string // family insertion order, oldest first
	max      int
	headless bool
	launch   Launcher
	logger   *slog.Logger
}

// NewPool creates an empty pool holding at most maxFamilies cached
// browsers. A nil launcher uses the real Chrome launcher.
func NewPool(maxFamilies int, headless bool, launch Launcher, logger *slog.Logger) *Pool {
	if launch == nil {
		launch = launchChrome
	}
	return &Pool{
		entries:  make(map[string]Instance),
		max:      maxFamilies,
		headless: headless,
		launch:   launch,
		logger:   logger,
	}
}

// Acquire returns a healthy, connected browser for the family, reusing
// the cached instance when its health check passes. Launch failures
// propagate to the caller untouched. The acquire-check-replace sequence
// holds the pool lock throughout, so two callers can never race one
// family into a double launch.
func (p *Pool) Acquire(ctx context.Context, family string) (Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if inst, ok := p.entries[family]; ok {
		if err := inst.Healthy(ctx); err == nil {
			return inst, nil
		}
		p.logger.Warn("cached browser failed health check, relaunching", "family", family)
		inst.Close()
		p.removeLocked(family)
	}

	inst, err := p.launch(family, p.headless)
	if err != nil {
		return nil, err
	}

	p.entries[family] = inst
	p.order = append(p.order, family)
	p.logger.Info("browser launched", "family", family, "cached_families", len(p.entries))

	for len(p.entries) > p.max {
		oldest := p.order[0]
		p.logger.Info("evicting oldest browser family", "family", oldest)
		p.entries[oldest].Close()
		p.removeLocked(oldest)
	}
	return inst, nil
}

// Drop closes and forgets the cached instance for one family, if any.
// The retry policy uses it so a failed attempt never reuses the
// browser that just failed.
func (p *Pool) Drop(family string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if inst, ok := p.entries[family]; ok {
		inst.Close()
		p.removeLocked(family)
	}
}

// ReleaseAll terminates every cached process and clears the pool. Used
// for graceful shutdown and for recovery after a detected session-
// closure error.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for family, inst := range p.entries {
		inst.Close()
		delete(p.entries, family)
	}
	p.order = p.order[:0]
	p.logger.Info("browser pool released")
}

// Size reports the number of cached families.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// removeLocked drops a family from the map and the insertion order.
// Caller must hold mu.
func (p *Pool) removeLocked(family string) {
	delete(p.entries, family)
	for i, f := range p.order {
		if f == family {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}
