package license

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AttemptGuard limits failed activation attempts per identifier. State is
// in-process; stale entries are pruned on access.
type AttemptGuard struct {
	mu            sync.Mutex
	maxAttempts   int
	blockDuration time.Duration
	window        time.Duration
	now           func() time.Time

	attemptCounts map[string]int
	lastAttempts  map[string]time.Time
	blocked       map[string]time.Time
}

// GuardOption configures an AttemptGuard
type GuardOption func(*AttemptGuard)

// WithGuardClock overrides the clock
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *AttemptGuard) {
		g.now = now
	}
}

// NewAttemptGuard blocks an identifier for blockDuration once it reaches
// maxAttempts failures within window.
func NewAttemptGuard(maxAttempts int, blockDuration, window time.Duration, opts ...GuardOption) *AttemptGuard {
	g := &AttemptGuard{
		maxAttempts:   maxAttempts,
		blockDuration: blockDuration,
		window:        window,
		now:           time.Now,
		attemptCounts: make(map[string]int),
		lastAttempts:  make(map[string]time.Time),
		blocked:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsBlocked reports whether identifier is blocked and for how much longer.
func (g *AttemptGuard) IsBlocked(identifier string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	if since, ok := g.blocked[identifier]; ok {
		return true, g.blockDuration - now.Sub(since)
	}
	return false, 0
}

// RecordFailure counts a failed attempt. It returns false once the
// identifier is blocked.
func (g *AttemptGuard) RecordFailure(ctx context.Context, identifier string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	if last, ok := g.lastAttempts[identifier]; ok && now.Sub(last) <= g.window {
		g.attemptCounts[identifier]++
	} else {
		g.attemptCounts[identifier] = 1
	}
	g.lastAttempts[identifier] = now

	if g.attemptCounts[identifier] >= g.maxAttempts {
		g.blocked[identifier] = now
		logWarn(ctx, "security_violation", "Activation blocked after too many failed attempts",
			slog.String("identifier", identifier),
			slog.Int("attempt_count", g.attemptCounts[identifier]),
			slog.Int("max_attempts", g.maxAttempts),
			slog.Duration("block_duration", g.blockDuration))
		return false
	}
	return true
}

// RecordSuccess clears the failure history of identifier
func (g *AttemptGuard) RecordSuccess(identifier string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.attemptCounts, identifier)
	delete(g.lastAttempts, identifier)
	delete(g.blocked, identifier)
}

// GuardStats summarises the guard for the health endpoint
type GuardStats struct {
	ActiveAttempts int    `json:"active_attempts"`
	Blocked        int    `json:"blocked"`
	MaxAttempts    int    `json:"max_attempts"`
	BlockDuration  string `json:"block_duration"`
	Window         string `json:"window_duration"`
}

// Stats returns guard statistics
func (g *AttemptGuard) Stats() GuardStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prune(g.now())
	return GuardStats{
		ActiveAttempts: len(g.attemptCounts),
		Blocked:        len(g.blocked),
		MaxAttempts:    g.maxAttempts,
		BlockDuration:  g.blockDuration.String(),
		Window:         g.window.String(),
	}
}

// prune drops expired windows and blocks. Caller holds mu.
func (g *AttemptGuard) prune(now time.Time) {
	for id, last := range g.lastAttempts {
		if now.Sub(last) > g.window {
			delete(g.attemptCounts, id)
			delete(g.lastAttempts, id)
		}
	}
	for id, since := range g.blocked {
		if now.Sub(since) >= g.blockDuration {
			delete(g.blocked, id)
		}
	}
}
