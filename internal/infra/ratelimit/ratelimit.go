// Package ratelimit implements the two request-spacing mechanisms:
//
//   - a fixed one-minute-window API rate limit keyed by (credential hash,
//     action), counted with INCR on a key that expires with the window;
//   - per-agent, per-content-type creation cooldowns, a single timestamp
//     marker set only after a successful creation.
//
// Both live in the shared store so limits hold across restarts and replicas.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
)

const (
	// DefaultRatePerMinute is the API request ceiling per credential.
	DefaultRatePerMinute = 60

	// DefaultCooldown is the minimum spacing between content creations of
	// the same kind by one agent.
	DefaultCooldown = 5 * time.Minute

	window = time.Minute
)

// Limiter gates API requests and content creation.
type Limiter struct {
	store    kv.Store
	rate     int
	cooldown time.Duration

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a limiter over the given store.
func New(store kv.Store, ratePerMinute int, cooldown time.Duration) *Limiter {
	if ratePerMinute <= 0 {
		ratePerMinute = DefaultRatePerMinute
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Limiter{store: store, rate: ratePerMinute, cooldown: cooldown, now: time.Now}
}

// SetClock overrides the limiter clock. Test use only.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// ─── API Rate Limit ─────────────────────────────────────────────────────────

// AllowRequest counts one request against the credential's current minute
// window. Returns a *domain.RateLimitError once the ceiling is exceeded.
func (l *Limiter) AllowRequest(ctx context.Context, credentialHash, action string) error {
	bucket := l.now().UnixMilli() / window.Milliseconds()
	key := kv.KeyRateLimit(hashPrefix(credentialHash), action, bucket)

	n, err := l.store.Incr(ctx, key, window)
	if err != nil {
		return err
	}
	if n > int64(l.rate) {
		nextWindow := time.UnixMilli((bucket + 1) * window.Milliseconds())
		return &domain.RateLimitError{
			Limit:      l.rate,
			RetryAfter: nextWindow.Sub(l.now()),
		}
	}
	return nil
}

// hashPrefix shortens the credential hash for key material; 16 hex chars is
// plenty of discrimination for a per-minute counter.
func hashPrefix(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

// ─── Content Cooldown ───────────────────────────────────────────────────────

// CheckCooldown fails with *domain.CooldownError while the agent's previous
// creation of this kind is inside the cooldown window. It must be called
// BEFORE validation so a pending cooldown is reported regardless of payload.
func (l *Limiter) CheckCooldown(ctx context.Context, agentID string, kind domain.ContentKind) error {
	value, ok, err := l.store.Get(ctx, kv.KeyCooldown(string(kind), agentID))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	markedAt, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		// Malformed marker: treat as absent rather than lock the agent out.
		return nil
	}
	elapsed := l.now().Sub(time.UnixMilli(markedAt))
	if remaining := l.cooldown - elapsed; remaining > 0 {
		return &domain.CooldownError{Kind: kind, Remaining: remaining}
	}
	return nil
}

// MarkCreated sets the cooldown marker. Called only AFTER a successful
// creation — failed validation must not consume the cooldown.
func (l *Limiter) MarkCreated(ctx context.Context, agentID string, kind domain.ContentKind) error {
	return l.store.Set(ctx,
		kv.KeyCooldown(string(kind), agentID),
		strconv.FormatInt(l.now().UnixMilli(), 10),
		l.cooldown)
}

// Cooldown returns the configured content cooldown.
func (l *Limiter) Cooldown() time.Duration { return l.cooldown }
