// enumguard.go bounds how often the public tenant resolvers may be probed
// for a single organization id. An attacker iterating ids to learn which
// tenants exist hits this guard before any database lookup happens, and the
// guard answers identically for existing and non-existing organizations.
package ratelimit

import (
	"context"
	"strconv"
	"time"
)

// enumKeyPrefix keeps guard counters in their own namespace, separate from
// the rate_limit: counters, so administrative resets of one never touch the
// other.
const enumKeyPrefix = "tenant_enum:org:"

// EnumerationGuard counts resolution probes per organization id.
type EnumerationGuard struct {
	store     CounterStore
	maxProbes int
	window    time.Duration
}

// NewEnumerationGuard builds a guard allowing maxProbes per window per
// organization id.
func NewEnumerationGuard(store CounterStore, maxProbes int, window time.Duration) *EnumerationGuard {
	return &EnumerationGuard{store: store, maxProbes: maxProbes, window: window}
}

// Probe registers one resolution attempt for orgID and reports whether the
// lookup may proceed. When denied, retryAfter is the time until the window
// resets. Counter-store errors allow the probe (fail open).
func (g *EnumerationGuard) Probe(ctx context.Context, orgID int64) (allowed bool, retryAfter time.Duration) {
	key := enumKeyPrefix + strconv.FormatInt(orgID, 10)

	count, err := g.store.Increment(ctx, key, g.window)
	if err != nil {
		return true, 0
	}
	if count <= int64(g.maxProbes) {
		return true, 0
	}

	ttl, err := g.store.RemainingTTL(ctx, key)
	if err != nil || ttl <= 0 {
		ttl = g.window
	}
	return false, ttl
}
