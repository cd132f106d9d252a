// limiter.go implements fixed-window rate limiting over a CounterStore.
// Every named tier is the same code path with different numbers; the tiers
// differ only in window, threshold, and how the middleware derives the key.
package ratelimit

import (
	"context"
	"time"

	"github.com/agendly/agendly-backend/internal/config"
)

// keyPrefix namespaces limiter counters away from other CounterStore users
// (the tenant enumeration guard keeps its own namespace).
const keyPrefix = "rate_limit:"

// Config parameterizes one limiter tier.
type Config struct {
	// Name labels the tier in metrics and logs.
	Name string
	// Max is the number of requests allowed per window. The Max-th request in
	// a window is allowed; the (Max+1)-th is denied.
	Max int
	// Window is the fixed counting window.
	Window time.Duration
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // non-zero only when denied
}

// Limiter admits or denies requests against a shared counter store.
type Limiter struct {
	store CounterStore
	cfg   Config
}

// NewLimiter creates a limiter for one named tier.
func NewLimiter(store CounterStore, cfg Config) *Limiter {
	return &Limiter{store: store, cfg: cfg}
}

// Name returns the tier name.
func (l *Limiter) Name() string { return l.cfg.Name }

// Check consumes one unit for key and reports the decision. Counter-store
// failures are absorbed by the store layer; if an error still reaches here
// the check allows the request — limiting fails open, never closed.
func (l *Limiter) Check(ctx context.Context, key string) Result {
	full := keyPrefix + l.cfg.Name + ":" + key

	count, err := l.store.Increment(ctx, full, l.cfg.Window)
	if err != nil {
		return Result{
			Allowed:   true,
			Limit:     l.cfg.Max,
			Remaining: l.cfg.Max,
			ResetAt:   time.Now().Add(l.cfg.Window),
		}
	}

	remaining := l.cfg.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	ttl, err := l.store.RemainingTTL(ctx, full)
	if err != nil || ttl <= 0 {
		ttl = l.cfg.Window
	}

	res := Result{
		Allowed:   count <= int64(l.cfg.Max),
		Limit:     l.cfg.Max,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res
}

// Named tier constructors. Thresholds come from configuration so operators
// can tune them without a rebuild.

// GeneralIPConfig is the default tier for unauthenticated per-IP traffic.
func GeneralIPConfig(c config.RateLimitingConfig) Config {
	return Config{Name: "general_ip", Max: c.GeneralIPMax, Window: c.GeneralIPWindow}
}

// PerUserConfig covers authenticated per-user traffic.
func PerUserConfig(c config.RateLimitingConfig) Config {
	return Config{Name: "per_user", Max: c.PerUserMax, Window: c.PerUserWindow}
}

// PerOrganizationConfig covers aggregate per-tenant traffic.
func PerOrganizationConfig(c config.RateLimitingConfig) Config {
	return Config{Name: "per_org", Max: c.PerOrgMax, Window: c.PerOrgWindow}
}

// AuthIPConfig is the strict tier for authentication endpoints.
func AuthIPConfig(c config.RateLimitingConfig) Config {
	return Config{Name: "auth_ip", Max: c.AuthIPMax, Window: c.AuthIPWindow}
}

// PublicAPIKeyConfig covers public API traffic keyed by API key.
func PublicAPIKeyConfig(c config.RateLimitingConfig) Config {
	return Config{Name: "public_api_key", Max: c.APIKeyMax, Window: c.APIKeyWindow}
}

// HeavyPerUserConfig covers expensive operations (exports, bulk imports).
func HeavyPerUserConfig(c config.RateLimitingConfig) Config {
	return Config{Name: "heavy_per_user", Max: c.HeavyUserMax, Window: c.HeavyUserWindow}
}

// PlanTier maps a subscription plan to its per-organization allowance.
type PlanTier struct {
	Max    int
	Window time.Duration
}

// DefaultPlanTiers is the plan→allowance table used by the dynamic limiter.
// Unknown plans get the basic tier, the conservative choice.
var DefaultPlanTiers = map[string]PlanTier{
	"basic":      {Max: 60, Window: time.Minute},
	"pro":        {Max: 300, Window: time.Minute},
	"enterprise": {Max: 1200, Window: time.Minute},
}

// ForPlan builds a limiter config for the given subscription plan. The
// config is constructed per request, after tenant resolution, rather than per
// route registration.
func ForPlan(tiers map[string]PlanTier, plan string) Config {
	tier, ok := tiers[plan]
	if !ok {
		tier = tiers["basic"]
	}
	if tier.Max == 0 {
		tier = PlanTier{Max: 60, Window: time.Minute}
	}
	return Config{Name: "plan", Max: tier.Max, Window: tier.Window}
}
