// ratelimit.go adapts the fixed-window limiter to Gin: key derivation from
// the request, skip predicates, standard X-RateLimit-* headers, and the 429
// rejection body.
package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/apperr"
	"github.com/agendly/agendly-backend/internal/ratelimit"
	"github.com/agendly/agendly-backend/internal/telemetry"
	"github.com/agendly/agendly-backend/internal/tenant"
)

// KeyFunc derives the limiter key from a request.
type KeyFunc func(c *gin.Context) string

// SkipFunc exempts a request from limiting entirely (no counter consumed, no
// headers written). Used for health checks and platform-internal probes.
type SkipFunc func(c *gin.Context) bool

// RateLimitOptions configures one rate-limiting middleware instance.
type RateLimitOptions struct {
	// Key derives the counter key. Required.
	Key KeyFunc
	// Skip, when non-nil and true for a request, allows it unconditionally.
	Skip SkipFunc
	// OnLimitReached is invoked on every denial, after the security log entry
	// and metric, before the response is written. Optional.
	OnLimitReached func(c *gin.Context)
}

// RateLimit enforces limiter on every request, keyed by opts.Key. Allowed
// requests carry X-RateLimit-Limit/-Remaining/-Reset headers; denied requests
// get 429 with a retryAfter body field and Retry-After header.
func RateLimit(limiter *ratelimit.Limiter, opts RateLimitOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Skip != nil && opts.Skip(c) {
			c.Next()
			return
		}

		res := limiter.Check(c.Request.Context(), opts.Key(c))
		writeRateLimitHeaders(c, res)

		if !res.Allowed {
			denyRateLimited(c, limiter.Name(), res, opts.OnLimitReached)
			return
		}
		c.Next()
	}
}

// PlanRateLimit enforces the per-organization allowance for the resolved
// tenant's subscription plan. It must run after a tenant resolver; requests
// without a resolved tenant pass through unlimited rather than failing, since
// a missing tenant at this point is a pipeline wiring defect that the typed
// builder prevents.
func PlanRateLimit(store ratelimit.CounterStore, tiers map[string]ratelimit.PlanTier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := TenantFrom(c)
		if tc == nil {
			c.Next()
			return
		}

		limiter := ratelimit.NewLimiter(store, ratelimit.ForPlan(tiers, tc.Plan))
		res := limiter.Check(c.Request.Context(), "org:"+strconv.FormatInt(tc.OrganizationID, 10))
		writeRateLimitHeaders(c, res)

		if !res.Allowed {
			denyRateLimited(c, limiter.Name(), res, nil)
			return
		}
		c.Next()
	}
}

func writeRateLimitHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))
}

func denyRateLimited(c *gin.Context, limiterName string, res ratelimit.Result, onLimitReached func(*gin.Context)) {
	retryAfter := int(res.RetryAfter / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}

	telemetry.RateLimitRejectionsTotal.WithLabelValues(limiterName).Inc()
	slog.Warn("rate limit exceeded",
		"limiter", limiterName,
		"ip", c.ClientIP(),
		"path", c.Request.URL.Path,
		"retry_after_s", retryAfter,
	)
	if onLimitReached != nil {
		onLimitReached(c)
	}

	reject(c, apperr.RateLimited("RATE_LIMIT_EXCEEDED", "Too many requests, please retry later", retryAfter))
}

// KeyByIP keys on the client IP. The default for unauthenticated traffic.
func KeyByIP(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}

// KeyByUser keys on the authenticated user id, falling back to the client IP
// when the request carries no principal.
func KeyByUser(c *gin.Context) string {
	if p := PrincipalFrom(c); p != nil {
		return "user:" + strconv.FormatInt(p.UserID, 10)
	}
	return KeyByIP(c)
}

// KeyByOrganization keys on the resolved tenant, falling back to the client
// IP before resolution.
func KeyByOrganization(c *gin.Context) string {
	if tc := TenantFrom(c); tc != nil {
		return "org:" + strconv.FormatInt(tc.OrganizationID, 10)
	}
	return KeyByIP(c)
}

// KeyByAPIKey keys on the caller's API key header, falling back to the client
// IP for requests without one.
func KeyByAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return "apikey:" + key
	}
	return KeyByIP(c)
}

// TenantFrom reads the resolved tenant from the gin context, or nil when no
// resolver has run.
func TenantFrom(c *gin.Context) *tenant.Context {
	v, ok := c.Get(tenant.GinContextKey)
	if !ok {
		return nil
	}
	tc, _ := v.(*tenant.Context)
	return tc
}
