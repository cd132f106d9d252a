// pipeline.go composes middleware chains with ordering enforced by the type
// system. The cross-tenant guard and plan limiter read the resolved tenant,
// so they can only be appended once a resolver step is present; appending
// them earlier does not compile. Misordering is a build failure, not a
// runtime hazard.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/ratelimit"
)

// Pipeline accumulates middleware for a route class before tenant
// resolution. Zero value is ready to use.
type Pipeline struct {
	handlers []gin.HandlerFunc
}

// NewPipeline starts an empty chain.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Use appends tenant-agnostic middleware (security headers, request ids,
// metrics, IP or user rate limits, authentication).
func (p *Pipeline) Use(h ...gin.HandlerFunc) *Pipeline {
	p.handlers = append(p.handlers, h...)
	return p
}

// Resolve appends the tenant-resolution step and moves the chain into the
// resolved stage, unlocking the tenant-dependent steps.
func (p *Pipeline) Resolve(resolver gin.HandlerFunc) *ResolvedPipeline {
	return &ResolvedPipeline{handlers: append(p.handlers, resolver)}
}

// ResolvedPipeline is a chain whose requests carry a resolved tenant from
// this point on.
type ResolvedPipeline struct {
	handlers []gin.HandlerFunc
}

// Guard appends the cross-tenant guard.
func (p *ResolvedPipeline) Guard() *ResolvedPipeline {
	p.handlers = append(p.handlers, CrossTenantGuard())
	return p
}

// PlanLimit appends the per-organization plan-based rate limit.
func (p *ResolvedPipeline) PlanLimit(store ratelimit.CounterStore, tiers map[string]ratelimit.PlanTier) *ResolvedPipeline {
	p.handlers = append(p.handlers, PlanRateLimit(store, tiers))
	return p
}

// Use appends further middleware that needs the resolved tenant.
func (p *ResolvedPipeline) Use(h ...gin.HandlerFunc) *ResolvedPipeline {
	p.handlers = append(p.handlers, h...)
	return p
}

// Handlers returns the chain for route registration, with the final handler
// appended last.
func (p *ResolvedPipeline) Handlers(final ...gin.HandlerFunc) []gin.HandlerFunc {
	return append(append([]gin.HandlerFunc{}, p.handlers...), final...)
}

// Handlers returns the chain for route classes that never resolve a tenant
// (health, metrics, platform-admin listings).
func (p *Pipeline) Handlers(final ...gin.HandlerFunc) []gin.HandlerFunc {
	return append(append([]gin.HandlerFunc{}, p.handlers...), final...)
}
