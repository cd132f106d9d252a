// Package api wires the HTTP routes for the tenant isolation backend.
//
// Route grouping:
//   - /public/ routes are unauthenticated; their tenant comes from the query
//     string or body, guarded by the enumeration counter before any lookup.
//   - /api/v1/ routes require a Bearer token; their tenant comes from the
//     principal and nothing else.
//   - /api/v1/admin/ routes are platform-operator surface; they resolve no
//     tenant and read through bypass leases.
//
// Every chain is assembled with the middleware pipeline builder, so a
// tenant-dependent step (cross-tenant guard, plan limiter) cannot be
// registered ahead of its resolver.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/agendly/agendly-backend/internal/auth"
	"github.com/agendly/agendly-backend/internal/config"
	"github.com/agendly/agendly-backend/internal/db"
	"github.com/agendly/agendly-backend/internal/db/repositories"
	"github.com/agendly/agendly-backend/internal/middleware"
	"github.com/agendly/agendly-backend/internal/ratelimit"
)

// NewRouter builds the Gin engine. The counter store is injected so the
// caller decides between Redis and the in-process fallback.
func NewRouter(cfg *config.Config, pool *sqlx.DB, store ratelimit.CounterStore) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	leases := db.NewLeaseManager(pool, cfg.Database.AcquireTimeout)
	orgRepo := repositories.NewOrganizationRepository(leases)
	clientRepo := repositories.NewClientRepository(leases)

	guard := ratelimit.NewEnumerationGuard(store,
		cfg.Security.EnumerationGuard.MaxProbes,
		cfg.Security.EnumerationGuard.Window)
	resolver := middleware.NewTenantResolver(orgRepo, guard)

	clients := &clientHandlers{clients: clientRepo}
	orgs := &organizationHandlers{orgs: orgRepo}

	generalLimit := middleware.RateLimit(
		ratelimit.NewLimiter(store, ratelimit.GeneralIPConfig(cfg.Security.RateLimiting)),
		middleware.RateLimitOptions{Key: middleware.KeyByIP},
	)
	userLimit := middleware.RateLimit(
		ratelimit.NewLimiter(store, ratelimit.PerUserConfig(cfg.Security.RateLimiting)),
		middleware.RateLimitOptions{Key: middleware.KeyByUser},
	)

	base := func() *middleware.Pipeline {
		return middleware.NewPipeline().Use(
			middleware.SecurityHeaders(middleware.APISecurityHeadersConfig()),
			middleware.RequestID(),
			middleware.Metrics(),
		)
	}

	// Liveness. Outside every limiter so orchestrator probes never starve.
	router.GET("/health", base().Handlers(healthHandler)...)

	// Public booking surface: tenant from query/body, plan allowance after
	// resolution.
	tiers := ratelimit.DefaultPlanTiers
	router.GET("/public/availability", base().
		Use(generalLimit).
		Resolve(resolver.FromQuery()).
		PlanLimit(store, tiers).
		Handlers(availabilityHandler)...)
	router.POST("/public/bookings", base().
		Use(generalLimit).
		Resolve(resolver.FromBody()).
		PlanLimit(store, tiers).
		Handlers(clients.createBooking)...)

	// Authenticated tenant surface: tenant from the principal, cross-tenant
	// guard on everything.
	authd := func() *middleware.Pipeline {
		return base().Use(
			userLimit,
			middleware.Authentication(cfg.Auth.JWTSecret),
		)
	}
	router.GET("/api/v1/organization", authd().
		Resolve(resolver.RequireActiveOrganization()).
		Handlers(orgs.current)...)
	router.GET("/api/v1/clients", authd().
		Use(middleware.RequireScope(auth.ScopeClientsRead)).
		Resolve(resolver.FromPrincipal()).
		Guard().
		Handlers(clients.list)...)
	router.POST("/api/v1/clients", authd().
		Use(middleware.RequireScope(auth.ScopeClientsWrite)).
		Resolve(resolver.FromPrincipal()).
		Guard().
		Handlers(clients.create)...)

	// Platform-operator surface: no tenant resolution, bypass reads.
	router.GET("/api/v1/admin/organizations", authd().
		Use(middleware.RequireScope(auth.ScopePlatformAdmin)).
		Handlers(orgs.listActive)...)

	return router
}
