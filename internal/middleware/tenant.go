// tenant.go implements the tenant resolvers. Every variant ends in one of two
// terminal states for the request: a tenant context attached and the chain
// continued, or a rejection written and the chain aborted. There are no
// retries within a request.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/apperr"
	"github.com/agendly/agendly-backend/internal/db/models"
	"github.com/agendly/agendly-backend/internal/ratelimit"
	"github.com/agendly/agendly-backend/internal/telemetry"
	"github.com/agendly/agendly-backend/internal/tenant"
)

// Accepted names for the organization id field on public routes. The legacy
// Spanish spelling is still sent by older booking widgets.
var orgIDFields = []string{"organizacion_id", "organization_id"}

// OrganizationFinder is the slice of the organization repository the
// resolvers need. Tests substitute a fake.
type OrganizationFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Organization, error)
}

// TenantResolver builds the resolver middleware variants. All organization
// lookups go through bypass-scoped leases: the query deciding whether a
// tenant exists cannot be filtered by that tenant's own RLS policy.
type TenantResolver struct {
	orgs  OrganizationFinder
	guard *ratelimit.EnumerationGuard
}

// NewTenantResolver creates the resolver family.
func NewTenantResolver(orgs OrganizationFinder, guard *ratelimit.EnumerationGuard) *TenantResolver {
	return &TenantResolver{orgs: orgs, guard: guard}
}

// FromPrincipal resolves the tenant from the authenticated principal and
// nothing else. Client-supplied organization ids are never consulted here. A
// missing or non-positive organization id on an authenticated request is an
// authentication-service defect, so the rejection is 500, not 4xx.
func (r *TenantResolver) FromPrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil || p.OrganizationID <= 0 {
			slog.Error("authenticated request carries no valid organization id",
				"path", c.Request.URL.Path,
			)
			reject(c, apperr.Internal("MISCONFIGURED_SESSION", "Session is misconfigured, please sign in again", nil))
			return
		}

		attachTenant(c, &tenant.Context{OrganizationID: p.OrganizationID})
		c.Next()
	}
}

// FromBody resolves the tenant from the organization id field of a JSON
// request body. For unauthenticated public routes.
func (r *TenantResolver) FromBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := orgIDFromBody(c)
		if !ok {
			reject(c, apperr.Validation("INVALID_ORGANIZATION_ID", "A positive organization id is required"))
			return
		}
		r.resolvePublic(c, orgID)
	}
}

// FromQuery resolves the tenant from the organization id query parameter.
// For unauthenticated public routes.
func (r *TenantResolver) FromQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := orgIDFromQuery(c)
		if !ok {
			reject(c, apperr.Validation("INVALID_ORGANIZATION_ID", "A positive organization id is required"))
			return
		}
		r.resolvePublic(c, orgID)
	}
}

// resolvePublic is the shared tail of FromBody and FromQuery: enumeration
// guard first, existence lookup second. The guard answers identically whether
// or not the organization exists, so iterating ids reveals nothing once the
// threshold is hit.
func (r *TenantResolver) resolvePublic(c *gin.Context, orgID int64) {
	allowed, retryAfter := r.guard.Probe(c.Request.Context(), orgID)
	if !allowed {
		seconds := int(retryAfter / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		telemetry.EnumerationGuardRejectionsTotal.Inc()
		slog.Warn("tenant enumeration guard triggered",
			"organization_id", orgID,
			"ip", c.ClientIP(),
		)
		reject(c, apperr.RateLimited("RATE_LIMIT_EXCEEDED", "Too many requests, please retry later", seconds))
		return
	}

	org, err := r.orgs.FindByID(c.Request.Context(), orgID)
	if err != nil {
		rejectLookupError(c, err)
		return
	}
	if org == nil {
		reject(c, apperr.NotFound("ORGANIZATION_NOT_FOUND", "Organization not found"))
		return
	}
	if !org.Usable() {
		reject(c, unusableOrganization(org))
		return
	}

	attachTenant(c, &tenant.Context{OrganizationID: org.ID, Plan: org.Plan})
	c.Next()
}

// RequireActiveOrganization confirms the principal's organization is active
// before the handler runs. For authenticated routes whose operations must not
// proceed under a lapsed subscription. Attaches plan and activation date for
// the handler.
func (r *TenantResolver) RequireActiveOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil || p.OrganizationID <= 0 {
			reject(c, apperr.Internal("MISCONFIGURED_SESSION", "Session is misconfigured, please sign in again", nil))
			return
		}

		org, err := r.orgs.FindByID(c.Request.Context(), p.OrganizationID)
		if err != nil {
			rejectLookupError(c, err)
			return
		}
		if org == nil {
			// Auth issued a token for an organization that no longer exists.
			slog.Error("authenticated principal references missing organization",
				"organization_id", p.OrganizationID,
			)
			reject(c, apperr.Internal("MISCONFIGURED_SESSION", "Session is misconfigured, please sign in again", nil))
			return
		}
		if !org.Usable() {
			reject(c, unusableOrganization(org))
			return
		}

		attachTenant(c, &tenant.Context{
			OrganizationID: org.ID,
			Plan:           org.Plan,
			ActivatedAt:    org.ActivatedAt,
		})
		c.Next()
	}
}

// attachTenant stores tc both in the gin context and in the request's
// context.Context, so repositories and services below the HTTP layer can read
// it without a gin dependency.
func attachTenant(c *gin.Context, tc *tenant.Context) {
	c.Set(tenant.GinContextKey, tc)
	c.Request = c.Request.WithContext(tenant.NewContext(c.Request.Context(), tc))
}

// rejectLookupError maps an organization-lookup failure to its boundary
// response. Lease-acquisition failures keep their 503 identity; anything else
// is an opaque 500.
func rejectLookupError(c *gin.Context, err error) {
	if ae := apperr.As(err); ae != nil {
		slog.Error("organization lookup failed", "error", err)
		reject(c, ae)
		return
	}
	slog.Error("organization lookup failed", "error", err)
	reject(c, apperr.Internal("ORGANIZATION_LOOKUP_FAILED", "Unable to resolve organization, please try again", err))
}

func unusableOrganization(org *models.Organization) *apperr.Error {
	if org.Suspended {
		return apperr.Forbidden("ORGANIZATION_SUSPENDED", "This organization is suspended")
	}
	return apperr.Forbidden("ORGANIZATION_INACTIVE", "This organization is not active")
}

// orgIDFromBody extracts the organization id from a JSON body, accepting both
// numeric and string-encoded values. The body is restored afterwards so the
// handler can bind it again.
func orgIDFromBody(c *gin.Context) (int64, bool) {
	if c.Request.Body == nil {
		return 0, false
	}
	raw, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return 0, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return 0, false
	}
	for _, name := range orgIDFields {
		if v, ok := fields[name]; ok {
			return parseOrgID(v)
		}
	}
	return 0, false
}

func orgIDFromQuery(c *gin.Context) (int64, bool) {
	for _, name := range orgIDFields {
		if v := c.Query(name); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				return 0, false
			}
			return id, true
		}
	}
	return 0, false
}

// parseOrgID accepts 42 and "42"; everything else is invalid.
func parseOrgID(raw json.RawMessage) (int64, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		id, err := strconv.ParseInt(s, 10, 64)
		return id, err == nil && id > 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, n > 0
	}
	return 0, false
}
