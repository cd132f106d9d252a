// guard.go implements the cross-tenant access guard. Any organization id a
// client supplies in path parameters or the JSON body must match the resolved
// tenant; a mismatch is rejected before the handler runs and recorded as a
// security event.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/apperr"
	"github.com/agendly/agendly-backend/internal/telemetry"
)

// CrossTenantGuard rejects requests whose path or body names an organization
// other than the resolved tenant.
//
// Platform administrators are exempt, and the exemption is a single explicit
// capability check (auth.ScopePlatformAdmin via Principal.IsPlatformAdmin),
// never a fallthrough: a request with no principal or no resolved tenant is
// rejected, not waved through.
func CrossTenantGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := TenantFrom(c)
		if tc == nil {
			// Guard without a resolver is a wiring defect the pipeline
			// builder prevents; if it happens anyway, fail closed.
			reject(c, apperr.Internal("TENANT_NOT_RESOLVED", "Request reached the guard without a resolved tenant", nil))
			return
		}

		if p := PrincipalFrom(c); p != nil && p.IsPlatformAdmin() {
			c.Next()
			return
		}

		if suppliedID, ok := suppliedOrgID(c); ok && suppliedID != tc.OrganizationID {
			telemetry.CrossTenantRejectionsTotal.Inc()
			slog.Warn("cross-tenant access attempt",
				"resolved_organization_id", tc.OrganizationID,
				"supplied_organization_id", suppliedID,
				"ip", c.ClientIP(),
				"path", c.Request.URL.Path,
			)
			reject(c, apperr.Forbidden("CROSS_TENANT_ACCESS", "Access to another organization's data is not allowed"))
			return
		}

		c.Next()
	}
}

// suppliedOrgID finds an organization id the client supplied in path
// parameters or the JSON body. Path parameters win; an unparseable value in a
// recognized field is treated as absent (the handler's own validation deals
// with it).
func suppliedOrgID(c *gin.Context) (int64, bool) {
	for _, name := range orgIDFields {
		if v := c.Param(name); v != "" {
			if id, ok := parseOrgID(json.RawMessage(v)); ok {
				return id, true
			}
		}
	}
	return bodyOrgID(c)
}

func bodyOrgID(c *gin.Context) (int64, bool) {
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
			if id, ok := parseOrgID(v); ok {
				return id, true
			}
		}
	}
	return 0, false
}
