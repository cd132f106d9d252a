// rbac.go implements scope-based authorization. Scopes live in the token and
// are checked at request time against the route's requirement.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/apperr"
	"github.com/agendly/agendly-backend/internal/auth"
)

// RequireScope rejects requests whose principal lacks the required scope.
// Platform administrators pass every scope check (auth.HasScope treats
// platform:admin as implying all scopes).
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil {
			reject(c, apperr.Forbidden("INSUFFICIENT_SCOPE", "Insufficient permissions"))
			return
		}
		if !auth.HasScope(p.Scopes, scope) {
			reject(c, &apperr.Error{
				Kind:    apperr.KindForbidden,
				Code:    "INSUFFICIENT_SCOPE",
				Message: "Missing required scope",
				Details: map[string]any{"required": string(scope)},
			})
			return
		}
		c.Next()
	}
}

// RequireAnyScope rejects requests whose principal has none of the given
// scopes.
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil || !auth.HasAnyScope(p.Scopes, scopes) {
			reject(c, apperr.Forbidden("INSUFFICIENT_SCOPE", "Insufficient permissions"))
			return
		}
		c.Next()
	}
}
