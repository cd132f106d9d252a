// Package middleware provides the Gin HTTP middleware for the isolation core.
//
// Middleware ordering matters and is enforced by the pipeline builder in
// pipeline.go:
//
//	Security → RequestID → Metrics → RateLimit → Auth → TenantResolver → CrossTenantGuard → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to absorb brute force before any parsing or
// DB work. Auth populates the principal; the tenant resolvers read from it.
// The cross-tenant guard can only run after a resolver has attached a tenant,
// which the pipeline builder enforces at construction time.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/apperr"
	"github.com/agendly/agendly-backend/internal/auth"
)

// PrincipalKey is the gin.Context key under which the authenticated
// *auth.Principal is stored by Authentication.
const PrincipalKey = "principal"

// Authentication validates the Bearer token and attaches the parsed principal
// to the request context. It performs no tenant resolution; that is the
// resolvers' job, so a token carrying a broken organization id still
// authenticates here and is classified as a server defect downstream.
func Authentication(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			reject(c, &apperr.Error{
				Kind:    apperr.KindUnauthorized,
				Code:    "MISSING_TOKEN",
				Message: "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(header, "Bearer ") {
			reject(c, &apperr.Error{
				Kind:    apperr.KindUnauthorized,
				Code:    "INVALID_AUTH_SCHEME",
				Message: "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			reject(c, &apperr.Error{
				Kind:    apperr.KindUnauthorized,
				Code:    "EMPTY_TOKEN",
				Message: "Authorization token is empty",
			})
			return
		}

		principal, err := auth.ParseToken(token, jwtSecret)
		if err != nil {
			reject(c, &apperr.Error{
				Kind:    apperr.KindUnauthorized,
				Code:    "INVALID_TOKEN",
				Message: "Invalid or expired token",
			})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// PrincipalFrom reads the authenticated principal from the gin context, or
// nil when the request never passed Authentication.
func PrincipalFrom(c *gin.Context) *auth.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}
