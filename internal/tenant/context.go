// Package tenant defines the per-request tenant context produced by the
// resolver middleware and consumed by handlers and the connection lease
// manager. The context is ephemeral: created when a request's tenant is
// resolved, read downstream, and discarded when the request ends.
package tenant

import (
	"context"
	"time"
)

// Context is the resolved tenant identity for one inbound request.
type Context struct {
	OrganizationID int64
	Plan           string     // empty when the resolver did not look it up
	ActivatedAt    *time.Time // set only by RequireActiveOrganization
}

// GinContextKey is the gin.Context key under which the resolved *Context is
// stored by the resolver middleware.
const GinContextKey = "tenant_context"

type contextKey struct{}

// NewContext returns a copy of parent carrying tc, so code below the HTTP
// layer (repositories, services) can read the tenant without a gin dependency.
func NewContext(parent context.Context, tc *Context) context.Context {
	return context.WithValue(parent, contextKey{}, tc)
}

// FromContext extracts the resolved tenant from ctx, or nil when the request
// never passed a resolver.
func FromContext(ctx context.Context) *Context {
	tc, _ := ctx.Value(contextKey{}).(*Context)
	return tc
}
