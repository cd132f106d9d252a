package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/apperr"
	"github.com/agendly/agendly-backend/internal/db/repositories"
	"github.com/agendly/agendly-backend/internal/middleware"
)

// writeError maps a service/repository failure to its boundary response.
// Tagged variants keep their status and code; anything else becomes an
// opaque 500.
func writeError(c *gin.Context, err error) {
	if ae := apperr.As(err); ae != nil {
		body := gin.H{"success": false, "message": ae.Message}
		if ae.Code != "" {
			body["code"] = ae.Code
		}
		c.JSON(ae.HTTPStatus(), body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": "Internal server error",
	})
}

// healthHandler reports liveness. No auth, no rate limit, no tenant.
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// availabilityHandler serves the public availability lookup. The resolver has
// already attached and validated the tenant; the handler only reads it.
func availabilityHandler(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"organization_id": tc.OrganizationID,
		"plan":            tc.Plan,
	})
}

// bookingRequest is the public booking payload. The organization id fields
// are consumed by the resolver; the handler binds the rest.
type bookingRequest struct {
	FullName string  `json:"full_name" binding:"required"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Service  string  `json:"service"`
}

// clientHandlers serves the client endpoints, public and authenticated.
type clientHandlers struct {
	clients *repositories.ClientRepository
}

// createBooking handles the public booking flow: the resolver attached the
// tenant from the body, and the insert runs under that tenant's lease.
func (h *clientHandlers) createBooking(c *gin.Context) {
	tc := middleware.TenantFrom(c)

	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("INVALID_BOOKING", "full_name is required"))
		return
	}

	client, err := h.clients.Create(c.Request.Context(), tc.OrganizationID, req.FullName, req.Email, req.Phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "client": client})
}

// list returns the resolved tenant's clients.
func (h *clientHandlers) list(c *gin.Context) {
	tc := middleware.TenantFrom(c)

	clients, err := h.clients.List(c.Request.Context(), tc.OrganizationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "clients": clients})
}

// create inserts a client for the resolved tenant.
func (h *clientHandlers) create(c *gin.Context) {
	tc := middleware.TenantFrom(c)

	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("INVALID_CLIENT", "full_name is required"))
		return
	}

	client, err := h.clients.Create(c.Request.Context(), tc.OrganizationID, req.FullName, req.Email, req.Phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "client": client})
}

// organizationHandlers serves the tenant self-view and the platform-admin
// surface.
type organizationHandlers struct {
	orgs *repositories.OrganizationRepository
}

// current returns the resolved tenant's subscription state. Registered
// behind RequireActiveOrganization, which attached plan and activation date.
func (h *organizationHandlers) current(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	body := gin.H{
		"success":         true,
		"organization_id": tc.OrganizationID,
		"plan":            tc.Plan,
	}
	if tc.ActivatedAt != nil {
		body["activated_at"] = tc.ActivatedAt
	}
	c.JSON(http.StatusOK, body)
}

// listActive returns all usable organizations. Platform-admin only; the
// lookup runs under a bypass lease, the one deliberate hole in RLS.
func (h *organizationHandlers) listActive(c *gin.Context) {
	orgs, err := h.orgs.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "organizations": orgs, "count": len(orgs)})
}
