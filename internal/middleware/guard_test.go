package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/auth"
	"github.com/agendly/agendly-backend/internal/tenant"
)

// guardRouter wires a resolved tenant and optional principal in front of the
// guard, the way the pipeline does.
func guardRouter(tc *tenant.Context, p *auth.Principal) *gin.Engine {
	e := gin.New()
	setup := func(c *gin.Context) {
		if tc != nil {
			c.Set(tenant.GinContextKey, tc)
		}
		if p != nil {
			c.Set(PrincipalKey, p)
		}
	}
	handler := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) }
	e.POST("/sales", setup, CrossTenantGuard(), handler)
	e.GET("/orgs/:organizacion_id/clients", setup, CrossTenantGuard(), handler)
	return e
}

func TestCrossTenantGuard_BodyMismatchRejected(t *testing.T) {
	e := guardRouter(&tenant.Context{OrganizationID: 10}, &auth.Principal{UserID: 1, OrganizationID: 10})

	w := doPost(e, "/sales", `{"organizacion_id": 20, "total": 150}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if code := rejectionCode(t, w); code != "CROSS_TENANT_ACCESS" {
		t.Errorf("code = %q, want CROSS_TENANT_ACCESS", code)
	}
}

func TestCrossTenantGuard_BodyMatchPasses(t *testing.T) {
	e := guardRouter(&tenant.Context{OrganizationID: 10}, &auth.Principal{UserID: 1, OrganizationID: 10})

	w := doPost(e, "/sales", `{"organizacion_id": 10, "total": 150}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCrossTenantGuard_EnglishFieldNameChecked(t *testing.T) {
	e := guardRouter(&tenant.Context{OrganizationID: 10}, &auth.Principal{UserID: 1, OrganizationID: 10})

	w := doPost(e, "/sales", `{"organization_id": 20}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestCrossTenantGuard_NoOrgInRequestPasses(t *testing.T) {
	e := guardRouter(&tenant.Context{OrganizationID: 10}, &auth.Principal{UserID: 1, OrganizationID: 10})

	w := doPost(e, "/sales", `{"total": 150}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCrossTenantGuard_PathParamMismatchRejected(t *testing.T) {
	e := guardRouter(&tenant.Context{OrganizationID: 10}, &auth.Principal{UserID: 1, OrganizationID: 10})

	w := doGet(e, "/orgs/20/clients", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if code := rejectionCode(t, w); code != "CROSS_TENANT_ACCESS" {
		t.Errorf("code = %q, want CROSS_TENANT_ACCESS", code)
	}
}

func TestCrossTenantGuard_PathParamMatchPasses(t *testing.T) {
	e := guardRouter(&tenant.Context{OrganizationID: 10}, &auth.Principal{UserID: 1, OrganizationID: 10})

	if w := doGet(e, "/orgs/10/clients", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCrossTenantGuard_PlatformAdminBypasses(t *testing.T) {
	admin := &auth.Principal{UserID: 1, OrganizationID: 10, Scopes: []string{string(auth.ScopePlatformAdmin)}}
	e := guardRouter(&tenant.Context{OrganizationID: 10}, admin)

	w := doPost(e, "/sales", `{"organizacion_id": 20}`)
	if w.Code != http.StatusOK {
		t.Errorf("platform admin: status = %d, want 200", w.Code)
	}
}

func TestCrossTenantGuard_OrdinaryScopesDoNotBypass(t *testing.T) {
	p := &auth.Principal{UserID: 1, OrganizationID: 10, Scopes: []string{string(auth.ScopeClientsWrite), string(auth.ScopeSalesWrite)}}
	e := guardRouter(&tenant.Context{OrganizationID: 10}, p)

	w := doPost(e, "/sales", `{"organizacion_id": 20}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestCrossTenantGuard_WithoutResolvedTenantFailsClosed(t *testing.T) {
	e := guardRouter(nil, &auth.Principal{UserID: 1, OrganizationID: 10})

	w := doPost(e, "/sales", `{"organizacion_id": 10}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestCrossTenantGuard_BodyRemainsReadable(t *testing.T) {
	e := gin.New()
	var total float64
	e.POST("/sales",
		func(c *gin.Context) { c.Set(tenant.GinContextKey, &tenant.Context{OrganizationID: 10}) },
		CrossTenantGuard(),
		func(c *gin.Context) {
			var payload map[string]any
			if err := c.ShouldBindJSON(&payload); err == nil {
				total, _ = payload["total"].(float64)
			}
			c.JSON(http.StatusOK, gin.H{"success": true})
		})

	req := httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(`{"organizacion_id": 10, "total": 150}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if total != 150 {
		t.Errorf("handler read total = %v from body, want 150", total)
	}
}
