package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/ratelimit"
	"github.com/agendly/agendly-backend/internal/tenant"
)

func TestPipeline_OrderPreserved(t *testing.T) {
	var order []string
	step := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			order = append(order, name)
			c.Next()
		}
	}
	resolver := func(c *gin.Context) {
		order = append(order, "resolver")
		c.Set(tenant.GinContextKey, &tenant.Context{OrganizationID: 10})
		c.Next()
	}

	chain := NewPipeline().
		Use(step("security"), step("requestid")).
		Resolve(resolver).
		Guard().
		Handlers(func(c *gin.Context) {
			order = append(order, "handler")
			c.JSON(http.StatusOK, gin.H{"success": true})
		})

	e := gin.New()
	e.GET("/x", chain...)
	w := doGet(e, "/x", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := []string{"security", "requestid", "resolver", "handler"}
	if len(order) != len(want) {
		t.Fatalf("executed steps %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("executed steps %v, want %v", order, want)
		}
	}
}

func TestPipeline_GuardRunsAfterResolver(t *testing.T) {
	resolver := func(c *gin.Context) {
		c.Set(tenant.GinContextKey, &tenant.Context{OrganizationID: 10})
		c.Next()
	}
	chain := NewPipeline().
		Resolve(resolver).
		Guard().
		Handlers(func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) })

	e := gin.New()
	e.POST("/x", chain...)

	if w := doPost(e, "/x", `{"organizacion_id": 20}`); w.Code != http.StatusForbidden {
		t.Errorf("cross-tenant body through pipeline: status = %d, want 403", w.Code)
	}
	if w := doPost(e, "/x", `{"organizacion_id": 10}`); w.Code != http.StatusOK {
		t.Errorf("own-tenant body through pipeline: status = %d, want 200", w.Code)
	}
}

func TestPipeline_PlanLimitThroughBuilder(t *testing.T) {
	store := ratelimit.NewMemoryCounterStore()
	tiers := map[string]ratelimit.PlanTier{"basic": {Max: 1, Window: time.Minute}}
	resolver := func(c *gin.Context) {
		c.Set(tenant.GinContextKey, &tenant.Context{OrganizationID: 10, Plan: "basic"})
		c.Next()
	}

	chain := NewPipeline().
		Resolve(resolver).
		PlanLimit(store, tiers).
		Handlers(func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) })

	e := gin.New()
	e.GET("/x", chain...)

	if w := doGet(e, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", w.Code)
	}
	if w := doGet(e, "/x", nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", w.Code)
	}
}

func TestPipeline_UnresolvedChainHasNoGuard(t *testing.T) {
	// Route classes without tenant resolution never gain access to Guard or
	// PlanLimit; the builder only exposes them on ResolvedPipeline. This
	// compiles exactly because the unresolved chain stays tenant-free.
	chain := NewPipeline().
		Use(RequestID()).
		Handlers(func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) })

	e := gin.New()
	e.GET("/health", chain...)
	if w := doGet(e, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
