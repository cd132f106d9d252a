// Package models defines the database row types for the isolation core.
package models

import "time"

// Plan identifiers used by the plan-based rate limiter tier table.
const (
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Organization is a tenant. Rows are read through bypass-scoped leases only:
// the lookup that decides whether a tenant exists cannot itself be filtered
// by the tenant's own RLS policy.
type Organization struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Plan        string     `db:"plan" json:"plan"`
	Active      bool       `db:"active" json:"active"`
	Suspended   bool       `db:"suspended" json:"suspended"`
	ActivatedAt *time.Time `db:"activated_at" json:"activated_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Usable reports whether requests may run under this tenant.
func (o *Organization) Usable() bool {
	return o.Active && !o.Suspended
}
