package models

import "time"

// Client is a tenant-owned record. The table's RLS policy filters rows by
// app.current_tenant_id, so queries never carry an organization filter of
// their own.
type Client struct {
	ID             int64     `db:"id" json:"id"`
	OrganizationID int64     `db:"organization_id" json:"organization_id"`
	FullName       string    `db:"full_name" json:"full_name"`
	Email          *string   `db:"email" json:"email,omitempty"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
