package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/agendly/agendly-backend/internal/db"
	"github.com/agendly/agendly-backend/internal/db/models"
)

// ClientRepository accesses the clients table through tenant-scoped leases.
// Note the absence of organization filters in the SQL: row visibility comes
// from the RLS policy reading app.current_tenant_id, so a query cannot reach
// another tenant's rows even if it tried.
type ClientRepository struct {
	leases *db.LeaseManager
}

// NewClientRepository creates a new client repository.
func NewClientRepository(leases *db.LeaseManager) *ClientRepository {
	return &ClientRepository{leases: leases}
}

// List returns the organization's clients, newest first.
func (r *ClientRepository) List(ctx context.Context, orgID int64) ([]models.Client, error) {
	query := `
		SELECT id, organization_id, full_name, email, phone, created_at, updated_at
		FROM clients
		ORDER BY created_at DESC
	`

	var clients []models.Client
	err := r.leases.WithTenant(ctx, orgID, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &clients, query); err != nil {
			return fmt.Errorf("failed to list clients: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clients, nil
}

// Create inserts a client for the organization and returns it with generated
// fields populated. Runs in an explicit tenant transaction; the RLS WITH
// CHECK clause rejects any row whose organization_id differs from the lease's
// tenant.
func (r *ClientRepository) Create(ctx context.Context, orgID int64, fullName string, email, phone *string) (*models.Client, error) {
	query := `
		INSERT INTO clients (organization_id, full_name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, organization_id, full_name, email, phone, created_at, updated_at
	`

	var client models.Client
	err := r.leases.WithTenantTx(ctx, orgID, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &client, query, orgID, fullName, email, phone); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}
