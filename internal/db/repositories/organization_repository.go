// Package repositories implements database access for the isolation core.
// Everything here runs through the lease manager: tenant-scoped queries under
// WithTenant/WithTenantTx, cross-tenant lookups under WithBypass.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/agendly/agendly-backend/internal/db"
	"github.com/agendly/agendly-backend/internal/db/models"
)

// OrganizationRepository reads tenant records. All lookups are bypass-scoped:
// the query that decides whether an organization exists must not be filtered
// by the organization's own RLS policy.
type OrganizationRepository struct {
	leases *db.LeaseManager
}

// NewOrganizationRepository creates a new organization repository.
func NewOrganizationRepository(leases *db.LeaseManager) *OrganizationRepository {
	return &OrganizationRepository{leases: leases}
}

// FindByID retrieves an organization by id, or nil when absent.
func (r *OrganizationRepository) FindByID(ctx context.Context, id int64) (*models.Organization, error) {
	query := `
		SELECT id, name, plan, active, suspended, activated_at, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var org models.Organization
	found := false
	err := r.leases.WithBypass(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &org, query, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil // Not found
		}
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &org, nil
}

// ListActive returns all usable organizations. Platform-admin surface only.
func (r *OrganizationRepository) ListActive(ctx context.Context) ([]models.Organization, error) {
	query := `
		SELECT id, name, plan, active, suspended, activated_at, created_at, updated_at
		FROM organizations
		WHERE active = TRUE AND suspended = FALSE
		ORDER BY id
	`

	var orgs []models.Organization
	err := r.leases.WithBypass(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &orgs, query); err != nil {
			return fmt.Errorf("failed to list organizations: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orgs, nil
}
