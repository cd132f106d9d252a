// lease.go implements the RLS-scoped connection lease manager. Every unit of
// work borrows a pooled connection, runs inside a transaction whose
// transaction-local session parameters carry the tenant identity, and returns
// the connection with no residual state.
//
// The leakage-proofing is structural, not procedural: both app.current_tenant_id
// and app.bypass_rls are set via set_config(name, value, true) — the is_local
// form — inside the transaction that the unit of work runs in. Transaction-local
// settings cease to exist at COMMIT or ROLLBACK, so a physical connection
// returned to the pool cannot carry one tenant's identity into the next
// borrower's work. There is no code path that sets either parameter with
// session scope.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/agendly/agendly-backend/internal/apperr"
	"github.com/agendly/agendly-backend/internal/telemetry"
)

// TxFunc is the unit of work executed under a scoped lease. All statements
// issued through tx are evaluated under the lease's tenant identity (or
// bypass flag) by the database's row-level security policies.
type TxFunc func(tx *sqlx.Tx) error

// LeaseManager hands out scoped connection leases from a shared pool.
type LeaseManager struct {
	db             *sqlx.DB
	acquireTimeout time.Duration
}

// NewLeaseManager wraps pool. acquireTimeout bounds how long a lease
// acquisition may wait on an exhausted pool before failing with a
// ConnectionUnavailable error instead of hanging.
func NewLeaseManager(pool *sqlx.DB, acquireTimeout time.Duration) *LeaseManager {
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	return &LeaseManager{db: pool, acquireTimeout: acquireTimeout}
}

// WithTenant runs fn under tenant orgID with RLS active. Intended for
// single-statement scoped reads and writes; the statement still runs inside a
// transaction because transaction-local scoping requires one.
func (m *LeaseManager) WithTenant(ctx context.Context, orgID int64, fn TxFunc) error {
	if orgID <= 0 {
		return apperr.Validation("INVALID_ORGANIZATION_ID", "organization id must be a positive integer")
	}
	return m.withScope(ctx, "tenant", strconv.FormatInt(orgID, 10), false, fn)
}

// WithTenantTx runs fn under tenant orgID inside an explicit transaction
// boundary. Any error from fn rolls the whole transaction back and
// propagates. Optional substeps that must not abort the parent on failure
// run through Savepoint.
func (m *LeaseManager) WithTenantTx(ctx context.Context, orgID int64, fn TxFunc) error {
	if orgID <= 0 {
		return apperr.Validation("INVALID_ORGANIZATION_ID", "organization id must be a positive integer")
	}
	return m.withScope(ctx, "tenant_tx", strconv.FormatInt(orgID, 10), false, fn)
}

// WithBypass runs fn with RLS bypassed and a neutral tenant id. Reserved for
// operations that legitimately see across tenants: organization existence and
// activation checks, cross-tenant promotion evaluation, platform
// administration. Every caller is an audited, named code path; bypass is
// never derived from tenant-supplied input.
func (m *LeaseManager) WithBypass(ctx context.Context, fn TxFunc) error {
	return m.withScope(ctx, "bypass", "0", true, fn)
}

func (m *LeaseManager) withScope(ctx context.Context, mode, tenantID string, bypass bool, fn TxFunc) error {
	// Bound only the wait for a free connection; the unit of work itself runs
	// under the caller's context.
	acquireCtx, cancel := context.WithTimeout(ctx, m.acquireTimeout)
	conn, err := m.db.Connx(acquireCtx)
	cancel()
	if err != nil {
		telemetry.LeaseAcquireFailuresTotal.WithLabelValues(mode).Inc()
		slog.Error("connection lease acquisition failed", "mode", mode, "error", err)
		return apperr.ConnectionUnavailable(err)
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		telemetry.LeaseAcquireFailuresTotal.WithLabelValues(mode).Inc()
		return apperr.ConnectionUnavailable(err)
	}

	committed := false
	defer func() {
		if !committed {
			// Rollback also discards the transaction-local parameters, so a
			// failed unit of work releases a neutral connection.
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				slog.Error("lease rollback failed", "mode", mode, "error", rbErr)
			}
		}
	}()

	// is_local=true: both parameters exist only for the duration of this
	// transaction. Session-scoped set_config is a defect class here — a pooled
	// connection would carry the flags into an unrelated request.
	_, err = tx.ExecContext(ctx,
		`SELECT set_config('app.current_tenant_id', $1, true), set_config('app.bypass_rls', $2, true)`,
		tenantID, strconv.FormatBool(bypass))
	if err != nil {
		return fmt.Errorf("failed to set tenant scope: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scoped transaction: %w", err)
	}
	committed = true
	return nil
}

// Savepoint runs fn inside a savepoint on tx. If fn fails the transaction is
// rolled back to the savepoint and the error is returned, leaving the parent
// transaction usable — the pattern for best-effort substeps such as audit
// inserts whose failure must not abort the business write.
func Savepoint(ctx context.Context, tx *sqlx.Tx, name string, fn TxFunc) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+pqQuoteIdent(name)); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	if err := fn(tx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+pqQuoteIdent(name)); rbErr != nil {
			return fmt.Errorf("failed to roll back to savepoint %s after %v: %w", name, err, rbErr)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+pqQuoteIdent(name)); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// pqQuoteIdent quotes a savepoint name as a PostgreSQL identifier. Savepoint
// names come from code, not user input, but quoting keeps that a non-issue.
func pqQuoteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"', '"')
		} else {
			out = append(out, name[i])
		}
	}
	return string(append(out, '"'))
}
