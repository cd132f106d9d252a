package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/agendly/agendly-backend/internal/apperr"
)

var setConfigPattern = regexp.QuoteMeta(
	`SELECT set_config('app.current_tenant_id', $1, true), set_config('app.bypass_rls', $2, true)`)

func newLeaseManager(t *testing.T) (*LeaseManager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return NewLeaseManager(sqlx.NewDb(mockDB, "sqlmock"), time.Second), mock
}

func expectScope(mock sqlmock.Sqlmock, tenantID, bypass string) {
	mock.ExpectBegin()
	mock.ExpectExec(setConfigPattern).
		WithArgs(tenantID, bypass).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestWithTenant_SetsTransactionLocalScope(t *testing.T) {
	m, mock := newLeaseManager(t)

	expectScope(mock, "10", "false")
	mock.ExpectQuery("SELECT full_name FROM clients").
		WillReturnRows(sqlmock.NewRows([]string{"full_name"}).AddRow("Ana"))
	mock.ExpectCommit()

	var name string
	err := m.WithTenant(context.Background(), 10, func(tx *sqlx.Tx) error {
		return tx.QueryRowx("SELECT full_name FROM clients WHERE id = 1").Scan(&name)
	})
	if err != nil {
		t.Fatalf("WithTenant() error = %v", err)
	}
	if name != "Ana" {
		t.Errorf("name = %q, want Ana", name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWithTenant_RejectsNonPositiveOrgWithoutTouchingPool(t *testing.T) {
	m, mock := newLeaseManager(t)

	for _, id := range []int64{0, -5} {
		err := m.WithTenant(context.Background(), id, func(tx *sqlx.Tx) error {
			t.Fatal("fn must not run for invalid org id")
			return nil
		})
		appErr := apperr.As(err)
		if appErr == nil || appErr.Kind != apperr.KindValidation {
			t.Errorf("WithTenant(%d) error = %v, want validation variant", id, err)
		}
	}
	// No Begin was expected: an invalid id must not consume a connection.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected pool interaction: %v", err)
	}
}

func TestWithTenantTx_ErrorRollsBackAndPropagates(t *testing.T) {
	m, mock := newLeaseManager(t)

	expectScope(mock, "10", "false")
	mock.ExpectRollback()

	boom := errors.New("business rule violated")
	err := m.WithTenantTx(context.Background(), 10, func(tx *sqlx.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v propagated unchanged", err, boom)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWithBypass_SetsBypassFlagAndNeutralTenant(t *testing.T) {
	m, mock := newLeaseManager(t)

	expectScope(mock, "0", "true")
	mock.ExpectQuery("SELECT id FROM organizations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(20)))
	mock.ExpectCommit()

	err := m.WithBypass(context.Background(), func(tx *sqlx.Tx) error {
		var id int64
		return tx.QueryRowx("SELECT id FROM organizations WHERE id = 20").Scan(&id)
	})
	if err != nil {
		t.Fatalf("WithBypass() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// The no-leakage property: after a tenant-scoped lease is released, the next
// lease on the same pool starts its own transaction and sets its own scope.
// The ordered expectations prove the only scope writes are the
// transaction-local ones at the start of each lease — there is no session
// write that could survive into a later borrower.
func TestSequentialLeases_NoScopeCarryOver(t *testing.T) {
	m, mock := newLeaseManager(t)

	expectScope(mock, "10", "false")
	mock.ExpectCommit()

	expectScope(mock, "0", "true")
	mock.ExpectCommit()

	expectScope(mock, "20", "false")
	mock.ExpectCommit()

	ctx := context.Background()
	if err := m.WithTenant(ctx, 10, func(tx *sqlx.Tx) error { return nil }); err != nil {
		t.Fatalf("tenant A lease: %v", err)
	}
	if err := m.WithBypass(ctx, func(tx *sqlx.Tx) error { return nil }); err != nil {
		t.Fatalf("bypass lease: %v", err)
	}
	if err := m.WithTenant(ctx, 20, func(tx *sqlx.Tx) error { return nil }); err != nil {
		t.Fatalf("tenant B lease: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWithTenant_ClosedPoolReturnsConnectionUnavailable(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	m := NewLeaseManager(sqlx.NewDb(mockDB, "sqlmock"), 50*time.Millisecond)
	mockDB.Close()

	err = m.WithTenant(context.Background(), 10, func(tx *sqlx.Tx) error { return nil })
	appErr := apperr.As(err)
	if appErr == nil || appErr.Kind != apperr.KindConnectionUnavailable {
		t.Errorf("error = %v, want connection_unavailable variant", err)
	}
}

func TestSavepoint_FailureKeepsParentTransactionAlive(t *testing.T) {
	m, mock := newLeaseManager(t)

	expectScope(mock, "10", "false")
	mock.ExpectExec(`SAVEPOINT "audit_log"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO audit").WillReturnError(errors.New("audit table full"))
	mock.ExpectExec(`ROLLBACK TO SAVEPOINT "audit_log"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE clients").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := m.WithTenantTx(context.Background(), 10, func(tx *sqlx.Tx) error {
		ctx := context.Background()
		// Best-effort substep: its failure must not abort the parent.
		if err := Savepoint(ctx, tx, "audit_log", func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO audit (entry) VALUES ('x')")
			return err
		}); err == nil {
			t.Error("Savepoint() = nil, want audit error")
		}
		_, err := tx.ExecContext(ctx, "UPDATE clients SET full_name = 'Ana' WHERE id = 1")
		return err
	})
	if err != nil {
		t.Fatalf("parent transaction failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSavepoint_SuccessReleases(t *testing.T) {
	m, mock := newLeaseManager(t)

	expectScope(mock, "10", "false")
	mock.ExpectExec(`SAVEPOINT "step"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO audit").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`RELEASE SAVEPOINT "step"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := m.WithTenantTx(context.Background(), 10, func(tx *sqlx.Tx) error {
		ctx := context.Background()
		return Savepoint(ctx, tx, "step", func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO audit (entry) VALUES ('x')")
			return err
		})
	})
	if err != nil {
		t.Fatalf("WithTenantTx() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
