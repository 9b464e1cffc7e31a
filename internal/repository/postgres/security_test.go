package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository"
)

func domainSecurityFixture() domain.AccountSecurity {
	return domain.AccountSecurity{
		UserID:       "user-1",
		PasswordHash: "salt:hash",
		Verified:     true,
		UpdatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newMockSecurityRepository(t *testing.T) (*SecurityRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	repo := &SecurityRepository{
		exec:    mock,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	return repo, mock
}

func TestSecurityRepository_IncrementWarns(t *testing.T) {
	repo, mock := newMockSecurityRepository(t)

	mock.ExpectQuery(`UPDATE auth\.account_security`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"security_warns"}).AddRow(3))

	warns, err := repo.IncrementWarns(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IncrementWarns returned error: %v", err)
	}
	if warns != 3 {
		t.Fatalf("expected 3 warns, got %d", warns)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSecurityRepository_IncrementWarns_NotFound(t *testing.T) {
	repo, mock := newMockSecurityRepository(t)

	mock.ExpectQuery(`UPDATE auth\.account_security`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.IncrementWarns(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSecurityRepository_Create_Duplicate(t *testing.T) {
	repo, mock := newMockSecurityRepository(t)

	record := domainSecurityFixture()
	mock.ExpectExec(`INSERT INTO auth\.account_security`).
		WithArgs(
			record.UserID,
			record.PasswordHash,
			record.SecurityWarns,
			record.Locked,
			record.LockedUntil,
			record.Verified,
			record.SimpleOTP,
			record.TwoFactorEnabled,
			record.UpdatedAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), record)
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestSecurityRepository_GetByUserID(t *testing.T) {
	repo, mock := newMockSecurityRepository(t)

	updatedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"user_id", "password_hash", "security_warns", "locked",
		"locked_until", "verified", "simple_otp", "twofactor_enabled", "updated_at",
	}).AddRow("user-1", "salt:hash", 2, false, nil, true, nil, false, updatedAt)

	mock.ExpectQuery(`SELECT .+ FROM auth\.account_security`).
		WithArgs("user-1").
		WillReturnRows(rows)

	record, err := repo.GetByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetByUserID returned error: %v", err)
	}
	if record.SecurityWarns != 2 {
		t.Fatalf("expected 2 warns, got %d", record.SecurityWarns)
	}
	if record.LockedUntil != nil {
		t.Fatal("expected nil LockedUntil for a NULL column")
	}
	if record.SimpleOTP != nil {
		t.Fatal("expected nil SimpleOTP for a NULL column")
	}
	if !record.Verified {
		t.Fatal("expected verified record")
	}
}

func TestSecurityRepository_GetByUserID_NotFound(t *testing.T) {
	repo, mock := newMockSecurityRepository(t)

	mock.ExpectQuery(`SELECT .+ FROM auth\.account_security`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByUserID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSecurityRepository_Delete_NotFound(t *testing.T) {
	repo, mock := newMockSecurityRepository(t)

	mock.ExpectExec(`DELETE FROM auth\.account_security`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSecurityRepository_SetLock(t *testing.T) {
	repo, mock := newMockSecurityRepository(t)

	// SET column order is not stable, so the bound values are matched
	// loosely; the user id is always the final WHERE argument.
	mock.ExpectExec(`UPDATE auth\.account_security`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	until := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	if err := repo.SetLock(context.Background(), "user-1", &until); err != nil {
		t.Fatalf("SetLock returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
