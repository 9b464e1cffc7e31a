package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository"
)

// SecurityRepository implements port.SecurityRepository backed by PostgreSQL.
type SecurityRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSecurityRepository constructs an account security repository.
func NewSecurityRepository(pool *pgxpool.Pool) *SecurityRepository {
	return &SecurityRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *SecurityRepository) WithTx(tx pgx.Tx) *SecurityRepository {
	if tx == nil {
		return r
	}
	return &SecurityRepository{pool: r.pool, exec: tx, builder: r.builder}
}

// Create inserts a fresh security record for a user.
func (r *SecurityRepository) Create(ctx context.Context, record domain.AccountSecurity) error {
	stmt, args, err := r.builder.Insert("auth.account_security").
		Columns(
			"user_id",
			"password_hash",
			"security_warns",
			"locked",
			"locked_until",
			"verified",
			"simple_otp",
			"twofactor_enabled",
			"updated_at",
		).
		Values(
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
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert security record sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert security record: %w", err)
	}

	return nil
}

// GetByUserID fetches the security record for a user.
func (r *SecurityRepository) GetByUserID(ctx context.Context, userID string) (*domain.AccountSecurity, error) {
	stmt, args, err := r.builder.Select(
		"user_id",
		"password_hash",
		"security_warns",
		"locked",
		"locked_until",
		"verified",
		"simple_otp",
		"twofactor_enabled",
		"updated_at",
	).
		From("auth.account_security").
		Where(squirrel.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select security record sql: %w", err)
	}

	var (
		record      domain.AccountSecurity
		lockedUntil sql.NullTime
		simpleOTP   sql.NullString
	)

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(
		&record.UserID,
		&record.PasswordHash,
		&record.SecurityWarns,
		&record.Locked,
		&lockedUntil,
		&record.Verified,
		&simpleOTP,
		&record.TwoFactorEnabled,
		&record.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan security record: %w", err)
	}

	if lockedUntil.Valid {
		t := lockedUntil.Time
		record.LockedUntil = &t
	}
	if simpleOTP.Valid {
		v := simpleOTP.String
		record.SimpleOTP = &v
	}

	return &record, nil
}

// IncrementWarns atomically bumps the warning counter and returns the new
// value. A single UPDATE ... RETURNING means two concurrent failed attempts
// can never under-count toward the lockout threshold.
func (r *SecurityRepository) IncrementWarns(ctx context.Context, userID string) (int, error) {
	const stmt = `
		UPDATE auth.account_security
		   SET security_warns = security_warns + 1,
		       updated_at = now()
		 WHERE user_id = $1
		 RETURNING security_warns
	`

	var warns int
	if err := r.exec.QueryRow(ctx, stmt, userID).Scan(&warns); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment security warns: %w", err)
	}

	return warns, nil
}

// ResetWarns sets the warning counter back to zero.
func (r *SecurityRepository) ResetWarns(ctx context.Context, userID string) error {
	return r.update(ctx, userID, map[string]any{"security_warns": 0})
}

// SetLock asserts the locked flag. A nil until produces a permanent lock.
func (r *SecurityRepository) SetLock(ctx context.Context, userID string, until *time.Time) error {
	return r.update(ctx, userID, map[string]any{
		"locked":       true,
		"locked_until": until,
	})
}

// ClearLock clears the locked flag, its window, and the warning counter.
func (r *SecurityRepository) ClearLock(ctx context.Context, userID string) error {
	return r.update(ctx, userID, map[string]any{
		"locked":         false,
		"locked_until":   nil,
		"security_warns": 0,
	})
}

// SetVerified updates the verified flag.
func (r *SecurityRepository) SetVerified(ctx context.Context, userID string, verified bool) error {
	return r.update(ctx, userID, map[string]any{"verified": verified})
}

// SetSimpleOTP overwrites the single one-time-code slot; nil clears it.
func (r *SecurityRepository) SetSimpleOTP(ctx context.Context, userID string, slot *string) error {
	return r.update(ctx, userID, map[string]any{"simple_otp": slot})
}

// UpdatePasswordHash replaces the stored password digest.
func (r *SecurityRepository) UpdatePasswordHash(ctx context.Context, userID string, hash string) error {
	return r.update(ctx, userID, map[string]any{"password_hash": hash})
}

// SetTwoFactorEnabled flips the 2FA flag.
func (r *SecurityRepository) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error {
	return r.update(ctx, userID, map[string]any{"twofactor_enabled": enabled})
}

// Delete removes the security record.
func (r *SecurityRepository) Delete(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.Delete("auth.account_security").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete security record sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete security record: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *SecurityRepository) update(ctx context.Context, userID string, sets map[string]any) error {
	builder := r.builder.Update("auth.account_security").
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"user_id": userID})
	for column, value := range sets {
		builder = builder.Set(column, value)
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update security record sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update security record: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.SecurityRepository = (*SecurityRepository)(nil)
