package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository"
)

// TwoFactorRepository implements port.TwoFactorRepository backed by PostgreSQL.
type TwoFactorRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTwoFactorRepository constructs a 2FA record repository.
func NewTwoFactorRepository(pool *pgxpool.Pool) *TwoFactorRepository {
	return &TwoFactorRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TwoFactorRepository) WithTx(tx pgx.Tx) *TwoFactorRepository {
	if tx == nil {
		return r
	}
	return &TwoFactorRepository{pool: r.pool, exec: tx, builder: r.builder}
}

// Create inserts a new 2FA record. At most one row exists per user; a second
// insert while one is pending surfaces as ErrDuplicate.
func (r *TwoFactorRepository) Create(ctx context.Context, record domain.TwoFactor) error {
	stmt, args, err := r.builder.Insert("auth.twofactor").
		Columns("user_id", "secret", "last_otp", "backup_codes", "created_at").
		Values(record.UserID, record.Secret, record.LastOTP, record.BackupCodes, record.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert twofactor sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert twofactor record: %w", err)
	}

	return nil
}

// GetByUserID fetches the 2FA record for a user.
func (r *TwoFactorRepository) GetByUserID(ctx context.Context, userID string) (*domain.TwoFactor, error) {
	stmt, args, err := r.builder.Select("user_id", "secret", "last_otp", "backup_codes", "created_at").
		From("auth.twofactor").
		Where(squirrel.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select twofactor sql: %w", err)
	}

	var (
		record  domain.TwoFactor
		lastOTP sql.NullString
	)

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&record.UserID, &record.Secret, &lastOTP, &record.BackupCodes, &record.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan twofactor record: %w", err)
	}

	if lastOTP.Valid {
		v := lastOTP.String
		record.LastOTP = &v
	}

	return &record, nil
}

// SetLastOTP records the most recently consumed code for replay protection.
func (r *TwoFactorRepository) SetLastOTP(ctx context.Context, userID string, code string) error {
	return r.update(ctx, userID, "last_otp", code)
}

// SetBackupCodes overwrites the joined backup code column.
func (r *TwoFactorRepository) SetBackupCodes(ctx context.Context, userID string, joined string) error {
	return r.update(ctx, userID, "backup_codes", joined)
}

// Delete removes the 2FA record.
func (r *TwoFactorRepository) Delete(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.Delete("auth.twofactor").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete twofactor sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete twofactor record: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *TwoFactorRepository) update(ctx context.Context, userID, column string, value any) error {
	stmt, args, err := r.builder.Update("auth.twofactor").
		Set(column, value).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update twofactor sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update twofactor record: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.TwoFactorRepository = (*TwoFactorRepository)(nil)
